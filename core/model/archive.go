package model

// MasterArchive is the reserved archive whose groups are the encoded
// catalogs of every other archive. Group MasterArchive of the master
// archive is the master catalog itself.
const MasterArchive = 255

// MaxArchives bounds the archive id space (ids are one byte on disk and
// on the wire).
const MaxArchives = MasterArchive + 1

// MasterEntry describes one archive's catalog as advertised by the
// remote master catalog.
type MasterEntry struct {
	CRC32   uint32
	Version uint32
}
