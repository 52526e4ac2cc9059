package disk

import (
	"encoding/binary"
	"os"

	"github.com/bmyte/jagcache/lib/buffer"
	"github.com/pkg/errors"
)

const (
	SectorSize        = 520
	SectorHeaderSize  = 8
	SectorPayloadSize = SectorSize - SectorHeaderSize

	// maxMedium bounds lengths and sector numbers, both stored in 24 bits.
	maxMedium = 1<<24 - 1
)

// datFile is the payload log shared by every archive: a sequence of
// 520-byte sectors, each holding {group u16, chunk u16, next u24,
// archive u8} and 512 bytes of payload. append never allocates sector
// 0, so a zero-length group it stores is never mistaken for an absent
// one, but a chain written by another writer may start there.
type datFile struct {
	f   *os.File
	buf [SectorSize]byte
}

func openDatFile(path string) (*datFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	return &datFile{f: f}, nil
}

// read follows the sector chain starting at sector and returns length
// bytes. Every sector header must name the requested archive and group
// and carry the expected chunk index.
func (d *datFile) read(archive, group int, length, sector uint32) ([]byte, error) {
	dst := make([]byte, length)

	for pos, chunk := 0, 0; pos < len(dst); chunk++ {
		// A next pointer of 0 ends the chain, so only the first chunk
		// may live in sector 0.
		if sector == 0 && chunk > 0 {
			return nil, errors.Wrapf(ErrCorrupt, "archive %d group %d: chain ends before chunk %d", archive, group, chunk)
		}

		if _, err := d.f.ReadAt(d.buf[:], int64(sector)*SectorSize); err != nil {
			return nil, errors.Wrapf(ErrCorrupt, "archive %d group %d: read sector %d: %v", archive, group, sector, err)
		}

		sectorGroup := int(binary.BigEndian.Uint16(d.buf[0:2]))
		sectorChunk := int(binary.BigEndian.Uint16(d.buf[2:4]))
		next := buffer.GetMedium(d.buf[4:7])
		sectorArchive := int(d.buf[7])

		if sectorGroup != group || sectorChunk != chunk || sectorArchive != archive {
			return nil, errors.Wrapf(ErrCorrupt,
				"sector %d holds archive %d group %d chunk %d, want archive %d group %d chunk %d",
				sector, sectorArchive, sectorGroup, sectorChunk, archive, group, chunk)
		}

		pos += copy(dst[pos:], d.buf[SectorHeaderSize:])
		sector = next
	}

	return dst, nil
}

// append writes data as a new chain at the end of the log and returns
// its first sector.
func (d *datFile) append(archive, group int, data []byte) (uint32, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return 0, err
	}

	start := (fi.Size() + SectorSize - 1) / SectorSize
	if start == 0 {
		start = 1
	}

	sectors := (len(data) + SectorPayloadSize - 1) / SectorPayloadSize
	if start+int64(sectors) > maxMedium {
		return 0, errors.Errorf("payload log full: %d sectors", start)
	}

	for chunk := 0; chunk < sectors; chunk++ {
		sector := start + int64(chunk)

		var next uint32
		if chunk < sectors-1 {
			next = uint32(sector + 1)
		}

		binary.BigEndian.PutUint16(d.buf[0:2], uint16(group))
		binary.BigEndian.PutUint16(d.buf[2:4], uint16(chunk))
		buffer.PutMedium(d.buf[4:7], next)
		d.buf[7] = uint8(archive)

		n := copy(d.buf[SectorHeaderSize:], data[chunk*SectorPayloadSize:])
		clear(d.buf[SectorHeaderSize+n:])

		if _, err := d.f.WriteAt(d.buf[:], sector*SectorSize); err != nil {
			return 0, errors.Wrapf(err, "write sector %d", sector)
		}
	}

	sectorsWritten.Add(float64(sectors))
	return uint32(start), nil
}

func (d *datFile) Close() error {
	return d.f.Close()
}
