package checksum

import "hash/crc32"

// CalculateCheckSum returns the IEEE CRC32 of data, the checksum the
// remote master catalog and the group catalogs carry.
func CalculateCheckSum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
