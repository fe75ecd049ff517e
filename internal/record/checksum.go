package record

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32C checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateChecksum reports whether data's CRC32C matches expected.
func ValidateChecksum(data []byte, expected uint32) bool {
	return Checksum(data) == expected
}
