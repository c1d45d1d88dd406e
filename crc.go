package rarlist

import "hash/crc32"

// blockCRC32 computes the IEEE 802.3 polynomial CRC over a whole buffer,
// used for RAR3 and RAR5 block-header integrity checks.
func blockCRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

var ieeeTable = crc32.MakeTable(crc32.IEEE)

// updateCRC32 folds data into a running IEEE CRC-32 accumulator, for the
// stored-file reader's incremental verification as bytes are delivered.
func updateCRC32(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, ieeeTable, data)
}
