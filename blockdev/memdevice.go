package blockdev

import "github.com/xaionaro-go/bytesextra"

// NewMemDevice creates a Device backed entirely by memory, useful for tests
// and for the in-process demo image mkfs can build without touching disk.
// Grounded on dargueta-disko/testing/images.go's use of bytesextra to give an
// in-memory byte slice the io.ReadWriteSeeker shape a Device expects.
func NewMemDevice(blockSize uint, totalBlocks uint32) *Device {
	buf := make([]byte, uint(totalBlocks)*blockSize)
	stream := bytesextra.NewReadWriteSeeker(buf)
	return New(stream, blockSize, totalBlocks)
}
