package blockindex

import (
	"encoding/binary"

	"github.com/dargueta/blockfs/blockdev"
	"github.com/dargueta/blockfs/layout"
)

// readIndirect decodes an indirect block into its layout.PtrsPerBlock block
// numbers.
func readIndirect(dev *blockdev.Device, blk blockdev.BlockNumber) ([layout.PtrsPerBlock]uint32, error) {
	var ptrs [layout.PtrsPerBlock]uint32
	raw, err := dev.ReadBlock(blk)
	if err != nil {
		return ptrs, err
	}
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}
	return ptrs, nil
}

// writeIndirect encodes ptrs and writes it back to blk.
func writeIndirect(dev *blockdev.Device, blk blockdev.BlockNumber, ptrs [layout.PtrsPerBlock]uint32) error {
	raw := make([]byte, layout.BlockSize)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], p)
	}
	return dev.WriteBlock(blk, raw)
}
