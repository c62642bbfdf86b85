package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/blockfs/blockdev"
)

// MarshalBinary encodes the superblock as it's stored on disk: five
// little-endian uint32 fields, zero-padded to fill block 0.
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BlockSize)
	w := bytes.NewBuffer(buf[:0])
	fields := []uint32{sb.InodeMapSize, sb.BlockMapSize, sb.InodeRegionSize, sb.TotalBlocks, sb.RootInodeNum}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// UnmarshalBinary decodes a superblock from the raw bytes of block 0.
func (sb *Superblock) UnmarshalBinary(data []byte) error {
	if len(data) < superblockSizeOnDisk {
		return fmt.Errorf("layout: superblock block is only %d bytes, need at least %d",
			len(data), superblockSizeOnDisk)
	}
	r := bytes.NewReader(data[:superblockSizeOnDisk])
	fields := []*uint32{&sb.InodeMapSize, &sb.BlockMapSize, &sb.InodeRegionSize, &sb.TotalBlocks, &sb.RootInodeNum}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// Load reads block 0 off dev and validates the geometry it describes. Every
// problem found is reported together via go-multierror instead of stopping
// at the first one, since this is the one synchronous failure point a whole
// mount attempt hangs on.
func Load(dev *blockdev.Device) (*Superblock, error) {
	raw, err := dev.ReadBlock(0)
	if err != nil {
		return nil, fmt.Errorf("layout: failed to read superblock: %w", err)
	}

	sb := &Superblock{}
	if err := sb.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("layout: failed to decode superblock: %w", err)
	}

	var result *multierror.Error
	if sb.RootInodeNum != RootInode {
		result = multierror.Append(result, fmt.Errorf(
			"root inode must be %d, got %d", RootInode, sb.RootInodeNum))
	}
	if sb.InodeMapSize == 0 {
		result = multierror.Append(result, fmt.Errorf("inode bitmap region size is 0"))
	}
	if sb.BlockMapSize == 0 {
		result = multierror.Append(result, fmt.Errorf("block bitmap region size is 0"))
	}
	if sb.InodeRegionSize == 0 {
		result = multierror.Append(result, fmt.Errorf("inode table region size is 0"))
	}
	if sb.TotalBlocks != dev.TotalBlocks {
		result = multierror.Append(result, fmt.Errorf(
			"superblock claims %d total blocks, device has %d", sb.TotalBlocks, dev.TotalBlocks))
	}
	if sb.DataRegionBase() >= sb.TotalBlocks {
		result = multierror.Append(result, fmt.Errorf(
			"data region base block %d is past the end of the device (%d blocks)",
			sb.DataRegionBase(), sb.TotalBlocks))
	}

	if result != nil {
		result.ErrorFormat = func(errs []error) string {
			msg := fmt.Sprintf("layout: %d geometry problem(s) found while mounting:", len(errs))
			for _, e := range errs {
				msg += "\n  - " + e.Error()
			}
			return msg
		}
		return nil, result
	}

	return sb, nil
}
