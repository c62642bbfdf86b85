// Package mkfs implements the image builder (component 4.8): formatting a
// brand-new filesystem image on a block device.
//
// Grounded on dargueta-disko/file_systems/unixv1/format.go's region-size
// arithmetic and sequential bytewriter-based header assembly, adapted to
// this filesystem's fixed three-region layout (superblock, two bitmaps,
// inode table) instead of the teacher's superblock-embedded bitmaps.
package mkfs

import (
	"time"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/blockfs/bitmap"
	"github.com/dargueta/blockfs/blockdev"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/inode"
	"github.com/dargueta/blockfs/layout"
)

// Options describes the image to build.
type Options struct {
	// TotalBlocks is the total size of the device, in blocks.
	TotalBlocks uint32
	// TotalInodes is the number of inode records the image should reserve
	// room for. It's rounded up to a whole number of inode-table blocks.
	TotalInodes uint32
}

func bitsToBlocks(bits uint32) uint32 {
	bytes := (bits + 7) / 8
	return (bytes + layout.BlockSize - 1) / layout.BlockSize
}

// regionSizes computes the block counts of the inode bitmap, block bitmap,
// and inode table regions for the requested geometry.
func regionSizes(opts Options) (inodeMapSize, blockMapSize, inodeRegionSize uint32) {
	inodeMapSize = bitsToBlocks(opts.TotalInodes)
	if inodeMapSize == 0 {
		inodeMapSize = 1
	}
	blockMapSize = bitsToBlocks(opts.TotalBlocks)
	if blockMapSize == 0 {
		blockMapSize = 1
	}
	inodesPerBlock := uint32(layout.InodesPerBlock)
	inodeRegionSize = (opts.TotalInodes + inodesPerBlock - 1) / inodesPerBlock
	if inodeRegionSize == 0 {
		inodeRegionSize = 1
	}
	return
}

// Format writes a fresh, empty filesystem to dev: superblock, zeroed
// bitmaps with inode 0/1 and the root's one data block marked used, a
// zeroed inode table, and the root directory's inode and empty entry
// table.
func Format(dev *blockdev.Device, opts Options) error {
	inodeMapSize, blockMapSize, inodeRegionSize := regionSizes(opts)

	sb := &layout.Superblock{
		InodeMapSize:    inodeMapSize,
		BlockMapSize:    blockMapSize,
		InodeRegionSize: inodeRegionSize,
		TotalBlocks:     opts.TotalBlocks,
		RootInodeNum:    layout.RootInode,
	}
	if sb.DataRegionBase() >= sb.TotalBlocks {
		return fserrors.ErrInvalidArgument.WithMessage("image too small to hold its own metadata regions")
	}

	headerBlocks := sb.DataRegionBase()
	header := make([]byte, uint(headerBlocks)*layout.BlockSize)
	w := bytewriter.New(header)

	sbBytes, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(sbBytes); err != nil {
		return err
	}

	alloc := bitmap.NewEmpty(dev, sb)
	alloc.ReserveInode(0) // inode 0 is never allocated
	alloc.ReserveInode(layout.RootInode)

	// Write the bitmap regions through the same sequential writer, then
	// reconcile their contents onto dev via Flush once the root's data
	// block has been reserved below.
	inodeBitmapBytes := make([]byte, uint(inodeMapSize)*layout.BlockSize)
	blockBitmapBytes := make([]byte, uint(blockMapSize)*layout.BlockSize)
	if _, err := w.Write(inodeBitmapBytes); err != nil {
		return err
	}
	if _, err := w.Write(blockBitmapBytes); err != nil {
		return err
	}

	inodeTableBytes := make([]byte, uint(inodeRegionSize)*layout.BlockSize)
	if _, err := w.Write(inodeTableBytes); err != nil {
		return err
	}

	if err := dev.Write(0, uint(headerBlocks), header); err != nil {
		return err
	}

	rootDataBlock, err := alloc.AllocBlock()
	if err != nil {
		return err
	}
	if err := alloc.Flush(); err != nil {
		return err
	}

	table := inode.NewEmpty(dev, sb)
	now := time.Now().Unix()
	root := table.Get(layout.RootInode)
	root.Mode = inode.TypeDir | 0755
	root.Ctime = now
	root.Mtime = now
	root.Size = layout.BlockSize
	root.Direct[0] = uint32(rootDataBlock)
	if err := table.WriteInode(layout.RootInode); err != nil {
		return err
	}

	// Every directory entry's Flags word starts at 0 (invalid), so a
	// zero-filled block is already an empty entry table.
	return dev.WriteBlock(rootDataBlock, make([]byte, layout.BlockSize))
}
