// Package blockindex implements the block index walker (component 4.6): it
// translates file-byte offsets into block-device block numbers through the
// direct / single-indirect / double-indirect tree, and implements the read,
// write, and truncate-to-zero algorithms built on top of that translation.
//
// Grounded on homework.c's direct_sz/indirect_level1_sz/indirect_level2_sz
// address arithmetic, corrected per the Open Questions in SPEC_FULL.md: a
// new double-indirect root block is assigned to Indir2 (not Indir1), and
// every allocate-and-stitch-in step checks its error return explicitly.
package blockindex

import (
	"github.com/dargueta/blockfs/bitmap"
	"github.com/dargueta/blockfs/blockdev"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/inode"
	"github.com/dargueta/blockfs/layout"
)

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// resolve translates a byte offset into the inode's data into the absolute
// block number holding it. When alloc is non-nil, missing index and leaf
// blocks along the path are allocated and stitched in (write path); when
// alloc is nil, a missing block simply resolves to 0 (read path, where a
// hole should not arise in normal use but is handled by stopping the read
// early rather than erroring).
func resolve(
	dev *blockdev.Device,
	alloc *bitmap.Allocator,
	table *inode.Table,
	inodeNum uint32,
	ino *inode.Inode,
	offset uint64,
) (blockdev.BlockNumber, error) {
	switch {
	case offset < layout.DirectMax:
		idx := offset / layout.BlockSize
		ptr := ino.Direct[idx]
		if ptr != 0 || alloc == nil {
			return blockdev.BlockNumber(ptr), nil
		}
		newBlock, err := alloc.AllocBlock()
		if err != nil {
			return 0, err
		}
		ino.Direct[idx] = uint32(newBlock)
		if err := table.WriteInode(inodeNum); err != nil {
			return 0, err
		}
		if err := alloc.Flush(); err != nil {
			return 0, err
		}
		return newBlock, nil

	case offset < layout.DirectMax+layout.Indir1Max:
		inner := (offset - layout.DirectMax) / layout.BlockSize
		indir1, err := ensureRoot(dev, alloc, table, inodeNum, ino, &ino.Indir1)
		if err != nil || indir1 == 0 {
			return 0, err
		}
		return resolveLeaf(dev, alloc, indir1, uint32(inner))

	case offset < layout.DirectMax+layout.Indir1Max+layout.Indir2Max:
		offset2 := offset - layout.DirectMax - layout.Indir1Max
		outer := offset2 / layout.Indir1Max
		inner := (offset2 % layout.Indir1Max) / layout.BlockSize

		indir2, err := ensureRoot(dev, alloc, table, inodeNum, ino, &ino.Indir2)
		if err != nil || indir2 == 0 {
			return 0, err
		}

		outerBlock, err := resolveOuter(dev, alloc, indir2, uint32(outer))
		if err != nil || outerBlock == 0 {
			return 0, err
		}
		return resolveLeaf(dev, alloc, outerBlock, uint32(inner))

	default:
		return 0, fserrors.ErrInvalidArgument.WithMessage("offset past maximum file size")
	}
}

// ensureRoot returns *field (Indir1 or Indir2), allocating and recording a
// fresh block into *field if it's currently 0 and alloc is non-nil. The
// caller passes &ino.Indir2 (never &ino.Indir1) for the double-indirect
// region, which is the correction to the source's "Double-indirect
// allocation" bug described in SPEC_FULL.md.
func ensureRoot(
	dev *blockdev.Device,
	alloc *bitmap.Allocator,
	table *inode.Table,
	inodeNum uint32,
	ino *inode.Inode,
	field *uint32,
) (blockdev.BlockNumber, error) {
	if *field != 0 || alloc == nil {
		return blockdev.BlockNumber(*field), nil
	}
	newBlock, err := alloc.AllocBlock()
	if err != nil {
		return 0, err
	}
	*field = uint32(newBlock)
	if err := table.WriteInode(inodeNum); err != nil {
		return 0, err
	}
	if err := alloc.Flush(); err != nil {
		return 0, err
	}
	return newBlock, nil
}

// resolveOuter reads the outer pointer at position idx inside the
// double-indirect root block indir2, allocating it if missing.
func resolveOuter(dev *blockdev.Device, alloc *bitmap.Allocator, indir2 blockdev.BlockNumber, idx uint32) (blockdev.BlockNumber, error) {
	ptrs, err := readIndirect(dev, indir2)
	if err != nil {
		return 0, err
	}
	if ptrs[idx] != 0 || alloc == nil {
		return blockdev.BlockNumber(ptrs[idx]), nil
	}
	newBlock, err := alloc.AllocBlock()
	if err != nil {
		return 0, err
	}
	ptrs[idx] = uint32(newBlock)
	// Explicit error check on the parent write, rather than an
	// assignment-in-condition that silently drops a failure (see the
	// "Indir-1 outer write" Open Question in SPEC_FULL.md).
	if err := writeIndirect(dev, indir2, ptrs); err != nil {
		return 0, err
	}
	if err := alloc.Flush(); err != nil {
		return 0, err
	}
	return newBlock, nil
}

// resolveLeaf reads the leaf pointer at position idx inside indirect block
// parent, allocating it if missing.
func resolveLeaf(dev *blockdev.Device, alloc *bitmap.Allocator, parent blockdev.BlockNumber, idx uint32) (blockdev.BlockNumber, error) {
	ptrs, err := readIndirect(dev, parent)
	if err != nil {
		return 0, err
	}
	if ptrs[idx] != 0 || alloc == nil {
		return blockdev.BlockNumber(ptrs[idx]), nil
	}
	newBlock, err := alloc.AllocBlock()
	if err != nil {
		return 0, err
	}
	ptrs[idx] = uint32(newBlock)
	if err := writeIndirect(dev, parent, ptrs); err != nil {
		return 0, err
	}
	if err := alloc.Flush(); err != nil {
		return 0, err
	}
	return newBlock, nil
}

// Read copies up to len(buf) bytes starting at offset into buf, clipped to
// the inode's current size. It returns the number of bytes actually copied.
func Read(dev *blockdev.Device, ino *inode.Inode, offset uint64, buf []byte) (int, error) {
	if offset >= ino.Size {
		return 0, nil
	}
	length := len(buf)
	if remaining := ino.Size - offset; uint64(length) > remaining {
		length = int(remaining)
	}

	copied := 0
	cur := offset
	for copied < length {
		blk, err := resolve(dev, nil, nil, 0, ino, cur)
		if err != nil {
			return copied, err
		}
		if blk == 0 {
			// A hole shouldn't arise in normal use; stop early rather than
			// fabricate data.
			return copied, nil
		}
		inBlockOffset := int(cur % layout.BlockSize)
		chunk := min(length-copied, layout.BlockSize-inBlockOffset)

		raw, err := dev.ReadBlock(blk)
		if err != nil {
			return copied, err
		}
		copy(buf[copied:copied+chunk], raw[inBlockOffset:inBlockOffset+chunk])
		copied += chunk
		cur += uint64(chunk)
	}
	return copied, nil
}

// Write overwrites len(data) bytes starting at offset, allocating data and
// index blocks as needed. offset must not be past the current size (holes
// are forbidden). If the write extends the file, Size is updated and the
// inode is written back.
func Write(
	dev *blockdev.Device,
	alloc *bitmap.Allocator,
	table *inode.Table,
	inodeNum uint32,
	ino *inode.Inode,
	offset uint64,
	data []byte,
) (int, error) {
	if offset > ino.Size {
		return 0, fserrors.ErrInvalidArgument.WithMessage("write would leave a hole")
	}

	written := 0
	cur := offset
	for written < len(data) {
		blk, err := resolve(dev, alloc, table, inodeNum, ino, cur)
		if err != nil {
			return written, err
		}

		inBlockOffset := int(cur % layout.BlockSize)
		chunk := min(len(data)-written, layout.BlockSize-inBlockOffset)

		raw, err := dev.ReadBlock(blk)
		if err != nil {
			return written, err
		}
		copy(raw[inBlockOffset:inBlockOffset+chunk], data[written:written+chunk])
		if err := dev.WriteBlock(blk, raw); err != nil {
			return written, err
		}

		written += chunk
		cur += uint64(chunk)
	}

	if offset+uint64(written) > ino.Size {
		ino.Size = offset + uint64(written)
		if err := table.WriteInode(inodeNum); err != nil {
			return written, err
		}
	}
	return written, nil
}

// Truncate releases every data and index block reachable from ino and
// resets it to an empty, zero-size file. Grounded on the spec's "Truncate
// to zero" procedure: direct pointers first, then the single-indirect
// subtree, then the double-indirect subtree (outer block, then each inner
// indirect-1 block it points to), with the depth-2 recursion inlined as two
// explicitly bounded loops rather than general recursion.
func Truncate(dev *blockdev.Device, alloc *bitmap.Allocator, table *inode.Table, inodeNum uint32, ino *inode.Inode) error {
	for i := range ino.Direct {
		if ino.Direct[i] != 0 {
			alloc.FreeBlock(blockdev.BlockNumber(ino.Direct[i]))
			ino.Direct[i] = 0
		}
	}

	if ino.Indir1 != 0 {
		if err := freeIndirectLevel1(dev, alloc, blockdev.BlockNumber(ino.Indir1)); err != nil {
			return err
		}
		ino.Indir1 = 0
	}

	if ino.Indir2 != 0 {
		outerPtrs, err := readIndirect(dev, blockdev.BlockNumber(ino.Indir2))
		if err != nil {
			return err
		}
		for _, outer := range outerPtrs {
			if outer == 0 {
				continue
			}
			if err := freeIndirectLevel1(dev, alloc, blockdev.BlockNumber(outer)); err != nil {
				return err
			}
		}
		alloc.FreeBlock(blockdev.BlockNumber(ino.Indir2))
		ino.Indir2 = 0
	}

	ino.Size = 0
	if err := alloc.Flush(); err != nil {
		return err
	}
	return table.WriteInode(inodeNum)
}

// freeIndirectLevel1 frees every non-zero leaf pointer inside a
// single-indirect block, then the block itself.
func freeIndirectLevel1(dev *blockdev.Device, alloc *bitmap.Allocator, indir1 blockdev.BlockNumber) error {
	ptrs, err := readIndirect(dev, indir1)
	if err != nil {
		return err
	}
	for _, p := range ptrs {
		if p != 0 {
			alloc.FreeBlock(blockdev.BlockNumber(p))
		}
	}
	alloc.FreeBlock(indir1)
	return nil
}
