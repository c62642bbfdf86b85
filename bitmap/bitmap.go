// Package bitmap implements the bitmap allocator (component 4.2): two
// bit-indexed sets held in memory, periodically flushed to their on-disk
// regions, handing out inode numbers and data block numbers.
package bitmap

import (
	gobitmap "github.com/boljen/go-bitmap"

	"github.com/dargueta/blockfs/blockdev"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/layout"
)

// Allocator owns the in-memory mirrors of the inode and block bitmaps for
// one mounted filesystem, grounded on dargueta-disko/file_systems/unixv1's
// driver.blockFreeMap (a raw bitmap.Bitmap read once at mount and flushed on
// every metadata-mutating operation).
type Allocator struct {
	dev *blockdev.Device
	sb  *layout.Superblock

	inodeBits gobitmap.Bitmap
	blockBits gobitmap.Bitmap
}

// Load reads both bitmap regions off dev into memory.
func Load(dev *blockdev.Device, sb *layout.Superblock) (*Allocator, error) {
	inodeRaw, err := readRegion(dev, sb.InodeMapBase(), sb.InodeMapSize)
	if err != nil {
		return nil, err
	}
	blockRaw, err := readRegion(dev, sb.BlockMapBase(), sb.BlockMapSize)
	if err != nil {
		return nil, err
	}
	return &Allocator{
		dev:       dev,
		sb:        sb,
		inodeBits: gobitmap.Bitmap(inodeRaw),
		blockBits: gobitmap.Bitmap(blockRaw),
	}, nil
}

// NewEmpty builds a zeroed allocator for a freshly formatted image; used by
// mkfs before anything has been allocated.
func NewEmpty(dev *blockdev.Device, sb *layout.Superblock) *Allocator {
	return &Allocator{
		dev:       dev,
		sb:        sb,
		inodeBits: gobitmap.New(int(sb.InodeMapSize) * layout.BlockSize * 8),
		blockBits: gobitmap.New(int(sb.BlockMapSize) * layout.BlockSize * 8),
	}
}

func readRegion(dev *blockdev.Device, base uint32, sizeBlocks uint32) ([]byte, error) {
	buf := make([]byte, uint(sizeBlocks)*dev.BlockSize)
	if err := dev.Read(blockdev.BlockNumber(base), uint(sizeBlocks), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func findFirstClear(bits gobitmap.Bitmap, from, limit int) (int, bool) {
	for i := from; i < limit; i++ {
		if !bits.Get(i) {
			return i, true
		}
	}
	return 0, false
}

// AllocInode returns the lowest-numbered free inode number at or above 2
// (inode 0 is reserved, inode 1 is the root) and marks it allocated.
func (a *Allocator) AllocInode() (uint32, error) {
	i, ok := findFirstClear(a.inodeBits, 2, int(a.sb.TotalInodes()))
	if !ok {
		return 0, fserrors.ErrNoSpace.WithMessage("no free inodes")
	}
	a.inodeBits.Set(i, true)
	return uint32(i), nil
}

// ReserveInode marks inode i allocated directly, bypassing the
// lowest-free search. mkfs uses this to pre-mark inode 0 (never allocated)
// and inode 1 (the root) before any AllocInode call is made.
func (a *Allocator) ReserveInode(i uint32) {
	a.inodeBits.Set(int(i), true)
}

// FreeInode clears the bitmap bit for inode i.
func (a *Allocator) FreeInode(i uint32) {
	a.inodeBits.Set(int(i), false)
}

// InodeAllocated reports whether inode i is currently marked in use.
func (a *Allocator) InodeAllocated(i uint32) bool {
	return a.inodeBits.Get(int(i))
}

// AllocBlock returns the lowest-numbered free data block, marks it
// allocated, and zero-fills it on disk so stale contents never leak into a
// newly allocated file or index block.
func (a *Allocator) AllocBlock() (blockdev.BlockNumber, error) {
	limit := int(a.sb.DataRegionBlocks())
	i, ok := findFirstClear(a.blockBits, 0, limit)
	if !ok {
		return 0, fserrors.ErrNoSpace.WithMessage("no free data blocks")
	}
	a.blockBits.Set(i, true)
	abs := blockdev.BlockNumber(a.sb.DataRegionBase() + uint32(i))
	if err := a.dev.ZeroBlock(abs); err != nil {
		a.blockBits.Set(i, false)
		return 0, err
	}
	return abs, nil
}

// FreeBlock clears the bitmap bit for the data block at absolute block
// number abs.
func (a *Allocator) FreeBlock(abs blockdev.BlockNumber) {
	i := int(uint32(abs) - a.sb.DataRegionBase())
	a.blockBits.Set(i, false)
}

// Flush writes both in-memory bitmaps back to their on-disk regions. Every
// metadata-mutating operation calls Flush before reporting success.
func (a *Allocator) Flush() error {
	if err := a.dev.Write(blockdev.BlockNumber(a.sb.InodeMapBase()), uint(a.sb.InodeMapSize), []byte(a.inodeBits)); err != nil {
		return err
	}
	return a.dev.Write(blockdev.BlockNumber(a.sb.BlockMapBase()), uint(a.sb.BlockMapSize), []byte(a.blockBits))
}

// FreeBlockCount returns the number of unallocated data blocks, for statfs.
func (a *Allocator) FreeBlockCount() uint64 {
	limit := int(a.sb.DataRegionBlocks())
	var free uint64
	for i := 0; i < limit; i++ {
		if !a.blockBits.Get(i) {
			free++
		}
	}
	return free
}

// UsedInodeCount returns the number of allocated inodes, for statfs.
func (a *Allocator) UsedInodeCount() uint64 {
	limit := int(a.sb.TotalInodes())
	var used uint64
	for i := 0; i < limit; i++ {
		if a.inodeBits.Get(i) {
			used++
		}
	}
	return used
}
