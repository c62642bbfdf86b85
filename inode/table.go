package inode

import (
	"github.com/dargueta/blockfs/blockdev"
	"github.com/dargueta/blockfs/layout"
)

// Table is the in-memory array mirroring the on-disk inode region. Every
// mutation goes through Get + WriteInode so the mirror and the disk
// never disagree once an operation returns.
//
// Grounded on dargueta-disko/drivers/common/basedriver and the spec's Design
// Notes "Inode write index": unlike the source (which drops the in-block
// remainder before indexing), WriteInode always rewrites the whole
// containing block from the mirror so neighboring inodes are preserved.
type Table struct {
	dev    *blockdev.Device
	sb     *layout.Superblock
	mirror []Inode
}

// Load reads the entire on-disk inode region into memory.
func Load(dev *blockdev.Device, sb *layout.Superblock) (*Table, error) {
	t := &Table{dev: dev, sb: sb, mirror: make([]Inode, sb.TotalInodes())}
	blockBuf := make([]byte, layout.BlockSize)
	for blk := uint32(0); blk < sb.InodeRegionSize; blk++ {
		if err := dev.Read(blockdev.BlockNumber(sb.InodeTableBase()+blk), 1, blockBuf); err != nil {
			return nil, err
		}
		for slot := uint32(0); slot < layout.InodesPerBlock; slot++ {
			idx := blk*layout.InodesPerBlock + slot
			if idx >= uint32(len(t.mirror)) {
				break
			}
			start := slot * layout.InodeSize
			if err := t.mirror[idx].UnmarshalBinary(blockBuf[start : start+layout.InodeSize]); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// NewEmpty builds a zeroed inode table mirror for a freshly formatted image.
func NewEmpty(dev *blockdev.Device, sb *layout.Superblock) *Table {
	return &Table{dev: dev, sb: sb, mirror: make([]Inode, sb.TotalInodes())}
}

// Get returns a pointer to the in-memory record for inode number i. Callers
// mutate through this pointer, then call WriteInode to persist the change.
func (t *Table) Get(i uint32) *Inode {
	return &t.mirror[i]
}

// WriteInode writes the single block containing inode i back to disk,
// rewriting the whole block from the mirror so that neighboring inodes
// packed into the same block are preserved.
func (t *Table) WriteInode(i uint32) error {
	blk := i / layout.InodesPerBlock
	blockBuf := make([]byte, layout.BlockSize)
	first := blk * layout.InodesPerBlock
	last := first + layout.InodesPerBlock
	if last > uint32(len(t.mirror)) {
		last = uint32(len(t.mirror))
	}
	for idx := first; idx < last; idx++ {
		encoded, err := t.mirror[idx].MarshalBinary()
		if err != nil {
			return err
		}
		start := (idx - first) * layout.InodeSize
		copy(blockBuf[start:start+layout.InodeSize], encoded)
	}
	return t.dev.Write(blockdev.BlockNumber(t.sb.InodeTableBase()+blk), 1, blockBuf)
}
