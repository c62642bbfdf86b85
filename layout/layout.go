// Package layout holds the filesystem's fixed geometry constants and the
// superblock loader (component 4.1 in SPEC_FULL.md). These constants are
// compile-time properties of this filesystem family, the same way N_DIRECT
// and BLOCK_SIZE were #defines in the original fsx600.h header rather than
// fields read out of the superblock at runtime.
package layout

const (
	// BlockSize is the device and filesystem block size, in bytes.
	BlockSize = 1024

	// NDirect is the number of direct block pointers stored in each inode.
	NDirect = 6

	// MaxNameLen is the longest usable directory entry name, not counting the
	// NUL terminator.
	MaxNameLen = 27

	// blockNumberSize is sizeof(uint32) on disk: every block number, whether
	// stored in an inode or in an indirect block, is a 32-bit value.
	blockNumberSize = 4

	// PtrsPerBlock is how many block numbers fit in one indirect block.
	PtrsPerBlock = BlockSize / blockNumberSize

	// DirectMax, Indir1Max and Indir2Max are the number of bytes addressable
	// through each tier of the block index tree.
	DirectMax = NDirect * BlockSize
	Indir1Max = PtrsPerBlock * BlockSize
	Indir2Max = PtrsPerBlock * Indir1Max

	// MaxFileSize is the largest byte offset a file can ever reach.
	MaxFileSize = DirectMax + Indir1Max + Indir2Max

	// RootInode is always inode 1; inode 0 is reserved and never allocated.
	RootInode = 1

	// superblockSizeOnDisk is the encoded size of Superblock below: five
	// little-endian uint32 fields.
	superblockSizeOnDisk = 5 * 4

	// InodeSize is the fixed, serialized size in bytes of one inode record:
	// Uid+Gid+Mode (4 bytes each) + Ctime+Mtime (8 bytes each) + Size (8
	// bytes) + NDirect*4 direct pointers + Indir1 + Indir2 (4 bytes each).
	InodeSize = 4 + 4 + 4 + 8 + 8 + 8 + NDirect*4 + 4 + 4

	// InodesPerBlock is how many packed inode records fit in one block.
	InodesPerBlock = BlockSize / InodeSize

	// DirEntrySize is the fixed, serialized size of one directory entry: a
	// packed flags word (valid + is-directory bits), a 16-bit inode number,
	// and a MaxNameLen+1 byte name field. This mirrors the original
	// fsx600.h dirent's packed-bitfield-plus-name layout, which is what
	// gives a 1 KiB directory block exactly 32 entries.
	DirEntrySize = 2 + 2 + (MaxNameLen + 1)

	// EntriesPerDirBlock is the fixed capacity of a directory's one data block.
	EntriesPerDirBlock = BlockSize / DirEntrySize
)

// Superblock is the on-disk geometry record stored in block 0. All other
// region sizes and base blocks are derived from it.
type Superblock struct {
	InodeMapSize    uint32 // size of the inode bitmap region, in blocks
	BlockMapSize    uint32 // size of the block bitmap region, in blocks
	InodeRegionSize uint32 // size of the inode table region, in blocks
	TotalBlocks     uint32 // total number of blocks on the device
	RootInodeNum    uint32 // always RootInode, stored for self-description
}

// InodeMapBase is the first block of the inode bitmap region.
func (sb *Superblock) InodeMapBase() uint32 { return 1 }

// BlockMapBase is the first block of the block bitmap region.
func (sb *Superblock) BlockMapBase() uint32 { return sb.InodeMapBase() + sb.InodeMapSize }

// InodeTableBase is the first block of the packed inode table.
func (sb *Superblock) InodeTableBase() uint32 { return sb.BlockMapBase() + sb.BlockMapSize }

// DataRegionBase is the first block available for file data, directory
// blocks, and indirect index blocks.
func (sb *Superblock) DataRegionBase() uint32 { return sb.InodeTableBase() + sb.InodeRegionSize }

// DataRegionBlocks is the number of blocks available in the data region.
func (sb *Superblock) DataRegionBlocks() uint32 {
	base := sb.DataRegionBase()
	if base >= sb.TotalBlocks {
		return 0
	}
	return sb.TotalBlocks - base
}

// TotalInodes is how many fixed-size inode records the inode table holds.
func (sb *Superblock) TotalInodes() uint32 {
	return sb.InodeRegionSize * InodesPerBlock
}
