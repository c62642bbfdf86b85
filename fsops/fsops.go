// Package fsops implements the operation layer (component 4.7): the
// user-visible filesystem operations, built atop the bitmap allocator,
// inode table, block index walker, directory layer, and path resolver.
//
// Grounded on dargueta-disko/drivers/common/basedriver/driver.go's
// CommonDriver (Mkdir/Remove/ReadDir/Stat/Truncate sequencing),
// generalized from disko's pluggable DriverImplementation down to this
// filesystem's one concrete bitmap/inode-table model, and on homework.c's
// exact per-operation contracts and error conditions.
package fsops

import (
	"errors"
	"sync"
	"time"

	"github.com/dargueta/blockfs/bitmap"
	"github.com/dargueta/blockfs/blockdev"
	"github.com/dargueta/blockfs/blockindex"
	"github.com/dargueta/blockfs/dirent"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/inode"
	"github.com/dargueta/blockfs/layout"
	"github.com/dargueta/blockfs/pathresolver"
)

// FileSystem is the mount-owned context: the one value every operation is
// a method on. Created once by Mount, torn down by Unmount. No operation
// method re-reads the superblock or re-initializes state, which is the fix
// for the source's fs_init reentrancy bug (see SPEC_FULL.md §9).
type FileSystem struct {
	mu sync.Mutex

	dev   *blockdev.Device
	sb    *layout.Superblock
	alloc *bitmap.Allocator
	table *inode.Table
}

// Mount loads the superblock, bitmaps, and inode table off dev and returns
// a ready-to-use FileSystem. It must be called exactly once per mount.
func Mount(dev *blockdev.Device) (*FileSystem, error) {
	sb, err := layout.Load(dev)
	if err != nil {
		return nil, err
	}
	alloc, err := bitmap.Load(dev, sb)
	if err != nil {
		return nil, err
	}
	table, err := inode.Load(dev, sb)
	if err != nil {
		return nil, err
	}
	return &FileSystem{dev: dev, sb: sb, alloc: alloc, table: table}, nil
}

// Unmount releases the mount-owned state. There is nothing to flush: every
// operation flushes the bitmap and writes its inode before returning.
func (fs *FileSystem) Unmount() error {
	fs.dev = nil
	fs.sb = nil
	fs.alloc = nil
	fs.table = nil
	return nil
}

// FileStat is the attribute record returned by GetAttr and supplied to the
// ReadDir filler.
type FileStat struct {
	Uid    uint32
	Gid    uint32
	Mode   uint32
	Size   uint64
	Nlink  uint32
	Ctime  int64
	Mtime  int64
	Atime  int64
	Blocks uint64
}

func statFromInode(n *inode.Inode) FileStat {
	return FileStat{
		Uid:    n.Uid,
		Gid:    n.Gid,
		Mode:   n.Mode,
		Size:   n.Size,
		Nlink:  1,
		Ctime:  n.Mtime,
		Mtime:  n.Mtime,
		Atime:  n.Mtime,
		Blocks: (n.Size + layout.BlockSize - 1) / layout.BlockSize,
	}
}

// DirFiller receives one (name, attributes) pair per live entry during
// ReadDir.
type DirFiller func(name string, stat FileStat) error

// StatFsResult mirrors the fields a mount-callback statfs handler reports.
type StatFsResult struct {
	BlockSize       uint32
	NameMax         uint32
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	Files           uint64
	FilesFree       uint64
}

func (fs *FileSystem) readDirBlock(n *inode.Inode) (*dirent.Block, error) {
	raw, err := fs.dev.ReadBlock(blockdev.BlockNumber(n.Direct[0]))
	if err != nil {
		return nil, err
	}
	return dirent.Decode(raw)
}

func (fs *FileSystem) writeDirBlock(n *inode.Inode, block *dirent.Block) error {
	raw, err := block.Encode()
	if err != nil {
		return err
	}
	return fs.dev.WriteBlock(blockdev.BlockNumber(n.Direct[0]), raw)
}

// resolveDir resolves path and requires that it name a directory.
func (fs *FileSystem) resolveDir(path string) (uint32, *inode.Inode, error) {
	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return 0, nil, err
	}
	n := fs.table.Get(num)
	if !n.IsDir() {
		return 0, nil, fserrors.ErrNotADirectory.WithMessage(path)
	}
	return num, n, nil
}

// GetAttr resolves path and returns the attributes of the final component.
func (fs *FileSystem) GetAttr(path string) (FileStat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return FileStat{}, err
	}
	return statFromInode(fs.table.Get(num)), nil
}

// ReadDir resolves path, requires a directory, and calls filler once per
// live entry.
func (fs *FileSystem) ReadDir(path string, filler DirFiller) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, dirIno, err := fs.resolveDir(path)
	if err != nil {
		return err
	}
	block, err := fs.readDirBlock(dirIno)
	if err != nil {
		return err
	}
	for i := range block {
		if !block[i].IsValid() {
			continue
		}
		childIno := fs.table.Get(uint32(block[i].InodeNum))
		if err := filler(block[i].Name(), statFromInode(childIno)); err != nil {
			return err
		}
	}
	return nil
}

// Mknod creates a new regular file at path, owned by uid/gid, with the
// permission bits of mode (its type bits, if any, must mark a regular
// file).
func (fs *FileSystem) Mknod(path string, mode, uid, gid uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if path == "/" {
		return fserrors.ErrInvalidArgument.WithMessage("cannot mknod the root")
	}
	if typeBits := mode & inode.TypeMask; typeBits != 0 && typeBits != inode.TypeRegular {
		return fserrors.ErrInvalidArgument.WithMessage("mknod requires a regular-file mode")
	}

	parentPath, base, err := pathresolver.Split(path)
	if err != nil {
		return err
	}
	_, parentIno, err := fs.resolveDir(parentPath)
	if err != nil {
		return err
	}
	block, err := fs.readDirBlock(parentIno)
	if err != nil {
		return err
	}
	if _, exists := block.Find(base); exists {
		return fserrors.ErrExists.WithMessage(base)
	}

	childNum, err := fs.alloc.AllocInode()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	*fs.table.Get(childNum) = inode.Inode{
		Uid:   uid,
		Gid:   gid,
		Mode:  (mode & inode.PermMask) | inode.TypeRegular,
		Ctime: now,
		Mtime: now,
	}
	if err := fs.table.WriteInode(childNum); err != nil {
		return err
	}
	if err := block.Insert(base, childNum, false); err != nil {
		fs.alloc.FreeInode(childNum)
		return err
	}
	if err := fs.writeDirBlock(parentIno, block); err != nil {
		return err
	}
	return fs.alloc.Flush()
}

// Mkdir creates a new, empty directory at path. mode's permission bits are
// kept; its type bits are ignored, and the directory bit is forced on
// regardless of what mode carried (see the Mkdir mode-check open question
// in SPEC_FULL.md §9).
func (fs *FileSystem) Mkdir(path string, mode, uid, gid uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if path == "/" {
		return fserrors.ErrInvalidArgument.WithMessage("cannot mkdir the root")
	}

	parentPath, base, err := pathresolver.Split(path)
	if err != nil {
		return err
	}
	_, parentIno, err := fs.resolveDir(parentPath)
	if err != nil {
		return err
	}
	parentBlock, err := fs.readDirBlock(parentIno)
	if err != nil {
		return err
	}
	if _, exists := parentBlock.Find(base); exists {
		return fserrors.ErrExists.WithMessage(base)
	}

	childNum, err := fs.alloc.AllocInode()
	if err != nil {
		return err
	}
	dataBlock, err := fs.alloc.AllocBlock()
	if err != nil {
		fs.alloc.FreeInode(childNum)
		return err
	}

	now := time.Now().Unix()
	childIno := fs.table.Get(childNum)
	*childIno = inode.Inode{
		Uid:   uid,
		Gid:   gid,
		Mode:  (mode & inode.PermMask) | inode.TypeDir,
		Ctime: now,
		Mtime: now,
		Size:  layout.BlockSize,
	}
	childIno.Direct[0] = uint32(dataBlock)
	if err := fs.table.WriteInode(childNum); err != nil {
		return err
	}

	empty := &dirent.Block{}
	if err := fs.writeDirBlock(childIno, empty); err != nil {
		return err
	}
	if err := parentBlock.Insert(base, childNum, true); err != nil {
		fs.alloc.FreeBlock(dataBlock)
		fs.alloc.FreeInode(childNum)
		return err
	}
	if err := fs.writeDirBlock(parentIno, parentBlock); err != nil {
		return err
	}
	return fs.alloc.Flush()
}

// Unlink removes a regular file: its data is released, its directory entry
// is removed, and its inode is freed.
func (fs *FileSystem) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return err
	}
	n := fs.table.Get(num)
	if n.IsDir() {
		return fserrors.ErrIsADirectory.WithMessage(path)
	}

	if err := blockindex.Truncate(fs.dev, fs.alloc, fs.table, num, n); err != nil {
		return err
	}

	parentPath, base, err := pathresolver.Split(path)
	if err != nil {
		return err
	}
	_, parentIno, err := fs.resolveDir(parentPath)
	if err != nil {
		return err
	}
	block, err := fs.readDirBlock(parentIno)
	if err != nil {
		return err
	}
	block.Remove(base)
	if err := fs.writeDirBlock(parentIno, block); err != nil {
		return err
	}

	*n = inode.Inode{}
	if err := fs.table.WriteInode(num); err != nil {
		return err
	}
	fs.alloc.FreeInode(num)
	return fs.alloc.Flush()
}

// Rmdir removes an empty, non-root directory.
func (fs *FileSystem) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if path == "/" {
		return fserrors.ErrInvalidArgument.WithMessage("cannot rmdir the root")
	}

	num, n, err := fs.resolveDir(path)
	if err != nil {
		return err
	}
	block, err := fs.readDirBlock(n)
	if err != nil {
		return err
	}
	if block.Count() != 0 {
		return fserrors.ErrNotEmpty.WithMessage(path)
	}

	fs.alloc.FreeBlock(blockdev.BlockNumber(n.Direct[0]))

	parentPath, base, err := pathresolver.Split(path)
	if err != nil {
		return err
	}
	_, parentIno, err := fs.resolveDir(parentPath)
	if err != nil {
		return err
	}
	parentBlock, err := fs.readDirBlock(parentIno)
	if err != nil {
		return err
	}
	parentBlock.Remove(base)
	if err := fs.writeDirBlock(parentIno, parentBlock); err != nil {
		return err
	}

	*n = inode.Inode{}
	if err := fs.table.WriteInode(num); err != nil {
		return err
	}
	fs.alloc.FreeInode(num)
	return fs.alloc.Flush()
}

// Rename overwrites the name of the source's directory entry with the
// destination's basename, in place. Both paths must share the same parent
// directory, and the destination must not exist; the inode reference is
// unchanged.
func (fs *FileSystem) Rename(src, dst string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := pathresolver.Resolve(fs.dev, fs.table, src); err != nil {
		return err
	}
	if _, err := pathresolver.Resolve(fs.dev, fs.table, dst); err == nil {
		return fserrors.ErrExists.WithMessage(dst)
	} else if !errors.Is(err, fserrors.ErrNotFound) {
		return err
	}

	srcParentPath, srcBase, err := pathresolver.Split(src)
	if err != nil {
		return err
	}
	dstParentPath, dstBase, err := pathresolver.Split(dst)
	if err != nil {
		return err
	}
	if srcParentPath != dstParentPath {
		return fserrors.ErrInvalidArgument.WithMessage("rename across directories")
	}

	_, parentIno, err := fs.resolveDir(srcParentPath)
	if err != nil {
		return err
	}
	block, err := fs.readDirBlock(parentIno)
	if err != nil {
		return err
	}
	if err := block.RenameInPlace(srcBase, dstBase); err != nil {
		return err
	}
	return fs.writeDirBlock(parentIno, block)
}

// Chmod replaces the permission bits of path's inode, leaving its file-type
// bits untouched.
func (fs *FileSystem) Chmod(path string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return err
	}
	n := fs.table.Get(num)
	n.Mode = (n.Mode & inode.TypeMask) | (mode & inode.PermMask)
	return fs.table.WriteInode(num)
}

// Utime sets path's modification time.
func (fs *FileSystem) Utime(path string, mtime int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return err
	}
	n := fs.table.Get(num)
	n.Mtime = mtime
	return fs.table.WriteInode(num)
}

// Truncate supports only truncation to zero length, per the spec's
// no-holes non-goal.
func (fs *FileSystem) Truncate(path string, length uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if length != 0 {
		return fserrors.ErrInvalidArgument.WithMessage("truncate to non-zero length is unsupported")
	}

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return err
	}
	n := fs.table.Get(num)
	if n.IsDir() {
		return fserrors.ErrIsADirectory.WithMessage(path)
	}
	return blockindex.Truncate(fs.dev, fs.alloc, fs.table, num, n)
}

// Read copies up to len(buf) bytes from path starting at offset.
func (fs *FileSystem) Read(path string, buf []byte, offset uint64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return 0, err
	}
	n := fs.table.Get(num)
	if n.IsDir() {
		return 0, fserrors.ErrIsADirectory.WithMessage(path)
	}
	return blockindex.Read(fs.dev, n, offset, buf)
}

// Write overwrites path's contents starting at offset with data.
func (fs *FileSystem) Write(path string, data []byte, offset uint64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return 0, err
	}
	n := fs.table.Get(num)
	if n.IsDir() {
		return 0, fserrors.ErrIsADirectory.WithMessage(path)
	}
	return blockindex.Write(fs.dev, fs.alloc, fs.table, num, n, offset, data)
}

// StatFs reports geometry and live population counts.
func (fs *FileSystem) StatFs() StatFsResult {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	totalInodes := uint64(fs.sb.TotalInodes())
	used := fs.alloc.UsedInodeCount()
	return StatFsResult{
		BlockSize:       layout.BlockSize,
		NameMax:         layout.MaxNameLen,
		Blocks:          uint64(fs.sb.DataRegionBlocks()),
		BlocksFree:      fs.alloc.FreeBlockCount(),
		BlocksAvailable: fs.alloc.FreeBlockCount(),
		Files:           totalInodes,
		FilesFree:       totalInodes - used,
	}
}

// Open validates that path resolves to a regular file.
func (fs *FileSystem) Open(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num, err := pathresolver.Resolve(fs.dev, fs.table, path)
	if err != nil {
		return err
	}
	if fs.table.Get(num).IsDir() {
		return fserrors.ErrIsADirectory.WithMessage(path)
	}
	return nil
}

// Opendir validates that path resolves to a directory.
func (fs *FileSystem) Opendir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, _, err := fs.resolveDir(path)
	return err
}

// Release is a no-op: no per-handle state is kept outside the mount-owned
// FileSystem.
func (fs *FileSystem) Release(path string) error { return nil }

// Releasedir is a no-op, for the same reason as Release.
func (fs *FileSystem) Releasedir(path string) error { return nil }
