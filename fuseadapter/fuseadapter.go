//go:build fuse

// Package fuseadapter translates go-fuse/v2 node callbacks into calls on
// the operation layer (component 4.9). It holds no filesystem state of its
// own beyond the path each node was looked up under; every invariant is
// enforced inside fsops.
//
// Grounded on KarpelesLab-squashfs/inode_fuse.go's build-tag-gated,
// node-per-object FUSE backend kept separate from the core filesystem
// package, generalized from its low-level callback shape to the newer
// fs.InodeEmbedder node API.
package fuseadapter

import (
	"context"
	"errors"
	"log"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/fsops"
	"github.com/dargueta/blockfs/inode"
)

// Node is one filesystem object's FUSE-facing handle: the path it was
// looked up under, plus a shared pointer to the mounted core.
type Node struct {
	fs.Inode
	fsys *fsops.FileSystem
	path string
}

// NewRoot builds the root node for a mount of fsys.
func NewRoot(fsys *fsops.FileSystem) fs.InodeEmbedder {
	return &Node{fsys: fsys, path: "/"}
}

var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeMknoder   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeStatfser  = (*Node)(nil)
)

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// errnoFromError maps a taxonomy error from fsops to the syscall.Errno the
// kernel expects. An error outside the taxonomy means the block device
// itself failed; per the spec's fatal-I/O-error contract there is no
// recovery to attempt, so the process logs and aborts rather than reporting
// EIO and continuing to serve a filesystem whose state can no longer be
// trusted.
func errnoFromError(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, fserrors.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, fserrors.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, fserrors.ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, fserrors.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, fserrors.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, fserrors.ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, fserrors.ErrInvalidArgument):
		return syscall.EINVAL
	default:
		log.Fatalf("blockfs: fatal block device error: %v", err)
		return syscall.EIO
	}
}

func toUnixMode(internal uint32) uint32 {
	perm := internal & inode.PermMask
	if internal&inode.TypeMask == inode.TypeDir {
		return syscall.S_IFDIR | perm
	}
	return syscall.S_IFREG | perm
}

func fillAttr(attr *fuse.Attr, st fsops.FileStat) {
	attr.Mode = toUnixMode(st.Mode)
	attr.Size = st.Size
	attr.Uid = st.Uid
	attr.Gid = st.Gid
	attr.Nlink = st.Nlink
	attr.Blocks = st.Blocks
	attr.Mtime = uint64(st.Mtime)
	attr.Ctime = uint64(st.Ctime)
	attr.Atime = uint64(st.Atime)
}

func callerIDs(ctx context.Context) (uid, gid uint32) {
	if caller, ok := fuse.FromContext(ctx); ok {
		return caller.Uid, caller.Gid
	}
	return 0, 0
}

// Lookup resolves name inside this directory node.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := joinPath(n.path, name)
	st, err := n.fsys.GetAttr(childPath)
	if err != nil {
		return nil, errnoFromError(err)
	}
	fillAttr(&out.Attr, st)
	child := &Node{fsys: n.fsys, path: childPath}
	stable := fs.StableAttr{Mode: toUnixMode(st.Mode) & syscall.S_IFMT}
	return n.NewInode(ctx, child, stable), 0
}

// Getattr fills out with this node's attributes.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return errnoFromError(err)
	}
	fillAttr(&out.Attr, st)
	return 0
}

// Statfs reports filesystem-wide capacity and population counts.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st := n.fsys.StatFs()
	out.Blocks = st.Blocks
	out.Bfree = st.BlocksFree
	out.Bavail = st.BlocksAvailable
	out.Files = st.Files
	out.Ffree = st.FilesFree
	out.Bsize = st.BlockSize
	out.NameLen = st.NameMax
	out.Frsize = st.BlockSize
	return 0
}

// Setattr supports chmod, utime, and truncate-to-zero.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if mode, ok := in.GetMode(); ok {
		if err := n.fsys.Chmod(n.path, mode); err != nil {
			return errnoFromError(err)
		}
	}
	if mtime, ok := in.GetMTime(); ok {
		if err := n.fsys.Utime(n.path, mtime.Unix()); err != nil {
			return errnoFromError(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		if err := n.fsys.Truncate(n.path, size); err != nil {
			return errnoFromError(err)
		}
	}
	st, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return errnoFromError(err)
	}
	fillAttr(&out.Attr, st)
	return 0
}

// Readdir lists the directory's live entries.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	err := n.fsys.ReadDir(n.path, func(name string, st fsops.FileStat) error {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: toUnixMode(st.Mode)})
		return nil
	})
	if err != nil {
		return nil, errnoFromError(err)
	}
	return fs.NewListDirStream(entries), 0
}

// Open validates the node is the right kind to open; no per-handle state
// is kept.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if err := n.fsys.Open(n.path); err != nil {
		return nil, 0, errnoFromError(err)
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

// Read serves a byte range from the file.
func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	count, err := n.fsys.Read(n.path, dest, uint64(off))
	if err != nil {
		return nil, errnoFromError(err)
	}
	return fuse.ReadResultData(dest[:count]), 0
}

// Write overwrites a byte range of the file.
func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	count, err := n.fsys.Write(n.path, data, uint64(off))
	if err != nil {
		return uint32(count), errnoFromError(err)
	}
	return uint32(count), 0
}

// Mknod creates a regular file.
func (n *Node) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	uid, gid := callerIDs(ctx)
	childPath := joinPath(n.path, name)
	if err := n.fsys.Mknod(childPath, mode&0xFFF, uid, gid); err != nil {
		return nil, errnoFromError(err)
	}
	return n.Lookup(ctx, name, out)
}

// Mkdir creates an empty directory.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	uid, gid := callerIDs(ctx)
	childPath := joinPath(n.path, name)
	if err := n.fsys.Mkdir(childPath, mode&0xFFF, uid, gid); err != nil {
		return nil, errnoFromError(err)
	}
	return n.Lookup(ctx, name, out)
}

// Unlink removes a regular file.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoFromError(n.fsys.Unlink(joinPath(n.path, name)))
}

// Rmdir removes an empty directory.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoFromError(n.fsys.Rmdir(joinPath(n.path, name)))
}

// Rename moves name within the same parent directory (the core's only
// supported form).
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dstNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}
	return errnoFromError(n.fsys.Rename(joinPath(n.path, name), joinPath(dstNode.path, newName)))
}
