// Package pathresolver implements the path resolver (component 4.4):
// splitting a slash-separated path and walking directories from the root
// inode to the target.
//
// Grounded on dargueta-disko/drivers/common/basedriver/driver.go's
// getObjectAtPathNoFollow (posixpath.Split, directory-type check, per-
// component lookup), simplified because this filesystem has no symlinks to
// follow.
package pathresolver

import (
	"strings"

	"github.com/dargueta/blockfs/blockdev"
	"github.com/dargueta/blockfs/dirent"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/inode"
	"github.com/dargueta/blockfs/layout"
)

// split breaks path into its non-empty components, discarding leading,
// trailing, and repeated slashes. It never copies beyond what
// strings.Split already allocates.
func split(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve walks path from the root inode and returns the inode number of
// the final component. "/" resolves to layout.RootInode.
func Resolve(dev *blockdev.Device, table *inode.Table, path string) (uint32, error) {
	cur := uint32(layout.RootInode)
	for _, name := range split(path) {
		ino := table.Get(cur)
		if !ino.IsDir() {
			return 0, fserrors.ErrNotADirectory.WithMessage(name)
		}
		idx, err := lookupInDir(dev, ino, name)
		if err != nil {
			return 0, err
		}
		cur = idx
	}
	return cur, nil
}

// lookupInDir scans dirIno's one data block for an entry named name.
func lookupInDir(dev *blockdev.Device, dirIno *inode.Inode, name string) (uint32, error) {
	raw, err := dev.ReadBlock(blockdev.BlockNumber(dirIno.Direct[0]))
	if err != nil {
		return 0, err
	}
	block, err := dirent.Decode(raw)
	if err != nil {
		return 0, err
	}
	idx, ok := block.Find(name)
	if !ok {
		return 0, fserrors.ErrNotFound.WithMessage(name)
	}
	return uint32(block[idx].InodeNum), nil
}

// Split divides path into its parent directory path and basename. The
// basename must not exceed layout.MaxNameLen bytes. "/a" splits into ("/",
// "a"); "/a/b" splits into ("/a", "b").
func Split(path string) (parent, base string, err error) {
	comps := split(path)
	if len(comps) == 0 {
		return "", "", fserrors.ErrInvalidArgument.WithMessage("path has no basename")
	}
	base = comps[len(comps)-1]
	if len(base) > layout.MaxNameLen {
		return "", "", fserrors.ErrInvalidArgument.WithMessage("name too long")
	}
	if len(comps) == 1 {
		return "/", base, nil
	}
	return "/" + strings.Join(comps[:len(comps)-1], "/"), base, nil
}
