package pathresolver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/blockfs/bitmap"
	"github.com/dargueta/blockfs/blockdev"
	"github.com/dargueta/blockfs/dirent"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/inode"
	"github.com/dargueta/blockfs/layout"
	"github.com/dargueta/blockfs/mkfs"
	"github.com/dargueta/blockfs/pathresolver"
)

// fixture formats a fresh image and adds a subdirectory "sub" containing a
// file "leaf.txt", both directly under the root.
func fixture(t *testing.T) (*blockdev.Device, *inode.Table) {
	t.Helper()
	dev := blockdev.NewMemDevice(layout.BlockSize, 64)
	require.NoError(t, mkfs.Format(dev, mkfs.Options{TotalBlocks: 64, TotalInodes: 32}))

	sb, err := layout.Load(dev)
	require.NoError(t, err)
	alloc, err := bitmap.Load(dev, sb)
	require.NoError(t, err)
	table, err := inode.Load(dev, sb)
	require.NoError(t, err)

	subNum, err := alloc.AllocInode()
	require.NoError(t, err)
	subDataBlock, err := alloc.AllocBlock()
	require.NoError(t, err)

	sub := table.Get(subNum)
	sub.Mode = inode.TypeDir | 0755
	sub.Size = layout.BlockSize
	sub.Direct[0] = uint32(subDataBlock)
	require.NoError(t, table.WriteInode(subNum))

	leafNum, err := alloc.AllocInode()
	require.NoError(t, err)
	leaf := table.Get(leafNum)
	leaf.Mode = inode.TypeRegular | 0644
	require.NoError(t, table.WriteInode(leafNum))

	var subBlock dirent.Block
	require.NoError(t, subBlock.Insert("leaf.txt", leafNum, false))
	raw, err := subBlock.Encode()
	require.NoError(t, err)
	require.NoError(t, dev.WriteBlock(subDataBlock, raw))

	rootIno := table.Get(layout.RootInode)
	rootBlockRaw, err := dev.ReadBlock(blockdev.BlockNumber(rootIno.Direct[0]))
	require.NoError(t, err)
	rootBlock, err := dirent.Decode(rootBlockRaw)
	require.NoError(t, err)
	require.NoError(t, rootBlock.Insert("sub", subNum, true))
	encodedRoot, err := rootBlock.Encode()
	require.NoError(t, err)
	require.NoError(t, dev.WriteBlock(blockdev.BlockNumber(rootIno.Direct[0]), encodedRoot))

	require.NoError(t, alloc.Flush())
	return dev, table
}

func TestResolveRoot(t *testing.T) {
	dev, table := fixture(t)
	num, err := pathresolver.Resolve(dev, table, "/")
	require.NoError(t, err)
	require.EqualValues(t, layout.RootInode, num)
}

func TestResolveNestedPath(t *testing.T) {
	dev, table := fixture(t)
	num, err := pathresolver.Resolve(dev, table, "/sub/leaf.txt")
	require.NoError(t, err)
	require.True(t, table.Get(num).IsRegular())
}

func TestResolveMissingComponent(t *testing.T) {
	dev, table := fixture(t)
	_, err := pathresolver.Resolve(dev, table, "/sub/nope")
	require.Error(t, err)
	require.ErrorIs(t, err, fserrors.ErrNotFound)
}

func TestResolveThroughNonDirectory(t *testing.T) {
	dev, table := fixture(t)
	_, err := pathresolver.Resolve(dev, table, "/sub/leaf.txt/extra")
	require.Error(t, err)
	require.ErrorIs(t, err, fserrors.ErrNotADirectory)
}

func TestSplitBasenameAndParent(t *testing.T) {
	parent, base, err := pathresolver.Split("/sub/leaf.txt")
	require.NoError(t, err)
	require.Equal(t, "/sub", parent)
	require.Equal(t, "leaf.txt", base)

	parent, base, err = pathresolver.Split("/top")
	require.NoError(t, err)
	require.Equal(t, "/", parent)
	require.Equal(t, "top", base)
}

func TestSplitRejectsRoot(t *testing.T) {
	_, _, err := pathresolver.Split("/")
	require.Error(t, err)
	require.ErrorIs(t, err, fserrors.ErrInvalidArgument)
}

func TestSplitRejectsOverlongName(t *testing.T) {
	long := make([]byte, layout.MaxNameLen+5)
	for i := range long {
		long[i] = 'n'
	}
	_, _, err := pathresolver.Split("/" + string(long))
	require.Error(t, err)
	require.ErrorIs(t, err, fserrors.ErrInvalidArgument)
}
