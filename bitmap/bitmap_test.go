package bitmap_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/blockfs/bitmap"
	"github.com/dargueta/blockfs/blockdev"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/layout"
)

func newTestAllocator(t *testing.T) (*bitmap.Allocator, *layout.Superblock, *blockdev.Device) {
	t.Helper()
	sb := &layout.Superblock{
		InodeMapSize:    1,
		BlockMapSize:    1,
		InodeRegionSize: 1,
	}
	sb.TotalBlocks = sb.DataRegionBase() + 32
	dev := blockdev.NewMemDevice(layout.BlockSize, sb.TotalBlocks)
	return bitmap.NewEmpty(dev, sb), sb, dev
}

func TestAllocInodeSkipsReservedSlots(t *testing.T) {
	a, _, _ := newTestAllocator(t)

	n, err := a.AllocInode()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = a.AllocInode()
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestReserveInodeBlocksFutureAlloc(t *testing.T) {
	a, _, _ := newTestAllocator(t)
	a.ReserveInode(0)
	a.ReserveInode(1)

	require.True(t, a.InodeAllocated(0))
	require.True(t, a.InodeAllocated(1))

	n, err := a.AllocInode()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestFreeInodeAllowsReuse(t *testing.T) {
	a, _, _ := newTestAllocator(t)
	n, err := a.AllocInode()
	require.NoError(t, err)

	a.FreeInode(n)
	require.False(t, a.InodeAllocated(n))

	again, err := a.AllocInode()
	require.NoError(t, err)
	require.Equal(t, n, again)
}

func TestAllocBlockZeroesContent(t *testing.T) {
	a, sb, dev := newTestAllocator(t)
	dirty := bytes.Repeat([]byte{0xFF}, layout.BlockSize)
	require.NoError(t, dev.WriteBlock(blockdev.BlockNumber(sb.DataRegionBase()), dirty))

	b1, err := a.AllocBlock()
	require.NoError(t, err)
	b2, err := a.AllocBlock()
	require.NoError(t, err)
	require.NotEqual(t, b1, b2)

	raw, err := dev.ReadBlock(b1)
	require.NoError(t, err)
	require.Equal(t, make([]byte, layout.BlockSize), raw)
}

func TestAllocBlockExhaustion(t *testing.T) {
	sb := &layout.Superblock{InodeMapSize: 1, BlockMapSize: 1, InodeRegionSize: 1}
	sb.TotalBlocks = sb.DataRegionBase() + 2
	dev := blockdev.NewMemDevice(layout.BlockSize, sb.TotalBlocks)
	a := bitmap.NewEmpty(dev, sb)

	_, err := a.AllocBlock()
	require.NoError(t, err)
	_, err = a.AllocBlock()
	require.NoError(t, err)

	_, err = a.AllocBlock()
	require.Error(t, err)
	require.ErrorIs(t, err, fserrors.ErrNoSpace)
}

func TestFreeBlockCountAndUsedInodeCount(t *testing.T) {
	a, sb := newTestAllocatorNoDev(t)

	_, err := a.AllocInode()
	require.NoError(t, err)
	_, err = a.AllocBlock()
	require.NoError(t, err)

	require.EqualValues(t, 1, a.UsedInodeCount())
	require.EqualValues(t, sb.DataRegionBlocks()-1, a.FreeBlockCount())
}

func TestFlushRoundTripsThroughLoad(t *testing.T) {
	a, sb, dev := newTestAllocator(t)
	n, err := a.AllocInode()
	require.NoError(t, err)
	require.NoError(t, a.Flush())

	loaded, err := bitmap.Load(dev, sb)
	require.NoError(t, err)
	require.True(t, loaded.InodeAllocated(n))
	require.False(t, loaded.InodeAllocated(n+1))
}

func newTestAllocatorNoDev(t *testing.T) (*bitmap.Allocator, *layout.Superblock) {
	a, sb, _ := newTestAllocator(t)
	return a, sb
}
