package fsops_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/blockfs/blockdev"
	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/fsops"
	"github.com/dargueta/blockfs/inode"
	"github.com/dargueta/blockfs/layout"
	"github.com/dargueta/blockfs/mkfs"
)

func newMountedFS(t *testing.T) *fsops.FileSystem {
	t.Helper()
	dev := blockdev.NewMemDevice(layout.BlockSize, 512)
	require.NoError(t, mkfs.Format(dev, mkfs.Options{TotalBlocks: 512, TotalInodes: 128}))
	fsys, err := fsops.Mount(dev)
	require.NoError(t, err)
	return fsys
}

// Scenario 1: create a directory and file, write and read back its content.
func TestScenario1_WriteReadSmallFile(t *testing.T) {
	fsys := newMountedFS(t)

	require.NoError(t, fsys.Mkdir("/a", 0755, 0, 0))
	require.NoError(t, fsys.Mknod("/a/f", 0644, 0, 0))

	n, err := fsys.Write("/a/f", []byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = fsys.Read("/a/f", buf, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))

	st, err := fsys.GetAttr("/a/f")
	require.NoError(t, err)
	require.EqualValues(t, 5, st.Size)
}

// Scenario 2: a write large enough to require the single-indirect tier
// round-trips, and Indir1 gets populated.
func TestScenario2_LargeWriteUsesIndirect(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mknod("/x", 0644, 0, 0))
	before := fsys.StatFs()

	data := bytes.Repeat([]byte{0xAB}, 7000)
	n, err := fsys.Write("/x", data, 0)
	require.NoError(t, err)
	require.Equal(t, 7000, n)

	// 6 direct data blocks, plus the Indir1 index block and the one data
	// block it points to.
	after := fsys.StatFs()
	require.EqualValues(t, 8, before.BlocksFree-after.BlocksFree)

	out := make([]byte, 7000)
	n, err = fsys.Read("/x", out, 0)
	require.NoError(t, err)
	require.Equal(t, 7000, n)
	require.True(t, bytes.Equal(data, out))
}

// Scenario 3: a write past the current end of file is a hole and must fail.
func TestScenario3_WritePastEndIsRejected(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mknod("/y", 0644, 0, 0))

	b1 := bytes.Repeat([]byte{1}, 1024)
	_, err := fsys.Write("/y", b1, 0)
	require.NoError(t, err)

	b2 := bytes.Repeat([]byte{2}, 1024)
	_, err = fsys.Write("/y", b2, 2048)
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrInvalidArgument))
}

// Scenario 4: filling the root directory to its 32-entry capacity makes the
// 33rd mknod fail with no space.
func TestScenario4_DirectoryFillsToCapacity(t *testing.T) {
	fsys := newMountedFS(t)

	for i := 0; i < layout.EntriesPerDirBlock; i++ {
		name := "/f" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, fsys.Mknod(name, 0644, 0, 0), "entry %d", i)
	}
	err := fsys.Mknod("/overflow", 0644, 0, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrNoSpace))
}

// Scenario 5: rmdir refuses a non-empty directory, then succeeds once empty.
func TestScenario5_RmdirRequiresEmpty(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mkdir("/d", 0755, 0, 0))
	require.NoError(t, fsys.Mknod("/d/f", 0644, 0, 0))

	err := fsys.Rmdir("/d")
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrNotEmpty))

	require.NoError(t, fsys.Unlink("/d/f"))
	require.NoError(t, fsys.Rmdir("/d"))
}

// Scenario 6: rename refuses an existing destination but otherwise moves the
// directory entry, dropping the old name from resolution.
func TestScenario6_RenameRequiresFreeDestination(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mknod("/a", 0644, 0, 0))
	require.NoError(t, fsys.Mknod("/b", 0644, 0, 0))

	err := fsys.Rename("/a", "/b")
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrExists))

	require.NoError(t, fsys.Rename("/a", "/c"))

	_, err = fsys.GetAttr("/a")
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrNotFound))

	_, err = fsys.GetAttr("/c")
	require.NoError(t, err)
}

func TestMknodRejectsRoot(t *testing.T) {
	fsys := newMountedFS(t)
	err := fsys.Mknod("/", 0644, 0, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrInvalidArgument))
}

func TestMknodRejectsDuplicateName(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mknod("/dup", 0644, 0, 0))
	err := fsys.Mknod("/dup", 0644, 0, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrExists))
}

func TestUnlinkRejectsDirectory(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mkdir("/d", 0755, 0, 0))
	err := fsys.Unlink("/d")
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrIsADirectory))
}

func TestTruncateOnlySupportsZero(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mknod("/f", 0644, 0, 0))
	_, err := fsys.Write("/f", []byte("12345"), 0)
	require.NoError(t, err)

	err = fsys.Truncate("/f", 3)
	require.Error(t, err)
	require.True(t, errors.Is(err, fserrors.ErrInvalidArgument))

	require.NoError(t, fsys.Truncate("/f", 0))
	st, err := fsys.GetAttr("/f")
	require.NoError(t, err)
	require.EqualValues(t, 0, st.Size)
}

// Create/unlink inverse law: free inode and block counts are restored.
func TestCreateUnlinkInverse(t *testing.T) {
	fsys := newMountedFS(t)
	before := fsys.StatFs()

	require.NoError(t, fsys.Mknod("/tmp", 0644, 0, 0))
	_, err := fsys.Write("/tmp", bytes.Repeat([]byte{9}, 2048), 0)
	require.NoError(t, err)
	require.NoError(t, fsys.Unlink("/tmp"))

	after := fsys.StatFs()
	require.Equal(t, before.FilesFree, after.FilesFree)
	require.Equal(t, before.BlocksFree, after.BlocksFree)
}

// Mkdir/rmdir inverse law on an empty directory.
func TestMkdirRmdirInverse(t *testing.T) {
	fsys := newMountedFS(t)
	before := fsys.StatFs()

	require.NoError(t, fsys.Mkdir("/empty", 0755, 0, 0))
	require.NoError(t, fsys.Rmdir("/empty"))

	after := fsys.StatFs()
	require.Equal(t, before.FilesFree, after.FilesFree)
	require.Equal(t, before.BlocksFree, after.BlocksFree)
}

// Idempotent chmod: applying the same mode twice matches applying it once,
// and the file-type bits survive.
func TestIdempotentChmod(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mknod("/f", 0644, 0, 0))

	require.NoError(t, fsys.Chmod("/f", 0600))
	once, err := fsys.GetAttr("/f")
	require.NoError(t, err)

	require.NoError(t, fsys.Chmod("/f", 0600))
	twice, err := fsys.GetAttr("/f")
	require.NoError(t, err)

	require.Equal(t, once.Mode, twice.Mode)
	require.EqualValues(t, inode.TypeRegular, twice.Mode&inode.TypeMask)
}

// GetAttr's ctime tracks mtime: a Utime call must be visible in both.
func TestGetAttrCtimeTracksMtime(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mknod("/f", 0644, 0, 0))

	require.NoError(t, fsys.Utime("/f", 999))
	st, err := fsys.GetAttr("/f")
	require.NoError(t, err)
	require.EqualValues(t, 999, st.Mtime)
	require.EqualValues(t, 999, st.Ctime)
}

func TestReadDirListsEntries(t *testing.T) {
	fsys := newMountedFS(t)
	require.NoError(t, fsys.Mkdir("/d", 0755, 0, 0))
	require.NoError(t, fsys.Mknod("/d/one", 0644, 0, 0))
	require.NoError(t, fsys.Mknod("/d/two", 0644, 0, 0))

	seen := map[string]bool{}
	err := fsys.ReadDir("/d", func(name string, st fsops.FileStat) error {
		seen[name] = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, seen["one"])
	require.True(t, seen["two"])
}
