package fd

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/memvfs/internal/allocator"
	"github.com/brettbedarf/memvfs/internal/inode"
)

func newTestTable(t *testing.T) (*Table, *inode.Store) {
	t.Helper()
	fdAlloc, err := allocator.New(allocator.Config{})
	require.NoError(t, err)
	inoAlloc, err := allocator.New(allocator.Config{})
	require.NoError(t, err)
	store := inode.NewStore(inoAlloc, time.Now)
	return NewTable(fdAlloc), store
}

func TestParseModeTable(t *testing.T) {
	f, err := ParseMode("a+")
	require.NoError(t, err)
	assert.True(t, f.Readable())
	assert.True(t, f.Writable())
	assert.True(t, f.Has(APPEND))
	assert.True(t, f.Has(CREAT))

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}

func TestOpenLookupClose(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)

	id, d, err := table.Open(n, RDWR)
	require.NoError(t, err)
	got, ok := table.Lookup(id)
	require.True(t, ok)
	assert.Same(t, d, got)

	closed, ok := table.Close(id)
	require.True(t, ok)
	assert.Same(t, n, closed.Inode)

	_, ok = table.Lookup(id)
	assert.False(t, ok)
}

func TestReadOnWriteOnlyFdIsEBADF(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)
	id, _, err := table.Open(n, WRONLY)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = table.Read(store, id, buf, 0, 4, nil)
	assert.ErrorIs(t, err, syscall.EBADF)
}

func TestWriteOnReadOnlyFdIsEBADF(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)
	id, _, err := table.Open(n, RDONLY)
	require.NoError(t, err)

	_, err = table.Write(store, id, []byte("x"), nil)
	assert.ErrorIs(t, err, syscall.EBADF)
}

func TestReadOnDirectoryIsEISDIR(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindDirectory})
	require.NoError(t, err)
	id, _, err := table.Open(n, RDONLY)
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = table.Read(store, id, buf, 0, 1, nil)
	assert.ErrorIs(t, err, syscall.EISDIR)
}

func TestPositionalReadDoesNotMoveDescriptor(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)
	id, _, err := table.Open(n, RDWR)
	require.NoError(t, err)

	_, err = table.Write(store, id, []byte("abcdef"), nil)
	require.NoError(t, err)

	buf := make([]byte, 3)
	pos := int64(0)
	n2, err := table.Read(store, id, buf, 0, 3, &pos)
	require.NoError(t, err)
	assert.Equal(t, 3, n2)
	assert.Equal(t, "abc", string(buf))

	// The positional read left the descriptor at the end of the first
	// write, so the next plain write continues from there.
	_, err = table.Write(store, id, []byte("ghi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", string(n.File.ReadAll()))
}

func TestExplicitPositionWriteDoesNotMoveDescriptor(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)
	id, _, err := table.Open(n, RDWR)
	require.NoError(t, err)

	zero := int64(0)
	_, err = table.Write(store, id, []byte("abcdef"), &zero)
	require.NoError(t, err)

	_, err = table.Write(store, id, []byte("ghi"), &zero)
	require.NoError(t, err)
	assert.Equal(t, "ghidef", string(n.File.ReadAll()))

	// Neither explicit-position write moved the descriptor, so a plain
	// write lands at the start.
	_, err = table.Write(store, id, []byte("XY"), nil)
	require.NoError(t, err)
	assert.Equal(t, "XYidef", string(n.File.ReadAll()))
}

func TestAppendModeWritesAtEnd(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)
	_, err = n.File.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)

	id, _, err := table.Open(n, RDWR|APPEND)
	require.NoError(t, err)

	_, err = table.Write(store, id, []byte("def"), nil)
	require.NoError(t, err)

	buf := make([]byte, 3)
	got, err := table.Read(store, id, buf, 0, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got, "descriptor position should be at EOF after append")

	_, err = table.Write(store, id, []byte("ghi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", string(n.File.ReadAll()))
}

func TestNegativePositionIsEINVAL(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)
	id, _, err := table.Open(n, RDWR)
	require.NoError(t, err)

	buf := make([]byte, 1)
	neg := int64(-1)
	_, err = table.Read(store, id, buf, 0, 1, &neg)
	assert.ErrorIs(t, err, syscall.EINVAL)

	_, err = table.Write(store, id, []byte("x"), &neg)
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestReadOutOfBufferBoundsIsRangeError(t *testing.T) {
	table, store := newTestTable(t)
	n, err := store.Create(inode.CreateOpts{Kind: inode.KindFile})
	require.NoError(t, err)
	id, _, err := table.Open(n, RDONLY)
	require.NoError(t, err)

	buf := make([]byte, 2)
	_, err = table.Read(store, id, buf, 0, 10, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, syscall.EINVAL)
}
