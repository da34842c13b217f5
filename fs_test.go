package memvfs

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	fs, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

func TestEmptyRootReaddir(t *testing.T) {
	fs := newTestFS(t)
	entries, err := fs.Readdir("/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMkdirAndReaddirOrdering(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/b", 0o755))
	require.NoError(t, fs.Mkdir("/a", 0o755))
	require.NoError(t, fs.Mkdir("/c", 0o755))

	entries, err := fs.Readdir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, entries)
}

func TestMkdirExistingIsEEXIST(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	err := fs.Mkdir("/a", 0o755)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EEXIST)
}

func TestMkdirRootIsEEXIST(t *testing.T) {
	fs := newTestFS(t)
	err := fs.Mkdir("/", 0o755)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EEXIST)
}

func TestRmdirRootIsEBUSY(t *testing.T) {
	fs := newTestFS(t)
	err := fs.Rmdir("/")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EBUSY)
}

func TestRmdirNonEmptyIsENOTEMPTY(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	require.NoError(t, fs.Mkdir("/a/b", 0o755))
	err := fs.Rmdir("/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOTEMPTY)
}

func TestMkdirAllCreatesIntermediates(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/a/b/c", 0o755))

	info, err := fs.Stat("/a/b/c")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMkdirAllOfRootIsNoop(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/", 0o755))
}

func TestMkdirAllThroughFileIsENOTDIR(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/a", []byte("x")))
	err := fs.MkdirAll("/a/b", 0o755)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}

func TestWriteFileReadFileRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/hello.txt", []byte("hello world")))

	data, err := fs.ReadFile("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWriteFileTruncatesExisting(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("aaaaaaaaaa")))
	require.NoError(t, fs.WriteFile("/f", []byte("bb")))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "bb", string(data))
}

func TestAppendFileAppendsToEnd(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("abc")))
	require.NoError(t, fs.AppendFile("/f", []byte("def")))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestHardLinkSharesContentAndIncrementsNlink(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/a", []byte("shared")))
	require.NoError(t, fs.Link("/a", "/b"))

	info, err := fs.Stat("/a")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Nlink())

	data, err := fs.ReadFile("/b")
	require.NoError(t, err)
	assert.Equal(t, "shared", string(data))

	require.NoError(t, fs.WriteFile("/b", []byte("changed")))
	data, err = fs.ReadFile("/a")
	require.NoError(t, err)
	assert.Equal(t, "changed", string(data))
}

func TestLinkOnDirectoryIsEPERM(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	err := fs.Link("/a", "/b")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EPERM)
}

func TestUnlinkOfDirectoryIsEISDIR(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	err := fs.Unlink("/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EISDIR)
}

func TestSymlinkReadlinkRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/target.txt", []byte("x")))
	require.NoError(t, fs.Symlink("/target.txt", "/link"))

	target, err := fs.Readlink("/link")
	require.NoError(t, err)
	assert.Equal(t, "/target.txt", target)

	data, err := fs.ReadFile("/link")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestSymlinkSelfLoopIsELOOP(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Symlink("/loop", "/loop"))
	_, err := fs.ReadFile("/loop")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ELOOP)
}

func TestRenameOverExistingThenBackLeavesOnlySource(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/a", []byte("1")))
	require.NoError(t, fs.WriteFile("/b", []byte("2")))

	require.NoError(t, fs.Rename("/a", "/b"))
	require.NoError(t, fs.Rename("/b", "/a"))

	entries, err := fs.Readdir("/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a"}, entries)

	data, err := fs.ReadFile("/a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func TestRenameDirectoryMovesNlinkBackreference(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/src", 0o755))
	require.NoError(t, fs.MkdirAll("/dst", 0o755))

	require.NoError(t, fs.Rename("/src", "/dst/moved"))

	dstInfo, err := fs.Stat("/dst")
	require.NoError(t, err)
	assert.Equal(t, 3, dstInfo.Nlink()) // 2 at creation (self + root's entry) + 1 for moved's ".."

	movedInfo, err := fs.Stat("/dst/moved")
	require.NoError(t, err)
	assert.True(t, movedInfo.IsDir())
}

func TestOpenAppendWritesAtEOF(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("abc")))

	fdNum, err := fs.Open("/f", APPEND|WRONLY)
	require.NoError(t, err)
	_, err = fs.Write(fdNum, []byte("def"), nil)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFD(fdNum))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestPositionalReadDoesNotMoveDescriptor(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("0123456789")))

	fdNum, err := fs.Open("/f", RDONLY)
	require.NoError(t, err)

	buf := make([]byte, 4)
	pos := int64(5)
	n, err := fs.Read(fdNum, buf, 0, 4, &pos)
	require.NoError(t, err)
	assert.Equal(t, "5678", string(buf[:n]))

	buf2 := make([]byte, 4)
	n2, err := fs.Read(fdNum, buf2, 0, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(buf2[:n2]))
}

func TestOpenCreatExclOnExistingIsEEXIST(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("x")))
	_, err := fs.Open("/f", WRONLY|CREAT|EXCL)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EEXIST)
}

func TestOpenDirectoryForWriteIsEISDIR(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	_, err := fs.Open("/a", WRONLY)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EISDIR)
}

func TestReaddirOnSymlinkToDirIsENOTDIR(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	require.NoError(t, fs.Symlink("/a", "/link"))

	_, err := fs.Readdir("/link")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}

func TestTruncateShrinksFile(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("0123456789")))
	require.NoError(t, fs.Truncate("/f", 4))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))
}

func TestFtruncateShrinksFile(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("0123456789")))

	fdNum, err := fs.Open("/f", WRONLY)
	require.NoError(t, err)
	require.NoError(t, fs.Ftruncate(fdNum, 4))
	require.NoError(t, fs.CloseFD(fdNum))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))
}

func TestFtruncateOnReadOnlyDescriptorIsEINVAL(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("0123456789")))

	fdNum, err := fs.Open("/f", RDONLY)
	require.NoError(t, err)
	err = fs.Ftruncate(fdNum, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestFtruncateOnDirectoryDescriptorIsEINVAL(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))

	fdNum, err := fs.Open("/a", RDONLY|DIRECTORY)
	require.NoError(t, err)
	err = fs.Ftruncate(fdNum, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestChmodChownAreNoops(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("x")))
	before, err := fs.Stat("/f")
	require.NoError(t, err)

	require.NoError(t, fs.Chmod("/f", 0o600))
	require.NoError(t, fs.Chown("/f", 42, 42))

	after, err := fs.Stat("/f")
	require.NoError(t, err)
	assert.Equal(t, before.Mode(), after.Mode())
}

func TestExists(t *testing.T) {
	fs := newTestFS(t)
	assert.False(t, fs.Exists("/nope"))
	require.NoError(t, fs.WriteFile("/f", []byte("x")))
	assert.True(t, fs.Exists("/f"))
}

func TestUnlinkKeepsOpenDescriptorAlive(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("data")))

	fdNum, err := fs.Open("/f", RDONLY)
	require.NoError(t, err)

	require.NoError(t, fs.Unlink("/f"))
	assert.False(t, fs.Exists("/f"))

	buf := make([]byte, 4)
	n, err := fs.Read(fdNum, buf, 0, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf[:n]))
	require.NoError(t, fs.CloseFD(fdNum))
}

func TestUnlinkRootFails(t *testing.T) {
	fs := newTestFS(t)
	require.Error(t, fs.Unlink("/"))
}

func TestSymlinkLoopLengthTwoIsELOOP(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	require.NoError(t, fs.Symlink("/a/x", "/x"))
	require.NoError(t, fs.Symlink("/x", "/a/x"))

	_, err := fs.ReadFile("/x/nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ELOOP)
}

func TestTransitiveSymlinkChain(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/test", 0o755))
	require.NoError(t, fs.WriteFile("/test/hello-world.txt", []byte("Hello World")))
	require.NoError(t, fs.Symlink("/test", "/linktotestdir"))
	require.NoError(t, fs.Symlink("/linktotestdir/hello-world.txt", "/linktofile"))
	require.NoError(t, fs.Symlink("/linktofile", "/linktolink"))

	data, err := fs.ReadFile("/linktolink")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", string(data))
}

func TestOpenNofollowOnSymlinkIsELOOP(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/target", []byte("x")))
	require.NoError(t, fs.Symlink("/target", "/link"))

	_, err := fs.Open("/link", RDONLY|NOFOLLOW)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ELOOP)
}

func TestOpenCreatExclOnDanglingSymlinkIsEEXIST(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Symlink("/missing", "/link"))

	// The link itself occupies the name, even though its target does not
	// exist, so exclusive creation must refuse rather than create the
	// target.
	_, err := fs.Open("/link", WRONLY|CREAT|EXCL)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EEXIST)
	assert.False(t, fs.Exists("/missing"))
}

func TestOpenThroughSymlinkCreatesAtTarget(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Symlink("/real", "/link"))

	fdNum, err := fs.Open("/link", WRONLY|CREAT)
	require.NoError(t, err)
	_, err = fs.Write(fdNum, []byte("via link"), nil)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFD(fdNum))

	data, err := fs.ReadFile("/real")
	require.NoError(t, err)
	assert.Equal(t, "via link", string(data))
}

func TestAppendPlusDescriptorPositionFollowsEnd(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.WriteFile("/f", []byte("abc")))

	fdNum, err := fs.Open("/f", RDWR|APPEND)
	require.NoError(t, err)

	_, err = fs.Write(fdNum, []byte("def"), nil)
	require.NoError(t, err)

	// After an append write the descriptor position sits at EOF.
	buf := make([]byte, 3)
	n, err := fs.Read(fdNum, buf, 0, 3, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = fs.Write(fdNum, []byte("ghi"), nil)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFD(fdNum))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", string(data))
}

func TestPositionalReadLeavesWritePositionIntact(t *testing.T) {
	fs := newTestFS(t)

	fdNum, err := fs.Open("/f", RDWR|CREAT|TRUNC)
	require.NoError(t, err)

	_, err = fs.Write(fdNum, []byte("abcdef"), nil)
	require.NoError(t, err)

	buf := make([]byte, 3)
	pos := int64(0)
	n, err := fs.Read(fdNum, buf, 0, 3, &pos)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	// The positional read left the descriptor at the end of the first
	// write, so a plain write continues from there rather than from the
	// read position.
	_, err = fs.Write(fdNum, []byte("ghi"), nil)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFD(fdNum))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghi", string(data))
}

func TestExplicitPositionWritesDoNotMoveDescriptor(t *testing.T) {
	fs := newTestFS(t)

	fdNum, err := fs.Open("/f", RDWR|CREAT|TRUNC)
	require.NoError(t, err)

	zero := int64(0)
	_, err = fs.Write(fdNum, []byte("abcdef"), &zero)
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err := fs.Read(fdNum, buf, 0, 3, &zero)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	_, err = fs.Write(fdNum, []byte("ghi"), &zero)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFD(fdNum))

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, "ghidef", string(data))
}
