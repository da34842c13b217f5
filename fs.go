// Package memvfs implements an in-memory, POSIX-like filesystem: paths are
// "/"-separated strings, objects are regular files, directories, and
// symbolic links identified by integer inode numbers, and accessed either
// by path or via integer file descriptors that carry a position and an
// access mode.
package memvfs

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/brettbedarf/memvfs/config"
	"github.com/brettbedarf/memvfs/internal/allocator"
	"github.com/brettbedarf/memvfs/internal/fd"
	"github.com/brettbedarf/memvfs/internal/inode"
	"github.com/brettbedarf/memvfs/internal/resolver"
	"github.com/brettbedarf/memvfs/internal/util"
)

// FS is the top-level in-memory filesystem. It wires the inode store, path
// resolver, and descriptor table behind a POSIX-shaped call surface.
type FS struct {
	cfg *config.Config
	log zerolog.Logger

	store *inode.Store
	fds   *fd.Table
	root  *inode.Inode

	dispatch  chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// Config returns the filesystem's configuration, for callers (such as
// fuseserver) that need it to construct their own wrapping state without
// memvfs importing them back.
func (fs *FS) Config() *config.Config { return fs.cfg }

// New constructs a fresh filesystem containing only an empty root
// directory. A nil cfg uses config.NewDefaultConfig().
func New(cfg *config.Config) (*FS, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	inoAlloc, err := allocator.New(allocator.Config{
		Begin:          1, // 0 is reserved; the root directory takes ino 1, matching FUSE_ROOT_ID
		BlockSize:      cfg.AllocatorBlockSize,
		AllowShrinking: cfg.AllocatorAllowShrinking,
	})
	if err != nil {
		return nil, err
	}
	fdAlloc, err := allocator.New(allocator.Config{
		BlockSize:      cfg.AllocatorBlockSize,
		AllowShrinking: cfg.AllocatorAllowShrinking,
	})
	if err != nil {
		return nil, err
	}

	store := inode.NewStore(inoAlloc, time.Now)
	root, err := store.Create(inode.CreateOpts{Kind: inode.KindDirectory})
	if err != nil {
		return nil, err
	}
	root.Dir.SetParent(root.Ino)

	util.InitializeLogger(cfg.LogLevel)

	fs := &FS{
		cfg:      cfg,
		log:      util.GetLogger("memvfs"),
		store:    store,
		fds:      fd.NewTable(fdAlloc),
		root:     root,
		dispatch: make(chan func(), 64),
		done:     make(chan struct{}),
	}
	go fs.runDispatch()
	return fs, nil
}

// Close stops the async dispatch goroutine used by the *Async callback
// twins. It is idempotent. Synchronous operations remain usable after
// Close.
func (fs *FS) Close() error {
	fs.closeOnce.Do(func() { close(fs.done) })
	return nil
}

func (fs *FS) runDispatch() {
	for {
		select {
		case f := <-fs.dispatch:
			f()
		case <-fs.done:
			return
		}
	}
}

func (fs *FS) navigate(op, path string, resolveLastLink bool) (resolver.Result, error) {
	res, err := resolver.Navigate(fs.root, fs.store, path, resolveLastLink)
	if err != nil {
		return res, wrapFDErr(op, err) // resolver errors are syscall.Errno too
	}
	return res, nil
}

// missingErr maps a resolver Result with no Target to ENOENT or ENOTDIR per
// the Blocked disambiguation (see resolver.Result).
func missingErr(op string, path string, res resolver.Result) error {
	if res.Blocked {
		return errNotDir(op, path)
	}
	return errNoent(op, path)
}

// --- path-based metadata & tree operations ---

func (fs *FS) Mkdir(path string, mode uint32) error {
	res, err := fs.navigate("mkdir", path, true)
	if err != nil {
		return err
	}
	if res.Target != nil {
		return errExist("mkdir", path)
	}
	if res.Blocked {
		return errNotDir("mkdir", path)
	}
	if res.Name == "" {
		return errNoent("mkdir", path)
	}
	n, err := fs.store.Create(inode.CreateOpts{Kind: inode.KindDirectory, Parent: res.Dir.Ino})
	if err != nil {
		return err
	}
	res.Dir.Dir.Add(res.Name, n.Ino)
	if err := fs.store.Link(res.Dir.Ino); err != nil {
		return err
	}
	fs.store.TouchMtime(res.Dir)
	return nil
}

// MkdirAll creates path and any missing parents ("mkdirp"). Creating "/"
// is a no-op.
func (fs *FS) MkdirAll(path string, mode uint32) error {
	canon := resolver.Canonicalize(path)
	if canon == "" {
		return nil
	}

	dir := fs.root
	rest := canon
	for rest != "" {
		seg, next := resolver.SplitFirst(rest)
		id, ok := dir.Dir.Get(seg)
		if !ok {
			n, err := fs.store.Create(inode.CreateOpts{Kind: inode.KindDirectory, Parent: dir.Ino})
			if err != nil {
				return err
			}
			dir.Dir.Add(seg, n.Ino)
			if err := fs.store.Link(dir.Ino); err != nil {
				return err
			}
			fs.store.TouchMtime(dir)
			dir = n
			rest = next
			continue
		}
		n, ok := fs.store.Get(id)
		if !ok || n.Kind != inode.KindDirectory {
			return errNotDir("mkdirp", path)
		}
		dir = n
		rest = next
	}
	return nil
}

func (fs *FS) Rmdir(path string) error {
	res, err := fs.navigate("rmdir", path, true)
	if err != nil {
		return err
	}
	if res.Target == nil {
		return missingErr("rmdir", path, res)
	}
	if res.Target.Kind != inode.KindDirectory {
		return errNotDir("rmdir", path)
	}
	if res.Target == fs.root {
		return errBusy("rmdir", path)
	}
	if res.Target.Dir.Len() > 0 {
		return errNotEmpty("rmdir", path)
	}

	res.Dir.Dir.Remove(res.Name)
	// The removed directory's own nlink (2: parent's entry + its own ".")
	// both disappear at once; the directory ceases to exist as a
	// nameable entity.
	_ = fs.store.Unlink(res.Target.Ino)
	_ = fs.store.Unlink(res.Target.Ino)
	// The parent loses the removed child's ".." back-reference.
	_ = fs.store.Unlink(res.Dir.Ino)
	fs.store.TouchMtime(res.Dir)
	return nil
}

func (fs *FS) Unlink(path string) error {
	res, err := fs.navigate("unlink", path, false)
	if err != nil {
		return err
	}
	if res.Target == nil {
		return missingErr("unlink", path, res)
	}
	if res.Target.Kind == inode.KindDirectory {
		return errIsDir("unlink", path)
	}
	res.Dir.Dir.Remove(res.Name)
	fs.store.TouchMtime(res.Dir)
	return fs.store.Unlink(res.Target.Ino)
}

func (fs *FS) Link(oldPath, newPath string) error {
	oldRes, err := fs.navigate("link", oldPath, false)
	if err != nil {
		return err
	}
	if oldRes.Target == nil {
		return missingErr("link", oldPath, oldRes)
	}
	if oldRes.Target.Kind == inode.KindDirectory {
		return errPerm("link", oldPath, newPath)
	}

	newRes, err := fs.navigate("link", newPath, false)
	if err != nil {
		return err
	}
	if newRes.Target != nil {
		return errExist("link", newPath)
	}
	if newRes.Blocked {
		return errNotDir("link", newPath)
	}
	if newRes.Name == "" {
		return errNoent("link", newPath)
	}

	if err := fs.store.Link(oldRes.Target.Ino); err != nil {
		return err
	}
	newRes.Dir.Dir.Add(newRes.Name, oldRes.Target.Ino)
	fs.store.TouchMtime(newRes.Dir)
	return nil
}

func (fs *FS) Symlink(target, linkPath string) error {
	res, err := fs.navigate("symlink", linkPath, false)
	if err != nil {
		return err
	}
	if res.Target != nil {
		return errExist("symlink", linkPath)
	}
	if res.Blocked {
		return errNotDir("symlink", linkPath)
	}
	if res.Name == "" {
		return errNoent("symlink", linkPath)
	}
	n, err := fs.store.Create(inode.CreateOpts{Kind: inode.KindSymlink, Target: target})
	if err != nil {
		return err
	}
	res.Dir.Dir.Add(res.Name, n.Ino)
	fs.store.TouchMtime(res.Dir)
	return nil
}

func (fs *FS) Readlink(path string) (string, error) {
	res, err := fs.navigate("readlink", path, false)
	if err != nil {
		return "", err
	}
	if res.Target == nil {
		return "", missingErr("readlink", path, res)
	}
	if res.Target.Kind != inode.KindSymlink {
		return "", errInval("readlink", path)
	}
	fs.store.TouchAtime(res.Target)
	return res.Target.Symlink.Target(), nil
}

func (fs *FS) Rename(oldPath, newPath string) error {
	oldRes, err := fs.navigate("rename", oldPath, false)
	if err != nil {
		return err
	}
	if oldRes.Target == nil {
		return missingErr("rename", oldPath, oldRes)
	}
	if oldRes.Target == fs.root {
		return errBusy("rename", oldPath, newPath)
	}

	newRes, err := fs.navigate("rename", newPath, false)
	if err != nil {
		return err
	}
	if newRes.Target == fs.root {
		return errBusy("rename", oldPath, newPath)
	}
	if newRes.Blocked {
		return errNotDir("rename", newPath)
	}
	if newRes.Name == "" {
		return errNoent("rename", newPath)
	}

	srcIsDir := oldRes.Target.Kind == inode.KindDirectory

	if newRes.Target != nil {
		dstIsDir := newRes.Target.Kind == inode.KindDirectory
		if srcIsDir && !dstIsDir {
			return errNotDir("rename", oldPath, newPath)
		}
		if !srcIsDir && dstIsDir {
			return errIsDir("rename", oldPath, newPath)
		}
		if dstIsDir && newRes.Target.Dir.Len() > 0 {
			return errNotEmpty("rename", oldPath, newPath)
		}

		newRes.Dir.Dir.Remove(newRes.Name)
		if dstIsDir {
			_ = fs.store.Unlink(newRes.Target.Ino)
			_ = fs.store.Unlink(newRes.Target.Ino)
			_ = fs.store.Unlink(newRes.Dir.Ino)
		} else {
			_ = fs.store.Unlink(newRes.Target.Ino)
		}
	}

	oldRes.Dir.Dir.Remove(oldRes.Name)
	newRes.Dir.Dir.Add(newRes.Name, oldRes.Target.Ino)

	if srcIsDir && oldRes.Dir.Ino != newRes.Dir.Ino {
		oldRes.Target.Dir.SetParent(newRes.Dir.Ino)
		_ = fs.store.Unlink(oldRes.Dir.Ino)
		_ = fs.store.Link(newRes.Dir.Ino)
	}

	fs.store.TouchMtime(oldRes.Dir)
	fs.store.TouchMtime(newRes.Dir)
	return nil
}

func (fs *FS) Readdir(path string) ([]string, error) {
	res, err := fs.navigate("readdir", path, false)
	if err != nil {
		return nil, err
	}
	if res.Target == nil {
		return nil, missingErr("readdir", path, res)
	}
	// readdir does not follow a terminating symlink.
	if res.Target.Kind != inode.KindDirectory {
		return nil, errNotDir("readdir", path)
	}
	fs.store.TouchAtime(res.Target)
	return res.Target.Dir.Entries(), nil
}

func (fs *FS) Stat(path string) (FileInfo, error) {
	res, err := fs.navigate("stat", path, true)
	if err != nil {
		return nil, err
	}
	if res.Target == nil {
		return nil, missingErr("stat", path, res)
	}
	return &fileInfo{name: res.Name, n: res.Target}, nil
}

func (fs *FS) Lstat(path string) (FileInfo, error) {
	res, err := fs.navigate("lstat", path, false)
	if err != nil {
		return nil, err
	}
	if res.Target == nil {
		return nil, missingErr("lstat", path, res)
	}
	return &fileInfo{name: res.Name, n: res.Target}, nil
}

// Access reports whether path exists. Every inode has mode 0o777 and there
// is no real permission model, so the requested mode bits never cause a
// failure beyond the target not existing.
func (fs *FS) Access(path string, mode uint32) error {
	res, err := fs.navigate("access", path, true)
	if err != nil {
		return err
	}
	if res.Target == nil {
		return missingErr("access", path, res)
	}
	return nil
}

func (fs *FS) Chmod(path string, mode uint32) error { return fs.existsOrErr("chmod", path, true) }

func (fs *FS) Lchmod(path string, mode uint32) error { return fs.existsOrErr("lchmod", path, false) }

func (fs *FS) Chown(path string, uid, gid uint32) error { return fs.existsOrErr("chown", path, true) }

func (fs *FS) Lchown(path string, uid, gid uint32) error {
	return fs.existsOrErr("lchown", path, false)
}

// existsOrErr implements the chmod/chown family's existence-check-then-
// no-op behavior: mode and uid/gid are accepted but never stored.
func (fs *FS) existsOrErr(op, path string, resolveLastLink bool) error {
	res, err := fs.navigate(op, path, resolveLastLink)
	if err != nil {
		return err
	}
	if res.Target == nil {
		return missingErr(op, path, res)
	}
	return nil
}

func (fs *FS) Utimes(path string, atime, mtime time.Time) error {
	res, err := fs.navigate("utimes", path, true)
	if err != nil {
		return err
	}
	if res.Target == nil {
		return missingErr("utimes", path, res)
	}
	res.Target.Atime = atime
	res.Target.Mtime = mtime
	fs.store.TouchCtime(res.Target)
	return nil
}

func (fs *FS) Truncate(path string, size int64) error {
	res, err := fs.navigate("truncate", path, true)
	if err != nil {
		return err
	}
	if res.Target == nil {
		return missingErr("truncate", path, res)
	}
	if res.Target.Kind != inode.KindFile {
		return errIsDir("truncate", path)
	}
	if err := res.Target.File.Truncate(int(size)); err != nil {
		return errNoSpace("truncate", path)
	}
	fs.store.TouchMtime(res.Target)
	return nil
}

func (fs *FS) Exists(path string) bool {
	res, err := fs.navigate("exists", path, true)
	return err == nil && res.Target != nil
}

// --- descriptor-based operations ---

// Open resolves path and binds a file descriptor to the result: a
// last-component symlink is followed (with NOFOLLOW it fails ELOOP), CREAT
// makes a missing leaf a new empty file, CREAT|EXCL rejects an existing
// leaf, DIRECTORY demands the leaf already be a directory, and TRUNC
// empties an existing regular file opened for writing.
func (fs *FS) Open(path string, flags fd.OpenFlag) (int, error) {
	// First pass leaves a terminal symlink unresolved: NOFOLLOW and
	// CREAT|EXCL judge the link itself (a dangling link still EEXISTs),
	// and only then is navigation redone through it.
	res, err := fs.navigate("open", path, false)
	if err != nil {
		return 0, err
	}
	if res.Target != nil && res.Target.Kind == inode.KindSymlink {
		if flags.Has(fd.NOFOLLOW) {
			return 0, errLoop("open", path)
		}
		if flags.Has(fd.CREAT) && flags.Has(fd.EXCL) {
			return 0, errExist("open", path)
		}
		res, err = fs.navigate("open", path, true)
		if err != nil {
			return 0, err
		}
	}

	if res.Target == nil {
		if !flags.Has(fd.CREAT) {
			return 0, missingErr("open", path, res)
		}
		if res.Blocked {
			return 0, errNotDir("open", path)
		}
		if res.Name == "" {
			return 0, errNoent("open", path)
		}
		n, err := fs.store.Create(inode.CreateOpts{Kind: inode.KindFile})
		if err != nil {
			return 0, err
		}
		res.Dir.Dir.Add(res.Name, n.Ino)
		fs.store.TouchMtime(res.Dir)
		res.Target = n
	} else {
		if flags.Has(fd.CREAT) && flags.Has(fd.EXCL) {
			return 0, errExist("open", path)
		}
		if flags.Has(fd.DIRECTORY) && res.Target.Kind != inode.KindDirectory {
			return 0, errNotDir("open", path)
		}
		if res.Target.Kind == inode.KindDirectory && flags.Writable() {
			return 0, errIsDir("open", path)
		}
		if flags.Has(fd.TRUNC) && res.Target.Kind == inode.KindFile && flags.Writable() {
			_ = res.Target.File.Truncate(0)
			fs.store.TouchMtime(res.Target)
		}
	}

	if err := fs.store.Opened(res.Target.Ino); err != nil {
		return 0, err
	}
	id, _, err := fs.fds.Open(res.Target, flags)
	if err != nil {
		_ = fs.store.Closed(res.Target.Ino)
		return 0, err
	}
	return id, nil
}

// Read reads up to length bytes at the effective position (see fd.Table.Read)
// into buf[offset:offset+length]. position is nil to use the descriptor's
// current position.
func (fs *FS) Read(fdNum int, buf []byte, offset, length int, position *int64) (int, error) {
	n, err := fs.fds.Read(fs.store, fdNum, buf, offset, length, position)
	return n, wrapFDErr("read", err)
}

// Write writes data at the effective position (see fd.Table.Write).
func (fs *FS) Write(fdNum int, data []byte, position *int64) (int, error) {
	n, err := fs.fds.Write(fs.store, fdNum, data, position)
	return n, wrapFDErr("write", err)
}

// CloseFD closes a descriptor previously returned by Open, releasing the
// underlying inode's Opens reference.
func (fs *FS) CloseFD(fdNum int) error {
	d, ok := fs.fds.Close(fdNum)
	if !ok {
		return errBadf("close")
	}
	return fs.store.Closed(d.Inode.Ino)
}

func (fs *FS) Fstat(fdNum int) (FileInfo, error) {
	d, ok := fs.fds.Lookup(fdNum)
	if !ok {
		return nil, errBadf("fstat")
	}
	return &fileInfo{n: d.Inode}, nil
}

// Fchmod, Fchown, Fdatasync, and Fsync all require only a valid descriptor
// and otherwise do nothing, mirroring Chmod/Chown's no-op metadata model
// and the fact that there is no backing storage to flush.
func (fs *FS) Fchmod(fdNum int, mode uint32) error     { return fs.fdNoop(fdNum, "fchmod") }
func (fs *FS) Fchown(fdNum int, uid, gid uint32) error { return fs.fdNoop(fdNum, "fchown") }
func (fs *FS) Fdatasync(fdNum int) error               { return fs.fdNoop(fdNum, "fdatasync") }
func (fs *FS) Fsync(fdNum int) error                   { return fs.fdNoop(fdNum, "fsync") }

func (fs *FS) fdNoop(fdNum int, op string) error {
	if _, ok := fs.fds.Lookup(fdNum); !ok {
		return errBadf(op)
	}
	return nil
}

func (fs *FS) Futimes(fdNum int, atime, mtime time.Time) error {
	d, ok := fs.fds.Lookup(fdNum)
	if !ok {
		return errBadf("futimes")
	}
	d.Inode.Atime = atime
	d.Inode.Mtime = mtime
	fs.store.TouchCtime(d.Inode)
	return nil
}

func (fs *FS) Ftruncate(fdNum int, size int64) error {
	d, ok := fs.fds.Lookup(fdNum)
	if !ok {
		return errBadf("ftruncate")
	}
	if !d.Flags.Writable() {
		return errInval("ftruncate")
	}
	if err := d.Inode.File.Truncate(int(size)); err != nil {
		return errNoSpace("ftruncate")
	}
	fs.store.TouchMtime(d.Inode)
	return nil
}

// --- whole-file convenience operations ---

// ReadFile resolves path (following symlinks) and returns an independent
// copy of the file's entire contents. It does not allocate a descriptor.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	res, err := fs.navigate("readFile", path, true)
	if err != nil {
		return nil, err
	}
	if res.Target == nil {
		return nil, missingErr("readFile", path, res)
	}
	if res.Target.Kind != inode.KindFile {
		return nil, errIsDir("readFile", path)
	}
	fs.store.TouchAtime(res.Target)
	return res.Target.File.ReadAll(), nil
}

// WriteFile creates or truncates path and writes data to it in full.
func (fs *FS) WriteFile(path string, data []byte) error {
	fdNum, err := fs.Open(path, fd.WRONLY|fd.CREAT|fd.TRUNC)
	if err != nil {
		return err
	}
	defer fs.CloseFD(fdNum)
	_, err = fs.Write(fdNum, data, nil)
	return err
}

// AppendFile creates path if missing and appends data to its current end.
func (fs *FS) AppendFile(path string, data []byte) error {
	fdNum, err := fs.Open(path, fd.WRONLY|fd.CREAT|fd.APPEND)
	if err != nil {
		return err
	}
	defer fs.CloseFD(fdNum)
	_, err = fs.Write(fdNum, data, nil)
	return err
}
