package memvfs

import (
	"time"

	"github.com/brettbedarf/memvfs/internal/fd"
)

// Callback twins mirror every synchronous FS method for call sites that
// prefer a completion callback over a blocking return, delivered through
// the filesystem's own dispatch goroutine so the callback never runs
// before the call that scheduled it returns. The underlying operation
// still runs synchronously on that goroutine; there is no additional
// concurrency beyond moving the call off the caller's own goroutine.

func (fs *FS) MkdirAsync(path string, mode uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Mkdir(path, mode)) }
}

func (fs *FS) MkdirAllAsync(path string, mode uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.MkdirAll(path, mode)) }
}

func (fs *FS) RmdirAsync(path string, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Rmdir(path)) }
}

func (fs *FS) UnlinkAsync(path string, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Unlink(path)) }
}

func (fs *FS) LinkAsync(oldPath, newPath string, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Link(oldPath, newPath)) }
}

func (fs *FS) SymlinkAsync(target, linkPath string, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Symlink(target, linkPath)) }
}

func (fs *FS) ReadlinkAsync(path string, cb func(string, error)) {
	fs.dispatch <- func() {
		target, err := fs.Readlink(path)
		cb(target, err)
	}
}

func (fs *FS) RenameAsync(oldPath, newPath string, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Rename(oldPath, newPath)) }
}

func (fs *FS) ReaddirAsync(path string, cb func([]string, error)) {
	fs.dispatch <- func() {
		entries, err := fs.Readdir(path)
		cb(entries, err)
	}
}

func (fs *FS) StatAsync(path string, cb func(FileInfo, error)) {
	fs.dispatch <- func() {
		info, err := fs.Stat(path)
		cb(info, err)
	}
}

func (fs *FS) LstatAsync(path string, cb func(FileInfo, error)) {
	fs.dispatch <- func() {
		info, err := fs.Lstat(path)
		cb(info, err)
	}
}

func (fs *FS) AccessAsync(path string, mode uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Access(path, mode)) }
}

func (fs *FS) ChmodAsync(path string, mode uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Chmod(path, mode)) }
}

func (fs *FS) ChownAsync(path string, uid, gid uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Chown(path, uid, gid)) }
}

func (fs *FS) LchmodAsync(path string, mode uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Lchmod(path, mode)) }
}

func (fs *FS) LchownAsync(path string, uid, gid uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Lchown(path, uid, gid)) }
}

func (fs *FS) UtimesAsync(path string, atime, mtime time.Time, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Utimes(path, atime, mtime)) }
}

func (fs *FS) TruncateAsync(path string, size int64, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Truncate(path, size)) }
}

func (fs *FS) OpenAsync(path string, flags fd.OpenFlag, cb func(int, error)) {
	fs.dispatch <- func() {
		fdNum, err := fs.Open(path, flags)
		cb(fdNum, err)
	}
}

func (fs *FS) ReadAsync(fdNum int, buf []byte, offset, length int, position *int64, cb func(int, error)) {
	fs.dispatch <- func() {
		n, err := fs.Read(fdNum, buf, offset, length, position)
		cb(n, err)
	}
}

func (fs *FS) WriteAsync(fdNum int, data []byte, position *int64, cb func(int, error)) {
	fs.dispatch <- func() {
		n, err := fs.Write(fdNum, data, position)
		cb(n, err)
	}
}

func (fs *FS) CloseAsync(fdNum int, cb func(error)) {
	fs.dispatch <- func() { cb(fs.CloseFD(fdNum)) }
}

func (fs *FS) FstatAsync(fdNum int, cb func(FileInfo, error)) {
	fs.dispatch <- func() {
		info, err := fs.Fstat(fdNum)
		cb(info, err)
	}
}

func (fs *FS) FchmodAsync(fdNum int, mode uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Fchmod(fdNum, mode)) }
}

func (fs *FS) FchownAsync(fdNum int, uid, gid uint32, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Fchown(fdNum, uid, gid)) }
}

func (fs *FS) FdatasyncAsync(fdNum int, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Fdatasync(fdNum)) }
}

func (fs *FS) FsyncAsync(fdNum int, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Fsync(fdNum)) }
}

func (fs *FS) FutimesAsync(fdNum int, atime, mtime time.Time, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Futimes(fdNum, atime, mtime)) }
}

func (fs *FS) FtruncateAsync(fdNum int, size int64, cb func(error)) {
	fs.dispatch <- func() { cb(fs.Ftruncate(fdNum, size)) }
}

func (fs *FS) ExistsAsync(path string, cb func(bool)) {
	fs.dispatch <- func() { cb(fs.Exists(path)) }
}

func (fs *FS) ReadFileAsync(path string, cb func([]byte, error)) {
	fs.dispatch <- func() {
		data, err := fs.ReadFile(path)
		cb(data, err)
	}
}

func (fs *FS) WriteFileAsync(path string, data []byte, cb func(error)) {
	fs.dispatch <- func() { cb(fs.WriteFile(path, data)) }
}

func (fs *FS) AppendFileAsync(path string, data []byte, cb func(error)) {
	fs.dispatch <- func() { cb(fs.AppendFile(path, data)) }
}
