package fuseserver

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/memvfs"
	"github.com/brettbedarf/memvfs/internal/util"
)

// Mount is a memvfs filesystem mounted onto the host's FUSE layer.
type Mount struct {
	server *fuse.Server
}

// Serve mounts fs as a FUSE filesystem at mountPoint and blocks until the
// kernel confirms the mount. It returns a handle instead of embedding the
// server inside the filesystem itself; memvfs.FS stays transport-agnostic
// and only fuseserver knows about FUSE.
func Serve(fs *memvfs.FS, mountPoint string) (*Mount, error) {
	raw := NewFuseRaw(fs)
	opts := fs.Config().Mount
	slogger := util.NewLogLogger("FuseServer", fs.Config().LogLevel)

	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug,
		Logger: slogger,
	})
	if err != nil {
		return nil, err
	}

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return nil, err
	}
	return &Mount{server: srv}, nil
}

// MountResult is what ServeAsync delivers once the kernel confirms the
// mount (or the mount attempt fails).
type MountResult struct {
	Mount *Mount
	Err   error
}

// ServeAsync is Serve run on its own goroutine, reporting the mount (or its
// failure) on the returned channel instead of blocking the caller.
func ServeAsync(fs *memvfs.FS, mountPoint string) <-chan MountResult {
	done := make(chan MountResult, 1)

	go func() {
		m, err := Serve(fs, mountPoint)
		done <- MountResult{Mount: m, Err: err}
		close(done)
	}()

	return done
}

// Unmount cleanly unmounts the filesystem.
func (m *Mount) Unmount() error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Unmount()
}
