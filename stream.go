package memvfs

import (
	"io"

	"github.com/brettbedarf/memvfs/internal/fd"
)

// readStream adapts a path opened read-only into an io.ReadCloser, reading
// at an explicit, independently-tracked position bounded by [start, end].
type readStream struct {
	fs  *FS
	fd  int
	pos int64
	end *int64 // inclusive absolute offset; nil means read to EOF
}

// CreateReadStream opens path read-only and returns an io.ReadCloser over
// it. start is the byte offset to begin reading at (nil means 0); end is
// the inclusive byte offset to stop at (nil means read to EOF). Both are
// optional and independent of each other.
func (fs *FS) CreateReadStream(path string, start, end *int64) (io.ReadCloser, error) {
	fdNum, err := fs.Open(path, fd.RDONLY)
	if err != nil {
		return nil, err
	}
	var pos int64
	if start != nil {
		pos = *start
	}
	return &readStream{fs: fs, fd: fdNum, pos: pos, end: end}, nil
}

func (r *readStream) Read(p []byte) (int, error) {
	length := len(p)
	if r.end != nil {
		remaining := *r.end - r.pos + 1
		if remaining <= 0 {
			return 0, io.EOF
		}
		if int64(length) > remaining {
			length = int(remaining)
		}
	}

	n, err := r.fs.Read(r.fd, p[:length], 0, length, &r.pos)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	r.pos += int64(n)
	return n, nil
}

func (r *readStream) Close() error {
	return r.fs.CloseFD(r.fd)
}

// writeStream adapts a path opened for writing into an io.WriteCloser.
type writeStream struct {
	fs *FS
	fd int
}

// CreateWriteStream opens path for writing, creating it if missing and
// truncating any existing content, and returns an io.WriteCloser over it.
func (fs *FS) CreateWriteStream(path string) (io.WriteCloser, error) {
	return fs.createWriteStream(path, false)
}

// CreateAppendStream is like CreateWriteStream but appends to any existing
// content instead of truncating it.
func (fs *FS) CreateAppendStream(path string) (io.WriteCloser, error) {
	return fs.createWriteStream(path, true)
}

func (fs *FS) createWriteStream(path string, appendMode bool) (io.WriteCloser, error) {
	flags := fd.WRONLY | fd.CREAT
	if appendMode {
		flags |= fd.APPEND
	} else {
		flags |= fd.TRUNC
	}
	fdNum, err := fs.Open(path, flags)
	if err != nil {
		return nil, err
	}
	return &writeStream{fs: fs, fd: fdNum}, nil
}

func (w *writeStream) Write(p []byte) (int, error) {
	return w.fs.Write(w.fd, p, nil)
}

func (w *writeStream) Close() error {
	return w.fs.CloseFD(w.fd)
}
