// Package fd implements the file-descriptor table: a dense id space over
// open descriptor state, and the positional read/write semantics that
// mediate I/O against file inodes.
package fd

import (
	"syscall"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/brettbedarf/memvfs/internal/allocator"
	"github.com/brettbedarf/memvfs/internal/inode"
)

// Descriptor is the open-file state addressed by a descriptor id.
type Descriptor struct {
	Inode    *inode.Inode
	Flags    OpenFlag
	Position int64
}

// Table maps descriptor ids to Descriptor state, using its own allocator so
// descriptor numbers and inode numbers are independent dense id spaces.
type Table struct {
	alloc   *allocator.Allocator
	entries *xsync.MapOf[int, *Descriptor]
}

// NewTable constructs an empty descriptor table over alloc.
func NewTable(alloc *allocator.Allocator) *Table {
	return &Table{alloc: alloc, entries: xsync.NewMapOf[int, *Descriptor]()}
}

// Open allocates a descriptor id bound to n with the given flags at
// position 0.
func (t *Table) Open(n *inode.Inode, flags OpenFlag) (int, *Descriptor, error) {
	id, err := t.alloc.Allocate()
	if err != nil {
		return 0, nil, err
	}
	d := &Descriptor{Inode: n, Flags: flags}
	t.entries.Store(id, d)
	return id, d, nil
}

// Lookup returns the descriptor bound to fd, if any.
func (t *Table) Lookup(fd int) (*Descriptor, bool) {
	return t.entries.Load(fd)
}

// Close removes fd from the table and frees its id, returning the
// descriptor that was closed.
func (t *Table) Close(fd int) (*Descriptor, bool) {
	d, ok := t.entries.LoadAndDelete(fd)
	if !ok {
		return nil, false
	}
	_ = t.alloc.Free(fd)
	return d, true
}

type rangeError string

func (e rangeError) Error() string { return string(e) }

// errRange reports an out-of-bounds offset/length pair. It is a programmer
// error rather than a filesystem condition, so it is deliberately not a
// syscall.Errno.
const errRange = rangeError("fd: offset/length out of buffer bounds")

// Read copies up to length bytes from the file at the effective position
// into buf[offset:], returning the number of bytes actually copied. A
// non-nil position reads there without moving the descriptor; a nil
// position reads at the descriptor position and advances it.
func (t *Table) Read(store *inode.Store, fd int, buf []byte, offset, length int, position *int64) (int, error) {
	d, ok := t.entries.Load(fd)
	if !ok {
		return 0, syscall.EBADF
	}
	if d.Flags.AccMode() == WRONLY {
		return 0, syscall.EBADF
	}
	if d.Inode.Kind == inode.KindDirectory {
		return 0, syscall.EISDIR
	}
	if position != nil && *position < 0 {
		return 0, syscall.EINVAL
	}
	if offset < 0 || length < 0 || offset+length > len(buf) {
		return 0, errRange
	}

	pos := d.Position
	if position != nil {
		pos = *position
	}

	n := d.Inode.File.ReadAt(buf[offset:offset+length], int(pos))
	store.TouchAtime(d.Inode)
	if position == nil {
		d.Position += int64(n)
	}
	return n, nil
}

// Write copies data into the file at the effective position. APPEND pins
// the effective position to the current file size and leaves the
// descriptor at the new end; a non-nil position writes there without
// moving the descriptor; a nil position writes at the descriptor position
// and advances it.
func (t *Table) Write(store *inode.Store, fd int, data []byte, position *int64) (int, error) {
	d, ok := t.entries.Load(fd)
	if !ok {
		return 0, syscall.EBADF
	}
	if d.Flags.AccMode() == RDONLY {
		return 0, syscall.EBADF
	}
	if position != nil && *position < 0 {
		return 0, syscall.EINVAL
	}

	var pos int64
	switch {
	case d.Flags.Has(APPEND):
		pos = int64(d.Inode.File.Len())
	case position != nil:
		pos = *position
	default:
		pos = d.Position
	}

	n, err := d.Inode.File.WriteAt(data, int(pos))
	if err != nil {
		return 0, syscall.ENOSPC
	}
	store.TouchMtime(d.Inode)

	switch {
	case d.Flags.Has(APPEND):
		d.Position = int64(d.Inode.File.Len())
	case position != nil:
		// explicit non-APPEND position: descriptor position unchanged
	default:
		d.Position += int64(n)
	}
	return n, nil
}
