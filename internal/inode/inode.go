// Package inode implements the inode store: allocation, hard-link reference
// counting, and the three inode variants (File, Directory, Symlink).
// Inodes are keyed by plain integer id rather than holding parent/child
// pointers directly on the object graph, so directory entries can
// reference ids without creating retain cycles.
package inode

import (
	"syscall"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/brettbedarf/memvfs/internal/allocator"
)

// Kind tags which of File, Directory, Symlink an Inode carries.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// permBits is the fixed permission component of every inode's Mode; the
// filesystem has no real permission model so this never varies.
const permBits = 0o777

func typeBits(kind Kind) uint32 {
	switch kind {
	case KindDirectory:
		return syscall.S_IFDIR
	case KindSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// Inode is the tagged union of File, Directory, and Symlink plus the
// metadata shared by all three. Exactly one of File, Dir, Symlink is
// non-nil, selected by Kind.
type Inode struct {
	Ino  int
	Kind Kind
	Mode uint32
	UID  uint32
	GID  uint32

	Nlink int
	// Opens counts live file descriptors referencing this inode. An
	// inode with Nlink == 0 is kept alive as long as Opens > 0.
	Opens int

	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	Birthtime time.Time

	File    *File
	Dir     *Directory
	Symlink *Symlink
}

// Size reports the variant-appropriate size: byte length for files, an
// implementation-defined nonzero constant for directories, and target
// string length for symlinks.
func (n *Inode) Size() int64 {
	switch n.Kind {
	case KindFile:
		return int64(n.File.Len())
	case KindDirectory:
		return dirPseudoSize
	case KindSymlink:
		return int64(len(n.Symlink.target))
	default:
		return 0
	}
}

// dirPseudoSize is the nonzero size reported for directories; the value
// itself has no semantic meaning beyond "not zero".
const dirPseudoSize = 4096

func (n *Inode) touchAtime(now time.Time) { n.Atime = now }

func (n *Inode) touchMtime(now time.Time) {
	n.Mtime = now
	n.Ctime = now
}

func (n *Inode) touchCtime(now time.Time) { n.Ctime = now }

// IsDestroyable reports whether no directory entry and no open descriptor
// references this inode, i.e. it is safe to deallocate.
func (n *Inode) IsDestroyable() bool {
	return n.Nlink <= 0 && n.Opens <= 0
}

// Store owns every live inode, keyed by id, and the allocator that hands
// out those ids.
type Store struct {
	ids   *xsync.MapOf[int, *Inode]
	alloc *allocator.Allocator
	now   func() time.Time
}

// NewStore constructs an empty Store. now is injectable for deterministic
// tests; production callers should pass time.Now. Timestamps carry
// millisecond resolution.
func NewStore(alloc *allocator.Allocator, now func() time.Time) *Store {
	return &Store{
		ids:   xsync.NewMapOf[int, *Inode](),
		alloc: alloc,
		now:   func() time.Time { return now().Truncate(time.Millisecond) },
	}
}

// CreateOpts parameterizes Create for the variant being constructed.
type CreateOpts struct {
	Kind Kind
	// Parent is used only for KindDirectory, to seed ".." ("." is seeded
	// with the new inode's own id).
	Parent int
	// Target is used only for KindSymlink.
	Target string
}

// Create allocates a fresh inode id, builds the requested variant with
// nlink seeded (1 for files and symlinks, 2 for directories), and
// registers it in the store.
func (s *Store) Create(opts CreateOpts) (*Inode, error) {
	id, err := s.alloc.Allocate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	n := &Inode{
		Ino:       id,
		Kind:      opts.Kind,
		Mode:      typeBits(opts.Kind) | permBits,
		Atime:     now,
		Mtime:     now,
		Ctime:     now,
		Birthtime: now,
	}

	switch opts.Kind {
	case KindFile:
		n.Nlink = 1
		n.File = &File{}
	case KindDirectory:
		n.Nlink = 2
		n.Dir = newDirectory(id, opts.Parent)
	case KindSymlink:
		n.Nlink = 1
		n.Symlink = &Symlink{target: opts.Target}
	}

	s.ids.Store(id, n)
	return n, nil
}

// Get looks up an inode by id.
func (s *Store) Get(id int) (*Inode, bool) {
	return s.ids.Load(id)
}

// Link increments an inode's link count (a new directory entry now refers
// to it).
func (s *Store) Link(id int) error {
	n, ok := s.ids.Load(id)
	if !ok {
		return errNoSuchInode
	}
	n.Nlink++
	n.touchCtime(s.now())
	return nil
}

// Unlink decrements an inode's link count, destroying (deallocating and
// removing) the inode once both Nlink and Opens reach zero.
func (s *Store) Unlink(id int) error {
	n, ok := s.ids.Load(id)
	if !ok {
		return errNoSuchInode
	}
	n.Nlink--
	n.touchCtime(s.now())
	s.destroyIfUnreferenced(n)
	return nil
}

// Opened records that a new file descriptor now references id.
func (s *Store) Opened(id int) error {
	n, ok := s.ids.Load(id)
	if !ok {
		return errNoSuchInode
	}
	n.Opens++
	return nil
}

// Closed records that a file descriptor referencing id was closed.
func (s *Store) Closed(id int) error {
	n, ok := s.ids.Load(id)
	if !ok {
		return errNoSuchInode
	}
	n.Opens--
	s.destroyIfUnreferenced(n)
	return nil
}

func (s *Store) destroyIfUnreferenced(n *Inode) {
	if !n.IsDestroyable() {
		return
	}
	s.ids.Delete(n.Ino)
	_ = s.alloc.Free(n.Ino)
}

// Now returns the store's injected clock, for use by callers that need to
// stamp metadata outside the store's own mutating methods (e.g. the FD
// layer bumping atime on read).
func (s *Store) Now() time.Time {
	return s.now()
}

// TouchAtime and TouchMtime let outside packages (resolver, fd) bump an
// inode's timestamps through the same clock the store uses, keeping all
// metadata mutation going through one time source.
func (s *Store) TouchAtime(n *Inode) { n.touchAtime(s.now()) }
func (s *Store) TouchMtime(n *Inode) { n.touchMtime(s.now()) }
func (s *Store) TouchCtime(n *Inode) { n.touchCtime(s.now()) }

type storeError string

func (e storeError) Error() string { return string(e) }

const errNoSuchInode = storeError("inode: no such inode")
