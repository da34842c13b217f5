package memvfs

import (
	"time"

	"github.com/brettbedarf/memvfs/internal/inode"
)

// FileInfo describes one inode's metadata, as returned by Stat, Lstat, and
// Fstat.
type FileInfo interface {
	Name() string
	Ino() int
	Size() int64
	Mode() uint32
	Nlink() int
	IsDir() bool
	IsFile() bool
	IsSymlink() bool
	ModTime() time.Time
	AccessTime() time.Time
	ChangeTime() time.Time
	BirthTime() time.Time
}

type fileInfo struct {
	name string
	n    *inode.Inode
}

func (fi *fileInfo) Name() string          { return fi.name }
func (fi *fileInfo) Ino() int              { return fi.n.Ino }
func (fi *fileInfo) Size() int64           { return fi.n.Size() }
func (fi *fileInfo) Mode() uint32          { return fi.n.Mode }
func (fi *fileInfo) Nlink() int            { return fi.n.Nlink }
func (fi *fileInfo) IsDir() bool           { return fi.n.Kind == inode.KindDirectory }
func (fi *fileInfo) IsFile() bool          { return fi.n.Kind == inode.KindFile }
func (fi *fileInfo) IsSymlink() bool       { return fi.n.Kind == inode.KindSymlink }
func (fi *fileInfo) ModTime() time.Time    { return fi.n.Mtime }
func (fi *fileInfo) AccessTime() time.Time { return fi.n.Atime }
func (fi *fileInfo) ChangeTime() time.Time { return fi.n.Ctime }
func (fi *fileInfo) BirthTime() time.Time  { return fi.n.Birthtime }
