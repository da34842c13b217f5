// Package fuseserver adapts a *memvfs.FS to the low-level FUSE wire
// protocol via hanwen/go-fuse.
//
// memvfs's public surface is path-addressed; FUSE addresses nodes by a
// uint64 NodeId. FuseRaw bridges the two with a small path registry keyed
// by memvfs inode number, incremented on Lookup and decremented on
// Forget per the kernel's nLookup accounting.
package fuseserver

import (
	"path"
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/memvfs"
	"github.com/brettbedarf/memvfs/internal/util"
)

// FuseRaw implements the low-level FUSE wire protocol over a *memvfs.FS.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs     *memvfs.FS
	server *fuse.Server
	log    util.Logger

	mu       sync.Mutex
	paths    map[uint64]string // ino -> absolute path
	nLookups map[uint64]uint64
}

// NewFuseRaw builds a FuseRaw serving fs.
func NewFuseRaw(fs *memvfs.FS) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		log:           util.GetLogger("fuseserver"),
		paths:         map[uint64]string{fuse.FUSE_ROOT_ID: "/"},
		nLookups:      map[uint64]uint64{fuse.FUSE_ROOT_ID: 1},
	}
}

func (r *FuseRaw) Init(s *fuse.Server) {
	r.log.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	r.log.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string { return "memvfs" }

func (r *FuseRaw) SetDebug(debug bool) {}

// Access reports OK for every request; memvfs has no real permission
// model (every inode carries mode 0o777).
func (r *FuseRaw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) pathOf(nodeID uint64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paths[nodeID]
}

func (r *FuseRaw) remember(ino uint64, p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[ino] = p
	r.nLookups[ino]++
}

func errnoToStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	if mErr, ok := err.(*memvfs.Error); ok {
		return fuse.Status(mErr.Errno)
	}
	return fuse.EIO
}

func fillAttr(info memvfs.FileInfo, attr *fuse.Attr) {
	attr.Ino = uint64(info.Ino())
	attr.Size = uint64(info.Size())
	attr.Mode = info.Mode()
	attr.Nlink = uint32(info.Nlink())
	atime, mtime, ctime := info.AccessTime(), info.ModTime(), info.ChangeTime()
	attr.SetTimes(&atime, &mtime, &ctime)
}

func unixTime(sec uint64, nsec uint32) time.Time {
	return time.Unix(int64(sec), int64(nsec))
}

// Lookup resolves name within the directory identified by header.NodeId
// and reports its attributes.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent := r.pathOf(header.NodeId)
	child := path.Join(parent, name)

	info, err := r.fs.Lstat(child)
	if err != nil {
		return errnoToStatus(err)
	}
	ino := uint64(info.Ino())
	out.NodeId = ino
	fillAttr(info, &out.Attr)
	out.SetAttrTimeout(1)
	out.SetEntryTimeout(1)
	r.remember(ino, child)
	return fuse.OK
}

func (r *FuseRaw) Forget(nodeid, nlookup uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nLookups[nodeid] <= nlookup {
		delete(r.nLookups, nodeid)
		delete(r.paths, nodeid)
		return
	}
	r.nLookups[nodeid] -= nlookup
}

// GetAttr reports the attributes for the node addressed by input.NodeId.
func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	info, err := r.fs.Lstat(r.pathOf(input.NodeId))
	if err != nil {
		return errnoToStatus(err)
	}
	fillAttr(info, &out.Attr)
	return fuse.OK
}

func (r *FuseRaw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	p := r.pathOf(input.NodeId)
	if input.Valid&fuse.FATTR_SIZE != 0 {
		if err := r.fs.Truncate(p, int64(input.Size)); err != nil {
			return errnoToStatus(err)
		}
	}
	if input.Valid&(fuse.FATTR_ATIME|fuse.FATTR_MTIME) != 0 {
		info, err := r.fs.Lstat(p)
		if err != nil {
			return errnoToStatus(err)
		}
		atime, mtime := info.AccessTime(), info.ModTime()
		if input.Valid&fuse.FATTR_ATIME != 0 {
			atime = unixTime(input.Atime, input.Atimensec)
		}
		if input.Valid&fuse.FATTR_MTIME != 0 {
			mtime = unixTime(input.Mtime, input.Mtimensec)
		}
		if err := r.fs.Utimes(p, atime, mtime); err != nil {
			return errnoToStatus(err)
		}
	}
	if input.Valid&fuse.FATTR_MODE != 0 {
		_ = r.fs.Chmod(p, input.Mode)
	}
	if input.Valid&(fuse.FATTR_UID|fuse.FATTR_GID) != 0 {
		_ = r.fs.Chown(p, input.Uid, input.Gid)
	}
	info, err := r.fs.Lstat(p)
	if err != nil {
		return errnoToStatus(err)
	}
	fillAttr(info, &out.Attr)
	return fuse.OK
}

func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	p := path.Join(r.pathOf(input.NodeId), name)
	if err := r.fs.Mkdir(p, input.Mode); err != nil {
		return errnoToStatus(err)
	}
	info, err := r.fs.Lstat(p)
	if err != nil {
		return errnoToStatus(err)
	}
	out.NodeId = uint64(info.Ino())
	fillAttr(info, &out.Attr)
	r.remember(out.NodeId, p)
	return fuse.OK
}

func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return errnoToStatus(r.fs.Rmdir(path.Join(r.pathOf(header.NodeId), name)))
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return errnoToStatus(r.fs.Unlink(path.Join(r.pathOf(header.NodeId), name)))
}

func (r *FuseRaw) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName, newName string) fuse.Status {
	oldPath := path.Join(r.pathOf(input.NodeId), oldName)
	newPath := path.Join(r.pathOf(input.Newdir), newName)
	return errnoToStatus(r.fs.Rename(oldPath, newPath))
}

func (r *FuseRaw) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo, linkName string, out *fuse.EntryOut) fuse.Status {
	p := path.Join(r.pathOf(header.NodeId), linkName)
	if err := r.fs.Symlink(pointedTo, p); err != nil {
		return errnoToStatus(err)
	}
	info, err := r.fs.Lstat(p)
	if err != nil {
		return errnoToStatus(err)
	}
	out.NodeId = uint64(info.Ino())
	fillAttr(info, &out.Attr)
	r.remember(out.NodeId, p)
	return fuse.OK
}

func (r *FuseRaw) Readlink(cancel <-chan struct{}, header *fuse.InHeader) (out []byte, code fuse.Status) {
	target, err := r.fs.Readlink(r.pathOf(header.NodeId))
	if err != nil {
		return nil, errnoToStatus(err)
	}
	return []byte(target), fuse.OK
}

func (r *FuseRaw) Link(cancel <-chan struct{}, input *fuse.LinkIn, filename string, out *fuse.EntryOut) fuse.Status {
	oldPath := r.pathOf(input.Oldnodeid)
	newPath := path.Join(r.pathOf(input.NodeId), filename)
	if err := r.fs.Link(oldPath, newPath); err != nil {
		return errnoToStatus(err)
	}
	info, err := r.fs.Lstat(newPath)
	if err != nil {
		return errnoToStatus(err)
	}
	out.NodeId = uint64(info.Ino())
	fillAttr(info, &out.Attr)
	r.remember(out.NodeId, newPath)
	return fuse.OK
}

func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	fdNum, err := r.fs.Open(r.pathOf(input.NodeId), memvfs.OpenFlag(input.Flags&0x3))
	if err != nil {
		return errnoToStatus(err)
	}
	out.Fh = uint64(fdNum)
	return fuse.OK
}

func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	p := path.Join(r.pathOf(input.NodeId), name)
	flags := memvfs.OpenFlag(input.Flags&0x3) | memvfs.CREAT
	fdNum, err := r.fs.Open(p, flags)
	if err != nil {
		return errnoToStatus(err)
	}
	info, err := r.fs.Lstat(p)
	if err != nil {
		return errnoToStatus(err)
	}
	out.NodeId = uint64(info.Ino())
	fillAttr(info, &out.Attr)
	out.Fh = uint64(fdNum)
	r.remember(out.NodeId, p)
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	pos := int64(input.Offset)
	n, err := r.fs.Read(int(input.Fh), buf, 0, len(buf), &pos)
	if err != nil {
		return nil, errnoToStatus(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	pos := int64(input.Offset)
	n, err := r.fs.Write(int(input.Fh), data, &pos)
	if err != nil {
		return 0, errnoToStatus(err)
	}
	return uint32(n), fuse.OK
}

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	_ = r.fs.CloseFD(int(input.Fh))
}

func (r *FuseRaw) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return errnoToStatus(r.fs.Fsync(int(input.Fh)))
}

func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	dirPath := r.pathOf(input.NodeId)
	entries, err := r.fs.Readdir(dirPath)
	if err != nil {
		return errnoToStatus(err)
	}

	for _, name := range r.withDotEntries(entries, int(input.Offset)) {
		childPath := r.childPathFor(dirPath, name)
		info, err := r.fs.Lstat(childPath)
		if err != nil {
			continue
		}
		entry := fuse.DirEntry{Name: name, Mode: info.Mode(), Ino: uint64(info.Ino())}
		if !out.AddDirEntry(entry) {
			return fuse.OK
		}
	}
	return fuse.OK
}

func (r *FuseRaw) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	dirPath := r.pathOf(input.NodeId)
	entries, err := r.fs.Readdir(dirPath)
	if err != nil {
		return errnoToStatus(err)
	}

	for _, name := range r.withDotEntries(entries, int(input.Offset)) {
		childPath := r.childPathFor(dirPath, name)
		info, err := r.fs.Lstat(childPath)
		if err != nil {
			continue
		}
		entry := fuse.DirEntry{Name: name, Mode: info.Mode(), Ino: uint64(info.Ino())}
		eOut := out.AddDirLookupEntry(entry)
		if eOut == nil {
			return fuse.OK
		}
		fillAttr(info, &eOut.Attr)
		r.remember(entry.Ino, childPath)
	}
	return fuse.OK
}

// withDotEntries prepends "." and ".." to entries and slices from offset,
// matching the convention every ReadDir/ReadDirPlus implementation in the
// pack follows (dotDotEntries + real entries, sliced by the kernel-supplied
// offset).
func (r *FuseRaw) withDotEntries(entries []string, offset int) []string {
	all := append([]string{".", ".."}, entries...)
	if offset >= len(all) {
		return nil
	}
	return all[offset:]
}

func (r *FuseRaw) childPathFor(dirPath, name string) string {
	switch name {
	case ".":
		return dirPath
	case "..":
		return path.Dir(dirPath)
	default:
		return path.Join(dirPath, name)
	}
}
