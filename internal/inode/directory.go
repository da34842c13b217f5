package inode

import "github.com/puzpuzpuz/xsync/v3"

// Directory is the directory inode variant: an ordered name→ino mapping.
// The index gives O(1) lookup; names keeps insertion order for readdir,
// which a plain map cannot provide. "." and ".." live only in the index,
// never in names, so readdir (which walks names) never surfaces them.
type Directory struct {
	names []string
	index *xsync.MapOf[string, int]
}

func newDirectory(self, parent int) *Directory {
	d := &Directory{index: xsync.NewMapOf[string, int]()}
	d.index.Store(".", self)
	d.index.Store("..", parent)
	return d
}

// Get returns the inode id bound to name, including "." and "..".
func (d *Directory) Get(name string) (int, bool) {
	return d.index.Load(name)
}

// Add binds name to id, appending it to readdir order. Callers are
// responsible for bumping the target inode's Nlink.
func (d *Directory) Add(name string, id int) {
	d.index.Store(name, id)
	d.names = append(d.names, name)
}

// Remove unbinds name. Callers are responsible for decrementing the
// previously-bound target inode's Nlink.
func (d *Directory) Remove(name string) {
	d.index.Delete(name)
	d.removeFromOrder(name)
}

// Rename moves the binding at oldName to newName, preserving position in
// readdir order.
func (d *Directory) Rename(oldName, newName string) {
	id, _ := d.index.Load(oldName)
	d.index.Delete(oldName)
	d.index.Store(newName, id)
	for i, n := range d.names {
		if n == oldName {
			d.names[i] = newName
			return
		}
	}
}

func (d *Directory) removeFromOrder(name string) {
	for i, n := range d.names {
		if n == name {
			d.names = append(d.names[:i], d.names[i+1:]...)
			return
		}
	}
}

// Entries returns the non-special entry names in insertion order.
func (d *Directory) Entries() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Len reports the number of non-special entries (i.e. excluding "." and
// "..").
func (d *Directory) Len() int {
	return len(d.names)
}

// SetParent rebinds "..", used when a directory is moved to a new parent
// via rename.
func (d *Directory) SetParent(parent int) {
	d.index.Store("..", parent)
}
