// Package resolver walks a path string against an inode.Store, producing
// the directory under which resolution stopped, the resolved inode (if
// any), the final segment name, and any unconsumed path suffix.
//
// Resolution handles one component at a time; hitting a symlink rewrites
// the remaining path with the link's target. Loop detection uses a set of
// currently-active symlink inode ids rather than a depth counter, so
// cycles of any length are caught, not just deep chains.
package resolver

import (
	"strings"
	"syscall"

	"github.com/brettbedarf/memvfs/internal/inode"
)

// Result is the resolver four-tuple. Target is nil when the final
// component does not exist; Name is empty when an intermediate component
// is missing or traversal hit a non-directory with more path remaining.
type Result struct {
	Dir       *inode.Inode
	Target    *inode.Inode
	Name      string
	Remaining string

	// Blocked is true when resolution stopped because a path component
	// that still had remaining suffix was a non-directory (a file). This
	// disambiguates that case from a merely-missing intermediate
	// component: both produce Target == nil, Name == "" and a nonempty
	// Remaining, but the first is ENOTDIR and the second is ENOENT.
	Blocked bool
}

// Navigate resolves path starting from root. resolveLastLink selects
// whether a symlink as the final path component is followed (true) or
// returned unresolved (false).
func Navigate(root *inode.Inode, store *inode.Store, path string, resolveLastLink bool) (Result, error) {
	return NavigateFrom(root, root, store, path, resolveLastLink)
}

// NavigateFrom resolves path starting from dir instead of root; absolute
// paths and absolute symlink targets encountered along the way still
// restart from root. This is the resolver's internal variant used by
// callers that already hold a starting directory (e.g. a future relative-
// path API).
func NavigateFrom(root, dir *inode.Inode, store *inode.Store, path string, resolveLastLink bool) (Result, error) {
	if path == "" {
		return Result{}, syscall.ENOENT
	}
	if strings.HasPrefix(path, "/") {
		dir = root
	}
	canon := Canonicalize(path)
	return walk(root, dir, store, canon, resolveLastLink, map[int]struct{}{})
}

func walk(root, dir *inode.Inode, store *inode.Store, path string, resolveLastLink bool, active map[int]struct{}) (Result, error) {
	if path == "" {
		return Result{Dir: dir, Target: dir, Name: ".", Remaining: ""}, nil
	}

	segment, rest := SplitFirst(path)

	id, ok := dir.Dir.Get(segment)
	if !ok {
		if rest == "" {
			return Result{Dir: dir, Target: nil, Name: segment, Remaining: ""}, nil
		}
		return Result{Dir: dir, Target: nil, Name: "", Remaining: rest}, nil
	}

	target, ok := store.Get(id)
	if !ok {
		// Directory entry points at a destroyed inode; treat as missing.
		if rest == "" {
			return Result{Dir: dir, Target: nil, Name: segment, Remaining: ""}, nil
		}
		return Result{Dir: dir, Target: nil, Name: "", Remaining: rest}, nil
	}

	switch target.Kind {
	case inode.KindDirectory:
		if rest == "" {
			return Result{Dir: dir, Target: target, Name: segment, Remaining: ""}, nil
		}
		return walk(root, target, store, rest, resolveLastLink, active)

	case inode.KindSymlink:
		isLast := rest == ""
		if isLast && !resolveLastLink {
			return Result{Dir: dir, Target: target, Name: segment, Remaining: ""}, nil
		}
		if _, seen := active[target.Ino]; seen {
			return Result{}, syscall.ELOOP
		}
		active[target.Ino] = struct{}{}
		defer delete(active, target.Ino)

		joined := joinRemaining(target.Symlink.Target(), rest)
		if strings.HasPrefix(joined, "/") {
			return walk(root, root, store, stripLeadingSlashes(joined), resolveLastLink, active)
		}
		return walk(root, dir, store, joined, resolveLastLink, active)

	default: // KindFile
		if rest == "" {
			return Result{Dir: dir, Target: target, Name: segment, Remaining: ""}, nil
		}
		return Result{Dir: dir, Target: nil, Name: "", Remaining: rest, Blocked: true}, nil
	}
}

// Canonicalize strips at most one leading "./" or "../" and then the
// leading run of "/" characters. It does not simplify ".." elsewhere in
// the path; those traverse a real ".." directory entry.
func Canonicalize(path string) string {
	switch {
	case strings.HasPrefix(path, "./"):
		path = path[2:]
	case strings.HasPrefix(path, "../"):
		path = path[3:]
	}
	return stripLeadingSlashes(path)
}

func stripLeadingSlashes(path string) string {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	return path[i:]
}

// SplitFirst extracts the first path segment and returns the remainder with
// any run of "/" separating them collapsed away.
func SplitFirst(path string) (segment, rest string) {
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return path, ""
	}
	segment = path[:idx]
	j := idx
	for j < len(path) && path[j] == '/' {
		j++
	}
	return segment, path[j:]
}

func joinRemaining(target, rest string) string {
	if rest == "" {
		return target
	}
	return target + "/" + rest
}
