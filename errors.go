package memvfs

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error is the shape every core operation failure takes: an operation name,
// the path(s) involved (e.g. rename carries two), and the POSIX errno.
type Error struct {
	Op    string
	Paths []string
	Errno syscall.Errno
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, strings.Join(e.Paths, ", "), e.Errno.Error())
}

// Code returns the POSIX symbolic error name (e.g. "ENOENT").
func (e *Error) Code() string {
	if name, ok := errnoNames[e.Errno]; ok {
		return name
	}
	return e.Errno.Error()
}

// Unwrap lets errors.Is(err, syscall.ENOENT) work against an *Error.
func (e *Error) Unwrap() error {
	return e.Errno
}

var errnoNames = map[syscall.Errno]string{
	syscall.ENOENT:    "ENOENT",
	syscall.EEXIST:    "EEXIST",
	syscall.EISDIR:    "EISDIR",
	syscall.ENOTDIR:   "ENOTDIR",
	syscall.ENOTEMPTY: "ENOTEMPTY",
	syscall.EBUSY:     "EBUSY",
	syscall.EPERM:     "EPERM",
	syscall.EINVAL:    "EINVAL",
	syscall.ELOOP:     "ELOOP",
	syscall.EBADF:     "EBADF",
	syscall.EACCES:    "EACCES",
	syscall.ENOSPC:    "ENOSPC",
}

func newErr(errno syscall.Errno, op string, paths ...string) *Error {
	return &Error{Op: op, Paths: paths, Errno: errno}
}

func errNoent(op string, paths ...string) error    { return newErr(syscall.ENOENT, op, paths...) }
func errExist(op string, paths ...string) error    { return newErr(syscall.EEXIST, op, paths...) }
func errIsDir(op string, paths ...string) error    { return newErr(syscall.EISDIR, op, paths...) }
func errNotDir(op string, paths ...string) error   { return newErr(syscall.ENOTDIR, op, paths...) }
func errNotEmpty(op string, paths ...string) error { return newErr(syscall.ENOTEMPTY, op, paths...) }
func errBusy(op string, paths ...string) error     { return newErr(syscall.EBUSY, op, paths...) }
func errPerm(op string, paths ...string) error     { return newErr(syscall.EPERM, op, paths...) }
func errInval(op string, paths ...string) error    { return newErr(syscall.EINVAL, op, paths...) }
func errLoop(op string, paths ...string) error     { return newErr(syscall.ELOOP, op, paths...) }
func errBadf(op string, paths ...string) error     { return newErr(syscall.EBADF, op, paths...) }
func errNoSpace(op string, paths ...string) error  { return newErr(syscall.ENOSPC, op, paths...) }

// wrapFDErr converts a syscall.Errno surfaced by the fd package into an
// *Error carrying op; any other error (e.g. the fd package's plain
// out-of-bounds range error) passes through unchanged — those are
// programmer errors, not filesystem conditions.
func wrapFDErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return newErr(errno, op)
	}
	return err
}
