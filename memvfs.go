package memvfs

import "github.com/brettbedarf/memvfs/internal/fd"

// Re-export the open-flag vocabulary at the package root so callers never
// need to import internal/fd directly.
type OpenFlag = fd.OpenFlag

const (
	RDONLY = fd.RDONLY
	WRONLY = fd.WRONLY
	RDWR   = fd.RDWR

	APPEND    = fd.APPEND
	CREAT     = fd.CREAT
	EXCL      = fd.EXCL
	TRUNC     = fd.TRUNC
	NOFOLLOW  = fd.NOFOLLOW
	DIRECTORY = fd.DIRECTORY
)

// ParseMode translates a short open-mode string ("r", "w", "a+", ...) into
// an OpenFlag bitset.
func ParseMode(mode string) (OpenFlag, error) {
	return fd.ParseMode(mode)
}
