//go:build unix

package host

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// statPath uses lstat so a planted symlink counts as present even when its
// target is hidden from us.
func statPath(path string) (FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
			return FileInfo{}, nil
		}
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{
		Exists: true,
		IsDir:  st.Mode&unix.S_IFMT == unix.S_IFDIR,
		Size:   st.Size,
	}, nil
}
