//go:build !unix

package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

func statPath(path string) (FileInfo, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, nil
		}
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{Exists: true, IsDir: fi.IsDir(), Size: fi.Size()}, nil
}
