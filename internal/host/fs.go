package host

import (
	"context"
	"fmt"
	"io"
	"os"
)

// OSFileSystem reads the real filesystem.
type OSFileSystem struct{}

// Stat implements FileSystem.
func (OSFileSystem) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	return statPath(path)
}

// ReadFile implements FileSystem. At most limit bytes are returned when
// limit is positive.
func (OSFileSystem) ReadFile(ctx context.Context, path string, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// StaticFS serves files from memory, keyed by absolute path. Paths ending in
// "/" are directories.
type StaticFS map[string][]byte

func (s StaticFS) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	if b, ok := s[path]; ok {
		return FileInfo{Exists: true, Size: int64(len(b))}, nil
	}
	if _, ok := s[path+"/"]; ok {
		return FileInfo{Exists: true, IsDir: true}, nil
	}
	return FileInfo{}, nil
}

func (s StaticFS) ReadFile(ctx context.Context, path string, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := s[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	if limit > 0 && int64(len(b)) > limit {
		b = b[:limit]
	}
	return append([]byte(nil), b...), nil
}
