package host

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultMountsPath is the kernel's mount table for the current process.
const DefaultMountsPath = "/proc/mounts"

// ProcMounts reads a /proc/mounts formatted file.
type ProcMounts struct {
	Path string
}

// Mounts implements MountTable.
func (p *ProcMounts) Mounts(ctx context.Context) ([]Mount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := p.Path
	if path == "" {
		path = DefaultMountsPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	return ParseMounts(data), nil
}

// ParseMounts parses mount-table text. Lines with fewer than four fields are
// ignored. Octal escapes in paths (\040 for space) are decoded.
func ParseMounts(data []byte) []Mount {
	var mounts []Mount
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		mounts = append(mounts, Mount{
			Device:     unescapeMountField(fields[0]),
			MountPoint: unescapeMountField(fields[1]),
			FSType:     fields[2],
			Options:    strings.Split(fields[3], ","),
		})
	}
	return mounts
}

func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			sb.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func isOctal(b byte) bool { return b >= '0' && b <= '7' }

// StaticMounts is a MountTable over fixed entries.
type StaticMounts []Mount

// Mounts implements MountTable.
func (s StaticMounts) Mounts(context.Context) ([]Mount, error) { return s, nil }
