package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/host"
)

// DefaultHostsSizeThreshold is the hosts-file size above which an ad-block or
// root tool is assumed to have rewritten it.
const DefaultHostsSizeThreshold = 2048

// BinaryPresence fires when any of Paths exists.
type BinaryPresence struct {
	FS    host.FileSystem
	Paths []string
}

// Run implements detect.Probe.
func (p *BinaryPresence) Run(ctx context.Context) detect.Result {
	if p.FS == nil || len(p.Paths) == 0 {
		return detect.Unknown(errNotConfigured)
	}
	var found []string
	var errs error
	for _, path := range p.Paths {
		if ctx.Err() != nil {
			break
		}
		fi, err := p.FS.Stat(ctx, path)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if fi.Exists {
			found = append(found, path)
		}
	}
	return finish(ctx, found, errs)
}

// HostsFile fires when a hosts file exists and is larger than Threshold
// bytes.
type HostsFile struct {
	FS        host.FileSystem
	Paths     []string
	Threshold int64
}

// Run implements detect.Probe.
func (p *HostsFile) Run(ctx context.Context) detect.Result {
	if p.FS == nil || len(p.Paths) == 0 {
		return detect.Unknown(errNotConfigured)
	}
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultHostsSizeThreshold
	}
	var found []string
	var errs error
	for _, path := range p.Paths {
		if ctx.Err() != nil {
			break
		}
		fi, err := p.FS.Stat(ctx, path)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if fi.Exists && !fi.IsDir && fi.Size > threshold {
			found = append(found, fmt.Sprintf("%s (%d bytes)", path, fi.Size))
		}
	}
	return finish(ctx, found, errs)
}
