// Package native provides the black-box verdicts behind the external_native
// probe: an in-process artifact scan and a delegate that asks a helper
// binary.
package native

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/rootsense/rootsense/internal/host"
)

// Paths the in-process scan treats as compromise artifacts.
var (
	DefaultArtifacts = []string{
		"/sbin/magisk",
		"/init.magisk.rc",
		"/dev/.magisk_unblock",
		"/cache/magisk.log",
		"/metadata/magisk",
		"/system/bin/resetprop",
		"/system/xbin/resetprop",
		"/sbin/resetprop",
		"/data/local/tmp/resetprop",
		"/apex/com.kernelsu",
		"/data/ksu/modules.img",
		"/system/framework/XposedBridge.jar",
	}
	DefaultMountMarkers = []string{"*/dev/magisk*", "*magisk.img*", "*/sbin/.magisk*"}
	DefaultMapMarkers   = []string{"*magisk*", "*zygisk*", "*lsposed*", "*/data/adb/*.so*", "*/libsu.so*", "*frida*"}
)

const (
	defaultSelfMounts = "/proc/self/mounts"
	defaultSelfMaps   = "/proc/self/maps"
	maxProcRead       = 4 << 20
)

// Builtin scans for root-manager and instrumentation traces without spawning
// anything. It checks artifact files, mounts visible to this process and
// libraries mapped into its own address space.
type Builtin struct {
	FS         host.FileSystem
	Artifacts  []string
	MountsPath string
	MapsPath   string

	mountMarkers []glob.Glob
	mapMarkers   []glob.Glob
}

// NewBuiltin returns a scanner over fs using the default artifact lists.
func NewBuiltin(fs host.FileSystem) (*Builtin, error) {
	return NewBuiltinWith(fs, DefaultArtifacts, DefaultMountMarkers, DefaultMapMarkers)
}

// NewBuiltinWith returns a scanner with explicit artifact paths and glob
// markers for mount-table and memory-map lines.
func NewBuiltinWith(fs host.FileSystem, artifacts, mountMarkers, mapMarkers []string) (*Builtin, error) {
	if fs == nil {
		fs = host.OSFileSystem{}
	}
	b := &Builtin{
		FS:         fs,
		Artifacts:  artifacts,
		MountsPath: defaultSelfMounts,
		MapsPath:   defaultSelfMaps,
	}
	var err error
	if b.mountMarkers, err = compileAll(mountMarkers); err != nil {
		return nil, fmt.Errorf("mount markers: %w", err)
	}
	if b.mapMarkers, err = compileAll(mapMarkers); err != nil {
		return nil, fmt.Errorf("map markers: %w", err)
	}
	return b, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Detect reports whether any trace was found.
func (b *Builtin) Detect(ctx context.Context) (bool, error) {
	findings, err := b.Findings(ctx)
	if len(findings) > 0 {
		return true, nil
	}
	return false, err
}

// Findings returns every trace found. The error joins the checks that could
// not run; it is non-nil only alongside an incomplete scan.
func (b *Builtin) Findings(ctx context.Context) ([]string, error) {
	var findings []string
	var errs error

	for _, path := range b.Artifacts {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		fi, err := b.FS.Stat(ctx, path)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if fi.Exists {
			findings = append(findings, path)
		}
	}

	for _, scan := range []struct {
		path    string
		markers []glob.Glob
	}{
		{b.MountsPath, b.mountMarkers},
		{b.MapsPath, b.mapMarkers},
	} {
		if scan.path == "" || len(scan.markers) == 0 {
			continue
		}
		hits, err := b.scanLines(ctx, scan.path, scan.markers)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		findings = append(findings, hits...)
	}
	return findings, errs
}

func (b *Builtin) scanLines(ctx context.Context, path string, markers []glob.Glob) ([]string, error) {
	data, err := b.FS.ReadFile(ctx, path, maxProcRead)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	var hits []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		for _, g := range markers {
			if g.Match(line) {
				if !seen[line] {
					seen[line] = true
					hits = append(hits, path+": "+line)
				}
				break
			}
		}
	}
	return hits, nil
}
