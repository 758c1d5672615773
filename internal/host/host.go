// Package host is the read-only boundary between probes and the operating
// system: filesystem stat, package registry lookup, property reads, the
// mount table and the process list.
package host

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrPackageNotFound is returned by a PackageRegistry when the
	// identifier does not resolve. Any other error means the lookup failed.
	ErrPackageNotFound = errors.New("package not found")
	// ErrPropertyUnset is returned when a property has no value.
	ErrPropertyUnset = errors.New("property not set")
)

// FileInfo is the subset of stat data probes need.
type FileInfo struct {
	Exists bool
	IsDir  bool
	Size   int64
}

// FileSystem answers existence and size queries. A missing path is reported
// as FileInfo{Exists: false} with a nil error.
type FileSystem interface {
	Stat(ctx context.Context, path string) (FileInfo, error)
	ReadFile(ctx context.Context, path string, limit int64) ([]byte, error)
}

// PackageRegistry resolves installed package identifiers.
type PackageRegistry interface {
	Lookup(ctx context.Context, id string) error
}

// PackageLister is implemented by registries that can return the whole
// installed set in one query. Probes checking many ids prefer it.
type PackageLister interface {
	InstalledPackages(ctx context.Context) (map[string]bool, error)
}

// PropertyReader reads OS build and system properties.
type PropertyReader interface {
	Property(ctx context.Context, key string) (string, error)
}

// Mount is one entry of the mount table.
type Mount struct {
	Device     string
	MountPoint string
	FSType     string
	Options    []string
}

// ReadWrite reports whether the mount carries the rw option.
func (m Mount) ReadWrite() bool {
	for _, o := range m.Options {
		if o == "rw" {
			return true
		}
	}
	return false
}

// String renders the mount like a /proc/mounts line.
func (m Mount) String() string {
	return strings.Join([]string{m.Device, m.MountPoint, m.FSType, strings.Join(m.Options, ",")}, " ")
}

// MountTable lists mounted filesystems.
type MountTable interface {
	Mounts(ctx context.Context) ([]Mount, error)
}

// Process is one running process.
type Process struct {
	PID  int
	Name string
}

// ProcessLister enumerates running processes.
type ProcessLister interface {
	Processes(ctx context.Context) ([]Process, error)
}

// Host bundles the primitives probes consume.
type Host struct {
	FS         FileSystem
	Packages   PackageRegistry
	Properties PropertyReader
	MountTable MountTable
	Processes  ProcessLister
}

// Local returns the primitives of the machine the process runs on.
// Subprocess-backed primitives share runner.
func Local(runner *Runner) *Host {
	if runner == nil {
		runner = NewRunner(0)
	}
	return &Host{
		FS:       OSFileSystem{},
		Packages: &PMRegistry{Runner: runner},
		Properties: FallbackProperties{
			&GetpropReader{Runner: runner},
			&BuildPropReader{Paths: DefaultBuildPropPaths, FS: OSFileSystem{}},
		},
		MountTable: &ProcMounts{Path: DefaultMountsPath},
		Processes: FallbackProcesses{
			&ProcFSLister{Root: DefaultProcRoot},
			&PSLister{Runner: runner},
		},
	}
}
