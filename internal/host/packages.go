package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// PMRegistry resolves Android package ids with `pm path`, which exits zero
// and prints "package:<apk>" for installed packages. InstalledPackages runs
// `pm list packages` once instead.
type PMRegistry struct {
	Runner  *Runner
	Command string
}

// Lookup implements PackageRegistry.
func (p *PMRegistry) Lookup(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("empty package id")
	}
	res, err := p.Runner.Run(ctx, p.command(), "path", id)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", id, err)
	}
	out := bytes.TrimSpace(res.Stdout)
	switch {
	case res.ExitCode == 0 && bytes.HasPrefix(out, []byte("package:")):
		return nil
	case res.ExitCode == 0 && len(out) == 0, res.ExitCode == 1 && len(bytes.TrimSpace(res.Stderr)) == 0:
		return ErrPackageNotFound
	default:
		return fmt.Errorf("lookup %s: pm exited %d: %s", id, res.ExitCode, bytes.TrimSpace(res.Stderr))
	}
}

// InstalledPackages implements PackageLister.
func (p *PMRegistry) InstalledPackages(ctx context.Context) (map[string]bool, error) {
	res, err := p.Runner.Run(ctx, p.command(), "list", "packages")
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("list packages: pm exited %d: %s", res.ExitCode, bytes.TrimSpace(res.Stderr))
	}
	return parsePackageList(res.Stdout), nil
}

func (p *PMRegistry) command() string {
	if p.Command == "" {
		return "pm"
	}
	return p.Command
}

// parsePackageList reads "package:<id>" lines. Lines in other shapes are
// skipped.
func parsePackageList(out []byte) map[string]bool {
	installed := make(map[string]bool)
	for _, line := range bytes.Split(out, []byte("\n")) {
		id, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("package:"))
		if !ok || len(id) == 0 {
			continue
		}
		installed[string(id)] = true
	}
	return installed
}

// StaticPackages is a PackageRegistry over a fixed set, used when the host
// application already holds the installed-package list.
type StaticPackages map[string]bool

// Lookup implements PackageRegistry.
func (s StaticPackages) Lookup(_ context.Context, id string) error {
	if s[id] {
		return nil
	}
	return ErrPackageNotFound
}

// InstalledPackages implements PackageLister.
func (s StaticPackages) InstalledPackages(context.Context) (map[string]bool, error) {
	installed := make(map[string]bool, len(s))
	for id, ok := range s {
		if ok {
			installed[id] = true
		}
	}
	return installed, nil
}
