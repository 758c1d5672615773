package probe

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/host"
)

// MountState fires when one of MountPoints is mounted read-write.
type MountState struct {
	Mounts      host.MountTable
	MountPoints []string
}

// Run implements detect.Probe.
func (p *MountState) Run(ctx context.Context) detect.Result {
	if p.Mounts == nil || len(p.MountPoints) == 0 {
		return detect.Unknown(errNotConfigured)
	}
	mounts, err := p.Mounts.Mounts(ctx)
	if err != nil {
		return detect.Unknown(err)
	}
	want := make(map[string]bool, len(p.MountPoints))
	for _, mp := range p.MountPoints {
		want[mp] = true
	}
	var found []string
	for _, m := range mounts {
		if want[m.MountPoint] && m.ReadWrite() {
			found = append(found, m.String())
		}
	}
	return finish(ctx, found, nil)
}

// ProcessState fires when a running process name matches one of its glob
// patterns.
type ProcessState struct {
	Processes host.ProcessLister
	patterns  []glob.Glob
}

// NewProcessState compiles patterns for matching process names.
func NewProcessState(lister host.ProcessLister, patterns []string) (*ProcessState, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("process probe: no patterns")
	}
	p := &ProcessState{Processes: lister}
	for _, pat := range patterns {
		g, err := glob.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("process probe: pattern %q: %w", pat, err)
		}
		p.patterns = append(p.patterns, g)
	}
	return p, nil
}

// Run implements detect.Probe.
func (p *ProcessState) Run(ctx context.Context) detect.Result {
	if p.Processes == nil || len(p.patterns) == 0 {
		return detect.Unknown(errNotConfigured)
	}
	procs, err := p.Processes.Processes(ctx)
	if err != nil {
		return detect.Unknown(err)
	}
	var found []string
	for _, proc := range procs {
		for _, g := range p.patterns {
			if g.Match(proc.Name) {
				found = append(found, fmt.Sprintf("%s[%d]", proc.Name, proc.PID))
				break
			}
		}
	}
	return finish(ctx, found, nil)
}
