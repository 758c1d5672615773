package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/host"
	"github.com/rootsense/rootsense/internal/probe"
)

// BuildOptions controls how a catalog becomes a registry.
type BuildOptions struct {
	// Native answers native entries. Native entries are dropped when nil.
	Native probe.Verdict
	// NativeName labels the native verdict in evidence.
	NativeName string
	// Disabled lists entry ids to leave out. Unknown ids are an error.
	Disabled []string
	Logger   *slog.Logger
}

// Build compiles c into a registry whose probes read h.
func Build(c *Catalog, h *host.Host, opts BuildOptions) (*detect.Registry, error) {
	if c == nil || h == nil {
		return nil, fmt.Errorf("build registry: catalog and host are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ids := c.IDs()
	for _, id := range opts.Disabled {
		if !slices.Contains(ids, id) {
			return nil, fmt.Errorf("disabled probe %q is not in the catalog", id)
		}
	}

	var entries []detect.Entry
	for _, e := range c.Probes {
		if slices.Contains(opts.Disabled, e.ID) {
			logger.Debug("probe disabled", "probe", e.ID)
			continue
		}
		if e.Kind == KindNative && opts.Native == nil {
			logger.Debug("native detector not configured; skipping", "probe", e.ID)
			continue
		}
		p, err := compile(e, h, opts)
		if err != nil {
			return nil, err
		}
		timeout, err := e.timeout()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.ID, err)
		}
		entries = append(entries, detect.Entry{
			ID:          e.ID,
			Category:    detect.Category(e.Category),
			Description: e.Description,
			Probe:       p,
			Timeout:     timeout,
		})
	}
	return detect.NewRegistry(entries...)
}

func compile(e Entry, h *host.Host, opts BuildOptions) (detect.Probe, error) {
	switch e.Kind {
	case KindBinary:
		return &probe.BinaryPresence{FS: h.FS, Paths: e.Paths}, nil
	case KindHosts:
		return &probe.HostsFile{FS: h.FS, Paths: e.Paths, Threshold: e.SizeThreshold}, nil
	case KindPackage:
		return &probe.PackagePresence{Packages: h.Packages, IDs: e.Packages}, nil
	case KindBuild:
		return &probe.BuildMetadata{Props: h.Properties, Key: e.Key, Markers: e.Markers}, nil
	case KindProperty:
		conds := make([]probe.PropertyCondition, len(e.Properties))
		for i, p := range e.Properties {
			conds[i] = probe.PropertyCondition{Key: p.Key, Values: p.Values}
		}
		return &probe.SystemProperty{Props: h.Properties, Conditions: conds}, nil
	case KindMount:
		return &probe.MountState{Mounts: h.MountTable, MountPoints: e.MountPoints}, nil
	case KindProcess:
		p, err := probe.NewProcessState(h.Processes, e.Patterns)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.ID, err)
		}
		return p, nil
	case KindNative:
		return &probe.ExternalNative{Name: opts.NativeName, Verdict: opts.Native}, nil
	}
	return nil, fmt.Errorf("%s: unknown kind %q", e.ID, e.Kind)
}
