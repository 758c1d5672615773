package probe

import (
	"context"
	"errors"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/host"
)

// PackagePresence fires when any of IDs resolves in the package registry.
// Registries implementing host.PackageLister are queried once per run;
// otherwise each id is looked up in turn, and a lookup failure other than
// not-found is indeterminate unless another id matched.
type PackagePresence struct {
	Packages host.PackageRegistry
	IDs      []string
}

// Run implements detect.Probe.
func (p *PackagePresence) Run(ctx context.Context) detect.Result {
	if p.Packages == nil || len(p.IDs) == 0 {
		return detect.Unknown(errNotConfigured)
	}
	if lister, ok := p.Packages.(host.PackageLister); ok {
		installed, err := lister.InstalledPackages(ctx)
		if err != nil {
			return detect.Unknown(err)
		}
		var found []string
		for _, id := range p.IDs {
			if installed[id] {
				found = append(found, id)
			}
		}
		return finish(ctx, found, nil)
	}

	var found []string
	var errs error
	for _, id := range p.IDs {
		if ctx.Err() != nil {
			break
		}
		err := p.Packages.Lookup(ctx, id)
		switch {
		case err == nil:
			found = append(found, id)
		case errors.Is(err, host.ErrPackageNotFound):
		default:
			errs = errors.Join(errs, err)
		}
	}
	return finish(ctx, found, errs)
}
