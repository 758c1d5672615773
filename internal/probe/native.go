package probe

import (
	"context"
	"fmt"

	"github.com/rootsense/rootsense/internal/detect"
)

// Verdict is a black-box compromise check. It reports true when the device
// is compromised.
type Verdict func(ctx context.Context) (bool, error)

// ExternalNative delegates to an opaque detector and fires when it answers
// true. Name identifies the detector in evidence.
type ExternalNative struct {
	Name    string
	Verdict Verdict
}

// Run implements detect.Probe.
func (p *ExternalNative) Run(ctx context.Context) detect.Result {
	if p.Verdict == nil {
		return detect.Unknown(errNotConfigured)
	}
	rooted, err := p.Verdict(ctx)
	if err != nil {
		return detect.Unknown(fmt.Errorf("%s: %w", p.name(), err))
	}
	if rooted {
		return detect.Detected(p.name() + " reported compromise")
	}
	return detect.Clean()
}

func (p *ExternalNative) name() string {
	if p.Name == "" {
		return "native detector"
	}
	return p.Name
}
