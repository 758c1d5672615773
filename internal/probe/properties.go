package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/host"
)

// DefaultBuildMarkers are the substrings that mark a non-release build.
var DefaultBuildMarkers = []string{"test-keys", "dev-keys", "debug"}

// BuildMetadata fires when the property Key contains one of Markers. An
// unset property is a clean result.
type BuildMetadata struct {
	Props   host.PropertyReader
	Key     string
	Markers []string
}

// Run implements detect.Probe.
func (p *BuildMetadata) Run(ctx context.Context) detect.Result {
	if p.Props == nil || p.Key == "" {
		return detect.Unknown(errNotConfigured)
	}
	v, err := p.Props.Property(ctx, p.Key)
	if errors.Is(err, host.ErrPropertyUnset) {
		return detect.Clean()
	}
	if err != nil {
		return detect.Unknown(err)
	}
	markers := p.Markers
	if len(markers) == 0 {
		markers = DefaultBuildMarkers
	}
	lower := strings.ToLower(v)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return detect.Detected(fmt.Sprintf("%s=%s", p.Key, v))
		}
	}
	return detect.Clean()
}

// PropertyCondition names a property and the values that are insecure on a
// production device.
type PropertyCondition struct {
	Key    string
	Values []string
}

// SystemProperty fires when any condition's property holds one of its
// insecure values.
type SystemProperty struct {
	Props      host.PropertyReader
	Conditions []PropertyCondition
}

// Run implements detect.Probe.
func (p *SystemProperty) Run(ctx context.Context) detect.Result {
	if p.Props == nil || len(p.Conditions) == 0 {
		return detect.Unknown(errNotConfigured)
	}
	var found []string
	var errs error
	for _, c := range p.Conditions {
		if ctx.Err() != nil {
			break
		}
		v, err := p.Props.Property(ctx, c.Key)
		if errors.Is(err, host.ErrPropertyUnset) {
			continue
		}
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		for _, bad := range c.Values {
			if v == bad {
				found = append(found, c.Key+"="+v)
				break
			}
		}
	}
	return finish(ctx, found, errs)
}
