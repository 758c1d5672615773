// Package probe holds the concrete detect.Probe variants. Every probe reads
// host state through the host package primitives and never writes to or
// executes anything on the device.
package probe

import (
	"context"
	"errors"
	"strings"

	"github.com/rootsense/rootsense/internal/detect"
)

// maxEvidence caps the number of matches named in a single evidence string.
const maxEvidence = 8

// evidenceList joins matches for a report, eliding the tail of long lists.
func evidenceList(items []string) string {
	if len(items) <= maxEvidence {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:maxEvidence], ", ") + ", ..."
}

// finish turns a scan over several targets into a result: any match fires,
// otherwise any failure makes the probe indeterminate.
func finish(ctx context.Context, matches []string, errs error) detect.Result {
	if len(matches) > 0 {
		return detect.Detected(evidenceList(matches))
	}
	if err := ctx.Err(); err != nil {
		return detect.Unknown(err)
	}
	if errs != nil {
		return detect.Unknown(errs)
	}
	return detect.Clean()
}

var errNotConfigured = errors.New("probe not configured")
