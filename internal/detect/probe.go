package detect

import "context"

// Probe inspects one piece of host state. Implementations must be read-only,
// honour ctx cancellation, and report failures as an Indeterminate result
// instead of returning them.
type Probe interface {
	Run(ctx context.Context) Result
}

// ProbeFunc adapts a plain function to the Probe interface.
type ProbeFunc func(ctx context.Context) Result

// Run calls f(ctx).
func (f ProbeFunc) Run(ctx context.Context) Result { return f(ctx) }
