package native

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rootsense/rootsense/internal/host"
)

// Exec delegates the verdict to a helper binary. The helper writes
// {"rooted": true|false} to stdout.
//
// Exit codes:
//   - 0: success
//   - 1: partial failure, stdout is still parsed
//   - 2+: failure
//
// The helper runs with a scrubbed environment and is killed on timeout.
type Exec struct {
	Runner  *host.Runner
	Command string
	Args    []string
}

type execResponse struct {
	Rooted *bool  `json:"rooted"`
	Error  string `json:"error,omitempty"`
}

// Detect runs the helper and decodes its verdict.
func (e *Exec) Detect(ctx context.Context) (bool, error) {
	if e.Command == "" {
		return false, errors.New("exec: no command configured")
	}
	runner := e.Runner
	if runner == nil {
		runner = host.NewRunner(0)
	}
	res, err := runner.Run(ctx, e.Command, e.Args...)
	if err != nil {
		return false, err
	}
	if res.ExitCode >= 2 {
		return false, fmt.Errorf("exec(%s): exited %d: %s", e.Command, res.ExitCode, bytes.TrimSpace(res.Stderr))
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(res.Stdout), &resp); err != nil {
		return false, fmt.Errorf("exec(%s): parse output: %w", e.Command, err)
	}
	if resp.Rooted == nil {
		if resp.Error != "" {
			return false, fmt.Errorf("exec(%s): %s", e.Command, resp.Error)
		}
		return false, fmt.Errorf("exec(%s): response has no verdict", e.Command)
	}
	return *resp.Rooted, nil
}
