package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// DefaultSubprocessTimeout bounds each host command.
	DefaultSubprocessTimeout = 2 * time.Second
	// DefaultMaxOutput caps captured stdout and stderr, each.
	DefaultMaxOutput = 1 << 20
)

// ErrForbiddenCommand is returned when asked to run a privilege helper.
var ErrForbiddenCommand = errors.New("refusing to execute privilege helper")

// Commands that would escalate privileges are never run, even by mistake.
var forbiddenCommands = map[string]bool{
	"su":       true,
	"daemonsu": true,
	"magisk":   true,
	"sudo":     true,
	"busybox":  true,
}

// Passed through to children; everything else is dropped.
var inheritedEnv = []string{"PATH", "ANDROID_ROOT", "ANDROID_DATA", "BOOTCLASSPATH", "ANDROID_RUNTIME_ROOT", "ANDROID_ART_ROOT"}

// CommandResult is the captured outcome of a finished command.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes short read-only host commands under a timeout. The child
// is killed when the timeout expires or ctx is cancelled.
type Runner struct {
	Timeout time.Duration
	// MaxOutput caps captured bytes per stream; zero means DefaultMaxOutput.
	MaxOutput int64

	// lookPath is swapped in tests.
	lookPath func(string) (string, error)
}

// NewRunner returns a runner with the given timeout, or the default when
// timeout is zero.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultSubprocessTimeout
	}
	return &Runner{Timeout: timeout}
}

// Run executes name with args. A non-zero exit status is not an error; it is
// reported in CommandResult.ExitCode. Errors mean the command could not be
// started, was killed, or the context ended.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	if forbiddenCommands[filepath.Base(name)] {
		return nil, fmt.Errorf("%w: %s", ErrForbiddenCommand, name)
	}
	lookPath := exec.LookPath
	if r.lookPath != nil {
		lookPath = r.lookPath
	}
	path, err := lookPath(name)
	if err != nil {
		return nil, fmt.Errorf("exec(%s): %w", name, err)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultSubprocessTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = childEnv()
	cmd.WaitDelay = 100 * time.Millisecond

	limit := int(r.MaxOutput)
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	stdout := &limitedBuffer{limit: limit}
	stderr := &limitedBuffer{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("exec(%s): %w", name, ctx.Err())
	}

	res := &CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("exec(%s): %w", name, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

func childEnv() []string {
	env := []string{}
	for _, k := range inheritedEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// limitedBuffer keeps the first limit bytes and drops the rest.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte { return b.buf.Bytes() }
