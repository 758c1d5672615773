package host

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultProcRoot is where procfs is mounted.
const DefaultProcRoot = "/proc"

// ProcFSLister enumerates processes from procfs.
type ProcFSLister struct {
	Root string
}

// Processes implements ProcessLister. Processes that exit while being read
// are skipped.
func (p *ProcFSLister) Processes(ctx context.Context) ([]Process, error) {
	root := p.Root
	if root == "" {
		root = DefaultProcRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var procs []Process
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		name := readComm(filepath.Join(root, e.Name()))
		if name == "" {
			continue
		}
		procs = append(procs, Process{PID: pid, Name: name})
	}
	if len(procs) == 0 {
		return nil, errors.New("list processes: no readable entries")
	}
	return procs, nil
}

func readComm(dir string) string {
	if b, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
		if name := strings.TrimSpace(string(b)); name != "" {
			return name
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil || len(b) == 0 {
		return ""
	}
	argv0, _, _ := bytes.Cut(b, []byte{0})
	return filepath.Base(string(argv0))
}

// PSLister enumerates processes with ps. It understands both the toybox
// layout (USER PID ... NAME) and the procps one (PID TTY TIME CMD).
type PSLister struct {
	Runner  *Runner
	Command string
}

// Processes implements ProcessLister.
func (p *PSLister) Processes(ctx context.Context) ([]Process, error) {
	command := p.Command
	if command == "" {
		command = "ps"
	}
	res, err := p.Runner.Run(ctx, command, "-A")
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("list processes: ps exited %d", res.ExitCode)
	}
	procs := ParsePS(res.Stdout)
	if len(procs) == 0 {
		return nil, errors.New("list processes: empty ps output")
	}
	return procs, nil
}

// ParsePS parses ps output. The header line and lines without a numeric pid
// column are skipped.
func ParsePS(data []byte) []Process {
	var procs []Process
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		pid := -1
		for _, f := range fields[:2] {
			if n, err := strconv.Atoi(f); err == nil {
				pid = n
				break
			}
		}
		if pid < 0 {
			continue
		}
		procs = append(procs, Process{PID: pid, Name: filepath.Base(fields[len(fields)-1])})
	}
	return procs
}

// FallbackProcesses tries each lister until one succeeds.
type FallbackProcesses []ProcessLister

// Processes implements ProcessLister.
func (f FallbackProcesses) Processes(ctx context.Context) ([]Process, error) {
	var errs error
	for _, l := range f {
		procs, err := l.Processes(ctx)
		if err == nil {
			return procs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = errors.Join(errs, err)
	}
	if errs == nil {
		errs = errors.New("no process listers configured")
	}
	return nil, errs
}

// StaticProcesses is a ProcessLister over a fixed list.
type StaticProcesses []Process

// Processes implements ProcessLister.
func (s StaticProcesses) Processes(context.Context) ([]Process, error) { return s, nil }
