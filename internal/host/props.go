package host

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultBuildPropPaths lists the property files read when getprop is absent.
var DefaultBuildPropPaths = []string{
	"/system/build.prop",
	"/vendor/build.prop",
	"/default.prop",
}

const maxPropFileSize = 256 << 10

// GetpropReader reads properties through the getprop command.
type GetpropReader struct {
	Runner  *Runner
	Command string
}

// Property implements PropertyReader.
func (g *GetpropReader) Property(ctx context.Context, key string) (string, error) {
	command := g.Command
	if command == "" {
		command = "getprop"
	}
	res, err := g.Runner.Run(ctx, command, key)
	if err != nil {
		return "", fmt.Errorf("getprop %s: %w", key, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("getprop %s: exited %d", key, res.ExitCode)
	}
	line, _, _ := strings.Cut(string(res.Stdout), "\n")
	v := strings.TrimSpace(line)
	if v == "" {
		return "", ErrPropertyUnset
	}
	return v, nil
}

// BuildPropReader reads key=value property files.
type BuildPropReader struct {
	Paths []string
	FS    FileSystem
}

// Property implements PropertyReader. The first file defining key wins.
func (b *BuildPropReader) Property(ctx context.Context, key string) (string, error) {
	var readErr error
	for _, p := range b.Paths {
		data, err := b.FS.ReadFile(ctx, p, maxPropFileSize)
		if err != nil {
			readErr = errors.Join(readErr, err)
			continue
		}
		if v, ok := ParseProperties(data)[key]; ok && v != "" {
			return v, nil
		}
	}
	if readErr != nil && len(b.Paths) > 0 {
		return "", fmt.Errorf("property %s: %w", key, readErr)
	}
	return "", ErrPropertyUnset
}

// ParseProperties parses build.prop style content. Comments and malformed
// lines are skipped.
func ParseProperties(data []byte) map[string]string {
	props := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return props
}

// FallbackProperties tries each reader in order. An unset property stops the
// chain only when a reader actually answered; read failures fall through.
type FallbackProperties []PropertyReader

// Property implements PropertyReader.
func (f FallbackProperties) Property(ctx context.Context, key string) (string, error) {
	var errs error
	unset := false
	for _, r := range f {
		v, err := r.Property(ctx, key)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrPropertyUnset) {
			unset = true
			continue
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = errors.Join(errs, err)
	}
	if unset {
		return "", ErrPropertyUnset
	}
	if errs == nil {
		return "", ErrPropertyUnset
	}
	return "", errs
}

// StaticProperties is a PropertyReader over a fixed map.
type StaticProperties map[string]string

// Property implements PropertyReader.
func (s StaticProperties) Property(_ context.Context, key string) (string, error) {
	if v, ok := s[key]; ok && v != "" {
		return v, nil
	}
	return "", ErrPropertyUnset
}
