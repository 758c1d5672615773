// Package catalog loads the probe catalog and compiles it into a
// detect.Registry. The catalog is data: which paths, packages, properties
// and process names to inspect, and the category each signal scores under.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rootsense/rootsense/internal/detect"
)

//go:embed default.yaml
var defaultCatalog []byte

// Kind selects the probe implementation for an entry.
type Kind string

const (
	KindBinary   Kind = "binary"
	KindHosts    Kind = "hosts"
	KindPackage  Kind = "package"
	KindBuild    Kind = "build"
	KindProperty Kind = "property"
	KindMount    Kind = "mount"
	KindProcess  Kind = "process"
	KindNative   Kind = "native"
)

// Property is one property condition of a property entry.
type Property struct {
	Key    string   `yaml:"key"`
	Values []string `yaml:"values"`
}

// Entry describes one probe.
type Entry struct {
	ID            string     `yaml:"id"`
	Category      string     `yaml:"category"`
	Kind          Kind       `yaml:"kind"`
	Description   string     `yaml:"description"`
	Paths         []string   `yaml:"paths,omitempty"`
	Packages      []string   `yaml:"packages,omitempty"`
	Key           string     `yaml:"key,omitempty"`
	Markers       []string   `yaml:"markers,omitempty"`
	Properties    []Property `yaml:"properties,omitempty"`
	MountPoints   []string   `yaml:"mount_points,omitempty"`
	Patterns      []string   `yaml:"patterns,omitempty"`
	SizeThreshold int64      `yaml:"size_threshold,omitempty"`
	Timeout       string     `yaml:"timeout,omitempty"`
}

// Catalog is a parsed probe catalog.
type Catalog struct {
	Version int     `yaml:"version"`
	Probes  []Entry `yaml:"probes"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks that every entry can be compiled into a probe.
func (c *Catalog) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported catalog version %d", c.Version)
	}
	if len(c.Probes) == 0 {
		return detect.ErrNoProbes
	}
	seen := make(map[string]bool, len(c.Probes))
	var errs []error
	for i, e := range c.Probes {
		if err := e.validate(); err != nil {
			errs = append(errs, fmt.Errorf("probes[%d]: %w", i, err))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("probes[%d]: %w: %s", i, detect.ErrDuplicateProbe, e.ID))
		}
		seen[e.ID] = true
	}
	return errors.Join(errs...)
}

func (e Entry) validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if _, err := detect.ParseCategory(e.Category); err != nil {
		return fmt.Errorf("%s: %w", e.ID, err)
	}
	if _, err := e.timeout(); err != nil {
		return fmt.Errorf("%s: %w", e.ID, err)
	}
	missing := func(field string) error {
		return fmt.Errorf("%s: kind %s requires %s", e.ID, e.Kind, field)
	}
	switch e.Kind {
	case KindBinary, KindHosts:
		if len(e.Paths) == 0 {
			return missing("paths")
		}
	case KindPackage:
		if len(e.Packages) == 0 {
			return missing("packages")
		}
	case KindBuild:
		if e.Key == "" {
			return missing("key")
		}
	case KindProperty:
		if len(e.Properties) == 0 {
			return missing("properties")
		}
		for _, p := range e.Properties {
			if p.Key == "" || len(p.Values) == 0 {
				return fmt.Errorf("%s: property conditions need key and values", e.ID)
			}
		}
	case KindMount:
		if len(e.MountPoints) == 0 {
			return missing("mount_points")
		}
	case KindProcess:
		if len(e.Patterns) == 0 {
			return missing("patterns")
		}
	case KindNative:
	default:
		return fmt.Errorf("%s: unknown kind %q", e.ID, e.Kind)
	}
	return nil
}

func (e Entry) timeout() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", e.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", e.Timeout)
	}
	return d, nil
}

// IDs returns entry ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.Probes))
	for i, e := range c.Probes {
		ids[i] = e.ID
	}
	return ids
}
