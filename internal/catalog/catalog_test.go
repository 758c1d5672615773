package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/host"
)

func TestDefaultCatalog(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"found_su_binary",
		"detected_magisk",
		"suspicious_root_path",
		"addon_d_or_install_recovery_sh_exists",
		"detected_root_app",
		"detected_hook_framework",
		"detected_dangerous_app",
		"test_keys_build_tags",
		"debug_fingerprint_detected",
		"dangerous_props",
		"detected_modified_hosts_file",
		"rw_system_partition",
		"su_process_running",
		"native_root_detected",
	}, cat.IDs())

	covered := map[detect.Category]bool{}
	for _, e := range cat.Probes {
		covered[detect.Category(e.Category)] = true
	}
	for _, c := range detect.Categories {
		assert.True(t, covered[c], "category %s has no default probe", c)
	}
}

func TestLoad(t *testing.T) {
	cat, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, cat.Probes)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: 1
probes:
  - id: custom_su
    category: binary_presence
    kind: binary
    paths: [/opt/su]
`), 0o644))
	cat, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom_su"}, cat.IDs())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "probes: [", "parse catalog"},
		{"version", "version: 2\nprobes: []", "unsupported catalog version"},
		{"empty", "version: 1\nprobes: []", "no probes"},
		{"missing id", "version: 1\nprobes:\n  - category: binary_presence\n    kind: binary\n    paths: [/a]", "id is required"},
		{"unknown category", "version: 1\nprobes:\n  - id: x\n    category: bootloader\n    kind: binary\n    paths: [/a]", "unknown category"},
		{"unknown kind", "version: 1\nprobes:\n  - id: x\n    category: binary_presence\n    kind: magic", "unknown kind"},
		{"missing paths", "version: 1\nprobes:\n  - id: x\n    category: binary_presence\n    kind: binary", "requires paths"},
		{"missing packages", "version: 1\nprobes:\n  - id: x\n    category: package_presence\n    kind: package", "requires packages"},
		{"missing key", "version: 1\nprobes:\n  - id: x\n    category: build_metadata\n    kind: build", "requires key"},
		{"empty property values", "version: 1\nprobes:\n  - id: x\n    category: system_property\n    kind: property\n    properties:\n      - key: ro.secure", "need key and values"},
		{"missing mount points", "version: 1\nprobes:\n  - id: x\n    category: mount_state\n    kind: mount", "requires mount_points"},
		{"missing patterns", "version: 1\nprobes:\n  - id: x\n    category: process_state\n    kind: process", "requires patterns"},
		{"bad timeout", "version: 1\nprobes:\n  - id: x\n    category: external_native\n    kind: native\n    timeout: soon", "invalid timeout"},
		{"negative timeout", "version: 1\nprobes:\n  - id: x\n    category: external_native\n    kind: native\n    timeout: -1s", "negative timeout"},
		{"duplicate", "version: 1\nprobes:\n  - id: x\n    category: external_native\n    kind: native\n  - id: x\n    category: external_native\n    kind: native", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_DuplicateIsSentinel(t *testing.T) {
	_, err := Parse([]byte("version: 1\nprobes:\n  - id: x\n    category: external_native\n    kind: native\n  - id: x\n    category: external_native\n    kind: native"))
	assert.ErrorIs(t, err, detect.ErrDuplicateProbe)
}

// rootedHost reproduces a Magisk device with a test-keys build.
func rootedHost() *host.Host {
	return &host.Host{
		FS: fakeFS{
			"/sbin/su":          {Exists: true},
			"/data/adb/magisk":  {Exists: true, IsDir: true},
			"/system/etc/hosts": {Exists: true, Size: 128},
		},
		Packages: host.StaticPackages{"com.topjohnwu.magisk": true},
		Properties: host.StaticProperties{
			"ro.build.tags":        "test-keys",
			"ro.build.fingerprint": "google/walleye/walleye:8.1.0/OPM1/1:user/release-keys",
			"ro.debuggable":        "0",
			"ro.secure":            "1",
		},
		MountTable: host.StaticMounts{{Device: "/dev/block/dm-0", MountPoint: "/system", FSType: "ext4", Options: []string{"ro"}}},
		Processes:  host.StaticProcesses{{PID: 1, Name: "init"}, {PID: 500, Name: "magiskd"}},
	}
}

type fakeFS map[string]host.FileInfo

func (f fakeFS) Stat(_ context.Context, path string) (host.FileInfo, error) { return f[path], nil }
func (f fakeFS) ReadFile(context.Context, string, int64) ([]byte, error)   { return nil, os.ErrNotExist }

func TestBuild_DefaultCatalog(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	reg, err := Build(cat, rootedHost(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, len(cat.Probes)-1, reg.Len(), "native entry dropped without a detector")
	_, ok := reg.Lookup("native_root_detected")
	assert.False(t, ok)

	e, ok := reg.Lookup("su_process_running")
	require.True(t, ok)
	assert.Equal(t, detect.CategoryProcessState, e.Category)
	assert.Greater(t, int64(e.Timeout), int64(0))

	signals := detect.NewCollector(1, 0, nil).Collect(context.Background(), reg)
	fired := map[string]string{}
	for _, s := range signals {
		if s.Fired() {
			fired[s.ID] = s.Evidence
		}
	}
	assert.Equal(t, map[string]string{
		"found_su_binary":      "/sbin/su",
		"detected_magisk":      "/data/adb/magisk",
		"detected_root_app":    "com.topjohnwu.magisk",
		"test_keys_build_tags": "ro.build.tags=test-keys",
		"su_process_running":   "magiskd[500]",
	}, fired)
	assert.Equal(t, 30+25+15+10, detect.Score(signals))
}

// slowPackages answers like pm on a loaded device: every query costs delay.
type slowPackages struct {
	delay     time.Duration
	installed map[string]bool
	lookups   atomic.Int32
	lists     atomic.Int32
}

func (s *slowPackages) Lookup(ctx context.Context, id string) error {
	s.lookups.Add(1)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.installed[id] {
		return nil
	}
	return host.ErrPackageNotFound
}

func (s *slowPackages) InstalledPackages(ctx context.Context) (map[string]bool, error) {
	s.lists.Add(1)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.installed, nil
}

func TestBuild_PackageIDLateInListWithSlowRegistry(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	pkgs := &slowPackages{delay: 250 * time.Millisecond, installed: map[string]bool{"com.kingroot.kinguser": true}}
	h := rootedHost()
	h.Packages = pkgs
	reg, err := Build(cat, h, BuildOptions{})
	require.NoError(t, err)

	for _, id := range []string{"detected_root_app", "detected_hook_framework", "detected_dangerous_app"} {
		e, ok := reg.Lookup(id)
		require.True(t, ok, id)
		assert.GreaterOrEqual(t, e.Timeout, 5*time.Second, id)
	}

	engine := detect.NewEngineFromRegistry(reg, detect.Options{Collector: detect.NewCollector(4, 0, nil)})
	rep, err := engine.DetailedReport(context.Background())
	require.NoError(t, err)

	var root detect.Signal
	for _, s := range rep.Signals {
		if s.ID == "detected_root_app" {
			root = s
		}
	}
	assert.Equal(t, detect.Fired, root.Outcome, root.Evidence)
	assert.Equal(t, "com.kingroot.kinguser", root.Evidence)
	assert.True(t, rep.Verdict)
	assert.Equal(t, int32(3), pkgs.lists.Load(), "one listing per package entry")
	assert.Zero(t, pkgs.lookups.Load())
}

func TestBuild_Native(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	calls := 0
	reg, err := Build(cat, rootedHost(), BuildOptions{
		Native: func(context.Context) (bool, error) {
			calls++
			return true, nil
		},
		NativeName: "builtin",
	})
	require.NoError(t, err)
	assert.Equal(t, len(cat.Probes), reg.Len())

	e, ok := reg.Lookup("native_root_detected")
	require.True(t, ok)
	res := e.Probe.Run(context.Background())
	assert.Equal(t, detect.Fired, res.Outcome)
	assert.Equal(t, "builtin reported compromise", res.Evidence)
	assert.Equal(t, 1, calls)
}

func TestBuild_Disabled(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	reg, err := Build(cat, rootedHost(), BuildOptions{Disabled: []string{"su_process_running", "rw_system_partition"}})
	require.NoError(t, err)
	_, ok := reg.Lookup("su_process_running")
	assert.False(t, ok)

	_, err = Build(cat, rootedHost(), BuildOptions{Disabled: []string{"nonexistent"}})
	assert.Error(t, err)

	_, err = Build(cat, rootedHost(), BuildOptions{Disabled: cat.IDs()})
	assert.ErrorIs(t, err, detect.ErrNoProbes)
}

func TestBuild_RequiresInputs(t *testing.T) {
	_, err := Build(nil, rootedHost(), BuildOptions{})
	assert.Error(t, err)
	cat, _ := Default()
	_, err = Build(cat, nil, BuildOptions{})
	assert.Error(t, err)
}

func TestBuild_BadPattern(t *testing.T) {
	cat, err := Parse([]byte("version: 1\nprobes:\n  - id: p\n    category: process_state\n    kind: process\n    patterns: ['[invalid']"))
	require.NoError(t, err)
	_, err = Build(cat, rootedHost(), BuildOptions{})
	assert.Error(t, err)
}
