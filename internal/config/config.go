package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rootsense/rootsense/internal/detect"
)

type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Native    NativeConfig    `yaml:"native"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Export    ExportConfig    `yaml:"export"`
}

// DetectionConfig tunes the engine. The catalog itself lives in its own file.
type DetectionConfig struct {
	// Policy is one of any, threshold, any_and_threshold.
	Policy string `yaml:"policy"`
	// Threshold is the score threshold policies compare against, 1..100.
	// Unset means detect.DefaultThreshold.
	Threshold *int `yaml:"threshold"`
	// Parallelism bounds concurrently running probes; 1 runs them in order.
	Parallelism       int      `yaml:"parallelism"`
	ProbeTimeout      string   `yaml:"probe_timeout"`
	SubprocessTimeout string   `yaml:"subprocess_timeout"`
	MaxCommandOutput  string   `yaml:"max_command_output"` // e.g. "1MiB"
	CatalogFile       string   `yaml:"catalog_file"`
	DisabledProbes    []string `yaml:"disabled_probes"`
}

// NativeConfig selects the verdict behind native catalog entries.
type NativeConfig struct {
	// Mode is builtin, exec or off.
	Mode    string   `yaml:"mode"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Output is stderr, stdout or a file path.
	Output string `yaml:"output"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	APIKey       string `yaml:"api_key"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// WatchConfig drives periodic re-evaluation.
type WatchConfig struct {
	Interval string `yaml:"interval"`
	// Paths are directories whose changes trigger an immediate run.
	// Missing directories are skipped.
	Paths    []string `yaml:"paths"`
	Debounce string   `yaml:"debounce"`
}

type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
	// Retain is the number of reports kept; 0 keeps everything.
	Retain int `yaml:"retain"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ExportConfig lists sinks that receive every report besides history. A sink
// is enabled by setting its path, url or endpoint.
type ExportConfig struct {
	JSONL   JSONLExportConfig   `yaml:"jsonl"`
	Webhook WebhookExportConfig `yaml:"webhook"`
	OTLP    OTLPExportConfig    `yaml:"otlp"`
}

// ExportFilter narrows what a sink receives.
type ExportFilter struct {
	CompromisedOnly bool   `yaml:"compromised_only"`
	MinSeverity     string `yaml:"min_severity"`
	// Changes forwards only reports whose verdict differs from the last one.
	Changes bool `yaml:"changes"`
}

type JSONLExportConfig struct {
	Path       string       `yaml:"path"`
	MaxSizeMB  int          `yaml:"max_size_mb"`
	MaxBackups int          `yaml:"max_backups"`
	Filter     ExportFilter `yaml:"filter"`
}

type WebhookExportConfig struct {
	URL           string            `yaml:"url"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval string            `yaml:"flush_interval"`
	Timeout       string            `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
	Filter        ExportFilter      `yaml:"filter"`
}

type OTLPExportConfig struct {
	Endpoint string `yaml:"endpoint"`
	// Protocol is grpc or http.
	Protocol    string            `yaml:"protocol"`
	Headers     map[string]string `yaml:"headers"`
	TLSEnabled  bool              `yaml:"tls_enabled"`
	TLSCertFile string            `yaml:"tls_cert_file"`
	TLSKeyFile  string            `yaml:"tls_key_file"`
	TLSInsecure bool              `yaml:"tls_insecure"`
	Timeout     string            `yaml:"timeout"`
	// ResourceAttributes are added to the exported resource.
	ResourceAttributes map[string]string `yaml:"resource_attributes"`
	Filter             ExportFilter      `yaml:"filter"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes loads configuration from bytes without applying environment
// overrides. This is intended for testing where env vars should not interfere.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when set and otherwise returns the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Detection.Policy == "" {
		cfg.Detection.Policy = string(detect.PolicyAny)
	}
	if cfg.Detection.Threshold == nil {
		n := detect.DefaultThreshold
		cfg.Detection.Threshold = &n
	}
	if cfg.Detection.Parallelism == 0 {
		cfg.Detection.Parallelism = detect.DefaultParallelism
	}
	if cfg.Detection.ProbeTimeout == "" {
		cfg.Detection.ProbeTimeout = detect.DefaultProbeTimeout.String()
	}
	if cfg.Detection.SubprocessTimeout == "" {
		cfg.Detection.SubprocessTimeout = "2s"
	}
	if cfg.Detection.MaxCommandOutput == "" {
		cfg.Detection.MaxCommandOutput = "1MiB"
	}

	if cfg.Native.Mode == "" {
		cfg.Native.Mode = "builtin"
	}
	if cfg.Native.Timeout == "" {
		cfg.Native.Timeout = "2s"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8787"
	}
	if cfg.Server.ReadTimeout == "" {
		cfg.Server.ReadTimeout = "10s"
	}
	if cfg.Server.WriteTimeout == "" {
		cfg.Server.WriteTimeout = "30s"
	}

	if cfg.Watch.Interval == "" {
		cfg.Watch.Interval = "5m"
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = "2s"
	}
	if cfg.Watch.Paths == nil {
		cfg.Watch.Paths = []string{"/data/adb", "/sbin", "/system/xbin", "/system/bin", "/su/bin"}
	}

	if cfg.History.SQLitePath == "" {
		cfg.History.SQLitePath = "/var/lib/rootsense/history.db"
	}
	if cfg.History.Retain == 0 {
		cfg.History.Retain = 1000
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Export.JSONL.MaxSizeMB == 0 {
		cfg.Export.JSONL.MaxSizeMB = 50
	}
	if cfg.Export.JSONL.MaxBackups == 0 {
		cfg.Export.JSONL.MaxBackups = 5
	}
	if cfg.Export.Webhook.BatchSize == 0 {
		cfg.Export.Webhook.BatchSize = 1
	}
	if cfg.Export.Webhook.FlushInterval == "" {
		cfg.Export.Webhook.FlushInterval = "10s"
	}
	if cfg.Export.Webhook.Timeout == "" {
		cfg.Export.Webhook.Timeout = "5s"
	}
	if cfg.Export.OTLP.Protocol == "" {
		cfg.Export.OTLP.Protocol = "grpc"
	}
	if cfg.Export.OTLP.Timeout == "" {
		cfg.Export.OTLP.Timeout = "10s"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOTSENSE_POLICY"); v != "" {
		cfg.Detection.Policy = v
	}
	if v := os.Getenv("ROOTSENSE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.Threshold = &n
		}
	}
	if v := os.Getenv("ROOTSENSE_CATALOG"); v != "" {
		cfg.Detection.CatalogFile = v
	}
	if v := os.Getenv("ROOTSENSE_DISABLED_PROBES"); v != "" {
		cfg.Detection.DisabledProbes = splitList(v)
	}
	if v := os.Getenv("ROOTSENSE_NATIVE_MODE"); v != "" {
		cfg.Native.Mode = v
	}
	if v := os.Getenv("ROOTSENSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ROOTSENSE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ROOTSENSE_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ROOTSENSE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ROOTSENSE_DATA_DIR"); v != "" {
		cfg.History.SQLitePath = filepath.Join(v, "history.db")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if _, err := detect.ParsePolicy(cfg.Detection.Policy); err != nil {
		return fmt.Errorf("invalid detection.policy: %w", err)
	}
	if t := cfg.Detection.ScoreThreshold(); t < 1 || t > detect.MaxScore {
		return fmt.Errorf("detection.threshold must be within 1..%d, got %d (a clean device scores 0)", detect.MaxScore, t)
	}
	if cfg.Detection.Parallelism < 0 {
		return fmt.Errorf("detection.parallelism must be >= 0")
	}
	if _, err := ParseByteSize(cfg.Detection.MaxCommandOutput); err != nil {
		return fmt.Errorf("invalid detection.max_command_output: %w", err)
	}

	durations := []struct{ name, value string }{
		{"detection.probe_timeout", cfg.Detection.ProbeTimeout},
		{"detection.subprocess_timeout", cfg.Detection.SubprocessTimeout},
		{"native.timeout", cfg.Native.Timeout},
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"watch.interval", cfg.Watch.Interval},
		{"watch.debounce", cfg.Watch.Debounce},
		{"export.webhook.flush_interval", cfg.Export.Webhook.FlushInterval},
		{"export.webhook.timeout", cfg.Export.Webhook.Timeout},
		{"export.otlp.timeout", cfg.Export.OTLP.Timeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q", d.name, d.value)
		}
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", d.name)
		}
	}
	if mustDuration(cfg.Watch.Interval) == 0 {
		return fmt.Errorf("watch.interval must be > 0")
	}

	switch cfg.Native.Mode {
	case "builtin", "off":
	case "exec":
		if cfg.Native.Command == "" {
			return fmt.Errorf("native.command is required when native.mode is exec")
		}
	default:
		return fmt.Errorf("invalid native.mode %q", cfg.Native.Mode)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", cfg.Logging.Format)
	}

	if cfg.History.Retain < 0 {
		return fmt.Errorf("history.retain must be >= 0")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if cfg.Export.JSONL.MaxSizeMB < 0 || cfg.Export.JSONL.MaxBackups < 0 {
		return fmt.Errorf("export.jsonl rotation values must be >= 0")
	}
	if cfg.Export.Webhook.BatchSize < 0 {
		return fmt.Errorf("export.webhook.batch_size must be >= 0")
	}
	switch cfg.Export.OTLP.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("invalid export.otlp.protocol %q", cfg.Export.OTLP.Protocol)
	}
	filters := []struct {
		name string
		f    ExportFilter
	}{
		{"export.jsonl.filter", cfg.Export.JSONL.Filter},
		{"export.webhook.filter", cfg.Export.Webhook.Filter},
		{"export.otlp.filter", cfg.Export.OTLP.Filter},
	}
	for _, f := range filters {
		if _, err := detect.ParseSeverity(f.f.MinSeverity); err != nil {
			return fmt.Errorf("invalid %s.min_severity: %w", f.name, err)
		}
	}
	return nil
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ScoreThreshold returns the configured threshold or the default.
func (d DetectionConfig) ScoreThreshold() int {
	if d.Threshold == nil {
		return detect.DefaultThreshold
	}
	return *d.Threshold
}

func (d DetectionConfig) ProbeTimeoutDuration() time.Duration {
	return mustDuration(d.ProbeTimeout)
}

func (d DetectionConfig) SubprocessTimeoutDuration() time.Duration {
	return mustDuration(d.SubprocessTimeout)
}

// MaxCommandOutputBytes returns the parsed output cap, or 0 when unset.
func (d DetectionConfig) MaxCommandOutputBytes() int64 {
	n, _ := ParseByteSize(d.MaxCommandOutput)
	return n
}

func (n NativeConfig) TimeoutDuration() time.Duration { return mustDuration(n.Timeout) }

func (s ServerConfig) ReadTimeoutDuration() time.Duration  { return mustDuration(s.ReadTimeout) }
func (s ServerConfig) WriteTimeoutDuration() time.Duration { return mustDuration(s.WriteTimeout) }

func (w WatchConfig) IntervalDuration() time.Duration { return mustDuration(w.Interval) }
func (w WatchConfig) DebounceDuration() time.Duration { return mustDuration(w.Debounce) }

// Severity returns the parsed minimum severity. Load has already validated it.
func (f ExportFilter) Severity() detect.Severity {
	s, _ := detect.ParseSeverity(f.MinSeverity)
	return s
}

func (w WebhookExportConfig) FlushIntervalDuration() time.Duration {
	return mustDuration(w.FlushInterval)
}

func (w WebhookExportConfig) TimeoutDuration() time.Duration { return mustDuration(w.Timeout) }

func (o OTLPExportConfig) TimeoutDuration() time.Duration { return mustDuration(o.Timeout) }
