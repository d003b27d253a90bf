// Package config holds Flux's typed, validated configuration. Loading this
// file from disk and mapping CLI flags onto it is the caller's job; parsing
// argv itself is out of scope here (spec §1).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full transfer-core configuration.
type Config struct {
	Device    DeviceInfo      `yaml:"device"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Paths     PathsConfig     `yaml:"paths"`
	Logging   LoggingInfo     `yaml:"logging"`
}

// DeviceInfo identifies this Flux instance for discovery and trust.
type DeviceInfo struct {
	Name string `yaml:"name"`
}

// TransferConfig drives the copy/sync engines.
type TransferConfig struct {
	// ParallelThreshold is the minimum file size, as a human-readable string
	// ("64mb"), above which the copy engine splits into chunks when the
	// backend reports supports_parallel.
	ParallelThreshold    string `yaml:"parallel_threshold"`
	ParallelThresholdRaw int64  `yaml:"-"`

	// DefaultChunkSize is parsed into DefaultChunkSizeRaw when non-empty. The
	// copy engine does not read it: its chunk count always comes from
	// chunk.AutoChunkCount.
	DefaultChunkSize    string `yaml:"default_chunk_size"`
	DefaultChunkSizeRaw int64  `yaml:"-"`

	// Compression: "none" (default), "gzip", or "zstd".
	Compression string `yaml:"compression"`

	// ThrottleRate, as a human-readable byte/sec rate string ("10mb"); empty
	// or "0" disables throttling.
	ThrottleRate    string `yaml:"throttle_rate"`
	ThrottleRateRaw int64  `yaml:"-"`

	// ConflictPolicy: "overwrite", "skip", "rename", or "ask".
	ConflictPolicy string `yaml:"conflict_policy"`

	VerifyByDefault bool `yaml:"verify_by_default"`
	ResumeByDefault bool `yaml:"resume_by_default"`

	// MaxReceiveSize bounds inbound peer transfers (spec §4.10 step 4).
	MaxReceiveSize    string `yaml:"max_receive_size"`
	MaxReceiveSizeRaw int64  `yaml:"-"`

	// SyncTolerance is parsed and defaulted to 2s. The sync engine does not
	// read it: its mtime comparison uses its own fixed 2s tolerance.
	SyncTolerance time.Duration `yaml:"sync_tolerance"`

	// WatchDebounce is parsed and defaulted to 2s. Watch mode does not read
	// it: its window comes from sync.WatchOptions.Debounce (2s when unset).
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// DiscoveryConfig drives mDNS registration/browsing.
type DiscoveryConfig struct {
	Port         int    `yaml:"port"`
	InstanceName string `yaml:"instance_name"` // operator-supplied label, sanitized at registration

	// AdmissionParallelism caps concurrent inbound peer transfers.
	AdmissionParallelism int `yaml:"admission_parallelism"`
}

// PathsConfig locates the persisted state layout (spec §6).
type PathsConfig struct {
	ConfigDir string `yaml:"config_dir"` // identity.json, trusted_devices.json
	DataDir   string `yaml:"data_dir"`   // queue.json, history.json
}

// LoggingInfo configures internal/logging.NewLogger and the per-transfer
// session logs internal/logging.NewSessionLogger writes under SessionLogDir.
type LoggingInfo struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	File          string `yaml:"file"`
	SessionLogDir string `yaml:"session_log_dir"`
}

// Load reads and validates a YAML config file, filling derived fields
// (parsed byte sizes, defaults) the way the teacher's validate() pass does.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config with every field populated from defaults, as if
// loaded from an empty YAML document.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.validate()
	return cfg
}

func (c *Config) validate() error {
	if c.Device.Name == "" {
		c.Device.Name = defaultDeviceName()
	}

	if c.Transfer.ParallelThreshold == "" {
		c.Transfer.ParallelThreshold = "64mb"
	}
	v, err := ParseByteSize(c.Transfer.ParallelThreshold)
	if err != nil {
		return fmt.Errorf("transfer.parallel_threshold: %w", err)
	}
	c.Transfer.ParallelThresholdRaw = v

	if c.Transfer.DefaultChunkSize != "" {
		v, err := ParseByteSize(c.Transfer.DefaultChunkSize)
		if err != nil {
			return fmt.Errorf("transfer.default_chunk_size: %w", err)
		}
		c.Transfer.DefaultChunkSizeRaw = v
	}

	switch c.Transfer.Compression {
	case "":
		c.Transfer.Compression = "none"
	case "none", "gzip", "zstd":
	default:
		return fmt.Errorf("transfer.compression must be one of none|gzip|zstd, got %q", c.Transfer.Compression)
	}

	if c.Transfer.ThrottleRate == "" {
		c.Transfer.ThrottleRate = "0"
	}
	tv, err := ParseByteSize(c.Transfer.ThrottleRate)
	if err != nil {
		return fmt.Errorf("transfer.throttle_rate: %w", err)
	}
	c.Transfer.ThrottleRateRaw = tv

	switch c.Transfer.ConflictPolicy {
	case "":
		c.Transfer.ConflictPolicy = "ask"
	case "overwrite", "skip", "rename", "ask":
	default:
		return fmt.Errorf("transfer.conflict_policy must be one of overwrite|skip|rename|ask, got %q", c.Transfer.ConflictPolicy)
	}

	if c.Transfer.MaxReceiveSize == "" {
		c.Transfer.MaxReceiveSize = "4gb"
	}
	mv, err := ParseByteSize(c.Transfer.MaxReceiveSize)
	if err != nil {
		return fmt.Errorf("transfer.max_receive_size: %w", err)
	}
	c.Transfer.MaxReceiveSizeRaw = mv

	if c.Transfer.SyncTolerance <= 0 {
		c.Transfer.SyncTolerance = 2 * time.Second
	}
	if c.Transfer.WatchDebounce <= 0 {
		c.Transfer.WatchDebounce = 2 * time.Second
	}

	if c.Discovery.Port <= 0 {
		c.Discovery.Port = 9741
	}
	if c.Discovery.AdmissionParallelism <= 0 {
		c.Discovery.AdmissionParallelism = 8
	}

	if c.Paths.ConfigDir == "" {
		c.Paths.ConfigDir = defaultConfigDir()
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = defaultDataDir()
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.SessionLogDir == "" {
		c.Logging.SessionLogDir = filepath.Join(c.Paths.DataDir, "sessions")
	}

	return nil
}

func defaultDeviceName() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "flux-device"
	}
	return h
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".flux"
	}
	return dir + "/flux"
}

func defaultDataDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".flux"
	}
	return dir + "/.local/share/flux"
}
