// Package config loads the static configuration for one sync session: the
// storage root, the remote object store's address and credentials, the
// text/binary classification tables, the chunk cache's bounds, and the
// indexer's scan cadence. It is unrelated to gastrolog's own log-routing
// config/Store subsystem; this package only ever loads one YAML file at
// startup and never watches it for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
)

// Defaults mirror the ones the individual components already fall back to
// (indexer.defaultScanInterval, indexer.defaultDebounceWindow, and a
// conservative chunk cache bound), kept here too so a YAML file that omits
// a field produces the same behavior as an unconfigured component.
const (
	DefaultScanInterval    = 61 * time.Second
	DefaultDebounceWindow  = 2 * time.Second
	DefaultCacheMaxEntries = 4096
	DefaultCacheMaxWeight  = 256 << 20 // 256 MiB
	DefaultPollSeconds     = 60
)

// Config is the declarative shape of one sync session. Each field maps to
// the snake_case YAML key in its tag; ScanInterval and DebounceWindow are
// read by Load from the duration strings scan_interval and
// debounce_window.
type Config struct {
	// Tenant scopes the registry and remote journal to one logical user or
	// workspace (spec §1 "tenant" in the glossary).
	Tenant string `yaml:"tenant"`

	// StorageRoot is the directory whose tree is kept in sync.
	StorageRoot string `yaml:"storage_root"`

	// RegistryPath is the sqlite database file backing the local revision
	// log. Empty means use an in-memory registry (mainly for tests).
	RegistryPath string `yaml:"registry_path"`

	// RemoteBaseURL and Token address and authenticate to the remote
	// object store and journal (spec §4.3).
	RemoteBaseURL string `yaml:"remote_base_url"`
	Token         string `yaml:"token"`

	// Classification tables (spec §6); defaulted to
	// chunkid.DefaultClassifier()'s tables when all three are empty.
	TextExtensions   []string `yaml:"text_extensions"`
	BinaryExtensions []string `yaml:"binary_extensions"`
	TextFilenames    []string `yaml:"text_filenames"`

	// Cache bounds (spec §4.2 "Cache").
	CacheMaxEntries int   `yaml:"cache_max_entries"`
	CacheMaxWeight  int64 `yaml:"cache_max_weight"`

	// ScanInterval and DebounceWindow tune the indexer (spec §4.4).
	ScanInterval   time.Duration `yaml:"-"`
	DebounceWindow time.Duration `yaml:"-"`

	// PollSeconds is forwarded to every long-poll request (spec §4.3).
	PollSeconds int `yaml:"poll_seconds"`

	// UploadDisabled runs the session in download-only mode (spec §4.5).
	UploadDisabled bool `yaml:"upload_disabled"`
}

// yamlConfig mirrors Config but spells durations as strings ("30s",
// "500ms"); yaml.v3 has no built-in notion of time.Duration, which is
// just an int64 underneath, so a bare "30s" scalar would otherwise fail
// to decode. Load parses into this shape and converts.
type yamlConfig struct {
	Tenant           string   `yaml:"tenant"`
	StorageRoot      string   `yaml:"storage_root"`
	RegistryPath     string   `yaml:"registry_path"`
	RemoteBaseURL    string   `yaml:"remote_base_url"`
	Token            string   `yaml:"token"`
	TextExtensions   []string `yaml:"text_extensions"`
	BinaryExtensions []string `yaml:"binary_extensions"`
	TextFilenames    []string `yaml:"text_filenames"`
	CacheMaxEntries  int      `yaml:"cache_max_entries"`
	CacheMaxWeight   int64    `yaml:"cache_max_weight"`
	ScanInterval     string   `yaml:"scan_interval"`
	DebounceWindow   string   `yaml:"debounce_window"`
	PollSeconds      int      `yaml:"poll_seconds"`
	UploadDisabled   bool     `yaml:"upload_disabled"`
}

// Load reads and parses the YAML file at path, applying defaults to any
// field left at its zero value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := Config{
		Tenant:           raw.Tenant,
		StorageRoot:      raw.StorageRoot,
		RegistryPath:     raw.RegistryPath,
		RemoteBaseURL:    raw.RemoteBaseURL,
		Token:            raw.Token,
		TextExtensions:   raw.TextExtensions,
		BinaryExtensions: raw.BinaryExtensions,
		TextFilenames:    raw.TextFilenames,
		CacheMaxEntries:  raw.CacheMaxEntries,
		CacheMaxWeight:   raw.CacheMaxWeight,
		PollSeconds:      raw.PollSeconds,
		UploadDisabled:   raw.UploadDisabled,
	}

	if raw.ScanInterval != "" {
		d, err := time.ParseDuration(raw.ScanInterval)
		if err != nil {
			return nil, fmt.Errorf("config: %s: scan_interval: %w", path, err)
		}
		cfg.ScanInterval = d
	}
	if raw.DebounceWindow != "" {
		d, err := time.ParseDuration(raw.DebounceWindow)
		if err != nil {
			return nil, fmt.Errorf("config: %s: debounce_window: %w", path, err)
		}
		cfg.DebounceWindow = d
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Tenant == "" {
		c.Tenant = "default"
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.CacheMaxWeight <= 0 {
		c.CacheMaxWeight = DefaultCacheMaxWeight
	}
	if c.PollSeconds <= 0 {
		c.PollSeconds = DefaultPollSeconds
	}
}

func (c *Config) validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root is required")
	}
	if c.RemoteBaseURL == "" {
		return fmt.Errorf("remote_base_url is required")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// Classifier builds a chunkid.Classifier from the configured tables,
// falling back to chunkid.DefaultClassifier()'s tables when none are set.
func (c *Config) Classifier() *chunkid.Classifier {
	if len(c.TextExtensions) == 0 && len(c.BinaryExtensions) == 0 && len(c.TextFilenames) == 0 {
		return chunkid.DefaultClassifier()
	}
	return &chunkid.Classifier{
		TextExtensions:   toSet(c.TextExtensions),
		BinaryExtensions: toSet(c.BinaryExtensions),
		TextFilenames:    toSet(c.TextFilenames),
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
