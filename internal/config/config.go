// Package config loads the core's YAML configuration. Within this core
// only a handful of fields are recognised; everything
// else a full Katamari deployment's config file carries (provider
// services, bucket/vault/KMS operations, schedules) belongs to the
// out-of-scope outer shell and is ignored here.
package config

import (
	"os"

	"github.com/katamari-go/katamari/internal/search"
	"gopkg.in/yaml.v3"
)

// Config is the subset of the deployment config this core understands.
type Config struct {
	// Schema maps a field name to one of TEXT, KEYWORD, DATETIME,
	// NUMERIC, BOOLEAN, ID.
	Schema map[string]string `yaml:"schema"`

	// CacheSize bounds the ORM's LRU read cache.
	CacheSize int `yaml:"cache_size"`

	// TTLIntervalUnit names the unit TTL durations in the config are
	// expressed in ("s", "m", "h"); defaults to seconds.
	TTLIntervalUnit string `yaml:"ttl_interval_unit"`

	// IndexDir is parsed and kept here; no package reads it, and the
	// search index is held in memory rather than in a directory.
	IndexDir string `yaml:"index_dir"`

	// DispatchBindAddr is the WebSocket server's bind address, e.g.
	// ":8765".
	DispatchBindAddr string `yaml:"dispatch_bind_addr"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.TTLIntervalUnit == "" {
		cfg.TTLIntervalUnit = "s"
	}
	return &cfg, nil
}

// SchemaFields converts the raw string-typed schema map into
// search.FieldType values, the form internal/search expects.
func (c *Config) SchemaFields() (map[string]search.FieldType, error) {
	out := make(map[string]search.FieldType, len(c.Schema))
	for name, kind := range c.Schema {
		ft, err := search.ParseFieldType(kind)
		if err != nil {
			return nil, err
		}
		out[name] = ft
	}
	return out, nil
}
