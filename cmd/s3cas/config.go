package main

import (
	"fmt"
	"os"

	"github.com/threefoldtech/s3-cas/pkg/types"
	"gopkg.in/yaml.v3"
)

// ServerConfig is the on-disk YAML configuration for `s3cas serve`.
type ServerConfig struct {
	// ListenAddr is the S3 API bind address.
	ListenAddr string `yaml:"listenAddr"`
	// MetricsAddr is the bind address for /metrics, /health, /ready, /live.
	MetricsAddr string `yaml:"metricsAddr"`

	// MetaRoot is the directory the shared and per-tenant metastores live
	// under (meta_root/blocks/db, meta_root/user_<id>/db).
	MetaRoot string `yaml:"metaRoot"`
	// BlockRoot is the directory block files are written to and read from.
	BlockRoot string `yaml:"blockRoot"`

	// Durability is "buffer", "fsync", or "fdatasync". It is validated and
	// passed to the metastore, which syncs every commit whatever the value.
	Durability string `yaml:"durability"`
	// Transactional selects the metastore backend: true for AtomicBackend,
	// false for CompensatedBackend.
	Transactional bool `yaml:"transactional"`
	// InlineThreshold is the inlining budget in bytes. Zero disables
	// inlining (the default — see DESIGN.md open question decision #1).
	InlineThreshold int `yaml:"inlineThreshold"`

	// IngestConcurrency bounds the number of chunks ingested concurrently
	// per stream (pkg/ingest.Config.Concurrency).
	IngestConcurrency int `yaml:"ingestConcurrency"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:        "127.0.0.1:8080",
		MetricsAddr:       "127.0.0.1:9090",
		MetaRoot:          "./data/meta",
		BlockRoot:         "./data/blocks",
		Durability:        "fsync",
		Transactional:     true,
		InlineThreshold:   0,
		IngestConcurrency: 4,
	}
}

func loadServerConfig(path string) (ServerConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c ServerConfig) durability() (types.Durability, error) {
	switch c.Durability {
	case "buffer":
		return types.DurabilityBuffer, nil
	case "fsync", "":
		return types.DurabilityFsync, nil
	case "fdatasync":
		return types.DurabilityFdatasync, nil
	default:
		return 0, fmt.Errorf("unknown durability %q (want buffer, fsync, or fdatasync)", c.Durability)
	}
}
