package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sunsetdb/pkg/storage"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Protocol ProtocolConfig `yaml:"protocol"`
}

type ServerConfig struct {
	TCPAddr        string        `yaml:"tcp_addr"`  // Line protocol listen address (e.g. 127.0.0.1:2600)
	HTTPAddr       string        `yaml:"http_addr"` // Admin API listen address, empty disables it
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StorageConfig struct {
	Path            string  `yaml:"path"`
	CreateIfMissing bool    `yaml:"create_if_missing"`
	Sync            string  `yaml:"sync"` // none | always
	QueueSize       int     `yaml:"queue_size"`
	BloomSize       uint    `yaml:"bloom_size"`
	BloomFalseProb  float64 `yaml:"bloom_false_prob"`
}

type ProtocolConfig struct {
	MaxLineSize int `yaml:"max_line_size"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TCPAddr:        "127.0.0.1:2600",
			HTTPAddr:       ":8080",
			RequestTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Path:           "sunset.db",
			Sync:           "none",
			QueueSize:      1024,
			BloomSize:      100000,
			BloomFalseProb: 0.01,
		},
		Protocol: ProtocolConfig{
			MaxLineSize: 1 << 20,
		},
	}
}

// Load reads configPath over the defaults. With an empty path it tries
// configs/sunset.yaml and sunset.yaml and falls back to the defaults when
// neither exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/sunset.yaml", "sunset.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				return cfg, finish(cfg)
			}
		}
		return cfg, finish(cfg) // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	return cfg, finish(cfg)
}

func finish(cfg *Config) error {
	applyDefaults(cfg)
	return cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 5 * time.Second
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "sunset.db"
	}
	if cfg.Storage.QueueSize <= 0 {
		cfg.Storage.QueueSize = 1024
	}
	if cfg.Storage.BloomSize == 0 {
		cfg.Storage.BloomSize = 100000
	}
	if cfg.Storage.BloomFalseProb <= 0 || cfg.Storage.BloomFalseProb >= 1 {
		cfg.Storage.BloomFalseProb = 0.01
	}
	if cfg.Protocol.MaxLineSize <= 0 {
		cfg.Protocol.MaxLineSize = 1 << 20
	}
}

func (c *Config) Validate() error {
	if c.Server.TCPAddr == "" {
		return fmt.Errorf("config: server.tcp_addr is required")
	}
	if _, err := storage.ParseSyncMode(c.Storage.Sync); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// StoreOptions converts the storage section for storage.Open.
func (c *Config) StoreOptions() storage.Options {
	opts := storage.DefaultOptions()
	opts.Sync, _ = storage.ParseSyncMode(c.Storage.Sync)
	opts.BloomSize = c.Storage.BloomSize
	opts.BloomFalseProb = c.Storage.BloomFalseProb
	return opts
}
