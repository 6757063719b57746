// Package config provides YAML-based configuration for the archive service.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Storage StorageConfig `yaml:"storage"`
	Upload  UploadConfig  `yaml:"upload"`
	Replay  ReplayConfig  `yaml:"replay"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
}

// RedisConfig contains the counter/domain store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig contains on-disk locations.
type StorageConfig struct {
	DataDirectory string `yaml:"data_directory"`
	TempDirectory string `yaml:"temp_directory"`
	IndexPath     string `yaml:"index_path"` // DuckDB database for the local URL index
}

// UploadConfig tunes the WARC import pipeline.
type UploadConfig struct {
	// RecordHost is the remote indexing endpoint receiving per-segment PUTs.
	RecordHost string `yaml:"record_host"`
	// UploadPathTemplate addresses one segment's slice; placeholders are
	// {record_host}, {user}, {coll}, {rec}, {upid}.
	UploadPathTemplate string `yaml:"upload_path_template"`
	// StatusExpireSeconds is the idle TTL for upload status records.
	StatusExpireSeconds int `yaml:"status_expire_seconds"`
	// MaxDetectPages caps page detection per recording; 0 means unbounded.
	MaxDetectPages int `yaml:"max_detect_pages"`
	// SpoolThreshold is the in-memory buffer size before spilling to disk.
	SpoolThreshold int `yaml:"spool_threshold"`
	// DefaultColl seeds the collection created for archives without an
	// explicit collection metadata record.
	DefaultColl DefaultCollConfig `yaml:"default_coll"`
}

// DefaultCollConfig describes the fallback upload collection.
type DefaultCollConfig struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Desc        string `yaml:"desc"`
	Public      bool   `yaml:"public"`
	PublicIndex bool   `yaml:"public_index"`
}

// ReplayConfig points at the upstream replay/rewriting service.
type ReplayConfig struct {
	ReplayHost string `yaml:"replay_host"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2G",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			TempDirectory: "./data/temp",
			IndexPath:     "./data/index.duckdb",
		},
		Upload: UploadConfig{
			RecordHost:          "localhost:8010",
			UploadPathTemplate:  "http://{record_host}/record/{user}/{coll}/{rec}/{upid}",
			StatusExpireSeconds: 120,
			MaxDetectPages:      500,
			SpoolThreshold:      16384 * 8,
			DefaultColl: DefaultCollConfig{
				Name:  "uploads",
				Title: "Uploads",
				Desc:  "Imported from {filename}",
			},
		},
		Replay: ReplayConfig{
			ReplayHost: "localhost:8080",
		},
	}
}

// LoadConfig reads configuration from a YAML file, falling back to defaults
// for any missing file.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// EnsureDirectories creates all configured data directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.TempDirectory,
		filepath.Dir(c.Storage.IndexPath),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}

// GetServerAddr returns the host:port the HTTP server binds to.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}
