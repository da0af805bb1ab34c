package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/grounding/pkg/grounding/datasource/chebi"
	"github.com/cognicore/grounding/pkg/grounding/datasource/uniprot"
	"github.com/cognicore/grounding/pkg/grounding/ingest"
	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/organism"
)

// Environment variables that override the YAML configuration
const (
	EnvInputPath  = "GROUNDING_INPUT_PATH"
	EnvDBPath     = "GROUNDING_DB_PATH"
	EnvUniprotURL = "GROUNDING_UNIPROT_URL"
	EnvChebiURL   = "GROUNDING_CHEBI_URL"
	EnvAddr       = "GROUNDING_ADDR"
	EnvLogLevel   = "GROUNDING_LOG_LEVEL"
)

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	MaxConns int    `yaml:"max_conns"`
}

// StoreConfig locates the record index
type StoreConfig struct {
	Path string `yaml:"path"`
}

// InputConfig is where downloaded source files are cached
type InputConfig struct {
	Dir string `yaml:"dir"`
}

// SourceConfig configures one XML datasource
type SourceConfig struct {
	URL               string `yaml:"url"`
	FileName          string `yaml:"file_name"`
	BatchSize         int    `yaml:"batch_size"`
	MaxPendingBatches int    `yaml:"max_pending_batches"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server          ServerConfig        `yaml:"server"`
	Store           StoreConfig         `yaml:"store"`
	Input           InputConfig         `yaml:"input"`
	Uniprot         SourceConfig        `yaml:"uniprot"`
	Chebi           SourceConfig        `yaml:"chebi"`
	Organisms       []organism.Organism `yaml:"organisms,omitempty"`
	OrganismsFile   string              `yaml:"organisms_file,omitempty"`
	LogLevel        string              `yaml:"log_level"`
	SearchCacheSize int                 `yaml:"search_cache_size"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the configuration used when no file is present
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3000"
	}
	if cfg.Server.MaxConns == 0 {
		cfg.Server.MaxConns = 256
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "grounding.db"
	}
	if cfg.Input.Dir == "" {
		cfg.Input.Dir = "input"
	}
	cfg.Uniprot.applyDefaults(uniprot.DefaultURL, uniprot.DefaultFileName)
	cfg.Chebi.applyDefaults(chebi.DefaultURL, chebi.DefaultFileName)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SearchCacheSize == 0 {
		cfg.SearchCacheSize = 1024
	}
}

// ApplyEnv overrides settings from the environment. Call it after the cmds
// have loaded any .env file.
func ApplyEnv(cfg *AppConfig) {
	if v := os.Getenv(EnvInputPath); v != "" {
		cfg.Input.Dir = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvUniprotURL); v != "" {
		cfg.Uniprot.URL = v
	}
	if v := os.Getenv(EnvChebiURL); v != "" {
		cfg.Chebi.URL = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks settings that have no sensible default
func (c *AppConfig) Validate() error {
	if err := c.Uniprot.validate("uniprot"); err != nil {
		return err
	}
	if err := c.Chebi.validate("chebi"); err != nil {
		return err
	}
	if c.Server.MaxConns < 0 {
		return fmt.Errorf("server.max_conns must not be negative, got %d: %w", c.Server.MaxConns, internalerr.ErrInvalidConfig)
	}
	if c.SearchCacheSize < 0 {
		return fmt.Errorf("search_cache_size must not be negative: %w", internalerr.ErrInvalidConfig)
	}
	return nil
}

func (c *SourceConfig) applyDefaults(url, fileName string) {
	if c.URL == "" {
		c.URL = url
	}
	if c.FileName == "" {
		c.FileName = fileName
	}
	if c.BatchSize == 0 {
		c.BatchSize = ingest.DefaultBatchSize
	}
}

func (c SourceConfig) validate(section string) error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%s.batch_size must be positive, got %d: %w", section, c.BatchSize, internalerr.ErrInvalidConfig)
	}
	if c.MaxPendingBatches < 0 {
		return fmt.Errorf("%s.max_pending_batches must not be negative, got %d: %w", section, c.MaxPendingBatches, internalerr.ErrInvalidConfig)
	}
	return nil
}
