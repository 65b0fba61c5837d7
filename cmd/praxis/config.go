package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all praxis server configuration.
type Config struct {
	Port            string          `yaml:"port"`
	DataDir         string          `yaml:"data_dir"`
	CatalogDB       string          `yaml:"catalog_db"`
	ObservabilityDB string          `yaml:"observability_db"`
	LogLevel        string          `yaml:"log_level"`
	SessionTTLHours int             `yaml:"session_ttl_hours"`
	Retention       RetentionConfig `yaml:"retention"`
}

// RetentionConfig controls cleanup of the outcome log.
type RetentionConfig struct {
	OutcomeLogsDays int  `yaml:"outcome_logs_days"`
	VacuumAfter     bool `yaml:"vacuum_after"`
}

func (c *Config) defaults() {
	if c.Port == "" {
		c.Port = "8086"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.CatalogDB == "" {
		c.CatalogDB = "db/catalog.db"
	}
	if c.ObservabilityDB == "" {
		c.ObservabilityDB = "db/outcomes.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SessionTTLHours <= 0 {
		c.SessionTTLHours = 12
	}
	if c.Retention.OutcomeLogsDays <= 0 {
		c.Retention.OutcomeLogsDays = 90
	}
}

// LoadConfigFile reads a YAML config file. Environment variables PORT,
// DATA_DIR, CATALOG_DB and LOG_LEVEL override the file.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CATALOG_DB"); v != "" {
		cfg.CatalogDB = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.defaults()
	return cfg, nil
}
