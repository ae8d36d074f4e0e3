// Package config loads tpsync settings from a YAML file with environment
// overrides. Secrets (the API token) are expected in the environment or a
// .env file, never in the YAML.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TargetProcessConfig holds remote-service connection settings.
type TargetProcessConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"-"`
}

// Config holds the full application configuration.
type Config struct {
	TargetProcess TargetProcessConfig `yaml:"targetprocess"`
	RepoPath      string              `yaml:"repo_path"`
	AuditDB       string              `yaml:"audit_db"`
	Release       string              `yaml:"release"`
	Team          string              `yaml:"team"`
	ART           string              `yaml:"art"`
	ListenAddr    string              `yaml:"listen_addr"`
}

// Load reads the YAML file at path (missing file is fine, defaults apply),
// loads a .env file if present, and applies environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RepoPath:   ".",
		AuditDB:    "tpsync-audit.db",
		ListenAddr: ":8080",
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.TargetProcess.URL = getEnv("TP_URL", cfg.TargetProcess.URL)
	cfg.TargetProcess.Token = getEnv("TP_TOKEN", cfg.TargetProcess.Token)
	cfg.RepoPath = getEnv("TPSYNC_REPO", cfg.RepoPath)
	cfg.AuditDB = getEnv("TPSYNC_AUDIT_DB", cfg.AuditDB)
	cfg.Release = getEnv("TPSYNC_RELEASE", cfg.Release)
	cfg.Team = getEnv("TPSYNC_TEAM", cfg.Team)
	cfg.ART = getEnv("TPSYNC_ART", cfg.ART)
	cfg.ListenAddr = getEnv("TPSYNC_LISTEN_ADDR", cfg.ListenAddr)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
