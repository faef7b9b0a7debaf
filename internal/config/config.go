// Package config loads run configuration with the precedence
// flags > environment > YAML file > defaults. Credentials only ever come
// from the environment (or a _FILE indirection), never from the YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the merged run configuration. The zero-value-adjacent defaults
// are deliberately conservative: dry-run on, small batches.
type Config struct {
	FrontBaseURL   string `yaml:"front_base_url"`
	FrontRPS       int    `yaml:"front_rps"`
	GmailConfigDir string `yaml:"gmail_config_dir"`
	BatchSize      int    `yaml:"batch_size"`
	DryRun         bool   `yaml:"dry_run"`
	SkipArchived   bool   `yaml:"skip_archived"`
	InboxID        string `yaml:"inbox_id"`
	ReportDir      string `yaml:"report_dir"`
	SummaryPath    string `yaml:"summary_path"`
	LogLevel       string `yaml:"log_level"`

	// secrets, environment only
	FrontToken        string `yaml:"-"`
	GmailAccessToken  string `yaml:"-"`
	GmailRefreshToken string `yaml:"-"`
}

// Load merges .env, the optional YAML config, and environment overrides.
func Load() (*Config, error) {
	cfg := &Config{
		BatchSize: 10,
		DryRun:    true,
		ReportDir: ".",
		LogLevel:  "info",
	}

	// .env in the working directory, if present
	_ = godotenv.Load()

	if err := loadYAML(cfg); err != nil {
		return nil, err
	}

	if tok := getEnvOrFile("FRONT_API_TOKEN", "FRONT_API_TOKEN_FILE"); tok != "" {
		cfg.FrontToken = tok
	}
	cfg.GmailAccessToken = os.Getenv("GMAIL_ACCESS_TOKEN")
	cfg.GmailRefreshToken = os.Getenv("GMAIL_REFRESH_TOKEN")

	if v := os.Getenv("FRONTPORTER_FRONT_BASE_URL"); v != "" {
		cfg.FrontBaseURL = v
	}
	if v := os.Getenv("FRONTPORTER_GMAIL_CONFIG"); v != "" {
		cfg.GmailConfigDir = v
	}
	if v := os.Getenv("FRONTPORTER_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("FRONTPORTER_BATCH_SIZE must be a positive integer, got %q", v)
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("FRONTPORTER_FRONT_RPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("FRONTPORTER_FRONT_RPS must be a non-negative integer, got %q", v)
		}
		cfg.FrontRPS = n
	}
	if v := os.Getenv("FRONTPORTER_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("FRONTPORTER_DRY_RUN must be a boolean, got %q", v)
		}
		cfg.DryRun = b
	}
	if v := os.Getenv("FRONTPORTER_SKIP_ARCHIVED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("FRONTPORTER_SKIP_ARCHIVED must be a boolean, got %q", v)
		}
		cfg.SkipArchived = b
	}
	if v := os.Getenv("FRONTPORTER_INBOX"); v != "" {
		cfg.InboxID = v
	}
	if v := os.Getenv("FRONTPORTER_REPORT_DIR"); v != "" {
		cfg.ReportDir = v
	}
	if v := os.Getenv("FRONTPORTER_SUMMARY"); v != "" {
		cfg.SummaryPath = v
	}
	if v := os.Getenv("FRONTPORTER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.GmailConfigDir == "" {
		cfg.GmailConfigDir = os.ExpandEnv("$HOME/.gmailctl")
	}
	return cfg, nil
}

// loadYAML reads the optional config file. FRONTPORTER_CONFIG overrides the
// default ~/.config/frontporter/config.yaml location.
func loadYAML(cfg *Config) error {
	path := os.Getenv("FRONTPORTER_CONFIG")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".config", "frontporter", "config.yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// SlogLevel translates the configured verbosity into a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnvOrFile reads envVar, or the contents of the file named by fileVar
// when the _FILE variant is set.
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	if path := os.Getenv(fileVar); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
