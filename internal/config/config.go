package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/voice-call-widget/internal/mode"
)

// EnvPrefix is the namespace prefix for all voice call widget environment variables.
const EnvPrefix = "VOICE_CALL_"

// Config holds all application configuration. Secrets (the backend public
// key) are loaded exclusively from environment variables and never appear
// in the config file.
type Config struct {
	ListenAddr            string        `yaml:"listen_addr"`
	DBPath                string        `yaml:"db_path"`
	TranscriptDir         string        `yaml:"transcript_dir"`
	BackendURL            string        `yaml:"backend_url"`
	StartTimeout          string        `yaml:"start_timeout"`
	LogLevel              string        `yaml:"log_level"`
	GDriveFolderID        string        `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string        `yaml:"google_credentials_file"`
	SyncInterval          string        `yaml:"sync_interval"`
	Modes                 []mode.Config `yaml:"modes"`

	// Secrets: env vars only, never serialized to YAML.
	PublicKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		DBPath:                "data/voice-call-widget.db",
		TranscriptDir:         "data/transcripts",
		BackendURL:            "ws://localhost:8787/call",
		StartTimeout:          "30s",
		LogLevel:              "info",
		GoogleCredentialsFile: "./service-account.json",
		SyncInterval:          "5m",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedStartTimeout returns StartTimeout as a time.Duration,
// falling back to 30s if the value is invalid.
func (c *Config) ParsedStartTimeout() time.Duration {
	return parseDuration(c.StartTimeout, 30*time.Second)
}

// ParsedSyncInterval returns SyncInterval as a time.Duration,
// falling back to 5m if the value is invalid.
func (c *Config) ParsedSyncInterval() time.Duration {
	return parseDuration(c.SyncInterval, 5*time.Minute)
}

// ModeTable builds the call mode table from the configured modes, or from
// the built-in modes when none are configured.
func (c *Config) ModeTable() (*mode.Table, error) {
	if len(c.Modes) == 0 {
		return mode.NewTable(mode.Defaults())
	}

	modes := make([]mode.Config, len(c.Modes))
	copy(modes, c.Modes)
	for i := range modes {
		if strings.TrimSpace(modes[i].AssistantID) == "" {
			modes[i].AssistantID = mode.DefaultAssistantID
		}
	}
	table, err := mode.NewTable(modes)
	if err != nil {
		return nil, fmt.Errorf("build call modes: %w", err)
	}
	return table, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPT_DIR"); v != "" {
		cfg.TranscriptDir = v
	}
	if v := os.Getenv(EnvPrefix + "BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv(EnvPrefix + "START_TIMEOUT"); v != "" {
		cfg.StartTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
	if v := os.Getenv(EnvPrefix + "SYNC_INTERVAL"); v != "" {
		cfg.SyncInterval = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.PublicKey = os.Getenv(EnvPrefix + "PUBLIC_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.PublicKey == "" {
		warnings = append(warnings, "Voice backend public key not configured. Calls will fail to start until "+EnvPrefix+"PUBLIC_KEY is set.")
	}
	if _, err := time.ParseDuration(cfg.StartTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid start_timeout %q, using default 30s.", cfg.StartTimeout))
	}
	if _, err := time.ParseDuration(cfg.SyncInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid sync_interval %q, using default 5m.", cfg.SyncInterval))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown log_level %q, using info.", cfg.LogLevel))
	}
	if _, err := cfg.ModeTable(); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid modes (%v), using built-in modes.", err))
		cfg.Modes = nil
	}

	return warnings
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
