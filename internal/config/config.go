package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultBackendURL = "http://localhost:8000"
	defaultConfigPath = "config.json"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Backend     BackendConfig             `json:"backend"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress         string `json:"server_address"`
	SpoolDir              string `json:"spool_dir"`
	SessionTTLMinutes     int    `json:"session_ttl_minutes"`
	SessionCleanupCron    string `json:"session_cleanup_cron"`
	MinWorkers            int    `json:"min_workers"`
	MaxWorkers            int    `json:"max_workers"`
	QueueSize             int    `json:"queue_size"`
	WorkerIdleTimeout     int    `json:"worker_idle_timeout"` // minutes
	PollIntervalSeconds   int    `json:"poll_interval_seconds"`
	TokenEncryptionKeyEnv string `json:"token_encryption_key_env"`
}

// BackendConfig points at the ScribeIt API.
type BackendConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	UploadTimeout  int    `json:"upload_timeout_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file yields the built-in defaults; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	baseDir := filepath.Dir(absPath)
	for name, db := range cfg.Databases {
		if isSQLite(name) && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) && !strings.HasPrefix(db.DSN, "file:") {
			db.DSN = filepath.Join(baseDir, db.DSN)
			cfg.Databases[name] = db
		}
	}
	if cfg.BasicConfig.SpoolDir != "" && !filepath.IsAbs(cfg.BasicConfig.SpoolDir) {
		cfg.BasicConfig.SpoolDir = filepath.Join(baseDir, cfg.BasicConfig.SpoolDir)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("SCRIBEIT_API_URL")); v != "" {
		c.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SCRIBEIT_ADDR")); v != "" {
		c.BasicConfig.ServerAddress = v
	}
}

func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 30
	}
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.SpoolDir == "" {
		c.BasicConfig.SpoolDir = "./data/spool"
	}
	if c.BasicConfig.SessionTTLMinutes <= 0 {
		c.BasicConfig.SessionTTLMinutes = 24 * 60
	}
	if c.BasicConfig.SessionCleanupCron == "" {
		c.BasicConfig.SessionCleanupCron = "@every 30m"
	}
	if c.BasicConfig.PollIntervalSeconds <= 0 {
		c.BasicConfig.PollIntervalSeconds = 5
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		c.BasicConfig.MaxWorkers = 8
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.Databases == nil {
		c.Databases = map[string]DatabaseConfig{}
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "./data/scribeit.db"}
	}
}

func isSQLite(name string) bool {
	name = strings.ToLower(name)
	return name == "sqlite" || name == "sqlite3"
}
