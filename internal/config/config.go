// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Record store backends.
const (
	RecordBackendBadger = "badger"
	RecordBackendRedis  = "redis"
	RecordBackendMemory = "memory"
)

// Media store backends.
const (
	MediaBackendSQLite     = "sqlite"
	MediaBackendFilesystem = "filesystem"
	MediaBackendMinio      = "minio"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Records RecordConfig
	Media   MediaConfig
	Sharing SharingConfig
	Search  SearchConfig
	Auth    AuthConfig

	// Args holds the positional arguments left after flag parsing.
	Args []string
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the on-disk location of every local store.
type DataConfig struct {
	BasePath string
}

// RecordConfig selects and tunes the record store backend.
type RecordConfig struct {
	Backend string
	// QuotaBytes caps a single serialized collection document (0 = unlimited).
	QuotaBytes  int
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// MediaConfig selects and tunes the media store backend.
type MediaConfig struct {
	Backend        string
	CacheBytes     int64
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// SharingConfig holds share code defaults.
type SharingConfig struct {
	DefaultExpiryDays int
}

// SearchConfig toggles the deck search index.
type SearchConfig struct {
	Enabled bool
}

// AuthConfig holds login settings.
type AuthConfig struct {
	// LoginAttemptsPerMinute throttles logins per email address (0 = unlimited).
	LoginAttemptsPerMinute int
}

// RecordPath is where the badger record store lives.
func (c *Config) RecordPath() string {
	return filepath.Join(c.Data.BasePath, "records")
}

// MediaPath is where file-based media backends keep their data.
func (c *Config) MediaPath() string {
	return filepath.Join(c.Data.BasePath, "media")
}

// SearchPath is where the search index lives.
func (c *Config) SearchPath() string {
	return filepath.Join(c.Data.BasePath, "search")
}

// BackupPath is where profile backups are written.
func (c *Config) BackupPath() string {
	return filepath.Join(c.Data.BasePath, "backups")
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("flashdeck", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for local stores")
	recordBackend := fs.String("record-backend", "", "Record store backend (badger, redis, memory)")
	recordQuota := fs.String("record-quota", "", "Max bytes per collection document (default: 5242880)")
	redisAddr := fs.String("redis-addr", "", "Redis address for the redis record backend")
	mediaBackend := fs.String("media-backend", "", "Media store backend (sqlite, filesystem, minio)")
	mediaCache := fs.String("media-cache", "", "Hydration cache size in bytes (default: 33554432)")
	shareExpiry := fs.String("share-expiry-days", "", "Default share code lifetime in days (default: 7)")
	searchEnabled := fs.String("search", "", "Enable the deck search index (default: true)")
	loginRate := fs.String("login-attempts-per-minute", "", "Login attempts allowed per email per minute, 0 for unlimited (default: 10)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists. godotenv.Load never overrides variables
	// that are already set, so real env vars keep precedence.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Records: RecordConfig{
			Backend:     getConfigValue(*recordBackend, "RECORD_BACKEND", RecordBackendBadger),
			QuotaBytes:  getIntConfigValue(*recordQuota, "RECORD_QUOTA_BYTES", 5*1024*1024),
			RedisAddr:   getConfigValue(*redisAddr, "REDIS_ADDR", "localhost:6379"),
			RedisDB:     getIntConfigValue("", "REDIS_DB", 0),
			RedisPrefix: getConfigValue("", "REDIS_PREFIX", "flashdeck:"),
		},
		Media: MediaConfig{
			Backend:        getConfigValue(*mediaBackend, "MEDIA_BACKEND", MediaBackendSQLite),
			CacheBytes:     int64(getIntConfigValue(*mediaCache, "MEDIA_CACHE_BYTES", 32*1024*1024)),
			MinioEndpoint:  getConfigValue("", "MINIO_ENDPOINT", ""),
			MinioAccessKey: getConfigValue("", "MINIO_ACCESS_KEY", ""),
			MinioSecretKey: getConfigValue("", "MINIO_SECRET_KEY", ""),
			MinioBucket:    getConfigValue("", "MINIO_BUCKET", "flashdeck-media"),
			MinioUseSSL:    getBoolConfigValue("", "MINIO_USE_SSL", false),
		},
		Sharing: SharingConfig{
			DefaultExpiryDays: getIntConfigValue(*shareExpiry, "SHARE_EXPIRY_DAYS", 7),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", true),
		},
		Auth: AuthConfig{
			LoginAttemptsPerMinute: getIntConfigValue(*loginRate, "LOGIN_ATTEMPTS_PER_MINUTE", 10),
		},
		Args: fs.Args(),
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	switch c.Records.Backend {
	case RecordBackendBadger, RecordBackendMemory:
	case RecordBackendRedis:
		if c.Records.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis record backend")
		}
	default:
		return fmt.Errorf("invalid record backend: %s (must be badger, redis, or memory)", c.Records.Backend)
	}
	if c.Records.QuotaBytes < 0 {
		return fmt.Errorf("record quota cannot be negative: %d", c.Records.QuotaBytes)
	}

	switch c.Media.Backend {
	case MediaBackendSQLite, MediaBackendFilesystem:
	case MediaBackendMinio:
		if c.Media.MinioEndpoint == "" || c.Media.MinioBucket == "" {
			return errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio media backend")
		}
	default:
		return fmt.Errorf("invalid media backend: %s (must be sqlite, filesystem, or minio)", c.Media.Backend)
	}

	if c.Auth.LoginAttemptsPerMinute < 0 {
		return fmt.Errorf("login attempts per minute cannot be negative: %d", c.Auth.LoginAttemptsPerMinute)
	}

	if c.Sharing.DefaultExpiryDays <= 0 {
		return fmt.Errorf("share expiry must be at least one day, got %d", c.Sharing.DefaultExpiryDays)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute, defaulting to ~/FlashDeck.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "FlashDeck")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}
