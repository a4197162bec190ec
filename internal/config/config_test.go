package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Data:    DataConfig{BasePath: "/some/path"},
		Records: RecordConfig{Backend: RecordBackendBadger, QuotaBytes: 1024},
		Media:   MediaConfig{Backend: MediaBackendSQLite},
		Sharing: SharingConfig{DefaultExpiryDays: 7},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"DEBUG", true},
		{"trace", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Backends(t *testing.T) {
	t.Run("unknown record backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Records.Backend = "localStorage"
		assert.ErrorContains(t, cfg.Validate(), "invalid record backend")
	})

	t.Run("redis requires address", func(t *testing.T) {
		cfg := validConfig()
		cfg.Records.Backend = RecordBackendRedis
		cfg.Records.RedisAddr = ""
		assert.ErrorContains(t, cfg.Validate(), "REDIS_ADDR")
	})

	t.Run("negative quota", func(t *testing.T) {
		cfg := validConfig()
		cfg.Records.QuotaBytes = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown media backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Media.Backend = "indexeddb"
		assert.ErrorContains(t, cfg.Validate(), "invalid media backend")
	})

	t.Run("minio requires endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Media.Backend = MediaBackendMinio
		cfg.Media.MinioBucket = "media"
		assert.ErrorContains(t, cfg.Validate(), "MINIO_ENDPOINT")

		cfg.Media.MinioEndpoint = "localhost:9000"
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidate_ShareExpiry(t *testing.T) {
	cfg := validConfig()
	cfg.Sharing.DefaultExpiryDays = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_LoginAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.LoginAttemptsPerMinute = 0
	assert.NoError(t, cfg.Validate())

	cfg.Auth.LoginAttemptsPerMinute = -1
	assert.ErrorContains(t, cfg.Validate(), "login attempts")
}

func TestValidate_EmptyDataPath(t *testing.T) {
	cfg := validConfig()
	cfg.Data.BasePath = ""
	assert.ErrorContains(t, cfg.Validate(), "data base path")
}

func TestExpandDataPath_EmptyUsesDefault(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.expandDataPath())

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "FlashDeck"), cfg.Data.BasePath)
}

func TestExpandDataPath_TildeExpansion(t *testing.T) {
	cfg := &Config{Data: DataConfig{BasePath: "~/decks"}}
	require.NoError(t, cfg.expandDataPath())

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "decks"), cfg.Data.BasePath)
}

func TestExpandDataPath_RelativePath(t *testing.T) {
	cfg := &Config{Data: DataConfig{BasePath: "relative/data"}}
	require.NoError(t, cfg.expandDataPath())

	assert.True(t, filepath.IsAbs(cfg.Data.BasePath))
	assert.Contains(t, cfg.Data.BasePath, "relative/data")
}

func TestDerivedPaths(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "/some/path/records", cfg.RecordPath())
	assert.Equal(t, "/some/path/media", cfg.MediaPath())
	assert.Equal(t, "/some/path/search", cfg.SearchPath())
	assert.Equal(t, "/some/path/backups", cfg.BackupPath())
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("FLASHDECK_TEST_KEY", "env-value")

	assert.Equal(t, "flag-value", getConfigValue("flag-value", "FLASHDECK_TEST_KEY", "default-value"))
	assert.Equal(t, "env-value", getConfigValue("", "FLASHDECK_TEST_KEY", "default-value"))
	assert.Equal(t, "default-value", getConfigValue("", "NONEXISTENT_KEY", "default-value"))
}

func TestGetIntConfigValue(t *testing.T) {
	t.Setenv("FLASHDECK_TEST_INT", "42")
	assert.Equal(t, 42, getIntConfigValue("", "FLASHDECK_TEST_INT", 7))
	assert.Equal(t, 3, getIntConfigValue("3", "FLASHDECK_TEST_INT", 7))

	t.Setenv("FLASHDECK_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getIntConfigValue("", "FLASHDECK_TEST_INT", 7))
}

func TestGetBoolConfigValue(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "YES"} {
		t.Setenv("FLASHDECK_TEST_BOOL", v)
		assert.True(t, getBoolConfigValue("", "FLASHDECK_TEST_BOOL", false), v)
	}
	t.Setenv("FLASHDECK_TEST_BOOL", "off")
	assert.False(t, getBoolConfigValue("", "FLASHDECK_TEST_BOOL", true))
	assert.True(t, getBoolConfigValue("", "FLASHDECK_UNSET_BOOL", true))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load([]string{"-data-path", dir, "-env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Data.BasePath)
	assert.Equal(t, RecordBackendBadger, cfg.Records.Backend)
	assert.Equal(t, MediaBackendSQLite, cfg.Media.Backend)
	assert.Equal(t, 5*1024*1024, cfg.Records.QuotaBytes)
	assert.Equal(t, 7, cfg.Sharing.DefaultExpiryDays)
	assert.True(t, cfg.Search.Enabled)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	content := `# FlashDeck settings
RECORD_BACKEND=memory
SHARE_EXPIRY_DAYS=30
MEDIA_BACKEND="filesystem"
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	// godotenv sets process env; t.Setenv registers cleanup for these keys.
	t.Setenv("RECORD_BACKEND", "")
	t.Setenv("SHARE_EXPIRY_DAYS", "")
	t.Setenv("MEDIA_BACKEND", "")
	require.NoError(t, os.Unsetenv("RECORD_BACKEND"))
	require.NoError(t, os.Unsetenv("SHARE_EXPIRY_DAYS"))
	require.NoError(t, os.Unsetenv("MEDIA_BACKEND"))

	cfg, err := Load([]string{"-data-path", dir, "-env-file", envFile})
	require.NoError(t, err)

	assert.Equal(t, RecordBackendMemory, cfg.Records.Backend)
	assert.Equal(t, 30, cfg.Sharing.DefaultExpiryDays)
	assert.Equal(t, MediaBackendFilesystem, cfg.Media.Backend)
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECORD_BACKEND", "redis")

	cfg, err := Load([]string{
		"-data-path", dir,
		"-env-file", filepath.Join(dir, "missing.env"),
		"-record-backend", "memory",
	})
	require.NoError(t, err)
	assert.Equal(t, RecordBackendMemory, cfg.Records.Backend)
}

func TestLoad_EnvFileDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SHARE_EXPIRY_DAYS=30\n"), 0o644))
	t.Setenv("SHARE_EXPIRY_DAYS", "3")

	cfg, err := Load([]string{"-data-path", dir, "-env-file", envFile})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Sharing.DefaultExpiryDays)
}

func TestLoad_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := Load([]string{
		"-data-path", dir,
		"-env-file", filepath.Join(dir, "missing.env"),
		"-media-backend", "cloud",
	})
	assert.ErrorContains(t, err, "config validation failed")
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestLoad_KeepsPositionalArgs(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load([]string{
		"-data-path", dir,
		"-env-file", filepath.Join(dir, "missing.env"),
		"export", "deck_123",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"export", "deck_123"}, cfg.Args)
}
