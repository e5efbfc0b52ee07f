package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(512), cfg.Server.MaxBodySizeKB)
	assert.Equal(t, "ironlog", cfg.MongoDB.Database)
	assert.False(t, cfg.OTEL.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.SampleRatio)
	assert.Equal(t, 1, cfg.Progress.DefaultRestDaysPerWeek)
	assert.Equal(t, "0 5 0 * * *", cfg.Progress.StreakExpiryCron)
	assert.Equal(t, 10*time.Minute, cfg.Progress.RebuildTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Progress.IdempotencyTTL)
	assert.Equal(t, 10000, cfg.Progress.StoreCacheSize)
	assert.Equal(t, 15*time.Minute, cfg.Progress.StoreMaxAge)
	assert.Equal(t, "ironlog-exports", cfg.S3.Bucket)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_REST_DAYS_PER_WEEK", "2")
	t.Setenv("STREAK_TIMEZONE", "Asia/Jakarta")
	t.Setenv("RECORDS_CACHE_TTL", "30s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otlp.example.com")
	// unparsable values fall back to the default
	t.Setenv("REBUILD_TIMEOUT", "ten minutes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Progress.DefaultRestDaysPerWeek)
	assert.Equal(t, 30*time.Second, cfg.Progress.RecordsCacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.Progress.RebuildTimeout)
	assert.True(t, cfg.OTEL.Enabled)

	loc, err := cfg.Progress.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT:      JWTConfig{Secret: "secret"},
			Progress: ProgressConfig{DefaultRestDaysPerWeek: 1, StreakTimezone: "UTC", StoreCacheSize: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"otel without endpoint", func(c *Config) { c.OTEL.Enabled = true }, "OTEL_EXPORTER_OTLP_ENDPOINT"},
		{"too many rest days", func(c *Config) { c.Progress.DefaultRestDaysPerWeek = 8 }, "DEFAULT_REST_DAYS_PER_WEEK"},
		{"negative rest days", func(c *Config) { c.Progress.DefaultRestDaysPerWeek = -1 }, "DEFAULT_REST_DAYS_PER_WEEK"},
		{"sample ratio above one", func(c *Config) { c.OTEL.SampleRatio = 1.5 }, "OTEL_SAMPLE_RATIO"},
		{"empty store cache", func(c *Config) { c.Progress.StoreCacheSize = 0 }, "RECORD_STORE_CACHE_SIZE"},
		{"unknown timezone", func(c *Config) { c.Progress.StreakTimezone = "Mars/Olympus" }, "STREAK_TIMEZONE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
