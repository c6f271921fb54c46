package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("RECON_DB_URL", "postgres://recon@localhost/recon")
	path := writeConfig(t, `
database:
  url: ${RECON_DB_URL}
  max_open_conns: 10
worker:
  poll_interval: 250ms
matching:
  document_tolerance: "0.10"
  commission_amounts: ["1.00", "2.00"]
  extra_holidays: ["06-24"]
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://recon@localhost/recon", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	// unset values keep their defaults
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 1, cfg.Worker.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	require.NoError(t, cfg.Validate())

	pc, err := cfg.Matching.ProcessorConfig()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.10").Equal(pc.Match.DocumentTolerance))
	assert.Len(t, pc.Match.Commission.FixedAmounts, 2)
	assert.NotEmpty(t, pc.Match.Commission.Keywords)

	cal, err := cfg.Matching.Calendar()
	require.NoError(t, err)
	assert.True(t, cal.IsHoliday(time.Date(2024, 6, 24, 0, 0, 0, 0, time.UTC)))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:recon.db")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("PORT", "9090")
	t.Setenv("JOB_POLL_INTERVAL_MS", "500")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("BATCH_PROGRESS_UPDATE_EVERY", "50")

	cfg := LoadFromEnv()
	assert.Equal(t, "file:recon.db", cfg.Database.URL)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)

	pc, err := cfg.Matching.ProcessorConfig()
	require.NoError(t, err)
	assert.Equal(t, 50, pc.ProgressEvery)
}

func TestLoadOrEnv_FallbackToEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://fallback")
	cfg := LoadOrEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, "postgres://fallback", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no url", func(c *Config) { c.Database.URL = "" }},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"no attempts", func(c *Config) { c.Worker.MaxAttempts = 0 }},
		{"bad tolerance", func(c *Config) { c.Matching.POSTolerance = "uno" }},
		{"negative tolerance", func(c *Config) { c.Matching.CashTolerance = "-1" }},
		{"bad fee", func(c *Config) { c.Matching.CommissionAmounts = []string{"x"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Database.URL = "postgres://x"
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMatchingConfig_Names(t *testing.T) {
	m := MatchingConfig{AliasFile: "../counterparty/testdata/aliases.yaml"}
	names, err := m.Names()
	require.NoError(t, err)
	assert.True(t, names.Matches("TIM", "Telecom Italia S.p.A."))

	_, err = MatchingConfig{AliasFile: "missing.yaml"}.Names()
	assert.Error(t, err)
}
