// Package config loads the service configuration.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} references expanded
//  2. Environment variables (fallback), after reading an optional .env file
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/calendar"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/counterparty"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Worker   WorkerConfig   `yaml:"worker"`
	Redis    RedisConfig    `yaml:"redis"`
	Matching MatchingConfig `yaml:"matching"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3".
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type ServerConfig struct {
	Port           string `yaml:"port"`
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type WorkerConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// RedisConfig enables the cross-process run lock. An empty address keeps
// the lock local to the process.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// MatchingConfig overrides the engine defaults. Empty values keep the default.
type MatchingConfig struct {
	DocumentTolerance      string   `yaml:"document_tolerance"`
	POSTolerance           string   `yaml:"pos_tolerance"`
	CashTolerance          string   `yaml:"cash_tolerance"`
	CommissionAmounts      []string `yaml:"commission_amounts"`
	CommissionMax          string   `yaml:"commission_max"`
	FeeKeywords            []string `yaml:"fee_keywords"`
	DepositKeywords        []string `yaml:"deposit_keywords"`
	BankOriginMethods      []string `yaml:"bank_origin_methods"`
	PureAmountMaxDays      int      `yaml:"pure_amount_max_days"`
	PureAmountMaxDaysAfter int      `yaml:"pure_amount_max_days_after"`
	ProgressEvery          int      `yaml:"progress_every"`
	AliasFile              string   `yaml:"alias_file"`
	ExtraHolidays          []string `yaml:"extra_holidays"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used for anything a file or the
// environment leaves unset.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
			AutoMigrate:     true,
		},
		Server: ServerConfig{
			Port:           "8080",
			UploadDir:      "./data/uploads",
			MaxUploadBytes: 20 << 20,
		},
		Worker: WorkerConfig{
			PollInterval:   time.Second,
			StaleThreshold: 10 * time.Minute,
			MaxAttempts:    1,
		},
		Redis: RedisConfig{
			LockTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses the config file on top of Defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() *Config {
	cfg := Defaults()

	cfg.Database.Driver = getEnv("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MaxOpenConns = getEnvInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.UploadDir = getEnv("UPLOAD_DIR", cfg.Server.UploadDir)
	cfg.Server.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(cfg.Server.MaxUploadBytes)))

	cfg.Worker.PollInterval = time.Duration(getEnvInt("JOB_POLL_INTERVAL_MS", int(cfg.Worker.PollInterval/time.Millisecond))) * time.Millisecond

	cfg.Redis.Address = os.Getenv("REDIS_ADDRESS")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	cfg.Matching.ProgressEvery = getEnvInt("BATCH_PROGRESS_UPDATE_EVERY", 0)
	cfg.Matching.AliasFile = os.Getenv("ALIAS_FILE")
	if v := os.Getenv("EXTRA_HOLIDAYS"); v != "" {
		cfg.Matching.ExtraHolidays = strings.Split(v, ",")
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	return &cfg
}

// LoadOrEnv reads .env when present, then tries the YAML file at path and
// falls back to environment variables.
func LoadOrEnv(path string) *Config {
	_ = godotenv.Load()
	if path != "" {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	return LoadFromEnv()
}

// Validate reports settings the services cannot start without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (DATABASE_URL)")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker max_attempts must be at least 1")
	}
	if _, err := c.Matching.ProcessorConfig(); err != nil {
		return err
	}
	return nil
}

// ProcessorConfig applies the overrides to processor.DefaultConfig.
func (m MatchingConfig) ProcessorConfig() (processor.Config, error) {
	cfg := processor.DefaultConfig()

	for _, t := range []struct {
		name  string
		value string
		dest  *decimal.Decimal
	}{
		{"document_tolerance", m.DocumentTolerance, &cfg.Match.DocumentTolerance},
		{"pos_tolerance", m.POSTolerance, &cfg.Match.POSTolerance},
		{"cash_tolerance", m.CashTolerance, &cfg.Match.CashTolerance},
		{"commission_max", m.CommissionMax, &cfg.Match.Commission.MaxAmount},
	} {
		if t.value == "" {
			continue
		}
		d, err := decimal.NewFromString(t.value)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", t.name, t.value, err)
		}
		if d.IsNegative() {
			return cfg, fmt.Errorf("%s must not be negative", t.name)
		}
		*t.dest = d
	}

	if len(m.CommissionAmounts) > 0 {
		amounts := make([]decimal.Decimal, 0, len(m.CommissionAmounts))
		for _, s := range m.CommissionAmounts {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return cfg, fmt.Errorf("invalid commission amount %q: %w", s, err)
			}
			amounts = append(amounts, d)
		}
		cfg.Match.Commission.FixedAmounts = amounts
	}
	if len(m.FeeKeywords) > 0 {
		cfg.Match.Commission.Keywords = m.FeeKeywords
	}
	if len(m.DepositKeywords) > 0 {
		cfg.Match.DepositKeywords = m.DepositKeywords
	}
	if len(m.BankOriginMethods) > 0 {
		cfg.BankOriginMethods = m.BankOriginMethods
	}
	if m.PureAmountMaxDays > 0 {
		cfg.Match.PureAmountMaxDays = m.PureAmountMaxDays
	}
	if m.PureAmountMaxDaysAfter > 0 {
		cfg.Match.PureAmountMaxDaysAfter = m.PureAmountMaxDaysAfter
	}
	if m.ProgressEvery > 0 {
		cfg.ProgressEvery = m.ProgressEvery
	}
	return cfg, nil
}

// Calendar builds the settlement calendar with the configured local holidays.
func (m MatchingConfig) Calendar() (*calendar.Calendar, error) {
	days := make([]string, 0, len(m.ExtraHolidays))
	for _, d := range m.ExtraHolidays {
		if d = strings.TrimSpace(d); d != "" {
			days = append(days, d)
		}
	}
	return calendar.New(days...)
}

// Names builds the counterparty matcher from the alias file, if any.
func (m MatchingConfig) Names() (*counterparty.Matcher, error) {
	aliases, err := counterparty.LoadAliases(m.AliasFile)
	if err != nil {
		return nil, err
	}
	return counterparty.NewMatcher(aliases), nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
