// Package config assembles server settings from an optional YAML file and
// TRUTHPREF_* environment variables. Environment wins.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/truthpref/internal/services"
	"github.com/soaringjerry/truthpref/internal/utils"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Addr              string `yaml:"addr"`
	DBDriver          string `yaml:"db_driver"`
	SQLitePath        string `yaml:"sqlite_path"`
	MigrationsDir     string `yaml:"migrations_dir"`
	SnapshotPath      string `yaml:"snapshot_path"`
	PostgresDSN       string `yaml:"postgres_dsn"`
	ExpectedAnswers   int    `yaml:"expected_answers"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	JWTSecret         string `yaml:"jwt_secret"`
	StaticDir         string `yaml:"static_dir"`
	AllowedOrigins    string `yaml:"allowed_origins"`
	LogMode           string `yaml:"log_mode"`
	Commit            string `yaml:"-"`
	BuildTime         string `yaml:"-"`
}

func Defaults() Config {
	return Config{
		Addr:            ":3001",
		DBDriver:        DriverSQLite,
		SQLitePath:      "data/truthpref.db",
		ExpectedAnswers: services.DefaultExpectedAnswers,
		AllowedOrigins:  "*",
		LogMode:         "prod",
	}
}

// Load reads TRUTHPREF_CONFIG_FILE when set, then applies env overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := utils.SafeEnv("TRUTHPREF_CONFIG_FILE", ""); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Addr = utils.SafeEnv("TRUTHPREF_ADDR", c.Addr)
	c.DBDriver = strings.ToLower(utils.SafeEnv("TRUTHPREF_DB_DRIVER", c.DBDriver))
	c.SQLitePath = utils.SafeEnv("TRUTHPREF_SQLITE_PATH", c.SQLitePath)
	c.MigrationsDir = utils.SafeEnv("TRUTHPREF_MIGRATIONS_DIR", c.MigrationsDir)
	c.SnapshotPath = utils.SafeEnv("TRUTHPREF_SNAPSHOT_PATH", c.SnapshotPath)
	c.PostgresDSN = utils.SafeEnv("TRUTHPREF_POSTGRES_DSN", c.PostgresDSN)
	c.ExpectedAnswers = utils.Int("TRUTHPREF_EXPECTED_ANSWERS", c.ExpectedAnswers)
	c.AdminPasswordHash = utils.SafeEnv("TRUTHPREF_ADMIN_PASSWORD_HASH", c.AdminPasswordHash)
	c.JWTSecret = utils.SafeEnv("TRUTHPREF_JWT_SECRET", c.JWTSecret)
	c.StaticDir = utils.SafeEnv("TRUTHPREF_STATIC_DIR", c.StaticDir)
	c.AllowedOrigins = utils.SafeEnv("TRUTHPREF_ALLOWED_ORIGINS", c.AllowedOrigins)
	c.LogMode = utils.SafeEnv("TRUTHPREF_LOG_MODE", c.LogMode)
	c.Commit = utils.SafeEnv("TRUTHPREF_COMMIT", c.Commit)
	c.BuildTime = utils.SafeEnv("TRUTHPREF_BUILD_TIME", c.BuildTime)
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite driver needs TRUTHPREF_SQLITE_PATH")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres driver needs TRUTHPREF_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	if c.ExpectedAnswers <= 0 {
		return fmt.Errorf("expected answers must be positive, got %d", c.ExpectedAnswers)
	}
	if c.AdminPasswordHash != "" && c.JWTSecret == "" {
		return fmt.Errorf("admin access needs TRUTHPREF_JWT_SECRET")
	}
	return nil
}

// Origins splits AllowedOrigins on commas.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
