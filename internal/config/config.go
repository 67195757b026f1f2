// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order of precedence (lowest first).
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// ConfigPathEnv names the variable holding the YAML config file path.
const ConfigPathEnv = "DEFINITION_MANAGER_CONFIG"

// DefaultSystemRoles are granted every application regardless of its own
// role access list.
var DefaultSystemRoles = []string{
	"6cc04894-a61b-4fb5-b3e5-b8c3f78bd331",
	"dd6c2d34-0982-48b7-bc44-2456474edbea",
}

// DatabaseConfig holds the MySQL connection settings shared by all tenants.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SiteDatabase string `yaml:"site_database"`
	TenantPrefix string `yaml:"tenant_prefix"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig enables shared freshness stamps when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	PersistConcurrency   int `yaml:"persist_concurrency"`
	SchemaConcurrency    int `yaml:"schema_concurrency"`
	RemainingConcurrency int `yaml:"remaining_concurrency"`
	FileConcurrency      int `yaml:"file_concurrency"`
	DeadlockMaxAttempts  int `yaml:"deadlock_max_attempts"`
	// LockWaitTimeout is applied to the schema session for the whole run.
	LockWaitTimeoutSeconds int `yaml:"lock_wait_timeout"`
}

// Config holds all service settings.
type Config struct {
	Enabled     bool           `yaml:"enabled"`
	Port        string         `yaml:"port"`
	UploadDir   string         `yaml:"upload_dir"`
	SystemRoles []string       `yaml:"system_roles"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Import      ImportConfig   `yaml:"import"`

	configFilePath string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Enabled:     true,
		Port:        "3001",
		UploadDir:   "uploads",
		SystemRoles: append([]string(nil), DefaultSystemRoles...),
		Database: DatabaseConfig{
			Host:         "127.0.0.1",
			Port:         "3306",
			User:         "root",
			SiteDatabase: "appbuilder-admin",
			TenantPrefix: "appbuilder-",
			MaxOpenConns: 20,
		},
		Import: ImportConfig{
			PersistConcurrency:     8,
			SchemaConcurrency:      1,
			RemainingConcurrency:   1,
			FileConcurrency:        4,
			DeadlockMaxAttempts:    4,
			LockWaitTimeoutSeconds: 120,
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present; it never overrides variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("📄 Loaded .env")
	}

	cfg := Default()
	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.configFilePath = path
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.UploadDir, "UPLOAD_DIR")
	setString(&c.Database.Host, "MYSQL_HOST")
	setString(&c.Database.Port, "MYSQL_PORT")
	setString(&c.Database.User, "MYSQL_USER")
	setString(&c.Database.Password, "MYSQL_PASSWORD")
	setString(&c.Database.SiteDatabase, "SITE_DATABASE")
	setString(&c.Database.TenantPrefix, "TENANT_DATABASE_PREFIX")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	if val := os.Getenv("SYSTEM_ROLE_IDS"); val != "" {
		c.SystemRoles = splitAndTrim(val)
	}
	if val := os.Getenv("DEFINITION_MANAGER_ENABLE"); val != "" {
		c.Enabled = val == "true" || val == "1"
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"MYSQL_MAX_OPEN_CONNS", &c.Database.MaxOpenConns},
		{"REDIS_DB", &c.Redis.DB},
		{"IMPORT_PERSIST_CONCURRENCY", &c.Import.PersistConcurrency},
		{"IMPORT_SCHEMA_CONCURRENCY", &c.Import.SchemaConcurrency},
		{"IMPORT_REMAINING_CONCURRENCY", &c.Import.RemainingConcurrency},
		{"IMPORT_FILE_CONCURRENCY", &c.Import.FileConcurrency},
		{"DEADLOCK_MAX_ATTEMPTS", &c.Import.DeadlockMaxAttempts},
		{"IMPORT_LOCK_WAIT_TIMEOUT", &c.Import.LockWaitTimeoutSeconds},
	}
	for _, it := range ints {
		val := os.Getenv(it.env)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return apperrors.NewValidationError(it.env, fmt.Sprintf("expected an integer, got %q", val))
		}
		*it.dst = n
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		val  int
	}{
		{"import.persist_concurrency", c.Import.PersistConcurrency},
		{"import.schema_concurrency", c.Import.SchemaConcurrency},
		{"import.remaining_concurrency", c.Import.RemainingConcurrency},
		{"import.file_concurrency", c.Import.FileConcurrency},
		{"import.deadlock_max_attempts", c.Import.DeadlockMaxAttempts},
	}
	for _, ch := range checks {
		if ch.val < 1 {
			return apperrors.NewValidationError(ch.name, "must be at least 1")
		}
	}
	if c.Import.LockWaitTimeoutSeconds < 0 {
		return apperrors.NewValidationError("import.lock_wait_timeout", "must not be negative")
	}
	if c.Database.TenantPrefix == "" {
		return apperrors.NewValidationError("database.tenant_prefix", "is required")
	}
	return nil
}

// LockWaitTimeout returns the import session lock wait timeout.
func (c *Config) LockWaitTimeout() time.Duration {
	return time.Duration(c.Import.LockWaitTimeoutSeconds) * time.Second
}

// TenantDatabase returns the schema name of a tenant.
func (c *Config) TenantDatabase(tenantID string) string {
	return c.Database.TenantPrefix + tenantID
}

// ConfigFilePath returns the YAML file the config was read from, if any.
func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

func setString(dst *string, env string) {
	if val := os.Getenv(env); val != "" {
		*dst = val
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
