// Package config loads the service configuration from a YAML file with
// .env loading and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default service configuration values.
const (
	defaultServiceName    = "studies-pipeline"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8080
	defaultLogLevel       = "info"
)

// Default database configuration values.
const (
	defaultDBHost         = "localhost"
	defaultDBPort         = 5432
	defaultDBUser         = "postgres"
	defaultDBName         = "clinical_trials"
	defaultDBSSLMode      = "disable"
	defaultDBMaxConns     = 25
	defaultDBMaxIdleConns = 5
	defaultDBConnLifetime = time.Hour
)

// Default pipeline configuration values.
const (
	defaultChunkSize  = 1000
	defaultEntryPoint = "serve"
)

// Config holds the application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig holds service identity and runtime settings.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `yaml:"port"`
	Debug   bool   `yaml:"debug"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string        `yaml:"host"`
	Port                  int           `yaml:"port"`
	User                  string        `yaml:"user"`
	Password              string        `yaml:"password"`
	Database              string        `yaml:"database"`
	SSLMode               string        `yaml:"sslmode"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxIdleConns          int           `yaml:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// PipelineConfig holds batch processing and staging settings.
type PipelineConfig struct {
	// EntryPoint selects what the process does: "serve" runs the HTTP
	// service, "stage-csv" stages a CSV file and exits.
	EntryPoint string `yaml:"entry_point"`
	// ChunkSize is the number of records processed per group.
	ChunkSize int `yaml:"chunk_size"`
	// EnableBackfill skips CSV rows whose row_id is already staged.
	EnableBackfill bool `yaml:"enable_backfill"`
	// FilePath is the CSV file staged by the stage-csv entry point.
	FilePath string `yaml:"file_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file, applies defaults, then env overrides.
// A missing config file is not an error; defaults and environment carry
// the configuration in that case.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	var cfg Config
	data, readErr := os.ReadFile(path)
	switch {
	case readErr == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(readErr):
		// Defaults plus environment only.
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, readErr)
	}

	cfg.setDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// GetConfigPath returns the config path from CONFIG_PATH or the default.
func GetConfigPath(defaultPath string) string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultPath
}

// loadEnvFiles loads .env.local then .env; missing files are ignored.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port %d out of range", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}

	if c.Pipeline.EntryPoint == "stage-csv" && c.Pipeline.FilePath == "" {
		return fmt.Errorf("pipeline.file_path is required for the stage-csv entry point")
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = defaultServiceName
	}
	if c.Service.Version == "" {
		c.Service.Version = defaultServiceVersion
	}
	if c.Service.Port == 0 {
		c.Service.Port = defaultServicePort
	}

	if c.Database.Host == "" {
		c.Database.Host = defaultDBHost
	}
	if c.Database.Port == 0 {
		c.Database.Port = defaultDBPort
	}
	if c.Database.User == "" {
		c.Database.User = defaultDBUser
	}
	if c.Database.Database == "" {
		c.Database.Database = defaultDBName
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = defaultDBSSLMode
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = defaultDBMaxConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaultDBMaxIdleConns
	}
	if c.Database.ConnectionMaxLifetime == 0 {
		c.Database.ConnectionMaxLifetime = defaultDBConnLifetime
	}

	if c.Pipeline.EntryPoint == "" {
		c.Pipeline.EntryPoint = defaultEntryPoint
	}
	if c.Pipeline.ChunkSize == 0 {
		c.Pipeline.ChunkSize = defaultChunkSize
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	setString(&c.Service.Name, "SERVICE_NAME")
	setInt(&c.Service.Port, "SERVICE_PORT")
	setBool(&c.Service.Debug, "APP_DEBUG")

	setString(&c.Database.Host, "POSTGRES_HOST")
	setInt(&c.Database.Port, "POSTGRES_PORT")
	setString(&c.Database.User, "POSTGRES_USER")
	setString(&c.Database.Password, "POSTGRES_PASSWORD")
	setString(&c.Database.Database, "POSTGRES_DB")
	setString(&c.Database.SSLMode, "POSTGRES_SSLMODE")

	setString(&c.Pipeline.EntryPoint, "PIPELINE_ENTRY_POINT")
	setInt(&c.Pipeline.ChunkSize, "PIPELINE_CHUNK_SIZE")
	setBool(&c.Pipeline.EnableBackfill, "PIPELINE_ENABLE_BACKFILL")
	setString(&c.Pipeline.FilePath, "PIPELINE_CSV_PATH")

	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func setInt(target *int, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*target = parsed
		}
	}
}

func setBool(target *bool, key string) {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		*target = val == "true" || val == "1" || val == "yes"
	}
}
