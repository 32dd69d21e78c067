// Package config holds the complete application configuration.
// Values come from an optional YAML file, overridden by environment
// variables declared in `env` struct tags, with `default` tags as the
// final fallback.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Library  LibraryConfig  `yaml:"library" json:"library"`
	Import   ImportConfig   `yaml:"import" json:"import"`
	Watcher  WatcherConfig  `yaml:"watcher" json:"watcher"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"DESIGNVAULT_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"DESIGNVAULT_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"DESIGNVAULT_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"DESIGNVAULT_WRITE_TIMEOUT" default:"30s"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"DESIGNVAULT_ENABLE_CORS" default:"true"`
}

// DatabaseConfig holds persistence configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Host         string `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port         int    `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username     string `yaml:"username" json:"username" env:"POSTGRES_USER" default:"designvault"`
	Password     string `yaml:"password" json:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"POSTGRES_DB" default:"designvault"`
	DataDir      string `yaml:"data_dir" json:"data_dir" env:"DESIGNVAULT_DATA_DIR" default:"./designvault-data"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"DESIGNVAULT_DATABASE_PATH"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// LibraryConfig holds design library storage configuration
type LibraryConfig struct {
	StorageDir     string `yaml:"storage_dir" json:"storage_dir" env:"DESIGNVAULT_STORAGE_DIR" default:"./designvault-data/files"`
	PreviewDir     string `yaml:"preview_dir" json:"preview_dir" env:"DESIGNVAULT_PREVIEW_DIR" default:"./designvault-data/previews"`
	AutoPublish    bool   `yaml:"auto_publish" json:"auto_publish" env:"DESIGNVAULT_AUTO_PUBLISH" default:"false"`
	PhashChunkSize int    `yaml:"phash_chunk_size" json:"phash_chunk_size" env:"DESIGNVAULT_PHASH_CHUNK_SIZE" default:"1000"`
}

// ImportConfig holds import engine configuration
type ImportConfig struct {
	MaxActiveJobs     int           `yaml:"max_active_jobs" json:"max_active_jobs" env:"DESIGNVAULT_MAX_ACTIVE_JOBS" default:"4"`
	SchedulerInterval time.Duration `yaml:"scheduler_interval" json:"scheduler_interval" env:"DESIGNVAULT_SCHEDULER_INTERVAL" default:"30s"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" env:"DESIGNVAULT_RETRY_BASE_DELAY" default:"250ms"`
	MonitorInterval   time.Duration `yaml:"monitor_interval" json:"monitor_interval" env:"DESIGNVAULT_MONITOR_INTERVAL" default:"10s"`
	AutoResume        bool          `yaml:"auto_resume" json:"auto_resume" env:"DESIGNVAULT_AUTO_RESUME" default:"true"`
}

// WatcherConfig holds drop-folder monitoring configuration
type WatcherConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled" env:"DESIGNVAULT_WATCHER_ENABLED" default:"false"`
	DropDirs       []string      `yaml:"drop_dirs" json:"drop_dirs" env:"DESIGNVAULT_DROP_DIRS"`
	SettleInterval time.Duration `yaml:"settle_interval" json:"settle_interval" env:"DESIGNVAULT_SETTLE_INTERVAL" default:"2s"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"DESIGNVAULT_LOG_LEVEL" default:"info"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Load reads configuration from the given YAML path (may be empty),
// then applies env overrides and defaults, and installs the result
// as the process configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyTags(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Get returns the process configuration, loading defaults on first use.
func Get() *Config {
	mu.RLock()
	c := current
	mu.RUnlock()
	if c != nil {
		return c
	}
	c, err := Load(os.Getenv("DESIGNVAULT_CONFIG"))
	if err != nil {
		// Defaults alone cannot fail; a broken file should not take
		// the process down at Get time.
		c = &Config{}
		applyTags(reflect.ValueOf(c).Elem())
		mu.Lock()
		current = c
		mu.Unlock()
	}
	return c
}

// applyTags walks the config struct applying env overrides where set,
// then default tags for any field still at its zero value.
func applyTags(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		structField := t.Field(i)

		if field.Kind() == reflect.Struct && structField.Type != reflect.TypeOf(time.Duration(0)) {
			if err := applyTags(field); err != nil {
				return err
			}
			continue
		}

		if env := structField.Tag.Get("env"); env != "" {
			if raw, ok := os.LookupEnv(env); ok {
				if err := setField(field, raw); err != nil {
					return fmt.Errorf("invalid value for %s: %w", env, err)
				}
				continue
			}
		}

		if def := structField.Tag.Get("default"); def != "" && field.IsZero() {
			if err := setField(field, def); err != nil {
				return fmt.Errorf("invalid default for %s: %w", structField.Name, err)
			}
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
