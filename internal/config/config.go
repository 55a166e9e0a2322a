// Package config resolves slotcache settings from defaults, an optional YAML
// file and SLOTCACHE_ environment variables. Command-line flags are applied
// on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SLOTCACHE_"

// Slot drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

var drivers = []string{DriverMemory, DriverFile, DriverRedis, DriverSQLite, DriverBolt, DriverPostgres}

type Config struct {
	Key         string         `yaml:"key" env:"KEY"`
	ExpireAfter time.Duration  `yaml:"expire_after" env:"EXPIRE_AFTER"`
	Slot        SlotConfig     `yaml:"slot" envPrefix:"SLOT_"`
	Snapshot    SnapshotConfig `yaml:"snapshot" envPrefix:"SNAPSHOT_"`
	Log         LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

type SlotConfig struct {
	Driver        string      `yaml:"driver" env:"DRIVER"`
	Dir           string      `yaml:"dir" env:"DIR"`
	Path          string      `yaml:"path" env:"PATH"`
	DSN           string      `yaml:"dsn" env:"DSN"`
	MaxValueBytes int         `yaml:"max_value_bytes" env:"MAX_VALUE_BYTES"`
	Redis         RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// SnapshotConfig controls RDB snapshots of the memory driver
type SnapshotConfig struct {
	Path         string        `yaml:"path" env:"PATH"`
	SaveInterval time.Duration `yaml:"save_interval" env:"SAVE_INTERVAL"`
	MinChanges   int64         `yaml:"min_changes" env:"MIN_CHANGES"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Key: "items",
		Slot: SlotConfig{
			Driver: DriverMemory,
			Dir:    "./data",
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "slotcache:",
			},
		},
		Snapshot: SnapshotConfig{
			Path:         "./data/dump.rdb",
			SaveInterval: 5 * time.Minute,
			MinChanges:   1,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load applies the YAML file at path (if any) and then the environment on
// top of the defaults. An explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SlotPath returns the database file for the sqlite and bolt drivers,
// defaulting to a file named after the driver inside Slot.Dir
func (c *Config) SlotPath() string {
	if c.Slot.Path != "" {
		return c.Slot.Path
	}
	return filepath.Join(c.Slot.Dir, "slotcache."+c.Slot.Driver)
}

// Validate checks the driver and the fields it requires
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Key) == "" {
		errs = append(errs, errors.New("key must not be empty"))
	}
	if c.ExpireAfter < 0 {
		errs = append(errs, errors.New("expire_after must not be negative"))
	}
	if c.Slot.MaxValueBytes < 0 {
		errs = append(errs, errors.New("slot.max_value_bytes must not be negative"))
	}

	switch c.Slot.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Slot.Dir == "" {
			errs = append(errs, errors.New("slot.dir is required for the file driver"))
		}
	case DriverRedis:
		if c.Slot.Redis.Addr == "" {
			errs = append(errs, errors.New("slot.redis.addr is required for the redis driver"))
		}
	case DriverSQLite, DriverBolt:
		if c.Slot.Path == "" && c.Slot.Dir == "" {
			errs = append(errs, fmt.Errorf("slot.path or slot.dir is required for the %s driver", c.Slot.Driver))
		}
	case DriverPostgres:
		if c.Slot.DSN == "" {
			errs = append(errs, errors.New("slot.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown slot driver %q (want one of %s)", c.Slot.Driver, strings.Join(drivers, ", ")))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
