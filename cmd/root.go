package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"slotcache/internal/config"
	"slotcache/internal/logger"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "slotcache",
		Short: "A typed, expiring JSON cache on top of a string key/value slot",
		Long: `slotcache keeps one JSON object or array under a key of a string-only
backing slot and manipulates it as a typed collection.

Slots: memory (optionally snapshotted to an RDB file), file (one file per
key, shared between processes), redis, sqlite, bolt and postgres.

Examples:
  slotcache --driver file --dir ./data insert '{"id":1,"title":"write"}'
  slotcache --driver file --dir ./data find --where id=1
  slotcache --driver file --dir ./data watch`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("key", "items", "Slot key holding the payload")
	flags.Duration("expire-after", 0, "Rolling TTL since the last write (0 disables)")

	// slot
	flags.String("driver", config.DriverMemory, "Slot driver (memory, file, redis, sqlite, bolt, postgres)")
	flags.String("dir", "./data", "Directory for the file driver and default sqlite/bolt files")
	flags.String("path", "", "Database file for the sqlite and bolt drivers")
	flags.String("dsn", "", "Postgres DSN")
	flags.Int("max-value-bytes", 0, "Reject payloads larger than this many bytes (memory and file drivers)")
	flags.String("redis-addr", "127.0.0.1:6379", "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.String("redis-prefix", "slotcache:", "Redis key prefix")

	// snapshot
	flags.String("snapshot", "./data/dump.rdb", "RDB snapshot for the memory driver (empty disables)")
	flags.Duration("save-interval", 5*time.Minute, "Background snapshot interval")
	flags.Int64("min-changes", 1, "Minimum changes before a background snapshot")

	// general
	flags.String("log-level", "warn", "Log level (debug, info, warn, error, fatal)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.Bool("metrics", false, "Write Prometheus metrics to stderr on exit")

	root.AddCommand(
		newGetCmd(),
		newSetCmd(),
		newInsertCmd(),
		newCountCmd(),
		newClearCmd(),
		newRemoveCmd(),
		newUpdateCmd(),
		newReplaceCmd(),
		newFindCmd(),
		newFilterCmd(),
		newSortCmd(),
		newFetchCmd(),
		newWatchCmd(),
		newSnapshotCmd(),
		newBenchmarkCmd(),
		newShellCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute adds child commands to root and sets flags appropriately.
// Called by main.main(). Only needs to happen once to rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig layers changed command-line flags over the file and
// environment configuration
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(getStringFlag(cmd, "config", ""))
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("key") {
		cfg.Key, _ = cmd.Flags().GetString("key")
	}
	if changed("expire-after") {
		cfg.ExpireAfter = getDurationFlag(cmd, "expire-after", 0)
	}
	if changed("driver") {
		cfg.Slot.Driver = getStringFlag(cmd, "driver", config.DriverMemory)
	}
	if changed("dir") {
		cfg.Slot.Dir = getStringFlag(cmd, "dir", cfg.Slot.Dir)
	}
	if changed("path") {
		cfg.Slot.Path = getStringFlag(cmd, "path", "")
	}
	if changed("dsn") {
		cfg.Slot.DSN = getStringFlag(cmd, "dsn", "")
	}
	if changed("max-value-bytes") {
		cfg.Slot.MaxValueBytes = getIntFlag(cmd, "max-value-bytes", 0)
	}
	if changed("redis-addr") {
		cfg.Slot.Redis.Addr = getStringFlag(cmd, "redis-addr", cfg.Slot.Redis.Addr)
	}
	if changed("redis-password") {
		cfg.Slot.Redis.Password = getStringFlag(cmd, "redis-password", "")
	}
	if changed("redis-db") {
		cfg.Slot.Redis.DB = getIntFlag(cmd, "redis-db", 0)
	}
	if changed("redis-prefix") {
		cfg.Slot.Redis.Prefix = getStringFlag(cmd, "redis-prefix", cfg.Slot.Redis.Prefix)
	}
	if changed("snapshot") {
		cfg.Snapshot.Path, _ = cmd.Flags().GetString("snapshot")
	}
	if changed("save-interval") {
		cfg.Snapshot.SaveInterval = getDurationFlag(cmd, "save-interval", cfg.Snapshot.SaveInterval)
	}
	if changed("min-changes") {
		cfg.Snapshot.MinChanges = getInt64Flag(cmd, "min-changes", cfg.Snapshot.MinChanges)
	}
	if changed("log-level") {
		cfg.Log.Level = getStringFlag(cmd, "log-level", cfg.Log.Level)
	}
	if changed("log-format") {
		cfg.Log.Format = getStringFlag(cmd, "log-format", cfg.Log.Format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Init(logger.LogLevel(cfg.Log.Level))
	logger.SetFormat(logger.Format(cfg.Log.Format))
	return cfg, nil
}

// Helper functions for flag parsing
func getStringFlag(cmd *cobra.Command, name, defaultValue string) string {
	if value, err := cmd.Flags().GetString(name); err == nil && value != "" {
		return value
	}
	return defaultValue
}

func getBoolFlag(cmd *cobra.Command, name string) bool {
	if value, err := cmd.Flags().GetBool(name); err == nil {
		return value
	}
	return false
}

func getIntFlag(cmd *cobra.Command, name string, defaultValue int) int {
	if value, err := cmd.Flags().GetInt(name); err == nil {
		return value
	}
	return defaultValue
}

func getInt64Flag(cmd *cobra.Command, name string, defaultValue int64) int64 {
	if value, err := cmd.Flags().GetInt64(name); err == nil {
		return value
	}
	return defaultValue
}

func getDurationFlag(cmd *cobra.Command, name string, defaultValue time.Duration) time.Duration {
	if value, err := cmd.Flags().GetDuration(name); err == nil {
		return value
	}
	return defaultValue
}
