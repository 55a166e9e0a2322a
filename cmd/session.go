package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"slotcache/internal/config"
	"slotcache/internal/logger"
	"slotcache/internal/persistence"
	"slotcache/internal/slot"
	"slotcache/internal/stats"
	"slotcache/internal/store"
)

// session is one command invocation: a configured slot, the store bound to
// the configured key, and whatever must be closed afterwards
type session struct {
	cfg       *config.Config
	stats     *stats.Stats
	store     *store.Store
	snapshots *persistence.Manager
	closers   []func() error
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	sess := &session{cfg: cfg, stats: stats.New()}
	raw, err := sess.openSlot()
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	s, err := store.New(store.Config{
		Slot:        slot.NewInstrumented(raw, sess.stats),
		Key:         cfg.Key,
		ExpireAfter: cfg.ExpireAfter,
		Stats:       sess.stats,
	})
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	sess.store = s

	logger.WithFields(logrus.Fields{
		"driver": cfg.Slot.Driver,
		"key":    cfg.Key,
	}).Debug("session opened")
	return sess, nil
}

func (s *session) openSlot() (slot.Slot, error) {
	cfg := s.cfg

	switch cfg.Slot.Driver {
	case config.DriverMemory:
		mem := slot.NewMemory(slot.WithMaxValueBytes(cfg.Slot.MaxValueBytes))
		if cfg.Snapshot.Path == "" {
			return mem, nil
		}
		m, err := persistence.NewManager(persistence.Config{
			Path:         cfg.Snapshot.Path,
			SaveInterval: cfg.Snapshot.SaveInterval,
			MinChanges:   cfg.Snapshot.MinChanges,
		}, mem)
		if err != nil {
			return nil, err
		}
		s.snapshots = m
		s.closers = append(s.closers, m.Close)
		if _, err := m.LoadData(); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		return mem, nil

	case config.DriverFile:
		f, err := slot.NewFile(cfg.Slot.Dir, slot.WithFileMaxValueBytes(cfg.Slot.MaxValueBytes))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, f.Close)
		return f, nil

	case config.DriverRedis:
		r, err := slot.NewRedis(slot.RedisOptions{
			Addr:     cfg.Slot.Redis.Addr,
			Password: cfg.Slot.Redis.Password,
			DB:       cfg.Slot.Redis.DB,
			Prefix:   cfg.Slot.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, r.Close)
		return r, nil

	case config.DriverSQLite:
		path, err := ensureParent(cfg.SlotPath())
		if err != nil {
			return nil, err
		}
		db, err := slot.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		return db, nil

	case config.DriverBolt:
		path, err := ensureParent(cfg.SlotPath())
		if err != nil {
			return nil, err
		}
		db, err := slot.OpenBolt(path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		return db, nil

	case config.DriverPostgres:
		db, err := slot.OpenPostgres(cfg.Slot.DSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		return db, nil
	}
	return nil, fmt.Errorf("unknown slot driver %q", cfg.Slot.Driver)
}

func ensureParent(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return path, nil
}

// Close releases resources in reverse order of acquisition
func (s *session) Close() error {
	if s.store != nil {
		s.store.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withSession opens a session, runs fn and closes the session. With
// --metrics the session counters are written to stderr afterwards.
//
// Inside a shell the shell's session is reused and stays open.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	if shared, ok := cmd.Context().Value(sessionKey{}).(*session); ok {
		var fixed []string
		cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				fixed = append(fixed, "--"+f.Name)
			}
		})
		if len(fixed) > 0 {
			return fmt.Errorf("%s cannot be changed inside the shell", strings.Join(fixed, ", "))
		}
		return fn(shared)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}

	runErr := fn(sess)
	closeErr := sess.Close()

	if getBoolFlag(cmd, "metrics") {
		if err := sess.stats.WritePrometheus(cmd.ErrOrStderr()); err != nil {
			logger.Warnf("Failed to write metrics: %v", err)
		}
	}
	return errors.Join(runErr, closeErr)
}
