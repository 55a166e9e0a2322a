package cmd

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"slotcache/internal/logger"
	"slotcache/internal/store"
)

// watchEvent is one line of watch output
type watchEvent struct {
	Event string `json:"event"`
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

func newWatchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "watch",
		Short: "Print a line for every change to the payload until interrupted",
		Long: `Print a JSON line for every "updated" and "reset" event, including
changes made by other processes sharing the slot (file and redis drivers).

With --poll the payload is re-read periodically so an elapsed TTL is noticed
and reported as a reset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			poll := getDurationFlag(cmd, "poll", 0)

			return withSession(cmd, func(s *session) error {
				var mu sync.Mutex
				emit := func(ev watchEvent) {
					mu.Lock()
					defer mu.Unlock()
					if err := printJSON(cmd, ev); err != nil {
						logger.Warnf("Failed to print event: %v", err)
					}
				}

				updated, err := s.store.AddEventListener(store.EventUpdated, func(v any, from *store.Store) {
					emit(watchEvent{Event: string(store.EventUpdated), Key: from.Key(), Value: v})
				})
				if err != nil {
					return err
				}
				defer s.store.RemoveEventListener(store.EventUpdated, updated)

				reset, err := s.store.AddEventListener(store.EventReset, func(_ any, from *store.Store) {
					emit(watchEvent{Event: string(store.EventReset), Key: from.Key()})
				})
				if err != nil {
					return err
				}
				defer s.store.RemoveEventListener(store.EventReset, reset)

				var tick <-chan time.Time
				if poll > 0 {
					ticker := time.NewTicker(poll)
					defer ticker.Stop()
					tick = ticker.C
				}

				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(quit)

				logger.Infof("Watching key %q", s.cfg.Key)
				for {
					select {
					case <-tick:
						if _, err := s.store.GetParsed(); err != nil {
							logger.Warnf("Poll failed: %v", err)
						}
					case <-quit:
						logger.Info("Stopping watch...")
						return nil
					case <-cmd.Context().Done():
						return nil
					}
				}
			})
		},
	}
	c.Flags().Duration("poll", 0, "Re-read the payload at this interval (0 disables)")
	return c
}
