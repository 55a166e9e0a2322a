package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"slotcache/internal/cli"
	"slotcache/internal/stats"
)

// sessionKey carries a shell's open session to the commands it runs
type sessionKey struct{}

// commands that need their own session or never return inside a shell
var shellExcluded = map[string]bool{
	"shell":     true,
	"benchmark": true,
	"watch":     true,
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands against one open session",
		Long: `Read commands line by line and run them against a single session, so a
memory slot without a snapshot keeps its payload between commands.

Slot flags are fixed when the shell starts. Quote JSON arguments:

  slotcache:items> insert '{"id":1,"title":"write"}'
  slotcache:items> find --where id=1

On a terminal the arrow keys recall earlier lines. Piped input runs as a
script: blank lines and lines starting with # are skipped, and the shell
exits non-zero if any line failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				ctx := context.WithValue(cmd.Context(), sessionKey{}, s)

				sh := cli.New(cli.Config{
					Prompt: fmt.Sprintf("slotcache:%s> ", s.cfg.Key),
					Banner: fmt.Sprintf("slotcache %s (%s slot, key %q)", stats.Version, s.cfg.Slot.Driver, s.cfg.Key),
					In:     cmd.InOrStdin(),
					Out:    cmd.OutOrStdout(),
					Err:    cmd.ErrOrStderr(),
					Exec: func(ctx context.Context, args []string) error {
						return runShellLine(ctx, cmd, args)
					},
				})
				return sh.Run(ctx)
			})
		},
	}
}

func runShellLine(ctx context.Context, parent *cobra.Command, args []string) error {
	if len(args) > 0 && shellExcluded[args[0]] {
		return fmt.Errorf("%s is not available inside the shell", args[0])
	}

	root := newRootCmd()
	root.SilenceErrors = true
	root.SetArgs(args)
	root.SetIn(parent.InOrStdin())
	root.SetOut(parent.OutOrStdout())
	root.SetErr(parent.ErrOrStderr())
	return root.ExecuteContext(ctx)
}
