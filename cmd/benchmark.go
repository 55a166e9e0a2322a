package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"slotcache/internal/benchmark"
)

func newBenchmarkCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure store operation throughput against the configured slot",
		Long: `Run inserts, reads and lookups against the configured slot and report
throughput and latency percentiles.

The benchmark writes to the key "bench" unless --key is given, and clears
it afterwards unless --keep is set.

Examples:
  slotcache benchmark --driver sqlite --requests 2000
  slotcache benchmark --driver redis --ops insert,find --csv`,
		Args: cobra.NoArgs,
		RunE: runBenchmark,
	}

	c.Flags().IntP("requests", "n", 1000, "Total number of requests per operation")
	c.Flags().IntP("concurrency", "c", 4, "Number of concurrent workers")
	c.Flags().String("ops", strings.Join(benchmark.DefaultOps, ","), "Comma-separated list of operations to test")
	c.Flags().Int("data-size", 16, "Size of each inserted element's data field in bytes")
	c.Flags().Bool("keep", false, "Keep the benchmark payload afterwards")

	// Output flags
	c.Flags().BoolP("quiet", "q", false, "Quiet mode (only show summary)")
	c.Flags().Bool("csv", false, "Output in CSV format")
	c.Flags().Bool("latency-hist", false, "Show latency histogram")
	return c
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	config := &benchmark.Config{
		Requests:    getIntFlag(cmd, "requests", 1000),
		Concurrency: getIntFlag(cmd, "concurrency", 4),
		Ops:         strings.Split(getStringFlag(cmd, "ops", strings.Join(benchmark.DefaultOps, ",")), ","),
		DataSize:    getIntFlag(cmd, "data-size", 16),
		Quiet:       getBoolFlag(cmd, "quiet"),
		CSV:         getBoolFlag(cmd, "csv"),
		LatencyHist: getBoolFlag(cmd, "latency-hist"),
		Out:         cmd.OutOrStdout(),
	}

	// Clean up operation list
	for i, op := range config.Ops {
		config.Ops[i] = strings.ToLower(strings.TrimSpace(op))
	}
	if err := config.Validate(); err != nil {
		return err
	}

	if !cmd.Flags().Changed("key") {
		if err := cmd.Flags().Set("key", "bench"); err != nil {
			return err
		}
	}

	return withSession(cmd, func(s *session) error {
		out := cmd.OutOrStdout()
		if !config.Quiet && !config.CSV {
			fmt.Fprintf(out, "Slot Benchmark Tool\n")
			fmt.Fprintf(out, "===================\n")
			fmt.Fprintf(out, "Driver: %s\n", s.cfg.Slot.Driver)
			fmt.Fprintf(out, "Key: %s\n", s.cfg.Key)
			fmt.Fprintf(out, "Requests: %d\n", config.Requests)
			fmt.Fprintf(out, "Concurrency: %d\n", config.Concurrency)
			fmt.Fprintf(out, "Operations: %s\n", strings.Join(config.Ops, ", "))
			fmt.Fprintf(out, "Data size: %d bytes\n", config.DataSize)
			fmt.Fprintf(out, "\n")
		}
		if config.CSV {
			config.Quiet = true
		}

		if err := s.store.Clear(); err != nil {
			return err
		}
		results := benchmark.Run(s.store, config)
		benchmark.PrintResults(results, config)

		if getBoolFlag(cmd, "keep") {
			return nil
		}
		return s.store.Clear()
	})
}
