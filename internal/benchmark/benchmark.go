// Package benchmark measures store operation throughput and latency
// against whichever slot the store is configured with.
package benchmark

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"slotcache/internal/store"
)

// Operations a benchmark can run
const (
	OpInsert = "insert"
	OpGet    = "get"
	OpCount  = "count"
	OpFind   = "find"
	OpUpdate = "update"
)

var DefaultOps = []string{OpInsert, OpGet, OpCount, OpFind, OpUpdate}

// Result represents the result of benchmarking one operation
type Result struct {
	Op         string
	Requests   int64
	Duration   time.Duration
	Latencies  []time.Duration
	Errors     int64
	Throughput float64
	P50Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration
}

// Config holds the configuration for benchmarking
type Config struct {
	Requests    int
	Concurrency int
	Ops         []string
	DataSize    int
	Quiet       bool
	CSV         bool
	LatencyHist bool
	Out         io.Writer
}

func (c *Config) out() io.Writer {
	if c.Out == nil {
		return io.Discard
	}
	return c.Out
}

// Validate rejects unknown operations and non-positive sizes
func (c *Config) Validate() error {
	if c.Requests <= 0 {
		return fmt.Errorf("requests must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	for _, op := range c.Ops {
		switch op {
		case OpInsert, OpGet, OpCount, OpFind, OpUpdate:
		default:
			return fmt.Errorf("unknown operation %q (want %s)", op, strings.Join(DefaultOps, ", "))
		}
	}
	return nil
}

// Run executes every configured operation against s in order. The payload
// is left as the benchmark leaves it; callers own cleanup.
func Run(s *store.Store, config *Config) []Result {
	var results []Result

	for _, op := range config.Ops {
		if !config.Quiet {
			fmt.Fprintf(config.out(), "Testing %s...\n", op)
		}

		result := Result{
			Op:        op,
			Requests:  int64(config.Requests),
			Latencies: make([]time.Duration, 0, config.Requests),
		}

		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		start := time.Now()

		requestsPerWorker := config.Requests / config.Concurrency
		remainingRequests := config.Requests % config.Concurrency

		offset := 0
		for i := 0; i < config.Concurrency; i++ {
			workerRequests := requestsPerWorker
			if i < remainingRequests {
				workerRequests++
			}
			wg.Add(1)
			go func(firstID, reqs int) {
				defer wg.Done()
				wr := runWorker(s, config, op, firstID, reqs)

				atomic.AddInt64(&result.Errors, wr.Errors)
				mu.Lock()
				result.Latencies = append(result.Latencies, wr.Latencies...)
				mu.Unlock()
			}(offset, workerRequests)
			offset += workerRequests
		}

		wg.Wait()
		result.Duration = time.Since(start)
		if secs := result.Duration.Seconds(); secs > 0 {
			result.Throughput = float64(result.Requests) / secs
		}

		if len(result.Latencies) > 0 {
			sort.Slice(result.Latencies, func(i, j int) bool {
				return result.Latencies[i] < result.Latencies[j]
			})
			result.P50Latency = result.Latencies[len(result.Latencies)*50/100]
			result.P95Latency = result.Latencies[len(result.Latencies)*95/100]
			result.P99Latency = result.Latencies[len(result.Latencies)*99/100]
		}

		results = append(results, result)
	}

	return results
}

type workerResult struct {
	Errors    int64
	Latencies []time.Duration
}

// runWorker issues requests operations on element ids starting at firstID
func runWorker(s *store.Store, config *Config, op string, firstID, requests int) workerResult {
	result := workerResult{Latencies: make([]time.Duration, 0, requests)}
	payload := strings.Repeat("x", config.DataSize)

	for i := 0; i < requests; i++ {
		id := firstID + i
		start := time.Now()
		if err := runOp(s, op, id, payload); err != nil {
			result.Errors++
			continue
		}
		result.Latencies = append(result.Latencies, time.Since(start))
	}
	return result
}

func runOp(s *store.Store, op string, id int, payload string) error {
	switch op {
	case OpInsert:
		return s.Insert(store.Object{"id": id, "data": payload})
	case OpGet:
		_, err := s.GetParsed()
		return err
	case OpCount:
		_, err := s.Count()
		return err
	case OpFind:
		_, _, err := s.Find(store.FieldEquals("id", id))
		return err
	case OpUpdate:
		return s.FindOneAndUpdate(store.FieldEquals("id", id), store.Object{"touched": true})
	}
	return fmt.Errorf("unknown operation %q", op)
}

func PrintResults(results []Result, config *Config) {
	w := config.out()
	if config.CSV {
		printCSVResults(w, results)
		return
	}

	if !config.Quiet {
		fmt.Fprintf(w, "\nBenchmark Results:\n")
		fmt.Fprintf(w, "=================\n")
	}

	for _, result := range results {
		if config.Quiet {
			fmt.Fprintf(w, "%s: %.2f requests per second, p50=%s\n",
				result.Op, result.Throughput, formatDuration(result.P50Latency))
			continue
		}
		fmt.Fprintf(w, "%s: %.2f requests per second\n", result.Op, result.Throughput)
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(result.Duration))
		fmt.Fprintf(w, "  Requests: %d\n", result.Requests)
		fmt.Fprintf(w, "  Errors: %d\n", result.Errors)
		fmt.Fprintf(w, "  Latency percentiles:\n")
		fmt.Fprintf(w, "    p50: %s\n", formatDuration(result.P50Latency))
		fmt.Fprintf(w, "    p95: %s\n", formatDuration(result.P95Latency))
		fmt.Fprintf(w, "    p99: %s\n", formatDuration(result.P99Latency))
		if config.LatencyHist {
			printLatencyHistogram(w, result.Latencies)
		}
		fmt.Fprintf(w, "\n")
	}

	if !config.Quiet && len(results) > 1 {
		printSummary(w, results)
	}
}

func printCSVResults(w io.Writer, results []Result) {
	fmt.Fprintf(w, "Op,Requests,Errors,Duration,Throughput,P50,P95,P99\n")
	for _, r := range results {
		fmt.Fprintf(w, "%s,%d,%d,%s,%.2f,%s,%s,%s\n",
			r.Op, r.Requests, r.Errors, formatDuration(r.Duration), r.Throughput,
			formatDuration(r.P50Latency), formatDuration(r.P95Latency), formatDuration(r.P99Latency))
	}
}

var histogramBuckets = []time.Duration{
	10 * time.Microsecond,
	100 * time.Microsecond,
	time.Millisecond,
	10 * time.Millisecond,
	100 * time.Millisecond,
	time.Second,
}

func printLatencyHistogram(w io.Writer, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	counts := make([]int, len(histogramBuckets))
	for _, l := range latencies {
		for i, bucket := range histogramBuckets {
			if l <= bucket {
				counts[i]++
				break
			}
		}
	}

	fmt.Fprintf(w, "  Latency histogram:\n")
	for i, bucket := range histogramBuckets {
		percentage := float64(counts[i]) / float64(len(latencies)) * 100
		fmt.Fprintf(w, "    <=%s: %.1f%%\n", formatDuration(bucket), percentage)
	}
}

func printSummary(w io.Writer, results []Result) {
	var totalRequests, totalErrors int64
	var totalThroughput float64
	for _, r := range results {
		totalRequests += r.Requests
		totalErrors += r.Errors
		totalThroughput += r.Throughput
	}

	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Total requests: %d\n", totalRequests)
	fmt.Fprintf(w, "  Total errors: %d\n", totalErrors)
	fmt.Fprintf(w, "  Error rate: %.2f%%\n", float64(totalErrors)/float64(totalRequests)*100)
	fmt.Fprintf(w, "  Average throughput: %.2f requests/second\n", totalThroughput/float64(len(results)))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
