package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rohmanhakim/canopy-go/internal/dedup"
)

// DefaultReportInterval is how often the periodic progress report runs
// when the crawl does not configure one.
const DefaultReportInterval = 30 * time.Second

// maxHistory bounds the snapshot history the reporter retains.
const maxHistory = 100

// SystemSample is an on-demand reading of process-level resource usage,
// attached to periodic reports.
type SystemSample struct {
	Goroutines int
	HeapBytes  uint64
	OpenFiles  int
}

// sampleSystem reads the current process's resource usage. Open-file
// counting reads /proc and degrades to -1 on platforms without it.
func sampleSystem() SystemSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	openFiles := -1
	if entries, err := os.ReadDir("/proc/self/fd"); err == nil {
		openFiles = len(entries)
	}

	return SystemSample{
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  ms.HeapAlloc,
		OpenFiles:  openFiles,
	}
}

// Reporter periodically logs a progress report from a Collector and keeps
// a bounded history of snapshots for the final summary.
type Reporter struct {
	collector *Collector
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	history []Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReporter builds a Reporter over collector, reporting every interval.
func NewReporter(collector *Collector, interval time.Duration, logger *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{collector: collector, interval: interval, logger: logger}
}

// Start launches the periodic reporting task. It returns immediately; the
// task runs until Stop is called or ctx is cancelled.
func (r *Reporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.report()
			}
		}
	}()
}

// Stop terminates the periodic task and waits for it to exit.
func (r *Reporter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}

func (r *Reporter) report() {
	snapshot := r.collector.Snapshot()
	system := sampleSystem()

	r.mu.Lock()
	r.history = append(r.history, snapshot)
	if len(r.history) > maxHistory {
		r.history = r.history[len(r.history)-maxHistory:]
	}
	r.mu.Unlock()

	r.logger.Info("crawl progress",
		zap.Duration("elapsed", snapshot.ElapsedTime),
		zap.Int("pages", snapshot.PagesCrawled),
		zap.Int("duplicates_skipped", snapshot.DuplicatesSkipped),
		zap.Int64("bytes", snapshot.BytesDownloaded),
		zap.Float64("pages_per_second", snapshot.PagesPerSecond),
		zap.Duration("avg_response_time", snapshot.AvgResponseTime),
		zap.Int("hosts", len(snapshot.ByHost)),
		zap.Int("goroutines", system.Goroutines),
		zap.Uint64("heap_bytes", system.HeapBytes),
		zap.Int("open_files", system.OpenFiles),
	)
}

// History returns a copy of the retained snapshot history.
func (r *Reporter) History() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.history))
	copy(out, r.history)
	return out
}

// PrintFinal writes the end-of-crawl summary to stdout: aggregate
// performance, per-host rollups sorted by page count, and the derived
// efficiency ratios (duplication rate, error rate, average page size).
func (r *Reporter) PrintFinal(s Snapshot, d dedup.Counters) {
	fmt.Println()
	fmt.Println("=== Crawl summary ===")
	fmt.Printf("Elapsed:            %s\n", s.ElapsedTime.Round(time.Millisecond))
	fmt.Printf("Pages crawled:      %d\n", s.PagesCrawled)
	fmt.Printf("Bytes downloaded:   %d\n", s.BytesDownloaded)
	fmt.Printf("Pages/second:       %.2f\n", s.PagesPerSecond)
	fmt.Printf("Avg response time:  %s\n", s.AvgResponseTime.Round(time.Millisecond))
	fmt.Printf("Duplicates skipped: %d\n", s.DuplicatesSkipped)

	totalErrors := 0
	if len(s.ErrorsByKind) > 0 {
		fmt.Println("Errors by kind:")
		kinds := make([]string, 0, len(s.ErrorsByKind))
		for k := range s.ErrorsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("  %-14s %d\n", k, s.ErrorsByKind[k])
			totalErrors += s.ErrorsByKind[k]
		}
	}

	if len(s.ByHost) > 0 {
		fmt.Println("Per-host:")
		hosts := make([]string, 0, len(s.ByHost))
		for h := range s.ByHost {
			hosts = append(hosts, h)
		}
		sort.Slice(hosts, func(i, j int) bool {
			if s.ByHost[hosts[i]].PagesCrawled != s.ByHost[hosts[j]].PagesCrawled {
				return s.ByHost[hosts[i]].PagesCrawled > s.ByHost[hosts[j]].PagesCrawled
			}
			return hosts[i] < hosts[j]
		})
		for _, h := range hosts {
			hs := s.ByHost[h]
			fmt.Printf("  %-30s pages=%-5d errors=%-4d success=%5.1f%% avg=%s\n",
				h, hs.PagesCrawled, hs.Errors, hs.SuccessRate(), hs.AvgResponseTime().Round(time.Millisecond))
		}
	}

	fmt.Println("Deduplication:")
	fmt.Printf("  URLs processed:    %d\n", d.URLsProcessed)
	fmt.Printf("  Unique URLs:       %d\n", d.UniqueURLs)
	fmt.Printf("  Duplicate URLs:    %d\n", d.DuplicateURLs)
	fmt.Printf("  Duplicate content: %d\n", d.DuplicateContent)

	fmt.Println("Efficiency:")
	if d.URLsProcessed > 0 {
		dupRate := float64(d.DuplicateURLs+d.DuplicateContent) / float64(d.URLsProcessed) * 100
		fmt.Printf("  Duplication rate:  %.1f%%\n", dupRate)
	}
	if attempts := s.PagesCrawled + totalErrors; attempts > 0 {
		fmt.Printf("  Error rate:        %.1f%%\n", float64(totalErrors)/float64(attempts)*100)
	}
	if s.PagesCrawled > 0 {
		fmt.Printf("  Avg page size:     %d bytes\n", s.BytesDownloaded/int64(s.PagesCrawled))
	}
}
