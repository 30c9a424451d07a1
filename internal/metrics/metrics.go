// Package metrics collects and reports crawl-wide and per-host counters:
// prometheus series for anything a scrape might want, plus a
// mutex-guarded aggregate block for the end-of-run report.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pagesCrawled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canopy_pages_crawled_total", Help: "Pages successfully fetched and processed.",
	})
	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_errors_total", Help: "Errors by classified kind.",
	}, []string{"kind"})
	duplicatesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canopy_duplicates_skipped_total", Help: "URLs or bodies rejected as duplicates.",
	})
	bytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "canopy_bytes_downloaded_total", Help: "Total response bytes fetched.",
	})
	responseTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "canopy_response_time_seconds", Help: "Fetch response time.", Buckets: prometheus.DefBuckets,
	})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "canopy_queue_depth", Help: "Current frontier queue depth.",
	})

	registerOnce sync.Once
)

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(pagesCrawled, errorsTotal, duplicatesSkipped, bytesDownloaded, responseTime, queueDepth)
	})
}

// DomainStats is one host's running tally.
type DomainStats struct {
	Host            string
	PagesCrawled    int
	Errors          int
	TotalResponseMs int64
	LastCrawledAt   time.Time
}

func (d DomainStats) SuccessRate() float64 {
	total := d.PagesCrawled + d.Errors
	if total == 0 {
		return 0
	}
	return float64(d.PagesCrawled) / float64(total) * 100
}

func (d DomainStats) AvgResponseTime() time.Duration {
	if d.PagesCrawled == 0 {
		return 0
	}
	return time.Duration(d.TotalResponseMs/int64(d.PagesCrawled)) * time.Millisecond
}

// Collector is the mutable, mutex-guarded aggregate state behind the
// prometheus counters: the crawl-wide and per-host rollups needed for
// the end-of-run report, which prometheus itself doesn't retain in a
// queryable-without-a-server form.
type Collector struct {
	startedAt time.Time

	mu                sync.Mutex
	pagesCrawled      int
	errorsByKind      map[string]int
	duplicatesSkipped int
	bytesDownloaded   int64
	totalResponseMs   int64
	byHost            map[string]*DomainStats
}

// New builds a Collector and registers its prometheus series (idempotent
// across repeated New calls within a process).
func New() *Collector {
	register()
	return &Collector{
		startedAt:    time.Now(),
		errorsByKind: make(map[string]int),
		byHost:       make(map[string]*DomainStats),
	}
}

// RecordFetch records one successful fetch: byte count, latency, and the
// owning host's rollup.
func (c *Collector) RecordFetch(host string, sizeBytes int64, latency time.Duration) {
	pagesCrawled.Inc()
	bytesDownloaded.Add(float64(sizeBytes))
	responseTime.Observe(latency.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pagesCrawled++
	c.bytesDownloaded += sizeBytes
	c.totalResponseMs += latency.Milliseconds()

	stats := c.hostStats(host)
	stats.PagesCrawled++
	stats.TotalResponseMs += latency.Milliseconds()
	stats.LastCrawledAt = time.Now()
}

// RecordError records one classified-error occurrence for host.
func (c *Collector) RecordError(host, kind string) {
	errorsTotal.WithLabelValues(kind).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorsByKind[kind]++
	c.hostStats(host).Errors++
}

// RecordDuplicate records one URL or content-body rejected by dedup.
func (c *Collector) RecordDuplicate() {
	duplicatesSkipped.Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duplicatesSkipped++
}

// SetQueueDepth reports the frontier's current backlog size.
func (c *Collector) SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func (c *Collector) hostStats(host string) *DomainStats {
	s, ok := c.byHost[host]
	if !ok {
		s = &DomainStats{Host: host}
		c.byHost[host] = s
	}
	return s
}

// Snapshot is a point-in-time copy of the aggregate counters, safe to
// read and print without holding the Collector's lock.
type Snapshot struct {
	ElapsedTime       time.Duration
	PagesCrawled      int
	ErrorsByKind      map[string]int
	DuplicatesSkipped int
	BytesDownloaded   int64
	PagesPerSecond    float64
	AvgResponseTime   time.Duration
	ByHost            map[string]DomainStats
}

// Snapshot copies the current aggregate state out from under the lock.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startedAt)
	var pagesPerSecond float64
	if elapsed > 0 {
		pagesPerSecond = float64(c.pagesCrawled) / elapsed.Seconds()
	}
	var avg time.Duration
	if c.pagesCrawled > 0 {
		avg = time.Duration(c.totalResponseMs/int64(c.pagesCrawled)) * time.Millisecond
	}

	errs := make(map[string]int, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		errs[k] = v
	}
	hosts := make(map[string]DomainStats, len(c.byHost))
	for h, s := range c.byHost {
		hosts[h] = *s
	}

	return Snapshot{
		ElapsedTime:       elapsed,
		PagesCrawled:      c.pagesCrawled,
		ErrorsByKind:      errs,
		DuplicatesSkipped: c.duplicatesSkipped,
		BytesDownloaded:   c.bytesDownloaded,
		PagesPerSecond:    pagesPerSecond,
		AvgResponseTime:   avg,
		ByHost:            hosts,
	}
}
