// Package dedup composes URL canonicalization, the bloom pre-filter, and
// content hashing into a single "should crawl / is novel" decision.
package dedup

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rohmanhakim/canopy-go/internal/dedup/bloomfilter"
	"github.com/rohmanhakim/canopy-go/internal/dedup/contenthash"
	"github.com/rohmanhakim/canopy-go/pkg/urlutil"
)

// Reason is the human-readable explanation attached to a ShouldCrawl
// decision, surfaced to the scheduler and final report.
type Reason string

const (
	ReasonNovel         Reason = ""
	ReasonDuplicateURL  Reason = "duplicate URL"
	ReasonDuplicateBody Reason = "duplicate content"
)

// Counters is a snapshot of the manager's running totals.
type Counters struct {
	URLsProcessed    int64
	DuplicateURLs    int64
	DuplicateContent int64
	UniqueURLs       int64
}

// Config tunes the manager's bloom filter and visited-set watermark.
type Config struct {
	// BloomCapacity sizes the bloom pre-filter; zero disables it and falls
	// through directly to the authoritative visited-set check.
	BloomCapacity uint
	UseBloom      bool

	// WatermarkThreshold caps the visited set's size. Once exceeded, the
	// least-recently-seen canonical URLs are evicted, which may let an
	// old URL be crawled again; the bound is deliberate, the reintroduction
	// an accepted trade-off. Zero falls back to the 50,000 default.
	WatermarkThreshold int
}

// DefaultConfig bounds the visited set at 50,000 entries.
func DefaultConfig() Config {
	return Config{BloomCapacity: 100_000, UseBloom: true, WatermarkThreshold: 50_000}
}

// Manager is the authoritative URL and content deduplication gate.
type Manager struct {
	cfg Config

	bloom *bloomfilter.Filter

	mu      sync.Mutex
	visited *expirable.LRU[string, time.Time]

	hasher *contenthash.Hasher

	countersMu sync.Mutex
	counters   Counters
}

// New builds a Manager per cfg. WatermarkThreshold bounds the visited
// set's memory via a capacity-limited LRU.
func New(cfg Config) *Manager {
	threshold := cfg.WatermarkThreshold
	if threshold <= 0 {
		threshold = 50_000
	}
	m := &Manager{
		cfg:     cfg,
		visited: expirable.NewLRU[string, time.Time](threshold, nil, 0),
		hasher:  contenthash.New(),
	}
	if cfg.UseBloom {
		capacity := cfg.BloomCapacity
		if capacity == 0 {
			capacity = 100_000
		}
		m.bloom = bloomfilter.New(capacity)
	}
	return m
}

// ShouldCrawl returns whether raw should be admitted to the frontier. It
// canonicalizes raw, consults the bloom pre-filter as a fast-path "probably
// unseen" check, then consults the authoritative visited set. A novel URL
// is recorded in both structures before returning accept=true.
func (m *Manager) ShouldCrawl(raw string) (accept bool, canonical string, reason Reason) {
	c := urlutil.CanonicalizeRaw(raw)
	canonical = c.String()

	m.countersMu.Lock()
	m.counters.URLsProcessed++
	m.countersMu.Unlock()

	if m.bloom != nil && !m.bloom.Contains(canonical) {
		// Bloom says definitely unseen: skip straight to recording, no need
		// to consult the authoritative set for a hit we know isn't there.
		m.recordNovel(canonical)
		return true, canonical, ReasonNovel
	}

	m.mu.Lock()
	_, seen := m.visited.Get(canonical)
	if seen {
		m.mu.Unlock()
		m.countersMu.Lock()
		m.counters.DuplicateURLs++
		m.countersMu.Unlock()
		return false, canonical, ReasonDuplicateURL
	}
	m.visited.Add(canonical, time.Now())
	m.mu.Unlock()

	if m.bloom != nil {
		m.bloom.Add(canonical)
	}
	m.countersMu.Lock()
	m.counters.UniqueURLs++
	m.countersMu.Unlock()
	return true, canonical, ReasonNovel
}

func (m *Manager) recordNovel(canonical string) {
	m.mu.Lock()
	m.visited.Add(canonical, time.Now())
	m.mu.Unlock()
	m.bloom.Add(canonical)
	m.countersMu.Lock()
	m.counters.UniqueURLs++
	m.countersMu.Unlock()
}

// IsDuplicateContent reports whether body's normalized fingerprint has been
// seen before. On first sight it records url as the canonical owner of the
// digest and returns (false, "").
func (m *Manager) IsDuplicateContent(body []byte, url string, kind contenthash.Kind) (bool, string) {
	dup, first := m.hasher.IsDuplicateContent(body, url, kind)
	if dup {
		m.countersMu.Lock()
		m.counters.DuplicateContent++
		m.countersMu.Unlock()
	}
	return dup, first
}

// Snapshot returns a copy of the running counters.
func (m *Manager) Snapshot() Counters {
	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	return m.counters
}

// VisitedLen reports the current size of the bounded visited set, for tests
// and the metrics reporter.
func (m *Manager) VisitedLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visited.Len()
}
