// Package graph tracks discovered hosts, per-host reputation, and discovery
// depth, and applies crawl-mode scope rules when expanding links found on a
// fetched page.
package graph

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/rohmanhakim/canopy-go/internal/graph/prioritizer"
	"github.com/rohmanhakim/canopy-go/pkg/urlutil"
)

// Config configures a Manager's scope rules.
type Config struct {
	Mode           Mode
	MaxDepth       int
	MaxDomains     int
	MinDomainScore float64
	Allowed        map[string]struct{}
	Blocked        map[string]struct{}
	Priority       map[string]struct{}
	Keywords       []string
}

// LinkInfo is one expanded, scored, depth-assigned link emitted by
// ExtractLinks, ready for the caller to enqueue.
type LinkInfo struct {
	URL      string
	Priority int
	Depth    int
	Source   string
}

// Manager is the per-crawl graph state: discovered hosts, seed hosts,
// per-host reputation, and per-URL discovery depth.
type Manager struct {
	cfg Config

	mu            sync.Mutex
	seedHosts     map[string]struct{}
	discovered    map[string]struct{}
	reputation    map[string]float64
	depthByURL    map[string]int
	linkRefCounts map[string]int
}

// New builds a Manager initialized with seedURLs at depth 0.
func New(cfg Config, seedURLs []string) *Manager {
	m := &Manager{
		cfg:           cfg,
		seedHosts:     make(map[string]struct{}),
		discovered:    make(map[string]struct{}),
		reputation:    make(map[string]float64),
		depthByURL:    make(map[string]int),
		linkRefCounts: make(map[string]int),
	}
	for _, raw := range seedURLs {
		canonical := urlutil.CanonicalizeRaw(raw).String()
		host := hostOf(canonical)
		if host == "" {
			continue
		}
		m.seedHosts[host] = struct{}{}
		m.discovered[host] = struct{}{}
		m.depthByURL[canonical] = 0
	}
	return m
}

// ShouldCrawlDomain applies the configured Mode's scope rule to host.
func (m *Manager) ShouldCrawlDomain(host string) (allow bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, blocked := m.cfg.Blocked[host]; blocked {
		return false, "host in block set"
	}

	switch m.cfg.Mode {
	case ModeSingleDomain:
		if _, ok := m.seedHosts[host]; ok {
			return true, ""
		}
		return false, "host outside single-domain scope"

	case ModeWhitelist:
		if _, ok := m.cfg.Allowed[host]; ok {
			return true, ""
		}
		return false, "host not in whitelist"

	case ModeCrossDomain, ModeGraph, ModeFocused:
		_, alreadyDiscovered := m.discovered[host]
		if !alreadyDiscovered && m.cfg.MaxDomains > 0 && len(m.discovered) >= m.cfg.MaxDomains {
			return false, "max domains reached"
		}
		if _, isSeed := m.seedHosts[host]; !isSeed {
			if m.reputation[host] < m.cfg.MinDomainScore {
				return false, "domain reputation below minimum"
			}
		}
		return true, ""

	default:
		return false, "unknown crawl mode"
	}
}

// ExtractLinks resolves each discovered link against sourceURL, scopes it
// via ShouldCrawlDomain, scores it via prioritizer.Score, updates host
// reputation, assigns discovery depth, and returns the surviving links
// sorted by priority descending.
func (m *Manager) ExtractLinks(sourceURL string, linkTexts map[string]string, sourceBody string) []LinkInfo {
	sourceCanonical := urlutil.CanonicalizeRaw(sourceURL).String()
	sourceHost := hostOf(sourceCanonical)

	m.mu.Lock()
	sourceDepth, known := m.depthByURL[sourceCanonical]
	maxDepth := m.cfg.MaxDepth
	m.mu.Unlock()
	if !known {
		sourceDepth = 0
	}
	if maxDepth > 0 && sourceDepth >= maxDepth {
		return nil
	}

	parsedSource, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}

	var out []LinkInfo
	for rawLink, linkText := range linkTexts {
		resolved, rerr := parsedSource.Parse(rawLink)
		if rerr != nil || resolved.Scheme == "" || resolved.Host == "" {
			continue
		}

		canonical := urlutil.CanonicalizeRaw(resolved.String()).String()
		host := hostOf(canonical)

		allow, _ := m.ShouldCrawlDomain(host)
		if !allow {
			continue
		}

		score := prioritizer.Score(prioritizer.Candidate{
			URL:           canonical,
			SourceURL:     sourceCanonical,
			Host:          host,
			SourceHost:    sourceHost,
			Depth:         sourceDepth,
			LinkText:      linkText,
			PriorityHosts: m.cfg.Priority,
			WhitelistMode: m.cfg.Mode == ModeWhitelist,
			WhitelistSet:  m.cfg.Allowed,
			BlockedHosts:  m.cfg.Blocked,
			PageBody:      sourceBody,
			Keywords:      m.cfg.Keywords,
		})
		if score <= 0 {
			continue
		}

		m.updateReputation(host, sourceHost, score)

		m.mu.Lock()
		m.discovered[host] = struct{}{}
		m.linkRefCounts[host]++
		if _, exists := m.depthByURL[canonical]; !exists {
			m.depthByURL[canonical] = sourceDepth + 1
		}
		m.mu.Unlock()

		out = append(out, LinkInfo{
			URL:      canonical,
			Priority: score,
			Depth:    sourceDepth + 1,
			Source:   sourceCanonical,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// updateReputation applies the EMA update: score ← 0.9·score + increment,
// where increment = priority/1000, multiplied by 2 if sourceHost is a seed,
// 1.5 if sourceHost is in the priority set, 1 otherwise.
func (m *Manager) updateReputation(targetHost, sourceHost string, priority int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	multiplier := 1.0
	if _, isSeed := m.seedHosts[sourceHost]; isSeed {
		multiplier = 2.0
	} else if _, isPriority := m.cfg.Priority[sourceHost]; isPriority {
		multiplier = 1.5
	}

	increment := (float64(priority) / 1000.0) * multiplier
	m.reputation[targetHost] = 0.9*m.reputation[targetHost] + increment
}

// Reputation returns the current EMA reputation score for host.
func (m *Manager) Reputation(host string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reputation[host]
}

// DiscoveredHosts returns the number of distinct hosts seen so far: the
// seed hosts plus the hosts of links that ExtractLinks has returned.
func (m *Manager) DiscoveredHosts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.discovered)
}

// DepthOf returns the recorded discovery depth for a canonical URL, and
// whether it has been recorded at all.
func (m *Manager) DepthOf(canonicalURL string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depthByURL[canonicalURL]
	return d, ok
}

func hostOf(canonicalURL string) string {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
