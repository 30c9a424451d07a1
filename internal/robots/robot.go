package robots

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rohmanhakim/canopy-go/internal/metadata"
	"github.com/rohmanhakim/canopy-go/internal/robots/cache"
)

// Robot is the policy port the scheduler consults before admitting a URL.
type Robot interface {
	Init(userAgent string)
	Decide(target url.URL) (Decision, *RobotsError)
}

// CachedRobot is the default Robot implementation: it fetches and parses
// robots.txt via RobotsFetcher (caching results per host for the crawl's
// lifetime) and evaluates path rules against the user agent's matched
// group.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	userAgent    string
	fetcher      *RobotsFetcher
}

// NewCachedRobot builds a CachedRobot that records fetch/error events to
// metadataSink. Call Init or InitWithCache before Decide.
func NewCachedRobot(metadataSink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: metadataSink}
}

// Init prepares the robot with the given user agent string and an
// LRU-bounded per-host robots.txt cache sized for a single crawl run.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewLRUCache(cache.DefaultCapacity))
}

// InitWithCache prepares the robot with an explicit cache implementation,
// primarily for tests that want an unbounded cache or a fresh one per case.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.metadataSink, userAgent, c)
}

// Decide fetches (or reuses the cached) robots.txt for target's host and
// returns whether target may be crawled.
func (r *CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	fetchResult, err := r.fetcher.Fetch(context.Background(), target.Scheme, target.Host)
	if err != nil {
		r.metadataSink.RecordError(
			time.Now(),
			"robots",
			"CachedRobot.Decide",
			mapRobotsErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, target.String()),
				metadata.NewAttr(metadata.AttrHost, target.Host),
			},
		)
		return Decision{}, err
	}

	rs := MapResponseToRuleSet(fetchResult.Response, r.userAgent, fetchResult.FetchedAt)
	allowed, reason := decidePath(rs, target.Path)

	var crawlDelay time.Duration
	if d := rs.CrawlDelay(); d != nil {
		crawlDelay = *d
	}

	return Decision{
		Url:        target,
		Allowed:    allowed,
		Reason:     reason,
		CrawlDelay: crawlDelay,
	}, nil
}

// decidePath applies longest-match precedence between allow and disallow
// rules in the matched user-agent group, ties going to allow, per the
// de-facto robots.txt convention (most specific rule wins).
func decidePath(rs ruleSet, path string) (allowed bool, reason DecisionReason) {
	if !rs.hasGroups {
		return true, EmptyRuleSet
	}
	if !rs.matchedGroup {
		return true, UserAgentNotMatched
	}

	matched := false
	bestLen := -1
	bestAllow := true

	for _, d := range rs.disallowRules {
		if !pathMatches(path, d) {
			continue
		}
		if l := len(d.prefix); l > bestLen {
			bestLen, bestAllow, matched = l, false, true
		}
	}
	for _, a := range rs.allowRules {
		if !pathMatches(path, a) {
			continue
		}
		if l := len(a.prefix); l > bestLen || (l == bestLen && !bestAllow) {
			bestLen, bestAllow, matched = l, true, true
		}
	}

	if !matched {
		return true, NoMatchingRules
	}
	if bestAllow {
		return true, AllowedByRobots
	}
	return false, DisallowedByRobots
}

// pathMatches evaluates a robots.txt path pattern against a request path.
// '*' matches any run of characters; a trailing '$' anchors the match to
// the end of the path.
func pathMatches(path string, rule pathRule) bool {
	pattern := rule.prefix
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	var sb strings.Builder
	sb.WriteString("^")
	for _, ch := range pattern {
		if ch == '*' {
			sb.WriteString(".*")
		} else {
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	if anchored {
		sb.WriteString("$")
	}

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(path)
}
