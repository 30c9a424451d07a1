// Package prioritizer maps a discovered link to an integer crawl
// priority: a base score adjusted by host sets, depth, extension, path
// and link-text heuristics, and keyword hits in the source page body.
package prioritizer

import (
	"path"
	"strings"
)

const (
	basePriority = 100
	rejectScore  = -1000
)

// blockedExtensions are binary/archive extensions never worth crawling.
var blockedExtensions = map[string]struct{}{
	".zip": {}, ".exe": {}, ".dmg": {}, ".iso": {}, ".tar": {}, ".gz": {},
}

var highPriorityExtensions = map[string]struct{}{
	".html": {}, ".htm": {}, ".php": {}, ".asp": {}, ".aspx": {}, ".jsp": {}, "": {},
}

var mediumPriorityExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".txt": {},
}

var lowPriorityExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".css": {}, ".js": {},
}

var contentPathPatterns = []string{
	"/blog/", "/news/", "/article/", "/post/", "/content/",
	"/research/", "/publications/", "/papers/", "/docs/",
}

var lowValuePathPatterns = []string{
	"/admin/", "/login/", "/register/", "/cart/", "/checkout/",
	"/api/", "/ajax/", "/json/", "/xml/",
}

var positiveLinkTextPatterns = []string{"article", "blog", "news", "read more"}
var negativeLinkTextPatterns = []string{"login", "register", "cart", "buy now"}

// Candidate is the input to Score: a single discovered link plus the
// context needed to apply host-set and depth-based adjustments.
type Candidate struct {
	URL        string
	SourceURL  string
	Host       string
	SourceHost string
	Depth      int
	LinkText   string

	PriorityHosts map[string]struct{}
	WhitelistMode bool
	WhitelistSet  map[string]struct{}
	BlockedHosts  map[string]struct{}

	PageBody string
	Keywords []string
}

// Score computes the integer priority for a Candidate, applying the
// adjustments in a fixed order. A return value of rejectScore (-1000)
// means the link must never be enqueued, independent of the
// floor-at-zero rule that applies to every other case.
func Score(c Candidate) int {
	if _, blocked := c.BlockedHosts[c.Host]; blocked {
		return rejectScore
	}

	score := basePriority

	if _, ok := c.PriorityHosts[c.Host]; ok {
		score += 200
	}
	if c.WhitelistMode {
		if _, ok := c.WhitelistSet[c.Host]; ok {
			score += 100
		}
	}

	if c.Host != "" && c.Host == c.SourceHost {
		score += 150
	}

	score -= 50 * c.Depth

	ext := extensionOf(c.URL)
	if _, blocked := blockedExtensions[ext]; blocked {
		return rejectScore
	}

	switch {
	case isIn(ext, highPriorityExtensions):
		score += 50
	case isIn(ext, mediumPriorityExtensions):
		score += 20
	case isIn(ext, lowPriorityExtensions):
		score -= 30
	}

	// Path and link-text pattern adjustments are independent: a URL or
	// anchor matching both a positive and a negative pattern receives
	// both adjustments, not just the first.
	lowerURL := strings.ToLower(c.URL)
	if matchesAny(lowerURL, contentPathPatterns) {
		score += 30
	}
	if matchesAny(lowerURL, lowValuePathPatterns) {
		score -= 50
	}

	lowerText := strings.ToLower(c.LinkText)
	if matchesAny(lowerText, positiveLinkTextPatterns) {
		score += 25
	}
	if matchesAny(lowerText, negativeLinkTextPatterns) {
		score -= 25
	}

	if c.PageBody != "" {
		lowerBody := strings.ToLower(c.PageBody)
		for _, kw := range c.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lowerBody, strings.ToLower(kw)) {
				score += 25
			}
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

func isIn(ext string, set map[string]struct{}) bool {
	_, ok := set[ext]
	return ok
}

func matchesAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// extensionOf returns the lowercased file extension (including the leading
// dot) of a URL's path, or "" if the path has none.
func extensionOf(rawURL string) string {
	// Strip any query/fragment before taking the path extension.
	clean := rawURL
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	ext := path.Ext(clean)
	return strings.ToLower(ext)
}
