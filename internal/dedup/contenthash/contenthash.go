// Package contenthash computes a structure-invariant fingerprint of a
// fetched body and tracks first-seen URLs per digest, so pages whose markup
// differs only in comments, inline scripts, or a handful of known dynamic
// tokens are still treated as duplicate content.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Kind distinguishes the body types hashed by this package. Only Kind HTML
// receives structural normalization before hashing; everything else is
// hashed verbatim.
type Kind string

const (
	KindHTML  Kind = "html"
	KindCSS   Kind = "css"
	KindJSON  Kind = "json"
	KindOther Kind = "other"
)

// dynamicTokenPatterns strip the small set of values that routinely change
// between otherwise-identical renders of the same page (timestamps,
// CSRF/session tokens) before the body is hashed. This normalization is
// heuristic: pages embedding other kinds of nonces will not dedup.
var dynamicTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{10,13}\b`),                                     // unix timestamps (s or ms)
	regexp.MustCompile(`(?i)(csrf[-_]?token|csrftoken)["'=:\s]+(value["'=:\s]+)?[a-z0-9_\-\.]+`), // CSRF tokens
	regexp.MustCompile(`(?i)(session[-_]?id|sessionid)["'=:\s]+[a-z0-9_\-\.]+`), // session ids
	regexp.MustCompile(`(?i)\bnonce["'=:\s]+[a-z0-9_\-\.]+`),                    // generic nonces
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize reduces an HTML body to a structure-invariant form: strips
// <script> elements and HTML comments via a DOM pass, strips known dynamic
// token patterns, then collapses whitespace.
func Normalize(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	var working string
	if err != nil {
		working = string(body)
	} else {
		doc.Find("script").Remove()
		removeComments(doc)
		working, _ = doc.Html()
	}

	for _, p := range dynamicTokenPatterns {
		working = p.ReplaceAllString(working, "")
	}
	working = whitespaceRun.ReplaceAllString(working, " ")
	return strings.TrimSpace(working)
}

// removeComments strips HTML comment nodes from the parsed document tree.
func removeComments(doc *goquery.Document) {
	doc.Find("*").AddBack().Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#comment" {
			s.Remove()
		}
	})
}

// Hash returns the hex SHA-256 digest of body, applying Normalize first for
// Kind HTML and hashing verbatim for everything else.
func Hash(body []byte, kind Kind) string {
	var data []byte
	if kind == KindHTML {
		data = []byte(Normalize(body))
	} else {
		data = body
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hasher maintains the digest -> first-seen-URL mapping used to detect
// duplicate content across distinct canonical URLs.
type Hasher struct {
	mu        sync.Mutex
	firstSeen map[string]string // digest -> canonical URL
}

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{firstSeen: make(map[string]string)}
}

// IsDuplicateContent hashes body and records the digest's first-seen URL on
// first sight. A subsequent sight of the same digest returns (true,
// firstURL) and does not overwrite the stored first URL.
func (h *Hasher) IsDuplicateContent(body []byte, url string, kind Kind) (bool, string) {
	digest := Hash(body, kind)

	h.mu.Lock()
	defer h.mu.Unlock()

	if first, seen := h.firstSeen[digest]; seen {
		return true, first
	}
	h.firstSeen[digest] = url
	return false, ""
}

// Digest exposes the raw hash of a body without recording it, useful for
// storage layers that want a content-addressed key independent of dedup
// bookkeeping.
func (h *Hasher) Digest(body []byte, kind Kind) string {
	return Hash(body, kind)
}
