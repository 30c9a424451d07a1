package urlutil

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams is the recognized set of query parameters stripped during
// canonicalization regardless of value, per the URL identity rules (any
// utm_* parameter is also stripped via prefix match).
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"fbclid": {}, "gclid": {}, "msclkid": {},
	"ref": {}, "referrer": {},
	"_ga": {}, "_gid": {},
	"source": {}, "campaign": {}, "medium": {}, "content": {}, "term": {},
	"igshid": {}, "ncid": {}, "sr_share": {}, "recruiter": {}, "trk": {},
}

func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, tracked := trackingParams[lower]
	return tracked
}

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme is lowercased, defaulted to "https" if absent
//   - Host is lowercased with a leading "www." prefix stripped
//   - Path is lowercased and cleaned (trailing slashes removed, except
//     for root "/"; an empty path on a URL with a host becomes "/")
//   - Fragments are removed
//   - Query parameters with empty values are dropped, recognized tracking
//     parameters are removed, remaining parameters are sorted lexicographically
//     and re-encoded
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	canonical.Scheme = lowerASCII(canonical.Scheme)
	if canonical.Scheme == "" {
		canonical.Scheme = "https"
	}
	canonical.Host = lowerASCII(canonical.Host)

	if host, port := canonical.Hostname(), canonical.Port(); host != "" {
		host = strings.TrimPrefix(host, "www.")
		if port != "" && !((canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443")) {
			canonical.Host = host + ":" + port
		} else {
			canonical.Host = host
		}
	}

	// Clean the path: lowercase, then remove trailing slashes (except
	// root). Lowercasing the whole path makes /HTML and /html one
	// identity; the rare case-sensitive server loses a distinct page,
	// the dedup layer gains an equivalence class.
	canonical.Path = lowerASCII(canonical.Path)
	canonical.RawPath = ""
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}
	if canonical.Path == "" && canonical.Host != "" {
		canonical.Path = "/"
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	canonical.RawQuery = canonicalizeQuery(canonical.Query())
	canonical.ForceQuery = false

	return canonical
}

// canonicalizeQuery drops empty-valued and tracking parameters, then sorts
// and re-encodes whatever remains.
func canonicalizeQuery(values url.Values) string {
	filtered := url.Values{}
	for key, vals := range values {
		if isTrackingParam(key) {
			continue
		}
		for _, v := range vals {
			if v == "" {
				continue
			}
			filtered.Add(key, v)
		}
	}
	if len(filtered) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filtered))
	for k := range filtered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vs := append([]string(nil), filtered[k]...)
		sort.Strings(vs)
		for j, v := range vs {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// CanonicalURL is the normalized string form of a URL, used as its identity
// across the frontier, visited set, bloom pre-filter, and storage layer.
type CanonicalURL string

func (c CanonicalURL) String() string { return string(c) }

// CanonicalizeRaw reduces a raw URL string to its canonical form. Malformed
// input never panics or surfaces an error: it falls back to the lowercased,
// trimmed original string, matching the contract that canonicalization must
// never fail visibly to callers.
func CanonicalizeRaw(raw string) CanonicalURL {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		if reparsed, rerr := url.Parse("https://" + trimmed); rerr == nil && reparsed.Host != "" {
			parsed, err = reparsed, nil
		}
	}
	if err != nil || parsed == nil || parsed.Host == "" {
		return CanonicalURL(lowerASCII(trimmed))
	}
	canonical := Canonicalize(*parsed)
	return CanonicalURL(canonical.String())
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
