// Package cssdownload fetches a page's linked stylesheets and persists
// them alongside its other artifacts. A dedicated pipeline feature
// rather than part of the fetcher, since CSS files are a page-level side
// artifact, not part of the fetch/admission path.
package cssdownload

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/canopy-go/internal/metadata"
	"github.com/rohmanhakim/canopy-go/internal/pipeline"
)

const fetchTimeout = 10 * time.Second

// Feature downloads up to maxFiles external stylesheets per page.
type Feature struct {
	maxFiles     int
	userAgent    string
	client       *http.Client
	metadataSink metadata.MetadataSink
}

// New builds a Feature that downloads at most maxFiles stylesheets per
// page, identifying itself as userAgent. metadataSink receives one
// asset-fetch record per attempted stylesheet; nil disables recording.
func New(maxFiles int, userAgent string, metadataSink metadata.MetadataSink) *Feature {
	if maxFiles <= 0 {
		maxFiles = 10
	}
	return &Feature{
		maxFiles:     maxFiles,
		userAgent:    userAgent,
		client:       &http.Client{Timeout: fetchTimeout},
		metadataSink: metadataSink,
	}
}

func (f *Feature) Name() string { return "css_download" }

func (f *Feature) Initialize(cap *pipeline.Capability) error  { return nil }
func (f *Feature) BeforeCrawl(cap *pipeline.Capability) error { return nil }
func (f *Feature) Finalize(cap *pipeline.Capability) error    { return nil }

func (f *Feature) ProcessURL(cap *pipeline.Capability, page pipeline.PageResult) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return fmt.Errorf("css_download: parse %s: %w", page.URL.String(), err)
	}

	var hrefs []string
	doc.Find("link[rel='stylesheet'][href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			hrefs = append(hrefs, href)
		}
	})

	var firstErr error
	downloaded := 0
	for _, href := range hrefs {
		if downloaded >= f.maxFiles {
			break
		}
		resolved, err := page.URL.Parse(href)
		if err != nil {
			continue
		}
		data, err := f.fetch(resolved)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if cap.Artifacts != nil {
			name := "css/" + sanitizeName(resolved)
			if _, err := cap.Artifacts.WriteArtifact(page.Host, page.URLID, name, data); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("css_download: write %s: %w", resolved.String(), err)
				}
				continue
			}
		}
		downloaded++
	}
	return firstErr
}

func (f *Feature) fetch(target *url.URL) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFetch(target, 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()
	f.recordFetch(target, resp.StatusCode, time.Since(start))
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("css_download: %s returned %d", target.String(), resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (f *Feature) recordFetch(target *url.URL, status int, duration time.Duration) {
	if f.metadataSink == nil {
		return
	}
	f.metadataSink.RecordAssetFetch(target.String(), status, duration, 0)
}

// sanitizeName turns a stylesheet URL's path into a flat, filesystem-safe
// name, falling back to a generic name for an empty or root path.
func sanitizeName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "" || base == "/" || base == "." {
		base = "stylesheet.css"
	}
	if !strings.HasSuffix(strings.ToLower(base), ".css") {
		base += ".css"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
