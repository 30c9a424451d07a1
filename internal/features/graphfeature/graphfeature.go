// Package graphfeature adapts internal/graph.Manager into a pipeline
// feature: it extracts anchors from every admitted page, scores and
// scopes them through the graph manager, and enqueues the survivors
// through the pipeline's Enqueuer capability. Only the crawl loop ever
// touches the frontier directly; features see the narrow Enqueuer
// capability and nothing else.
package graphfeature

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/canopy-go/internal/graph"
	"github.com/rohmanhakim/canopy-go/internal/pipeline"
)

// Feature wraps a graph.Manager, extracting and enqueuing links found on
// every admitted page.
type Feature struct {
	manager *graph.Manager

	mu    sync.Mutex
	links []graph.LinkInfo
}

// New builds a Feature over an already-constructed graph.Manager (seeded
// with the crawl's seed URLs by the caller).
func New(manager *graph.Manager) *Feature {
	return &Feature{manager: manager}
}

func (f *Feature) Name() string { return "graph_expansion" }

func (f *Feature) Initialize(cap *pipeline.Capability) error  { return nil }
func (f *Feature) BeforeCrawl(cap *pipeline.Capability) error { return nil }
func (f *Feature) Finalize(cap *pipeline.Capability) error    { return nil }

func (f *Feature) ProcessURL(cap *pipeline.Capability, page pipeline.PageResult) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return fmt.Errorf("graph_expansion: parse %s: %w", page.URL.String(), err)
	}

	linkTexts := make(map[string]string)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		linkTexts[href] = s.Text()
	})

	links := f.manager.ExtractLinks(page.URL.String(), linkTexts, string(page.Body))

	f.mu.Lock()
	f.links = append(f.links, links...)
	f.mu.Unlock()

	if cap.Enqueue == nil {
		return nil
	}
	for _, link := range links {
		cap.Enqueue.Enqueue(link.URL, link.Priority, link.Depth, page.URL.String())
	}
	return nil
}

// DiscoveredLinks returns every link this feature has extracted across
// the crawl so far, for the final report.
func (f *Feature) DiscoveredLinks() []graph.LinkInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]graph.LinkInfo, len(f.links))
	copy(out, f.links)
	return out
}
