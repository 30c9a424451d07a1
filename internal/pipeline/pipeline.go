// Package pipeline runs the crawler's optional per-page capabilities
// (screenshot, DOM extraction, graph expansion, CSS download) in a fixed
// order. A single Coordinator owns the ordered feature list and passes
// each hook a narrow capability argument instead of letting features
// retain long-lived back-references to the crawl loop or to each other.
package pipeline

import (
	"image"
	"net/url"

	"github.com/rohmanhakim/canopy-go/internal/render"
)

// PageResult is the per-URL outcome a feature inspects in ProcessURL:
// the fetched body and response metadata, already dedup/robots-cleared
// by the crawl loop. Host and URLID are precomputed by the loop (the
// sole owner of the content-addressed storage layout) so every feature
// writes artifacts under the same page directory without recomputing the
// digest itself.
type PageResult struct {
	URL         url.URL
	Host        string
	URLID       string
	Depth       int
	StatusCode  int
	ContentType string
	Body        []byte
}

// Enqueuer is the narrow slice of the frontier a feature is allowed to
// drive: submitting newly discovered links, never popping or inspecting
// the queue.
type Enqueuer interface {
	Enqueue(canonical string, priority, depth int, source string) bool
}

// ArtifactWriter is the narrow slice of storage a feature writes
// through, scoped to one URL's output directory.
type ArtifactWriter interface {
	WriteArtifact(host, urlID, name string, data []byte) (path string, err error)
}

// ImageWriter is the narrow slice of storage an image-producing feature
// (screenshot, DOM-extraction component screenshots) writes through.
type ImageWriter interface {
	WriteImage(host, urlID, name string, img image.Image) (path string, err error)
}

// Session publishes an opened render.Session as a capability: the
// Screenshot feature opens and publishes it here; the DOM Extraction
// feature consumes it from the Coordinator rather than reaching into
// the Screenshot feature's private field.
type Session struct {
	render.Session
}

// Capability is the narrow, per-hook argument every feature receives
// instead of a back-reference to the crawl loop. Hooks may read and
// write RenderSession (at most one feature opens it; others consume);
// everything else is write-only from the feature's perspective.
type Capability struct {
	Enqueue   Enqueuer
	Artifacts ArtifactWriter
	Images    ImageWriter
	Metrics   MetricsSink

	// RenderSession holds the shared headless session once a feature has
	// opened one, nil until then. Mutate only via SetRenderSession.
	RenderSession *Session
}

// SetRenderSession publishes sess for later hooks/features to consume.
func (c *Capability) SetRenderSession(sess render.Session) {
	c.RenderSession = &Session{Session: sess}
}

// MetricsSink is the narrow metrics surface a feature may record
// through (artifact counts, feature-specific errors).
type MetricsSink interface {
	RecordDuplicate()
}

// Feature is the capability-set every optional pipeline stage
// implements: Initialize once at startup, BeforeCrawl once the frontier
// is seeded, ProcessURL once per admitted page, Finalize once at
// shutdown.
type Feature interface {
	// Name identifies the feature for logging and registration-order
	// documentation; it carries no runtime dependency semantics.
	Name() string
	Initialize(cap *Capability) error
	BeforeCrawl(cap *Capability) error
	ProcessURL(cap *Capability, page PageResult) error
	Finalize(cap *Capability) error
}

// Coordinator owns a fixed-order feature registration list and drives
// every hook across it. Registration order is also execution order;
// feature execution is strictly serial, never concurrent.
type Coordinator struct {
	features []Feature
	cap      *Capability
}

// New builds a Coordinator over features, executed in the given order.
// Documentation-only ordering constraints (e.g. "DOM extraction expects
// Screenshot's session to already be open") are the caller's
// responsibility to honor; the Coordinator does not enforce a
// dependency graph.
func New(cap *Capability, features ...Feature) *Coordinator {
	return &Coordinator{features: features, cap: cap}
}

// Initialize runs Initialize on every registered feature, in
// registration order. Errors are collected and returned rather than
// stopping at the first: one feature failing to initialize (e.g. a bad
// selector list) does not prevent the others from starting.
func (c *Coordinator) Initialize() []error {
	var errs []error
	for _, f := range c.features {
		if err := f.Initialize(c.cap); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// BeforeCrawl runs BeforeCrawl on every registered feature, in
// registration order, collecting rather than stopping on error so a
// feature that fails to open its resources (e.g. Screenshot's render
// session) doesn't block the others from running.
func (c *Coordinator) BeforeCrawl() []error {
	var errs []error
	for _, f := range c.features {
		if err := f.BeforeCrawl(c.cap); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ProcessURL runs ProcessURL on every registered feature, in order, for
// one admitted page. A feature error is collected and execution
// continues with the remaining features: one feature's failure
// (e.g. a screenshot timeout) should not prevent CSS download from
// running on the same page.
func (c *Coordinator) ProcessURL(page PageResult) []error {
	var errs []error
	for _, f := range c.features {
		if err := f.ProcessURL(c.cap, page); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Finalize runs Finalize on every registered feature, in registration
// order, collecting rather than stopping on error so every feature gets
// a chance to release its resources (e.g. close a render session).
func (c *Coordinator) Finalize() []error {
	var errs []error
	for _, f := range c.features {
		if err := f.Finalize(c.cap); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
