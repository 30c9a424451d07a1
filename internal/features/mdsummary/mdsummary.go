// Package mdsummary is an optional, off-by-default pipeline feature that
// exports a front-matter-tagged Markdown outline of each admitted page's
// DOM heading structure, derived from the same DOMNode tree the
// dom-extraction feature serializes. It deliberately carries no page
// prose beyond the heading text itself: the artifact describes the
// page's structure, not its content.
package mdsummary

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/rohmanhakim/canopy-go/internal/features/domextract"
	"github.com/rohmanhakim/canopy-go/internal/metadata"
	"github.com/rohmanhakim/canopy-go/internal/pipeline"
	"github.com/rohmanhakim/canopy-go/pkg/hashutil"
)

// headingLevels maps heading tags to their outline depth.
var headingLevels = map[string]int{
	"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
}

// Heading is one entry of a page's heading outline, in document order.
type Heading struct {
	Level int
	Text  string
}

// Feature emits one summary.md per admitted page: YAML front matter
// (URL, identity, heading counts, content hash) followed by the heading
// outline rendered as Markdown headings.
type Feature struct {
	metadataSink metadata.MetadataSink
	maxDepth     int
	appVersion   string
}

// New builds a Feature that walks the DOM tree down to maxDepth
// (falling back to the dom-extraction default) and stamps appVersion
// into each summary's front matter.
func New(metadataSink metadata.MetadataSink, maxDepth int, appVersion string) *Feature {
	if maxDepth <= 0 {
		maxDepth = domextract.DefaultMaxDepth
	}
	return &Feature{metadataSink: metadataSink, maxDepth: maxDepth, appVersion: appVersion}
}

func (f *Feature) Name() string { return "markdown_summary" }

func (f *Feature) Initialize(cap *pipeline.Capability) error  { return nil }
func (f *Feature) BeforeCrawl(cap *pipeline.Capability) error { return nil }
func (f *Feature) Finalize(cap *pipeline.Capability) error    { return nil }

func (f *Feature) ProcessURL(cap *pipeline.Capability, page pipeline.PageResult) error {
	body := page.Body
	if cap.RenderSession != nil {
		if rendered, err := cap.RenderSession.Body(); err == nil && rendered != "" {
			body = []byte(rendered)
		}
	}

	root, err := domextract.Parse(body, f.maxDepth)
	if err != nil {
		f.recordError(page, err)
		return fmt.Errorf("markdown_summary: %s: %w", page.URL.String(), err)
	}

	headings := collectHeadings(root)
	document, err := f.buildDocument(page, headings)
	if err != nil {
		f.recordError(page, err)
		return fmt.Errorf("markdown_summary: build %s: %w", page.URL.String(), err)
	}

	if cap.Artifacts == nil {
		return nil
	}
	if _, err := cap.Artifacts.WriteArtifact(page.Host, page.URLID, "summary.md", document); err != nil {
		return fmt.Errorf("markdown_summary: write summary for %s: %w", page.URL.String(), err)
	}
	return nil
}

func (f *Feature) recordError(page pipeline.PageResult, err error) {
	if f.metadataSink == nil {
		return
	}
	f.metadataSink.RecordError(
		time.Now(),
		"mdsummary",
		"Feature.ProcessURL",
		metadata.CauseContentInvalid,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, page.URL.String()),
		},
	)
}

// collectHeadings walks the DOM tree in document order and returns every
// h1-h6 node's level and direct text.
func collectHeadings(node *domextract.DOMNode) []Heading {
	var out []Heading
	if node == nil {
		return out
	}
	if level, ok := headingLevels[node.Tag]; ok {
		out = append(out, Heading{Level: level, Text: node.Text})
	}
	for _, child := range node.Children {
		out = append(out, collectHeadings(child)...)
	}
	return out
}

// buildDocument renders the front matter block and heading outline, then
// re-parses the outline to confirm it round-trips as the same heading
// structure before the artifact is written.
func (f *Feature) buildDocument(page pipeline.PageResult, headings []Heading) ([]byte, error) {
	var outline strings.Builder
	for _, h := range headings {
		outline.WriteString(strings.Repeat("#", h.Level))
		outline.WriteString(" ")
		// Collapse internal whitespace so a heading never spans lines.
		text := strings.Join(strings.Fields(h.Text), " ")
		if text == "" {
			text = "(untitled)"
		}
		outline.WriteString(text)
		outline.WriteString("\n\n")
	}
	outlineStr := outline.String()

	if err := validateOutline(outlineStr, len(headings)); err != nil {
		return nil, err
	}

	contentHash, err := hashutil.HashBytes([]byte(outlineStr), hashutil.HashAlgoBLAKE3)
	if err != nil {
		return nil, fmt.Errorf("hash outline: %w", err)
	}

	header := fmt.Sprintf(
		"---\nurl: %q\nhost: %q\nurl_id: %q\ncrawl_depth: %d\nheadings: %d\ncontent_hash: %q\ngenerated_at: %q\ncrawler_version: %q\n---\n\n",
		page.URL.String(), page.Host, page.URLID, page.Depth,
		len(headings), "blake3:"+contentHash,
		time.Now().UTC().Format(time.RFC3339), f.appVersion,
	)
	return append([]byte(header), outlineStr...), nil
}

// validateOutline parses the emitted Markdown and checks that exactly
// want headings survive the round trip, so a malformed heading text
// (e.g. one that swallows the next line) is caught before persisting.
func validateOutline(outline string, want int) error {
	p := parser.New()
	doc := markdown.Parse([]byte(outline), p)

	got := 0
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if _, ok := node.(*ast.Heading); ok && entering {
			got++
		}
		return ast.GoToNext
	})

	if got != want {
		return fmt.Errorf("outline round-trip mismatch: emitted %d headings, parsed %d", want, got)
	}
	return nil
}
