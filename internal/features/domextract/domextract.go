// Package domextract builds a structural DOM tree snapshot of every
// admitted page (one DOMNode per element: tag, id, classes, attributes,
// direct text, children, CSS selector, XPath, depth, bounding box,
// content hash) and, optionally, per-selector component screenshots. It
// consumes the render.Session the screenshot feature publishes via
// pipeline.Capability.RenderSession instead of reaching into that
// feature's private fields.
package domextract

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/rohmanhakim/canopy-go/internal/pipeline"
	"github.com/rohmanhakim/canopy-go/internal/render"
)

// DefaultMaxDepth caps the traversal when a crawl does not configure one.
const DefaultMaxDepth = 8

// maxPerSelector bounds how many matches of one selector are screenshot;
// a crawl with thousands of matches is almost always a bad selector, not
// bad luck.
const maxPerSelector = 20

// DefaultSelectors is the component-screenshot target list used when the
// crawl does not configure its own: semantic landmarks, common layout
// class/id fragments, and common leaf tags.
var DefaultSelectors = []string{
	"header", "nav", "main", "article", "section", "aside", "footer",
	".content", ".container", "#content", "#main",
	"h1", "form", "table",
}

// DOMNode is one element of the serialized tree, written as JSON to
// dom_trees.json.
type DOMNode struct {
	Tag            string              `json:"tag"`
	ID             string              `json:"id,omitempty"`
	Classes        []string            `json:"classes,omitempty"`
	Attrs          map[string]string   `json:"attrs,omitempty"`
	Text           string              `json:"text,omitempty"`
	Selector       string              `json:"selector"`
	XPath          string              `json:"xpath"`
	Depth          int                 `json:"depth"`
	BBox           *render.BoundingBox `json:"boundingBox,omitempty"`
	Hash           string              `json:"hash"`
	ScreenshotPath string              `json:"screenshotPath,omitempty"`
	Children       []*DOMNode          `json:"children,omitempty"`
}

// treeDocument is the on-disk shape of dom_trees.json: the tree plus the
// counts and timestamps a consumer needs without re-walking it.
type treeDocument struct {
	URL         string       `json:"url"`
	ExtractedAt time.Time    `json:"extractedAt"`
	Metadata    treeMetadata `json:"metadata"`
	Root        *DOMNode     `json:"root"`
}

type treeMetadata struct {
	TotalNodes  int `json:"total_nodes"`
	MaxDepth    int `json:"max_depth"`
	Screenshots int `json:"component_screenshots"`
}

// Feature builds a dom_trees.json snapshot per page, and, when selectors
// are configured, one WebP screenshot per matched element.
type Feature struct {
	maxDepth           int
	captureScreenshots bool
	selectors          []string
}

// New builds a Feature. maxDepth<=0 falls back to DefaultMaxDepth; an
// empty selector list falls back to DefaultSelectors.
func New(maxDepth int, captureScreenshots bool, selectors []string) *Feature {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &Feature{maxDepth: maxDepth, captureScreenshots: captureScreenshots, selectors: selectors}
}

// Parse builds the DOM-structure tree for body without running the full
// feature: the same DOMNode shape dom_trees.json serializes, for callers
// (e.g. the markdown-summary feature) that derive artifacts from the
// tree rather than from raw markup. maxDepth<=0 falls back to
// DefaultMaxDepth.
func Parse(body []byte, maxDepth int) (*DOMNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dom_extraction: parse: %w", err)
	}
	f := &Feature{maxDepth: maxDepth}
	root := f.buildTree(doc, "", 0)
	if root == nil {
		return nil, fmt.Errorf("dom_extraction: empty document")
	}
	return root, nil
}

func (f *Feature) Name() string { return "dom_extraction" }

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

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dom_extraction: parse %s: %w", page.URL.String(), err)
	}

	root := f.buildTree(doc, "", 0)
	if root == nil {
		return fmt.Errorf("dom_extraction: empty document for %s", page.URL.String())
	}

	var positionIndex map[[2]int]string
	if f.captureScreenshots && cap.RenderSession != nil && cap.Images != nil {
		captured := f.captureComponents(cap, page)
		positionIndex = make(map[[2]int]string, len(captured))
		for _, c := range captured {
			origin := [2]int{int(c.box.X), int(c.box.Y)}
			if _, taken := positionIndex[origin]; !taken {
				positionIndex[origin] = c.path
			}
		}
		attachComponents(root, captured)
		attachScreenshots(root, positionIndex)
	}

	treeJSON, err := json.MarshalIndent(treeDocument{
		URL:         page.URL.String(),
		ExtractedAt: time.Now().UTC(),
		Metadata: treeMetadata{
			TotalNodes:  countNodes(root),
			MaxDepth:    f.maxDepth,
			Screenshots: len(positionIndex),
		},
		Root: root,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("dom_extraction: marshal tree for %s: %w", page.URL.String(), err)
	}
	if cap.Artifacts != nil {
		if _, err := cap.Artifacts.WriteArtifact(page.Host, page.URLID, "dom_trees.json", treeJSON); err != nil {
			return fmt.Errorf("dom_extraction: write tree for %s: %w", page.URL.String(), err)
		}
	}
	return nil
}

// capturedComponent records one element screenshot: which selector and
// match ordinal produced it, where the element was rendered, and where
// the pixels landed on disk.
type capturedComponent struct {
	selector string
	ordinal  int
	box      render.BoundingBox
	path     string
}

// captureComponents screenshots every visible, positively-sized element
// matched by each configured selector, in render order.
func (f *Feature) captureComponents(cap *pipeline.Capability, page pipeline.PageResult) []capturedComponent {
	var captured []capturedComponent
	for _, selector := range f.selectors {
		locator := cap.RenderSession.Locate(selector)
		count, err := locator.Count()
		if err != nil || count == 0 {
			continue
		}
		if count > maxPerSelector {
			count = maxPerSelector
		}
		for i := 0; i < count; i++ {
			elem := locator.Nth(i)
			visible, err := elem.IsVisible()
			if err != nil || !visible {
				continue
			}
			box, err := elem.BoundingBox()
			if err != nil || box == nil || box.Width <= 0 || box.Height <= 0 {
				continue
			}
			png, err := elem.Screenshot()
			if err != nil {
				continue
			}
			img, _, err := image.Decode(bytes.NewReader(png))
			if err != nil {
				continue
			}
			x, y := int(box.X), int(box.Y)
			name := fmt.Sprintf("component_screenshots/%s_%d_%d_%d.webp", sanitizeSelector(selector), i, x, y)
			path, err := cap.Images.WriteImage(page.Host, page.URLID, name, img)
			if err != nil {
				continue
			}
			captured = append(captured, capturedComponent{selector: selector, ordinal: i, box: *box, path: path})
		}
	}
	return captured
}

// attachComponents binds each captured component back onto the tree node
// it was rendered from: the ordinal-th node matching the component's
// selector in document order gets the rendered bounding box and path.
func attachComponents(root *DOMNode, captured []capturedComponent) {
	bySelector := make(map[string][]*DOMNode)
	for _, c := range captured {
		if _, walked := bySelector[c.selector]; !walked {
			bySelector[c.selector] = collectMatches(root, c.selector)
		}
		matches := bySelector[c.selector]
		if c.ordinal >= len(matches) {
			continue
		}
		node := matches[c.ordinal]
		box := c.box
		node.BBox = &box
		node.ScreenshotPath = c.path
	}
}

// collectMatches walks the tree in document order collecting nodes that
// match a simple selector: a bare tag, "#id", ".class", or "tag.class".
// Anything more complex matches nothing, which only costs the bounding
// box annotation, never the screenshot itself.
func collectMatches(node *DOMNode, selector string) []*DOMNode {
	var out []*DOMNode
	if matchesSelector(node, selector) {
		out = append(out, node)
	}
	for _, child := range node.Children {
		out = append(out, collectMatches(child, selector)...)
	}
	return out
}

func matchesSelector(node *DOMNode, selector string) bool {
	switch {
	case strings.HasPrefix(selector, "#"):
		return node.ID == selector[1:]
	case strings.HasPrefix(selector, "."):
		return hasClass(node, selector[1:])
	case strings.Contains(selector, "."):
		parts := strings.SplitN(selector, ".", 2)
		return node.Tag == parts[0] && hasClass(node, parts[1])
	default:
		return node.Tag == selector
	}
}

func hasClass(node *DOMNode, class string) bool {
	for _, c := range node.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// attachScreenshots walks the tree and links any node whose bounding
// box's integer origin appears in the position index to the component
// screenshot stored for that origin.
func attachScreenshots(node *DOMNode, index map[[2]int]string) {
	if node == nil || len(index) == 0 {
		return
	}
	if node.BBox != nil {
		if path, ok := index[[2]int{int(node.BBox.X), int(node.BBox.Y)}]; ok {
			node.ScreenshotPath = path
		}
	}
	for _, child := range node.Children {
		attachScreenshots(child, index)
	}
}

// sanitizeSelector flattens a CSS selector into a filesystem-safe name
// fragment.
func sanitizeSelector(selector string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, selector)
}

func countNodes(node *DOMNode) int {
	if node == nil {
		return 0
	}
	total := 1
	for _, child := range node.Children {
		total += countNodes(child)
	}
	return total
}

// buildTree recursively walks n, skipping text/comment/doctype nodes at
// the top level and stopping at maxDepth. parentXPath is the accumulated
// XPath string of n's parent.
func (f *Feature) buildTree(n *html.Node, parentXPath string, depth int) *DOMNode {
	if n.Type != html.ElementNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if node := f.buildTree(c, parentXPath, depth); node != nil {
				return node
			}
		}
		return nil
	}

	node := &DOMNode{Tag: n.Data, Depth: depth}
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
		if a.Key == "id" {
			node.ID = a.Val
		}
		if a.Key == "class" {
			node.Classes = strings.Fields(a.Val)
		}
	}
	if len(attrs) > 0 {
		node.Attrs = attrs
	}

	node.Selector = cssSelector(n, node)
	node.XPath = fmt.Sprintf("%s/%s", parentXPath, xpathStep(n))
	node.Text = directText(n)
	node.Hash = nodeHash(node)

	if depth >= f.maxDepth {
		return node
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if child := f.buildTree(c, node.XPath, depth+1); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

func cssSelector(n *html.Node, node *DOMNode) string {
	if node.ID != "" {
		return "#" + node.ID
	}
	if len(node.Classes) > 0 {
		return n.Data + "." + strings.Join(node.Classes, ".")
	}
	return n.Data
}

func xpathStep(n *html.Node) string {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return fmt.Sprintf("%s[%d]", n.Data, idx)
}

// directText returns only n's immediate text-node children, not
// descendant text.
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// nodeHash is a 12-hex-character MD5 digest over a node's stable
// identity (tag, id, classes, direct text), matching the urlID
// convention internal/storage uses for page directories.
func nodeHash(node *DOMNode) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s|%s", node.Tag, node.ID, strings.Join(node.Classes, ","), node.Text)))
	return hex.EncodeToString(sum[:])[:12]
}
