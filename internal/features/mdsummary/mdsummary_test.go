package mdsummary

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/canopy-go/internal/metadata"
	"github.com/rohmanhakim/canopy-go/internal/pipeline"
)

type memoryWriter struct {
	artifacts map[string][]byte
}

func (w *memoryWriter) WriteArtifact(host, urlID, name string, data []byte) (string, error) {
	if w.artifacts == nil {
		w.artifacts = make(map[string][]byte)
	}
	w.artifacts[name] = data
	return name, nil
}

func pageWith(t *testing.T, body string) pipeline.PageResult {
	t.Helper()
	u, err := url.Parse("https://a.test/docs/page")
	require.NoError(t, err)
	return pipeline.PageResult{URL: *u, Host: "a.test", URLID: "abcdef123456", Depth: 1, Body: []byte(body)}
}

func summarize(t *testing.T, body string) string {
	t.Helper()
	feature := New(&metadata.NoopSink{}, 8, "test/1.0")
	writer := &memoryWriter{}

	err := feature.ProcessURL(&pipeline.Capability{Artifacts: writer}, pageWith(t, body))
	require.NoError(t, err)

	raw, ok := writer.artifacts["summary.md"]
	require.True(t, ok, "a summary.md artifact must be written")
	return string(raw)
}

func TestProcessURL_EmitsHeadingOutline(t *testing.T) {
	summary := summarize(t, `<html><body>
		<h1>Getting Started</h1>
		<p>Prose that must NOT appear in the summary.</p>
		<h2>Install</h2>
		<h2>Usage</h2>
		<h3>Flags</h3>
	</body></html>`)

	assert.Contains(t, summary, "# Getting Started\n")
	assert.Contains(t, summary, "## Install\n")
	assert.Contains(t, summary, "## Usage\n")
	assert.Contains(t, summary, "### Flags\n")
	assert.NotContains(t, summary, "Prose that must NOT appear",
		"the summary describes structure, never page content")
}

func TestProcessURL_FrontMatter(t *testing.T) {
	summary := summarize(t, `<html><body><h1>Only Title</h1></body></html>`)

	require.True(t, strings.HasPrefix(summary, "---\n"))
	assert.Contains(t, summary, `url: "https://a.test/docs/page"`)
	assert.Contains(t, summary, `host: "a.test"`)
	assert.Contains(t, summary, `url_id: "abcdef123456"`)
	assert.Contains(t, summary, "crawl_depth: 1")
	assert.Contains(t, summary, "headings: 1")
	assert.Contains(t, summary, `content_hash: "blake3:`)
	assert.Contains(t, summary, `crawler_version: "test/1.0"`)
}

func TestProcessURL_NoHeadings(t *testing.T) {
	summary := summarize(t, `<html><body><p>no structure here</p></body></html>`)
	assert.Contains(t, summary, "headings: 0")
}

func TestProcessURL_NoWriterIsNoop(t *testing.T) {
	feature := New(&metadata.NoopSink{}, 8, "test/1.0")
	err := feature.ProcessURL(&pipeline.Capability{}, pageWith(t, "<html><body><h1>T</h1></body></html>"))
	require.NoError(t, err)
}

func TestCollectHeadings_DocumentOrder(t *testing.T) {
	summary := summarize(t, `<html><body>
		<h1>A</h1>
		<div><h2>B</h2></div>
		<h2>C</h2>
	</body></html>`)

	posA := strings.Index(summary, "# A")
	posB := strings.Index(summary, "## B")
	posC := strings.Index(summary, "## C")
	require.True(t, posA >= 0 && posB >= 0 && posC >= 0)
	assert.Less(t, posA, posB)
	assert.Less(t, posB, posC)
}
