package cssdownload

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func serveCSS(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/styles/site.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, "body { margin: 0 }")
	})
	mux.HandleFunc("/styles/extra.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, "h1 { color: red }")
	})
	mux.HandleFunc("/missing.css", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func pageOn(t *testing.T, server *httptest.Server, body string) pipeline.PageResult {
	t.Helper()
	u, err := url.Parse(server.URL + "/page")
	require.NoError(t, err)
	return pipeline.PageResult{URL: *u, Host: u.Hostname(), URLID: "abcdef123456", Body: []byte(body)}
}

func TestProcessURL_DownloadsLinkedStylesheets(t *testing.T) {
	server := serveCSS(t)
	writer := &memoryWriter{}
	feature := New(10, "test-bot/1.0", nil)

	page := pageOn(t, server, `<html><head>
		<link rel="stylesheet" href="/styles/site.css">
		<link rel="stylesheet" href="/styles/extra.css">
	</head></html>`)

	require.NoError(t, feature.ProcessURL(&pipeline.Capability{Artifacts: writer}, page))

	assert.Equal(t, "body { margin: 0 }", string(writer.artifacts["css/site.css"]))
	assert.Equal(t, "h1 { color: red }", string(writer.artifacts["css/extra.css"]))
}

func TestProcessURL_CapsAtMaxFiles(t *testing.T) {
	server := serveCSS(t)
	writer := &memoryWriter{}
	feature := New(1, "test-bot/1.0", nil)

	page := pageOn(t, server, `<html><head>
		<link rel="stylesheet" href="/styles/site.css">
		<link rel="stylesheet" href="/styles/extra.css">
	</head></html>`)

	require.NoError(t, feature.ProcessURL(&pipeline.Capability{Artifacts: writer}, page))
	assert.Len(t, writer.artifacts, 1)
}

func TestProcessURL_FailedStylesheetSurfacesError(t *testing.T) {
	server := serveCSS(t)
	writer := &memoryWriter{}
	feature := New(10, "test-bot/1.0", nil)

	page := pageOn(t, server, `<html><head>
		<link rel="stylesheet" href="/missing.css">
		<link rel="stylesheet" href="/styles/site.css">
	</head></html>`)

	err := feature.ProcessURL(&pipeline.Capability{Artifacts: writer}, page)
	require.Error(t, err)
	assert.Equal(t, "body { margin: 0 }", string(writer.artifacts["css/site.css"]),
		"one failed stylesheet must not stop the rest")
}

func TestProcessURL_NoStylesheets(t *testing.T) {
	server := serveCSS(t)
	writer := &memoryWriter{}
	feature := New(10, "test-bot/1.0", nil)

	page := pageOn(t, server, `<html><body>no styles here</body></html>`)
	require.NoError(t, feature.ProcessURL(&pipeline.Capability{Artifacts: writer}, page))
	assert.Empty(t, writer.artifacts)
}

func TestSanitizeName(t *testing.T) {
	mustParse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}

	assert.Equal(t, "site.css", sanitizeName(mustParse("https://a.test/styles/site.css")))
	assert.Equal(t, "stylesheet.css", sanitizeName(mustParse("https://a.test/")))
	assert.Equal(t, "weird_name.css", sanitizeName(mustParse("https://a.test/weird%20name.css")))
	assert.Equal(t, "theme.css", sanitizeName(mustParse("https://a.test/theme")))
}
