package screenshot_test

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/canopy-go/internal/features/screenshot"
	"github.com/rohmanhakim/canopy-go/internal/pipeline"
	"github.com/rohmanhakim/canopy-go/internal/render"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

type fakeRenderer struct {
	session  *fakeSession
	openErr  error
	opened   int
	viewport render.Viewport
}

func (r *fakeRenderer) Open(viewport render.Viewport, userAgent string) (render.Session, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	r.opened++
	r.viewport = viewport
	return r.session, nil
}

func (r *fakeRenderer) Close() error { return nil }

type fakeSession struct {
	navigated []string
	dismissed [][]string
	shot      []byte
	shotErr   error
	closed    bool
}

func (s *fakeSession) Navigate(url string, waitForNetworkIdle bool, timeout time.Duration) error {
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) DismissConsent(selectors []string) {
	s.dismissed = append(s.dismissed, selectors)
}

func (s *fakeSession) FullPageScreenshot() ([]byte, error) { return s.shot, s.shotErr }
func (s *fakeSession) Body() (string, error)               { return "", nil }
func (s *fakeSession) Locate(selector string) render.Locator {
	return nil
}
func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type memoryImageWriter struct {
	images map[string]image.Image
}

func (w *memoryImageWriter) WriteImage(host, urlID, name string, img image.Image) (string, error) {
	if w.images == nil {
		w.images = make(map[string]image.Image)
	}
	w.images[name] = img
	return name, nil
}

func pageFor(t *testing.T, raw string) pipeline.PageResult {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return pipeline.PageResult{URL: *u, Host: u.Hostname(), URLID: "abcdef123456"}
}

func TestBeforeCrawl_OpensAndPublishesSession(t *testing.T) {
	session := &fakeSession{}
	renderer := &fakeRenderer{session: session}
	feature := screenshot.New(renderer, render.Viewport{Width: 800, Height: 600}, "test-bot/1.0")
	cap := &pipeline.Capability{}

	require.NoError(t, feature.BeforeCrawl(cap))

	assert.Equal(t, 1, renderer.opened)
	assert.Equal(t, render.Viewport{Width: 800, Height: 600}, renderer.viewport)
	require.NotNil(t, cap.RenderSession, "the opened session must be published as a capability")
}

func TestBeforeCrawl_OpenFailure(t *testing.T) {
	renderer := &fakeRenderer{openErr: errors.New("no chromium")}
	feature := screenshot.New(renderer, render.Viewport{Width: 800, Height: 600}, "test-bot/1.0")

	err := feature.BeforeCrawl(&pipeline.Capability{})
	require.Error(t, err)
}

func TestProcessURL_CapturesAndStores(t *testing.T) {
	screenshot.SetStabilizationDelayForTest(0)
	session := &fakeSession{shot: pngBytes(t)}
	renderer := &fakeRenderer{session: session}
	feature := screenshot.New(renderer, render.Viewport{Width: 800, Height: 600}, "test-bot/1.0")
	writer := &memoryImageWriter{}
	cap := &pipeline.Capability{Images: writer}

	require.NoError(t, feature.BeforeCrawl(cap))
	require.NoError(t, feature.ProcessURL(cap, pageFor(t, "https://a.test/page")))

	assert.Equal(t, []string{"https://a.test/page"}, session.navigated)
	assert.Len(t, session.dismissed, 1, "consent dismissal runs before the capture")
	assert.Contains(t, writer.images, "screenshot.webp")
}

func TestProcessURL_WithoutSession(t *testing.T) {
	renderer := &fakeRenderer{session: &fakeSession{}}
	feature := screenshot.New(renderer, render.Viewport{Width: 800, Height: 600}, "test-bot/1.0")

	err := feature.ProcessURL(&pipeline.Capability{}, pageFor(t, "https://a.test/page"))
	require.Error(t, err)
}

func TestFinalize_ClosesSession(t *testing.T) {
	session := &fakeSession{}
	renderer := &fakeRenderer{session: session}
	feature := screenshot.New(renderer, render.Viewport{Width: 800, Height: 600}, "test-bot/1.0")
	cap := &pipeline.Capability{}

	require.NoError(t, feature.BeforeCrawl(cap))
	require.NoError(t, feature.Finalize(cap))
	assert.True(t, session.closed)

	// A second Finalize without an open session is a no-op.
	require.NoError(t, feature.Finalize(cap))
}
