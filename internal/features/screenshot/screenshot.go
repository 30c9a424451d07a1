// Package screenshot implements the full-page-screenshot pipeline
// feature: launch the renderer once, open one page per crawl, dismiss a
// fixed list of consent banners, wait for the page to settle, then
// capture. It is also the feature responsible for opening the shared
// render.Session published to the rest of the pipeline via
// pipeline.Capability.SetRenderSession.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"time"

	"github.com/rohmanhakim/canopy-go/internal/pipeline"
	"github.com/rohmanhakim/canopy-go/internal/render"
)

// consentSelectors is the fixed list of common cookie/consent banner
// dismissal targets, tried in order until one is visible and clickable.
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button#accept-all",
	"button[aria-label='Accept all']",
	"button[aria-label='Accept']",
	".cookie-consent button",
	"[data-testid='cookie-accept']",
}

// stabilizationDelay gives lazily-loaded page content time to settle
// before the full-page screenshot is taken.
var stabilizationDelay = 3 * time.Second

// SetStabilizationDelayForTest overrides the settle sleep so tests don't
// pay the real-page stabilization cost.
func SetStabilizationDelayForTest(d time.Duration) {
	stabilizationDelay = d
}

// Feature captures a full-page screenshot of every admitted page.
type Feature struct {
	renderer  render.Renderer
	viewport  render.Viewport
	userAgent string

	session render.Session
}

// New builds a Feature that opens sessions through renderer at the given
// viewport, identifying itself to the server as userAgent.
func New(renderer render.Renderer, viewport render.Viewport, userAgent string) *Feature {
	return &Feature{renderer: renderer, viewport: viewport, userAgent: userAgent}
}

func (f *Feature) Name() string { return "screenshot" }

func (f *Feature) Initialize(cap *pipeline.Capability) error { return nil }

// BeforeCrawl opens the single shared render session and publishes it so
// DOM extraction (and any other later feature) can reuse it instead of
// launching a second browser context.
func (f *Feature) BeforeCrawl(cap *pipeline.Capability) error {
	session, err := f.renderer.Open(f.viewport, f.userAgent)
	if err != nil {
		return fmt.Errorf("screenshot: open session: %w", err)
	}
	f.session = session
	cap.SetRenderSession(session)
	return nil
}

func (f *Feature) ProcessURL(cap *pipeline.Capability, page pipeline.PageResult) error {
	if f.session == nil {
		return fmt.Errorf("screenshot: no open render session")
	}
	if err := f.session.Navigate(page.URL.String(), true, 30*time.Second); err != nil {
		return fmt.Errorf("screenshot: navigate %s: %w", page.URL.String(), err)
	}
	f.session.DismissConsent(consentSelectors)
	time.Sleep(stabilizationDelay)

	png, err := f.session.FullPageScreenshot()
	if err != nil {
		return fmt.Errorf("screenshot: capture %s: %w", page.URL.String(), err)
	}

	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return fmt.Errorf("screenshot: decode png for %s: %w", page.URL.String(), err)
	}

	if cap.Images == nil {
		return fmt.Errorf("screenshot: no image writer configured")
	}
	if _, err := cap.Images.WriteImage(page.Host, page.URLID, "screenshot.webp", img); err != nil {
		return fmt.Errorf("screenshot: write %s: %w", page.URL.String(), err)
	}
	return nil
}

// Finalize closes the shared render session. Since DOM extraction only
// reads from the same session within ProcessURL (never after), closing
// here is safe once the coordinator has finished every feature's
// ProcessURL pass for this crawl.
func (f *Feature) Finalize(cap *pipeline.Capability) error {
	if f.session == nil {
		return nil
	}
	err := f.session.Close()
	f.session = nil
	if err != nil {
		return fmt.Errorf("screenshot: close session: %w", err)
	}
	return nil
}
