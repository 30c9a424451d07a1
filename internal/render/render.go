// Package render defines the headless-rendering port: a minimal
// contract for opening a browsing session, navigating, and reading back
// pixels/DOM state. The crawler core depends only on this interface; the
// concrete adapter lives in internal/render/playwright.
package render

import "time"

// Viewport is the rendered page's pixel dimensions.
type Viewport struct {
	Width  int
	Height int
}

// BoundingBox is an element's rendered position and size, in CSS pixels.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Renderer opens browsing sessions. One Renderer, and at most one open
// Session, exists per crawl: the session is single-threaded and must not
// be driven concurrently by more than one feature.
type Renderer interface {
	Open(viewport Viewport, userAgent string) (Session, error)
	Close() error
}

// Session is one opened page/tab. Every method may block on I/O and
// should honor ctx-style timeouts passed at construction.
type Session interface {
	Navigate(url string, waitForNetworkIdle bool, timeout time.Duration) error
	// DismissConsent clicks the first matching selector in selectors, if
	// any is found and visible. It never returns an error: consent
	// dismissal is best-effort.
	DismissConsent(selectors []string)
	FullPageScreenshot() ([]byte, error)
	Body() (string, error)
	Locate(selector string) Locator
	Close() error
}

// Locator is a selector-scoped handle over zero or more matched elements,
// evaluated lazily against the live page.
type Locator interface {
	Count() (int, error)
	BoundingBox() (*BoundingBox, error)
	IsVisible() (bool, error)
	Screenshot() ([]byte, error)
	Nth(i int) Locator
}
