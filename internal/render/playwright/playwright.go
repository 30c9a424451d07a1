// Package playwright is the concrete render.Renderer adapter, built on
// github.com/playwright-community/playwright-go: one Chromium process
// per crawl, one browser context per opened session.
package playwright

import (
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/rohmanhakim/canopy-go/internal/render"
)

// Adapter launches a single headless Chromium instance per crawl.
type Adapter struct {
	pw       *pw.Playwright
	browser  pw.Browser
	headless bool
}

// New installs (if needed) and starts the Playwright driver. headless
// controls whether the launched browser is visible.
func New(headless bool) (*Adapter, error) {
	if err := pw.Install(); err != nil {
		return nil, fmt.Errorf("playwright install: %w", err)
	}
	driver, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright start: %w", err)
	}
	browser, err := driver.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--disable-web-security",
		},
	})
	if err != nil {
		driver.Stop()
		return nil, fmt.Errorf("chromium launch: %w", err)
	}
	return &Adapter{pw: driver, browser: browser, headless: headless}, nil
}

func (a *Adapter) Open(viewport render.Viewport, userAgent string) (render.Session, error) {
	ctx, err := a.browser.NewContext(pw.BrowserNewContextOptions{
		Viewport:  &pw.Size{Width: viewport.Width, Height: viewport.Height},
		UserAgent: pw.String(userAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := ctx.NewPage()
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &session{ctx: ctx, page: page}, nil
}

func (a *Adapter) Close() error {
	var firstErr error
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			firstErr = err
		}
	}
	if a.pw != nil {
		if err := a.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type session struct {
	ctx  pw.BrowserContext
	page pw.Page
}

func (s *session) Navigate(url string, waitForNetworkIdle bool, timeout time.Duration) error {
	opts := pw.PageGotoOptions{Timeout: pw.Float(float64(timeout.Milliseconds()))}
	if waitForNetworkIdle {
		opts.WaitUntil = pw.WaitUntilStateNetworkidle
	}
	_, err := s.page.Goto(url, opts)
	return err
}

func (s *session) DismissConsent(selectors []string) {
	for _, selector := range selectors {
		locator := s.page.Locator(selector)
		count, err := locator.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := locator.First().Click(pw.LocatorClickOptions{Timeout: pw.Float(1000)}); err == nil {
			time.Sleep(time.Second)
			return
		}
	}
}

func (s *session) FullPageScreenshot() ([]byte, error) {
	return s.page.Screenshot(pw.PageScreenshotOptions{
		FullPage: pw.Bool(true),
		Type:     pw.ScreenshotTypePng,
	})
}

func (s *session) Body() (string, error) {
	return s.page.Content()
}

func (s *session) Locate(selector string) render.Locator {
	return &locator{inner: s.page.Locator(selector)}
}

func (s *session) Close() error {
	if err := s.page.Close(); err != nil {
		return err
	}
	return s.ctx.Close()
}

type locator struct {
	inner pw.Locator
}

func (l *locator) Count() (int, error) {
	return l.inner.Count()
}

func (l *locator) BoundingBox() (*render.BoundingBox, error) {
	box, err := l.inner.BoundingBox()
	if err != nil || box == nil {
		return nil, err
	}
	return &render.BoundingBox{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (l *locator) IsVisible() (bool, error) {
	return l.inner.IsVisible()
}

func (l *locator) Screenshot() ([]byte, error) {
	return l.inner.Screenshot(pw.LocatorScreenshotOptions{Type: pw.ScreenshotTypePng})
}

func (l *locator) Nth(i int) render.Locator {
	return &locator{inner: l.inner.Nth(i)}
}
