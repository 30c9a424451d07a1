// Package crawler wires the frontier, politeness, dedup, graph, pipeline,
// storage, and metrics components into the crawl's control loop: one
// dequeue/fetch/process cycle per iteration, final stats recorded once on
// exit.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/rohmanhakim/canopy-go/internal/breaker"
	"github.com/rohmanhakim/canopy-go/internal/build"
	"github.com/rohmanhakim/canopy-go/internal/config"
	"github.com/rohmanhakim/canopy-go/internal/dedup"
	"github.com/rohmanhakim/canopy-go/internal/dedup/contenthash"
	"github.com/rohmanhakim/canopy-go/internal/features/cssdownload"
	"github.com/rohmanhakim/canopy-go/internal/features/domextract"
	"github.com/rohmanhakim/canopy-go/internal/features/graphfeature"
	"github.com/rohmanhakim/canopy-go/internal/features/mdsummary"
	"github.com/rohmanhakim/canopy-go/internal/features/screenshot"
	"github.com/rohmanhakim/canopy-go/internal/fetcher"
	"github.com/rohmanhakim/canopy-go/internal/frontier"
	"github.com/rohmanhakim/canopy-go/internal/graph"
	"github.com/rohmanhakim/canopy-go/internal/metadata"
	"github.com/rohmanhakim/canopy-go/internal/metrics"
	"github.com/rohmanhakim/canopy-go/internal/obs"
	"github.com/rohmanhakim/canopy-go/internal/pipeline"
	"github.com/rohmanhakim/canopy-go/internal/render"
	"github.com/rohmanhakim/canopy-go/internal/render/playwright"
	"github.com/rohmanhakim/canopy-go/internal/robots"
	"github.com/rohmanhakim/canopy-go/internal/storage"
	"github.com/rohmanhakim/canopy-go/pkg/failure"
	"github.com/rohmanhakim/canopy-go/pkg/limiter"
	"github.com/rohmanhakim/canopy-go/pkg/retry"
	"github.com/rohmanhakim/canopy-go/pkg/timeutil"
)

// seedPriority is the frontier priority every seed URL is admitted at.
const seedPriority = 1000

// maxFailedURLsShown caps how many failed URLs the final report lists.
const maxFailedURLsShown = 20

// Summary is the terminal outcome of one Run call, returned for the CLI
// to print and for tests to assert against.
type Summary struct {
	PagesCrawled int
	Errors       int
	Duration     time.Duration
	Metrics      metrics.Snapshot
	Dedup        dedup.Counters
}

// Crawler owns every long-lived component a crawl run needs and drives
// the dequeue/fetch/process loop across them.
type Crawler struct {
	cfg    config.Config
	logger *zap.Logger

	recorder  metadata.Recorder
	frontier  *frontier.Frontier
	dedup     *dedup.Manager
	robot     robots.Robot
	limiter   limiter.RateLimiter
	breakers  *breaker.Registry
	fetch     *fetcher.HtmlFetcher
	graphMgr  *graph.Manager
	store     *storage.ContentStore
	collector *metrics.Collector
	reporter  *metrics.Reporter

	renderer    render.Renderer
	coordinator *pipeline.Coordinator
	graphFeat   *graphfeature.Feature

	retryParam retry.RetryParam
}

// New builds every component cfg describes and wires them together,
// including launching the headless renderer when screenshots are
// enabled. The renderer's session is only opened once Run starts the
// feature pipeline.
func New(cfg config.Config) (*Crawler, error) {
	logger := obs.NewLogger(obs.Config{})
	recorder := metadata.NewRecorderWithLogger("crawler", logger)

	fe := fetcher.NewHtmlFetcher(&recorder)
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(cfg.BaseDelay())
	rl.SetJitter(cfg.Jitter())
	rl.SetRandomSeed(cfg.RandomSeed())
	rl.SetDefaultDelay(cfg.BaseDelay())
	rl.SetMaxConcurrentPerHost(cfg.MaxConcurrentPerHost())
	rl.SetBackoffParam(timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()))

	robot := robots.NewCachedRobot(&recorder)
	robot.Init(cfg.UserAgent())

	var seedHosts []string
	for _, u := range cfg.SeedURLs() {
		seedHosts = append(seedHosts, u.String())
	}

	var graphMgr *graph.Manager
	if cfg.GraphEnabled() {
		graphMgr = graph.New(graph.Config{
			Mode:           graph.Mode(cfg.GraphMode()),
			MaxDepth:       cfg.MaxDepth(),
			MaxDomains:     cfg.GraphMaxDomains(),
			MinDomainScore: cfg.GraphMinDomainScore(),
			Allowed:        cfg.GraphAllowed(),
			Blocked:        cfg.GraphBlocked(),
			Priority:       cfg.GraphPriority(),
			Keywords:       cfg.GraphKeywords(),
		}, seedHosts)
	} else {
		// Single-domain fallback: scope every discovered link to the seed
		// hosts, same as ModeSingleDomain, so the pipeline's graph feature
		// still has a manager to drive link discovery even when graph
		// crawling proper is switched off.
		graphMgr = graph.New(graph.Config{Mode: graph.ModeSingleDomain, MaxDepth: cfg.MaxDepth()}, seedHosts)
	}

	store := storage.NewContentStore(cfg.StorageRoot(), cfg.StorageCompress(), &recorder)
	collector := metrics.New()

	retryParam := retry.NewRetryParam(
		cfg.Jitter() > 0,
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()),
	)

	c := &Crawler{
		cfg:        cfg,
		logger:     logger,
		recorder:   recorder,
		frontier:   frontier.New(),
		dedup:      dedup.New(dedup.Config{BloomCapacity: cfg.BloomCapacity(), UseBloom: cfg.UseBloom()}),
		robot:      &robot,
		limiter:    rl,
		breakers:   breaker.NewRegistry(breaker.Config{FailureThreshold: cfg.FailureThreshold(), RecoveryTimeout: cfg.RecoveryTimeout()}, logger),
		fetch:      &fe,
		graphMgr:   graphMgr,
		store:      store,
		collector:  collector,
		retryParam: retryParam,
	}
	c.reporter = metrics.NewReporter(collector, cfg.ReportInterval(), logger)
	c.graphFeat = graphfeature.New(graphMgr)

	cap := &pipeline.Capability{
		Enqueue: &frontierEnqueuer{c: c},
		Metrics: collector,
	}
	// A dry run leaves every writer nil: features still parse, score, and
	// enqueue, but nothing touches the disk.
	if !cfg.DryRun() {
		cap.Artifacts = store
		cap.Images = store
	}

	var features []pipeline.Feature
	features = append(features, c.graphFeat)
	if cfg.ScreenshotsEnabled() {
		renderer, err := playwright.New(cfg.Headless())
		if err != nil {
			return nil, fmt.Errorf("crawler: start renderer: %w", err)
		}
		c.renderer = renderer
		viewport := render.Viewport{Width: cfg.ViewportWidth(), Height: cfg.ViewportHeight()}
		features = append(features, screenshot.New(renderer, viewport, cfg.UserAgent()))
	}
	if cfg.DOMExtractionEnabled() {
		features = append(features, domextract.New(cfg.DOMMaxDepth(), cfg.DOMCaptureScreenshots(), cfg.DOMSelectors()))
	}
	if cfg.CSSDownloadEnabled() {
		features = append(features, cssdownload.New(cfg.MaxCSSFiles(), cfg.UserAgent(), &recorder))
	}
	if cfg.MarkdownSummaryEnabled() {
		features = append(features, mdsummary.New(&recorder, cfg.DOMMaxDepth(), build.FullVersion()))
	}
	c.coordinator = pipeline.New(cap, features...)

	return c, nil
}

// frontierEnqueuer is the pipeline.Enqueuer every feature drives through:
// it runs the full admission decision (dedup, graph scope, robots) before
// a discovered link ever reaches the frontier.
type frontierEnqueuer struct{ c *Crawler }

func (e *frontierEnqueuer) Enqueue(canonical string, priority, depth int, source string) bool {
	return e.c.admit(canonical, priority, depth, source)
}

func (c *Crawler) admit(raw string, priority, depth int, source string) bool {
	accept, canonical, reason := c.dedup.ShouldCrawl(raw)
	if !accept {
		c.collector.RecordDuplicate()
		c.logger.Debug("admission rejected", zap.String("url", raw), zap.String("reason", string(reason)))
		return false
	}

	parsed, err := url.Parse(canonical)
	if err != nil {
		return false
	}
	host := parsed.Hostname()

	if allow, reason := c.graphMgr.ShouldCrawlDomain(host); !allow {
		c.logger.Debug("admission rejected", zap.String("url", canonical), zap.String("reason", reason))
		return false
	}

	decision, rerr := c.robot.Decide(*parsed)
	if rerr != nil {
		// Robots unavailability never blocks crawling.
		c.logger.Warn("robots decision failed", zap.String("url", canonical), zap.Error(rerr))
	} else {
		if !decision.Allowed {
			c.collector.RecordError(host, failure.KindHTTPClient.String())
			c.logger.Debug("admission rejected by robots", zap.String("url", canonical), zap.String("reason", string(decision.Reason)))
			return false
		}
		if decision.CrawlDelay > 0 {
			c.limiter.SetCrawlDelay(host, decision.CrawlDelay)
		}
	}

	return c.frontier.Enqueue(canonical, priority, depth, source)
}

// Run seeds the frontier, runs Initialize/BeforeCrawl on every feature,
// then loops dequeue→fetch→dedup→process until the frontier empties or
// cfg.MaxPages() is reached, finally running Finalize and returning a
// Summary of the run.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	started := time.Now()

	for _, u := range c.cfg.SeedURLs() {
		c.admit(u.String(), seedPriority, 0, "seed")
	}

	for _, err := range c.coordinator.Initialize() {
		c.logger.Warn("feature initialize failed", zap.Error(err))
	}
	for _, err := range c.coordinator.BeforeCrawl() {
		c.logger.Warn("feature before-crawl hook failed", zap.Error(err))
	}

	c.reporter.Start(ctx)
	defer c.reporter.Stop()

	var totalErrors int
	var failedURLs []string
	maxPages := c.cfg.MaxPages()

	for {
		if maxPages > 0 && c.frontier.VisitedCount() >= maxPages {
			break
		}
		if ctx.Err() != nil {
			break
		}

		entry, ok := c.frontier.Dequeue()
		if !ok {
			break
		}
		c.collector.SetQueueDepth(c.frontier.Len())

		if err := c.crawlOne(ctx, entry); err != nil {
			totalErrors++
			if len(failedURLs) < maxFailedURLsShown {
				failedURLs = append(failedURLs, entry.Canonical)
			}
			c.logger.Warn("crawl failed", zap.String("url", entry.Canonical), zap.Error(err))
		}
	}

	for _, err := range c.coordinator.Finalize() {
		c.logger.Warn("feature finalize failed", zap.Error(err))
	}
	if c.renderer != nil {
		if err := c.renderer.Close(); err != nil {
			c.logger.Warn("renderer close failed", zap.Error(err))
		}
	}

	snapshot := c.collector.Snapshot()
	duration := time.Since(started)
	c.recorder.RecordFinalCrawlStats(snapshot.PagesCrawled, totalErrors, 0, duration)
	c.reporter.PrintFinal(snapshot, c.dedup.Snapshot())
	if len(failedURLs) > 0 {
		fmt.Printf("Failed URLs (first %d):\n", maxFailedURLsShown)
		for _, u := range failedURLs {
			fmt.Printf("  %s\n", u)
		}
	}
	for host, state := range c.breakers.States() {
		if state != "closed" {
			fmt.Printf("Circuit breaker %s: %s\n", host, state)
		}
	}

	return Summary{
		PagesCrawled: snapshot.PagesCrawled,
		Errors:       totalErrors,
		Duration:     duration,
		Metrics:      snapshot,
		Dedup:        c.dedup.Snapshot(),
	}, nil
}

// crawlOne fetches and processes a single admitted frontier entry: wait
// for politeness clearance, fetch behind the host's circuit breaker,
// reject duplicate content, persist the raw artifacts, and run it
// through every configured feature.
func (c *Crawler) crawlOne(ctx context.Context, entry frontier.Entry) error {
	parsed, err := url.Parse(entry.Canonical)
	if err != nil {
		return fmt.Errorf("crawler: parse %s: %w", entry.Canonical, err)
	}
	host := parsed.Hostname()

	if err := c.limiter.Wait(ctx, host); err != nil {
		return fmt.Errorf("crawler: wait %s: %w", host, err)
	}

	var result fetcher.FetchResult
	var classified failure.ClassifiedError
	fetchStart := time.Now()
	breakerErr := c.breakers.Execute(host, func() error {
		fetchParam := fetcher.NewFetchParam(*parsed, c.cfg.UserAgent())
		r, ferr := c.fetch.Fetch(ctx, entry.Depth, fetchParam, c.retryParam)
		if ferr != nil {
			classified = ferr
			return ferr
		}
		result = r
		return nil
	})
	latency := time.Since(fetchStart)

	if breakerErr != nil {
		c.limiter.Backoff(host)
		kind := failure.KindUnknown.String()
		if classified != nil {
			kind = classified.Kind().String()
		}
		c.collector.RecordError(host, kind)
		return fmt.Errorf("crawler: fetch %s: %w", entry.Canonical, breakerErr)
	}
	c.limiter.ResetBackoff(host)
	c.limiter.RequestCompleted(host, latency, result.Code())

	dup, _ := c.dedup.IsDuplicateContent(result.Body(), entry.Canonical, contenthash.KindHTML)
	if dup {
		c.collector.RecordDuplicate()
		return nil
	}

	c.collector.RecordFetch(host, int64(result.SizeByte()), latency)

	urlID := storage.URLID(entry.Canonical)
	if !c.cfg.DryRun() {
		if _, err := c.store.WriteArtifact(host, urlID, "html", result.Body()); err != nil {
			return fmt.Errorf("crawler: write html for %s: %w", entry.Canonical, err)
		}
	}

	page := pipeline.PageResult{
		URL:         *parsed,
		Host:        host,
		URLID:       urlID,
		Depth:       entry.Depth,
		StatusCode:  result.Code(),
		ContentType: result.Headers()["Content-Type"],
		Body:        result.Body(),
	}
	for _, ferr := range c.coordinator.ProcessURL(page) {
		c.logger.Warn("pipeline feature failed", zap.String("url", entry.Canonical), zap.Error(ferr))
	}

	meta := storage.PageMetadata{
		URL:         entry.Canonical,
		Host:        host,
		URLID:       urlID,
		Depth:       entry.Depth,
		Source:      entry.Source,
		StatusCode:  result.Code(),
		ContentType: page.ContentType,
		FetchedAt:   result.FetchedAt(),
	}
	if _, err := c.store.WritePageMetadata(host, urlID, meta); err != nil {
		return fmt.Errorf("crawler: write metadata for %s: %w", entry.Canonical, err)
	}

	return nil
}
