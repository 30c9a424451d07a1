package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int

	//===============
	// Politeness
	//===============
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	// Intentional randomness applied to timing.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Output
	//===============
	// Whether the program will simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool

	//===============
	// Graph expansion (withGraphCrawling)
	//===============
	graphEnabled        bool
	graphMode           string
	graphMaxDomains     int
	graphMinDomainScore float64
	graphAllowed        map[string]struct{}
	graphBlocked        map[string]struct{}
	graphPriority       map[string]struct{}
	graphKeywords       []string

	//===============
	// Screenshot feature (withScreenshots)
	//===============
	screenshotsEnabled bool
	viewportWidth      int
	viewportHeight     int
	headless           bool

	//===============
	// DOM extraction feature (withDOMExtraction)
	//===============
	domExtractionEnabled  bool
	domMaxDepth           int
	domCaptureScreenshots bool
	domSelectors          []string

	//===============
	// CSS download feature (withCSSDownload)
	//===============
	cssDownloadEnabled bool
	maxCSSFiles        int

	//===============
	// Deduplication tuning (deduplication)
	//===============
	bloomCapacity uint
	useBloom      bool

	//===============
	// Storage (storage)
	//===============
	storageRoot     string
	storageCompress bool

	//===============
	// Rate limiter / circuit breaker
	//===============
	maxConcurrentPerHost int
	failureThreshold     uint32
	recoveryTimeout      time.Duration

	//===============
	// Metrics reporter
	//===============
	reportInterval time.Duration

	//===============
	// Optional markdown summary export (supplemented feature)
	//===============
	markdownSummaryEnabled bool
}

type configDTO struct {
	SeedURLs               []string      `json:"seedUrls" yaml:"seedUrls"`
	MaxDepth               int           `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	MaxPages               int           `json:"maxPages,omitempty" yaml:"maxPages,omitempty"`
	BaseDelay              time.Duration `json:"baseDelay,omitempty" yaml:"baseDelay,omitempty"`
	Jitter                 time.Duration `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	RandomSeed             int64         `json:"randomSeed,omitempty" yaml:"randomSeed,omitempty"`
	MaxAttempt             int           `json:"maxAttempt,omitempty" yaml:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration `json:"backoffInitialDuration,omitempty" yaml:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64       `json:"backoffMultiplier,omitempty" yaml:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration `json:"backoffMaxDuration,omitempty" yaml:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	UserAgent              string        `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	DryRun                 bool          `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`

	// Graph expansion
	GraphEnabled        bool     `json:"graphEnabled,omitempty" yaml:"graphEnabled,omitempty"`
	GraphMode           string   `json:"graphMode,omitempty" yaml:"graphMode,omitempty"`
	GraphMaxDomains     int      `json:"graphMaxDomains,omitempty" yaml:"graphMaxDomains,omitempty"`
	GraphMinDomainScore float64  `json:"graphMinDomainScore,omitempty" yaml:"graphMinDomainScore,omitempty"`
	GraphAllowed        []string `json:"graphAllowed,omitempty" yaml:"graphAllowed,omitempty"`
	GraphBlocked        []string `json:"graphBlocked,omitempty" yaml:"graphBlocked,omitempty"`
	GraphPriority       []string `json:"graphPriority,omitempty" yaml:"graphPriority,omitempty"`
	GraphKeywords       []string `json:"graphKeywords,omitempty" yaml:"graphKeywords,omitempty"`

	// Screenshot feature
	ScreenshotsEnabled bool  `json:"screenshotsEnabled,omitempty" yaml:"screenshotsEnabled,omitempty"`
	ViewportWidth      int   `json:"viewportWidth,omitempty" yaml:"viewportWidth,omitempty"`
	ViewportHeight     int   `json:"viewportHeight,omitempty" yaml:"viewportHeight,omitempty"`
	Headless           *bool `json:"headless,omitempty" yaml:"headless,omitempty"`

	// DOM extraction feature
	DOMExtractionEnabled  bool     `json:"domExtractionEnabled,omitempty" yaml:"domExtractionEnabled,omitempty"`
	DOMMaxDepth           int      `json:"domMaxDepth,omitempty" yaml:"domMaxDepth,omitempty"`
	DOMCaptureScreenshots bool     `json:"domCaptureScreenshots,omitempty" yaml:"domCaptureScreenshots,omitempty"`
	DOMSelectors          []string `json:"domSelectors,omitempty" yaml:"domSelectors,omitempty"`

	// CSS download feature
	CSSDownloadEnabled bool `json:"cssDownloadEnabled,omitempty" yaml:"cssDownloadEnabled,omitempty"`
	MaxCSSFiles        int  `json:"maxCSSFiles,omitempty" yaml:"maxCSSFiles,omitempty"`

	// Deduplication tuning
	BloomCapacity uint  `json:"bloomCapacity,omitempty" yaml:"bloomCapacity,omitempty"`
	UseBloom      *bool `json:"useBloom,omitempty" yaml:"useBloom,omitempty"`

	// Storage
	StorageRoot     string `json:"storageRoot,omitempty" yaml:"storageRoot,omitempty"`
	StorageCompress *bool  `json:"storageCompress,omitempty" yaml:"storageCompress,omitempty"`

	// Rate limiter / circuit breaker
	MaxConcurrentPerHost int           `json:"maxConcurrentPerHost,omitempty" yaml:"maxConcurrentPerHost,omitempty"`
	FailureThreshold     uint32        `json:"failureThreshold,omitempty" yaml:"failureThreshold,omitempty"`
	RecoveryTimeout      time.Duration `json:"recoveryTimeout,omitempty" yaml:"recoveryTimeout,omitempty"`

	// Metrics reporter
	ReportInterval time.Duration `json:"reportInterval,omitempty" yaml:"reportInterval,omitempty"`

	// Optional markdown summary export
	MarkdownSummaryEnabled bool `json:"markdownSummaryEnabled,omitempty" yaml:"markdownSummaryEnabled,omitempty"`
}

// toSet converts a list of hostnames to the set form the builder uses.
func toSet(hosts []string) map[string]struct{} {
	if len(hosts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h != "" {
			set[h] = struct{}{}
		}
	}
	return set
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	seeds := make([]url.URL, 0, len(dto.SeedURLs))
	for _, raw := range dto.SeedURLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: seed URL %q: %s", ErrInvalidConfig, raw, err.Error())
		}
		seeds = append(seeds, *parsed)
	}

	// Start with default config
	cfg, err := WithDefault(seeds).Build()
	if err != nil {
		return Config{}, err
	}

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun

	// Graph expansion
	cfg.graphEnabled = dto.GraphEnabled
	if dto.GraphMode != "" {
		cfg.graphMode = dto.GraphMode
	}
	if dto.GraphMaxDomains != 0 {
		cfg.graphMaxDomains = dto.GraphMaxDomains
	}
	if dto.GraphMinDomainScore != 0 {
		cfg.graphMinDomainScore = dto.GraphMinDomainScore
	}
	if len(dto.GraphAllowed) > 0 {
		cfg.graphAllowed = toSet(dto.GraphAllowed)
	}
	if len(dto.GraphBlocked) > 0 {
		cfg.graphBlocked = toSet(dto.GraphBlocked)
	}
	if len(dto.GraphPriority) > 0 {
		cfg.graphPriority = toSet(dto.GraphPriority)
	}
	if len(dto.GraphKeywords) > 0 {
		cfg.graphKeywords = dto.GraphKeywords
	}

	// Screenshot feature
	cfg.screenshotsEnabled = dto.ScreenshotsEnabled
	if dto.ViewportWidth != 0 {
		cfg.viewportWidth = dto.ViewportWidth
	}
	if dto.ViewportHeight != 0 {
		cfg.viewportHeight = dto.ViewportHeight
	}
	if dto.Headless != nil {
		cfg.headless = *dto.Headless
	}

	// DOM extraction feature
	cfg.domExtractionEnabled = dto.DOMExtractionEnabled
	if dto.DOMMaxDepth != 0 {
		cfg.domMaxDepth = dto.DOMMaxDepth
	}
	cfg.domCaptureScreenshots = dto.DOMCaptureScreenshots
	if len(dto.DOMSelectors) > 0 {
		cfg.domSelectors = dto.DOMSelectors
	}

	// CSS download feature
	cfg.cssDownloadEnabled = dto.CSSDownloadEnabled
	if dto.MaxCSSFiles != 0 {
		cfg.maxCSSFiles = dto.MaxCSSFiles
	}

	// Deduplication tuning
	if dto.BloomCapacity != 0 {
		cfg.bloomCapacity = dto.BloomCapacity
	}
	if dto.UseBloom != nil {
		cfg.useBloom = *dto.UseBloom
	}

	// Storage
	if dto.StorageRoot != "" {
		cfg.storageRoot = dto.StorageRoot
	}
	if dto.StorageCompress != nil {
		cfg.storageCompress = *dto.StorageCompress
	}

	// Rate limiter / circuit breaker
	if dto.MaxConcurrentPerHost != 0 {
		cfg.maxConcurrentPerHost = dto.MaxConcurrentPerHost
	}
	if dto.FailureThreshold != 0 {
		cfg.failureThreshold = dto.FailureThreshold
	}
	if dto.RecoveryTimeout != 0 {
		cfg.recoveryTimeout = dto.RecoveryTimeout
	}

	// Metrics reporter
	if dto.ReportInterval != 0 {
		cfg.reportInterval = dto.ReportInterval
	}

	// Optional markdown summary export
	cfg.markdownSummaryEnabled = dto.MarkdownSummaryEnabled

	if cfg.domExtractionEnabled && !cfg.screenshotsEnabled {
		return Config{}, fmt.Errorf("%w: DOM extraction requires screenshots to be enabled", ErrInvalidConfig)
	}

	return cfg, nil
}

// WithConfigFile loads a JSON or YAML config file (decided by extension,
// defaulting to JSON) and builds a Config from it over the defaults.
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(configContent, &cfgDTO)
	default:
		err = json.Unmarshal(configContent, &cfgDTO)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty; WithDefault itself does not check
// this, Build returns an error if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:               seedUrls,
		maxDepth:               3,
		maxPages:               100,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             3,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     60 * time.Second,
		timeout:                time.Second * 30,
		userAgent:              "CanopyCrawler/1.0",
		dryRun:                 false,
		// Graph defaults: disabled, GRAPH mode with generous scope.
		graphMode:           "GRAPH",
		graphMaxDomains:     50,
		graphMinDomainScore: 0.1,
		// Screenshot defaults.
		viewportWidth:  1920,
		viewportHeight: 1080,
		headless:       true,
		// DOM extraction defaults.
		domMaxDepth: 8,
		// CSS download defaults.
		maxCSSFiles: 50,
		// Dedup defaults.
		bloomCapacity: 100_000,
		useBloom:      true,
		// Storage defaults.
		storageRoot:     "crawl_data",
		storageCompress: true,
		// Rate limiter / breaker defaults.
		maxConcurrentPerHost: 2,
		failureThreshold:     5,
		recoveryTimeout:      60 * time.Second,
		// Reporter default.
		reportInterval: 30 * time.Second,
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

// WithGraphCrawling enables graph expansion with the given mode and
// scope. allowed/blocked/priority may be nil.
func (c *Config) WithGraphCrawling(mode string, maxDepth, maxDomains int, allowed, blocked, priority map[string]struct{}, keywords []string) *Config {
	c.graphEnabled = true
	c.graphMode = mode
	c.maxDepth = maxDepth
	c.graphMaxDomains = maxDomains
	c.graphAllowed = allowed
	c.graphBlocked = blocked
	c.graphPriority = priority
	c.graphKeywords = keywords
	return c
}

// WithGraphMinDomainScore overrides the reputation floor non-seed hosts
// must clear under CROSS_DOMAIN/GRAPH/FOCUSED mode.
func (c *Config) WithGraphMinDomainScore(min float64) *Config {
	c.graphMinDomainScore = min
	return c
}

// WithScreenshots enables the Screenshot feature with the given
// viewport and headless switch.
func (c *Config) WithScreenshots(width, height int, headless bool) *Config {
	c.screenshotsEnabled = true
	c.viewportWidth = width
	c.viewportHeight = height
	c.headless = headless
	return c
}

// WithDOMExtraction enables the DOM Extraction feature, which requires
// WithScreenshots to also be set (Build validates this: DOM extraction
// reads the render session the Screenshot feature opens).
func (c *Config) WithDOMExtraction(maxDepth int, captureScreenshots bool, selectors []string) *Config {
	c.domExtractionEnabled = true
	c.domMaxDepth = maxDepth
	c.domCaptureScreenshots = captureScreenshots
	c.domSelectors = selectors
	return c
}

// WithCSSDownload enables the CSS Download feature. maxCSSFiles <= 0
// keeps the current (default) per-page cap.
func (c *Config) WithCSSDownload(maxCSSFiles int) *Config {
	c.cssDownloadEnabled = true
	if maxCSSFiles > 0 {
		c.maxCSSFiles = maxCSSFiles
	}
	return c
}

// WithDeduplication tunes the bloom pre-filter.
func (c *Config) WithDeduplication(bloomCapacity uint, useBloom bool) *Config {
	c.bloomCapacity = bloomCapacity
	c.useBloom = useBloom
	return c
}

// WithStorage sets the content-addressed storage root and compression
// switch.
func (c *Config) WithStorage(root string, compress bool) *Config {
	c.storageRoot = root
	c.storageCompress = compress
	return c
}

// WithRateLimit sets politeness defaults: default delay, max
// concurrent requests per host, and the outbound user agent.
func (c *Config) WithRateLimit(defaultDelay time.Duration, maxConcurrentPerHost int, userAgent string) *Config {
	c.baseDelay = defaultDelay
	c.maxConcurrentPerHost = maxConcurrentPerHost
	c.userAgent = userAgent
	return c
}

// WithRetry sets the retry policy.
func (c *Config) WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration, jitter bool) *Config {
	c.maxAttempt = maxAttempts
	c.backoffInitialDuration = baseDelay
	c.backoffMaxDuration = maxDelay
	if jitter {
		if c.jitter == 0 {
			c.jitter = 500 * time.Millisecond
		}
	} else {
		c.jitter = 0
	}
	return c
}

// WithCircuitBreaker tunes the per-host circuit breaker.
func (c *Config) WithCircuitBreaker(failureThreshold uint32, recoveryTimeout time.Duration) *Config {
	c.failureThreshold = failureThreshold
	c.recoveryTimeout = recoveryTimeout
	return c
}

// WithReportInterval sets the metrics reporter's periodic print interval.
func (c *Config) WithReportInterval(interval time.Duration) *Config {
	c.reportInterval = interval
	return c
}

// WithMarkdownSummary enables the optional, off-by-default markdown
// summary export.
func (c *Config) WithMarkdownSummary(enabled bool) *Config {
	c.markdownSummaryEnabled = enabled
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// DOM extraction depends on the render session the Screenshot feature
	// opens and publishes, so it cannot be enabled alone.
	if c.domExtractionEnabled && !c.screenshotsEnabled {
		return Config{}, fmt.Errorf("%w: DOM extraction requires screenshots to be enabled", ErrInvalidConfig)
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) GraphEnabled() bool { return c.graphEnabled }

func (c Config) GraphMode() string { return c.graphMode }

func (c Config) GraphMaxDomains() int { return c.graphMaxDomains }

func (c Config) GraphMinDomainScore() float64 { return c.graphMinDomainScore }

func (c Config) GraphAllowed() map[string]struct{} { return c.graphAllowed }

func (c Config) GraphBlocked() map[string]struct{} { return c.graphBlocked }

func (c Config) GraphPriority() map[string]struct{} { return c.graphPriority }

func (c Config) GraphKeywords() []string { return c.graphKeywords }

func (c Config) ScreenshotsEnabled() bool { return c.screenshotsEnabled }

func (c Config) ViewportWidth() int { return c.viewportWidth }

func (c Config) ViewportHeight() int { return c.viewportHeight }

func (c Config) Headless() bool { return c.headless }

func (c Config) DOMExtractionEnabled() bool { return c.domExtractionEnabled }

func (c Config) DOMMaxDepth() int { return c.domMaxDepth }

func (c Config) DOMCaptureScreenshots() bool { return c.domCaptureScreenshots }

func (c Config) DOMSelectors() []string { return c.domSelectors }

func (c Config) CSSDownloadEnabled() bool { return c.cssDownloadEnabled }

func (c Config) MaxCSSFiles() int { return c.maxCSSFiles }

func (c Config) BloomCapacity() uint { return c.bloomCapacity }

func (c Config) UseBloom() bool { return c.useBloom }

func (c Config) StorageRoot() string { return c.storageRoot }

func (c Config) StorageCompress() bool { return c.storageCompress }

func (c Config) MaxConcurrentPerHost() int { return c.maxConcurrentPerHost }

func (c Config) FailureThreshold() uint32 { return c.failureThreshold }

func (c Config) RecoveryTimeout() time.Duration { return c.recoveryTimeout }

func (c Config) ReportInterval() time.Duration { return c.reportInterval }

func (c Config) MarkdownSummaryEnabled() bool { return c.markdownSummaryEnabled }
