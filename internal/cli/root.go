package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rohmanhakim/canopy-go/internal/build"
	"github.com/rohmanhakim/canopy-go/internal/config"
	"github.com/rohmanhakim/canopy-go/internal/crawler"
)

var (
	cfgFile        string
	seedURLs       []string
	maxDepth       int
	maxPages       int
	userAgent      string
	timeout        time.Duration
	baseDelay      time.Duration
	jitter         time.Duration
	randomSeed     int64
	storageRoot    string
	noCompress     bool
	dryRun         bool
	reportInterval time.Duration

	graphMode       string
	maxDomains      int
	allowedDomains  []string
	blockedDomains  []string
	priorityDomains []string
	keywords        []string

	screenshots    bool
	viewportWidth  int
	viewportHeight int
	headful        bool

	domExtraction  bool
	domMaxDepth    int
	domScreenshots bool
	domSelectors   []string

	cssDownload bool
	maxCSSFiles int

	bloomCapacity uint
	noBloom       bool

	maxAttempts    int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	maxConcurrentPerHost int

	markdownSummary bool
)

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "canopy",
	Short:   "A polite, multi-domain web crawler.",
	Version: build.FullVersion(),
	Long: `canopy discovers URLs through graph expansion from seed URLs, fetches
them under per-host rate limits honoring robots.txt, deduplicates both URLs
and page content, and persists the derived artifacts (HTML, stylesheets,
full-page and per-component screenshots, and a structured DOM tree) to a
content-addressed directory layout.

The crawl is deterministic given the same seeds and configuration: reruns
land on the same page directories and overwrite in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}

		c, err := crawler.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := c.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Crawled %d pages (%d errors) in %s\n",
			summary.PagesCrawled, summary.Errors, summary.Duration.Round(time.Millisecond))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config-file", "", "config file path, JSON or YAML (e.g., /home/myuser/config.yaml)")
	flags.StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	flags.IntVar(&maxDepth, "max-depth", 0, "maximum link depth from seed URL")
	flags.IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 for default)")
	flags.StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	flags.DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	flags.DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	flags.DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	flags.Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	flags.StringVar(&storageRoot, "storage-root", "", "root output directory for crawl artifacts")
	flags.BoolVar(&noCompress, "no-compress", false, "disable gzip/WebP artifact compression")
	flags.BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
	flags.DurationVar(&reportInterval, "report-interval", 0, "interval between periodic progress reports")

	flags.StringVar(&graphMode, "graph-mode", "", "graph crawl mode: SINGLE_DOMAIN, CROSS_DOMAIN, WHITELIST, GRAPH, FOCUSED (empty keeps link discovery to the seed hosts)")
	flags.IntVar(&maxDomains, "max-domains", 0, "maximum distinct hosts to discover in cross-domain modes")
	flags.StringArrayVar(&allowedDomains, "allowed-domain", []string{}, "hostname allowlist for WHITELIST mode (can be repeated)")
	flags.StringArrayVar(&blockedDomains, "blocked-domain", []string{}, "hostname blocklist, rejected in every mode (can be repeated)")
	flags.StringArrayVar(&priorityDomains, "priority-domain", []string{}, "hostnames whose links score higher (can be repeated)")
	flags.StringArrayVar(&keywords, "keyword", []string{}, "keywords biasing link priority by page content (can be repeated)")

	flags.BoolVar(&screenshots, "screenshots", false, "capture a full-page screenshot per crawled page")
	flags.IntVar(&viewportWidth, "viewport-width", 0, "render viewport width in pixels")
	flags.IntVar(&viewportHeight, "viewport-height", 0, "render viewport height in pixels")
	flags.BoolVar(&headful, "headful", false, "run the renderer with a visible browser window")

	flags.BoolVar(&domExtraction, "dom-extraction", false, "extract a structural DOM tree per crawled page (requires --screenshots)")
	flags.IntVar(&domMaxDepth, "dom-max-depth", 0, "maximum DOM tree traversal depth")
	flags.BoolVar(&domScreenshots, "dom-screenshots", false, "capture per-component screenshots for matched selectors")
	flags.StringArrayVar(&domSelectors, "dom-selector", []string{}, "selectors to screenshot as components (can be repeated)")

	flags.BoolVar(&cssDownload, "css-download", false, "download each page's external stylesheets")
	flags.IntVar(&maxCSSFiles, "max-css-files", 0, "maximum stylesheets downloaded per page")

	flags.UintVar(&bloomCapacity, "bloom-capacity", 0, "expected distinct URL count for the bloom pre-filter")
	flags.BoolVar(&noBloom, "no-bloom", false, "disable the bloom pre-filter")

	flags.IntVar(&maxAttempts, "max-attempts", 0, "maximum fetch attempts per URL")
	flags.DurationVar(&retryBaseDelay, "retry-base-delay", 0, "initial retry backoff delay")
	flags.DurationVar(&retryMaxDelay, "retry-max-delay", 0, "maximum retry backoff delay")

	flags.IntVar(&maxConcurrentPerHost, "max-concurrent-per-host", 0, "maximum in-flight requests per host")

	flags.BoolVar(&markdownSummary, "markdown-summary", false, "also export a Markdown summary per crawled page")

	// Every flag is also settable through the environment (CANOPY_MAX_PAGES,
	// CANOPY_GRAPH_MODE, ...); an explicit flag wins over the environment.
	viper.SetEnvPrefix("CANOPY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlags(flags)
}

// resolveConfig builds the effective config: an explicit --config-file wins
// wholesale; otherwise defaults are layered under environment variables and
// flags resolved through viper.
func resolveConfig() (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	seeds := viper.GetStringSlice("seed-url")
	if len(seeds) == 0 {
		return config.Config{}, fmt.Errorf("%w: --seed-url is required", config.ErrInvalidConfig)
	}
	parsedSeeds, err := parseSeedURLs(seeds)
	if err != nil {
		return config.Config{}, err
	}

	builder := config.WithDefault(parsedSeeds)

	if v := viper.GetInt("max-depth"); v > 0 {
		builder = builder.WithMaxDepth(v)
	}
	if v := viper.GetInt("max-pages"); v > 0 {
		builder = builder.WithMaxPages(v)
	}
	if v := viper.GetString("user-agent"); v != "" {
		builder = builder.WithUserAgent(v)
	}
	if v := viper.GetDuration("timeout"); v > 0 {
		builder = builder.WithTimeout(v)
	}
	if v := viper.GetDuration("base-delay"); v > 0 {
		builder = builder.WithBaseDelay(v)
	}
	if v := viper.GetDuration("jitter"); v > 0 {
		builder = builder.WithJitter(v)
	}
	if v := viper.GetInt64("random-seed"); v != 0 {
		builder = builder.WithRandomSeed(v)
	}
	if viper.GetBool("dry-run") {
		builder = builder.WithDryRun(true)
	}
	if v := viper.GetDuration("report-interval"); v > 0 {
		builder = builder.WithReportInterval(v)
	}

	root := viper.GetString("storage-root")
	if root != "" || viper.GetBool("no-compress") {
		if root == "" {
			root = "crawl_data"
		}
		builder = builder.WithStorage(root, !viper.GetBool("no-compress"))
	}

	if mode := viper.GetString("graph-mode"); mode != "" {
		graphDepth := viper.GetInt("max-depth")
		if graphDepth <= 0 {
			graphDepth = builder.MaxDepth()
		}
		builder = builder.WithGraphCrawling(
			strings.ToUpper(mode),
			graphDepth,
			viper.GetInt("max-domains"),
			parseStringSliceToSet(viper.GetStringSlice("allowed-domain")),
			parseStringSliceToSet(viper.GetStringSlice("blocked-domain")),
			parseStringSliceToSet(viper.GetStringSlice("priority-domain")),
			viper.GetStringSlice("keyword"),
		)
	}

	if viper.GetBool("screenshots") {
		width, height := viper.GetInt("viewport-width"), viper.GetInt("viewport-height")
		if width <= 0 {
			width = 1920
		}
		if height <= 0 {
			height = 1080
		}
		builder = builder.WithScreenshots(width, height, !viper.GetBool("headful"))
	}

	if viper.GetBool("dom-extraction") {
		builder = builder.WithDOMExtraction(
			viper.GetInt("dom-max-depth"),
			viper.GetBool("dom-screenshots"),
			viper.GetStringSlice("dom-selector"),
		)
	}

	if viper.GetBool("css-download") {
		builder = builder.WithCSSDownload(viper.GetInt("max-css-files"))
	}

	if viper.GetBool("no-bloom") || viper.GetUint("bloom-capacity") > 0 {
		capacity := uint(viper.GetUint("bloom-capacity"))
		if capacity == 0 {
			capacity = 100_000
		}
		builder = builder.WithDeduplication(capacity, !viper.GetBool("no-bloom"))
	}

	if viper.GetInt("max-attempts") > 0 || viper.GetDuration("retry-base-delay") > 0 {
		attempts := viper.GetInt("max-attempts")
		if attempts <= 0 {
			attempts = 3
		}
		base := viper.GetDuration("retry-base-delay")
		if base <= 0 {
			base = 100 * time.Millisecond
		}
		max := viper.GetDuration("retry-max-delay")
		if max <= 0 {
			max = 60 * time.Second
		}
		builder = builder.WithRetry(attempts, base, max, viper.GetDuration("jitter") > 0)
	}

	if v := viper.GetInt("max-concurrent-per-host"); v > 0 {
		builder = builder.WithRateLimit(builder.BaseDelay(), v, builder.UserAgent())
	}

	if viper.GetBool("markdown-summary") {
		builder = builder.WithMarkdownSummary(true)
	}

	return builder.Build()
}

// ResetFlags restores every flag variable to its zero value, for tests
// that drive the command repeatedly within one process.
func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	storageRoot = ""
	noCompress = false
	dryRun = false
	reportInterval = 0
	graphMode = ""
	maxDomains = 0
	allowedDomains = []string{}
	blockedDomains = []string{}
	priorityDomains = []string{}
	keywords = []string{}
	screenshots = false
	viewportWidth = 0
	viewportHeight = 0
	headful = false
	domExtraction = false
	domMaxDepth = 0
	domScreenshots = false
	domSelectors = []string{}
	cssDownload = false
	maxCSSFiles = 0
	bloomCapacity = 0
	noBloom = false
	maxAttempts = 0
	retryBaseDelay = 0
	retryMaxDelay = 0
	maxConcurrentPerHost = 0
	markdownSummary = false
}

// SetConfigFileForTest overrides the config file path from tests.
func SetConfigFileForTest(path string) {
	cfgFile = path
}
