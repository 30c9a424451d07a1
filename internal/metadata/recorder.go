package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"time"

	"go.uber.org/zap"
)

// Recorder is the default MetadataSink/CrawlFinalizer implementation,
// emitting structured log lines via zap. workerID identifies the
// goroutine or worker this recorder is scoped to, for log correlation
// once concurrency is introduced.
type Recorder struct {
	workerID string
	logger   *zap.Logger
}

// NewRecorder builds a Recorder backed by a production zap logger,
// scoped to workerID for log correlation.
func NewRecorder(workerID string) Recorder {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return Recorder{workerID: workerID, logger: logger}
}

// NewRecorderWithLogger builds a Recorder scoped to workerID that logs
// through a shared logger (built once per process by internal/obs)
// instead of constructing its own, so every worker's log lines share one
// sink and encoder configuration.
func NewRecorderWithLogger(workerID string, logger *zap.Logger) Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Recorder{workerID: workerID, logger: logger}
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.logger.Info("fetch",
		zap.String("worker", r.workerID),
		zap.String("url", fetchURL),
		zap.Int("status", httpStatus),
		zap.Duration("duration", duration),
		zap.String("content_type", contentType),
		zap.Int("retry_count", retryCount),
		zap.Int("depth", crawlDepth),
	)
}

func (r *Recorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.logger.Info("asset fetch",
		zap.String("worker", r.workerID),
		zap.String("url", fetchURL),
		zap.Int("status", httpStatus),
		zap.Duration("duration", duration),
		zap.Int("retry_count", retryCount),
	)
}

func (r *Recorder) RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, errString string, attrs []Attribute) {
	fields := []zap.Field{
		zap.String("worker", r.workerID),
		zap.Time("observed_at", observedAt),
		zap.String("package", packageName),
		zap.String("action", action),
		zap.Int("cause", int(cause)),
		zap.String("error", errString),
	}
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	r.logger.Warn("pipeline error", fields...)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	fields := []zap.Field{
		zap.String("worker", r.workerID),
		zap.String("kind", string(kind)),
		zap.String("path", path),
	}
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	r.logger.Info("artifact written", fields...)
}

func (r *Recorder) RecordFinalCrawlStats(totalPages, totalErrors, totalAssets int, duration time.Duration) {
	r.logger.Info("crawl finished",
		zap.String("worker", r.workerID),
		zap.Int("total_pages", totalPages),
		zap.Int("total_errors", totalErrors),
		zap.Int("total_assets", totalAssets),
		zap.Duration("duration", duration),
	)
}
