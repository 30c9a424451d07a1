package metadata

import "time"

// NoopSink is a MetadataSink that records nothing. Embed it in test
// doubles that only care about a subset of the sink surface, or pass it
// where observability is irrelevant.
type NoopSink struct{}

func (NoopSink) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}

func (NoopSink) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
}

func (NoopSink) RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, errString string, attrs []Attribute) {
}

func (NoopSink) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}
