package fetcher

import (
	"context"
	"net/http"

	"github.com/rohmanhakim/canopy-go/pkg/failure"
	"github.com/rohmanhakim/canopy-go/pkg/retry"
)

type Fetcher interface {
	Init(httpClient *http.Client, userAgent string)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchParam FetchParam,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
