package libs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/preview/internal/infrastructure/resilience"
)

// StatusError is a non-200 CDN response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// upstreamFault reports whether err says the CDN itself is failing. A 4xx
// means the CDN answered; the path is wrong.
func upstreamFault(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError || se.Code == http.StatusTooManyRequests
	}
	return err != nil
}

// Fetcher downloads library builds from their CDN fallback, guarded by a
// circuit breaker so a dead CDN fails fast instead of stalling every asset
// request.
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewFetcher creates a CDN fetcher.
func NewFetcher(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	// Retries of 5xx and transport errors happen below resty, inside the
	// breaker, so one Fetch counts once however many attempts it made.
	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(20*time.Second).
		SetHeader("User-Agent", "live-preview-assets/1.0")

	breaker := resilience.New("libs-cdn", resilience.Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsFailure: upstreamFault,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("CDN breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(20), 20),
		breaker: breaker,
		logger:  logger,
	}
}

// Fetch downloads url and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	return resilience.Execute(f.breaker, func() ([]byte, error) {
		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, &StatusError{URL: url, Code: resp.StatusCode()}
		}
		return resp.Body(), nil
	})
}

// BreakerState reports the CDN breaker state.
func (f *Fetcher) BreakerState() resilience.State {
	return f.breaker.State()
}
