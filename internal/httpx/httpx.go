// Package httpx provides the retrying, throttled HTTP client shared by
// every manager and torrent-client collaborator (spec §5/§7).
//
// Retries are delegated to github.com/hashicorp/go-retryablehttp, grounded
// on luckylittle-tqm's go.mod (the closest same-domain repo in the pack):
// its CheckRetry/Backoff hooks implement "retried on 5xx, 429, connection,
// and timeout errors, bounded retries, exponential backoff with ±25%
// jitter" directly, instead of hand-rolling a retry loop over net/http.
package httpx

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Config controls retry/backoff/throttle behavior for one collaborator.
type Config struct {
	Timeout             time.Duration
	RetryAttempts       int
	RetryBackoff        time.Duration
	MinRequestInterval  time.Duration
	MaxConcurrency      int
}

// Client wraps a retryablehttp.Client with a per-collaborator throttle,
// satisfying spec §5's "Per-manager throttle state": a monotonic
// last-request-at timestamp plus an optional bounded-concurrency
// semaphore.
type Client struct {
	http     *retryablehttp.Client
	throttle *Throttle
}

// New builds a retrying, throttled client. logger may be nil.
func New(cfg Config, logger *logrus.Entry) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryAttempts
	rc.RetryWaitMin = cfg.RetryBackoff
	rc.RetryWaitMax = cfg.RetryBackoff * 8
	rc.HTTPClient.Timeout = cfg.Timeout
	if jar, err := cookiejar.New(nil); err == nil {
		rc.HTTPClient.Jar = jar
	}
	rc.Backoff = jitteredBackoff
	rc.CheckRetry = checkRetry
	if logger != nil {
		rc.Logger = &logrusAdapter{logger}
	} else {
		rc.Logger = nil
	}

	return &Client{
		http:     rc,
		throttle: NewThrottle(cfg.MinRequestInterval, cfg.MaxConcurrency),
	}
}

// Do issues req, applying the collaborator's throttle first and respecting
// ctx cancellation at every suspension point (spec §5).
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.throttle.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.throttle.Release()

	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}
	rreq = rreq.WithContext(ctx)
	return c.http.Do(rreq)
}

// checkRetry retries on 5xx, 429, and connection/timeout errors; other
// client errors (4xx except 429) are treated as non-retriable per spec §7.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp == nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// jitteredBackoff is exponential backoff with +/-25% jitter, per spec §5.
func jitteredBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	base := min << attemptNum
	if base <= 0 || base > max {
		base = max
	}
	jitter := 0.75 + rand.Float64()*0.5 // 0.75x .. 1.25x
	d := time.Duration(float64(base) * jitter)
	if d > max {
		d = max
	}
	return d
}

type logrusAdapter struct{ l *logrus.Entry }

func (a *logrusAdapter) Printf(format string, v ...any) {
	a.l.Debugf(format, v...)
}
