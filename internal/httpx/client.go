// Package httpx is the polite HTTP client shared by the DOI harvesters and
// the paper downloader: rate limited, retried with backoff, identified by a
// contact User-Agent.
package httpx

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/MalithGihan/steelminer/internal/metrics"
)

var retryStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type Client struct {
	HTTP        *http.Client
	UserAgent   string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Limiter     *rate.Limiter
	Metrics     *metrics.Metrics
}

// New builds a client. rps <= 0 disables throttling.
func New(userAgent string, rps float64, attempts int, timeout time.Duration) *Client {
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		HTTP:        &http.Client{Timeout: timeout},
		UserAgent:   userAgent,
		MaxAttempts: attempts,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Limiter:     lim,
	}
}

func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(req)
}

// Do sends req, retrying network errors and retryable statuses. When the
// attempts run out on a retryable status the last response is returned as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if req.Header.Get("User-Agent") == "" && c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for attempt := 0; ; attempt++ {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.HTTP.Do(req.Clone(ctx))
		last := attempt+1 >= c.MaxAttempts
		switch {
		case err != nil:
			if ctx.Err() != nil || last {
				return nil, err
			}
			c.Metrics.Retry("network")
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		case retryStatus[resp.StatusCode] && !last:
			wait := c.retryAfter(resp.Header.Get("Retry-After"))
			if wait == 0 {
				wait = c.backoff(attempt)
			}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
			resp.Body.Close()
			c.Metrics.Retry("status_" + strconv.Itoa(resp.StatusCode))
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		default:
			return resp, nil
		}
	}
}

// backoff is min(base*2^attempt, max) plus up to one base of jitter.
func (c *Client) backoff(attempt int) time.Duration {
	if c.BaseDelay <= 0 {
		return 0
	}
	d := c.BaseDelay << attempt
	if d > c.MaxDelay || d <= 0 {
		d = c.MaxDelay
	}
	return d + time.Duration(rand.Int63n(int64(c.BaseDelay))) // #nosec G404 -- retry jitter
}

func (c *Client) retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}
	if d < 0 {
		return 0
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
