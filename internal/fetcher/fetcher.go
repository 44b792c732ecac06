package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Default fetcher settings.
const (
	// DefaultTimeout bounds one HTTP request, retries excluded.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits a single response. Mirrors copy images and
	// fonts, so this is larger than a page-only crawler would need.
	DefaultMaxBodySize = 20 * 1024 * 1024

	// DefaultConcurrency is the number of requests in flight across all hosts.
	DefaultConcurrency = 8

	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 2

	// DefaultBackoff is the delay before the first retry; it doubles per retry.
	DefaultBackoff = 500 * time.Millisecond

	// DefaultUserAgent identifies the mirror in HTTP requests.
	DefaultUserAgent = "sitemirror/1.0 (+https://github.com/nao1215/sitemirror)"
)

// HTTPFetcher implements crawler.Transport over an *http.Client.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	cookie      string
	headers     map[string]string
	maxBodySize int64
	timeout     time.Duration
	retries     int
	backoff     time.Duration
	compress    bool
	logger      *slog.Logger

	sem *semaphore.Weighted

	ratePerHost rate.Limit
	burst       int
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient sets the HTTP client, for example one that dials through Tor.
func WithClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithCookie sets a raw cookie string sent with every request.
func WithCookie(cookie string) Option {
	return func(f *HTTPFetcher) {
		f.cookie = cookie
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(f *HTTPFetcher) {
		f.headers = headers
	}
}

// WithMaxBodySize sets the response body limit in bytes.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithConcurrency sets the number of requests in flight across all hosts.
func WithConcurrency(n int) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithDelay sets the minimum delay between two requests to the same host.
// A delay of 0 disables per-host rate limiting.
func WithDelay(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d <= 0 {
			f.ratePerHost = rate.Inf
			return
		}
		f.ratePerHost = rate.Every(d)
	}
}

// WithRetries sets how often a failed request is retried and the initial
// backoff between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(f *HTTPFetcher) {
		if n >= 0 {
			f.retries = n
		}
		if backoff > 0 {
			f.backoff = backoff
		}
	}
}

// WithTimeout bounds one request attempt. The client passed with
// WithClient keeps its own timeout unless this is set.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// WithCompression controls whether compressed responses are requested.
// Tor mode turns it off so response sizes do not leak through compression.
func WithCompression(enabled bool) Option {
	return func(f *HTTPFetcher) {
		f.compress = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// New creates an HTTPFetcher.
func New(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      newDefaultClient(),
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		retries:     DefaultRetries,
		backoff:     DefaultBackoff,
		compress:    true,
		logger:      slog.Default(),
		sem:         semaphore.NewWeighted(DefaultConcurrency),
		ratePerHost: rate.Inf,
		burst:       1,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.timeout > 0 && f.client.Timeout != f.timeout {
		c := *f.client
		c.Timeout = f.timeout
		f.client = &c
	}
	f.client = withInjection(f.client, f.cookie, f.headers)
	return f
}

func newDefaultClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   DefaultConcurrency,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// Client returns the HTTP client requests are made with, injection included.
// The robots.txt checker shares it.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch downloads rawURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (model.Content, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.Content{}, fmt.Errorf("parse url: %w", err)
	}

	limiter := f.limiter(u.Host)
	backoff := f.backoff

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("retrying", "url", rawURL, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return model.Content{}, ctx.Err()
			}
			backoff *= 2
		}

		if err := limiter.Wait(ctx); err != nil {
			return model.Content{}, err
		}

		if err := f.sem.Acquire(ctx, 1); err != nil {
			return model.Content{}, err
		}
		content, err := f.do(ctx, u)
		f.sem.Release(1)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}

	return model.Content{}, lastErr
}

// do performs one request.
func (f *HTTPFetcher) do(ctx context.Context, u *url.URL) (model.Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Content{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/css,*/*;q=0.8")
	if f.compress {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return model.Content{}, &fetchError{err: fmt.Errorf("GET %s: %w", u, err), temporary: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return model.Content{}, &fetchError{
			err:       fmt.Errorf("%w: GET %s: %s", ErrStatus, u, resp.Status),
			temporary: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError,
			status:    resp.StatusCode,
		}
	}

	body, err := readBody(resp, f.maxBodySize)
	if err != nil {
		return model.Content{}, err
	}

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return model.Content{
		Body:       body,
		MediaType:  resp.Header.Get("Content-Type"),
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
	}, nil
}

// limiter returns the rate limiter of host, creating it on first use.
func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)

	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.ratePerHost, f.burst)
		f.limiters[host] = l
	}
	return l
}

// fetchError carries whether a failed attempt is worth retrying.
type fetchError struct {
	err       error
	temporary bool
	status    int
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// StatusCode returns the HTTP status of err, or 0 if err is not a status error.
func StatusCode(err error) int {
	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.status
	}
	return 0
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var fe *fetchError
	return errors.As(err, &fe) && fe.temporary
}
