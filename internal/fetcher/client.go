package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultUserAgent identifies the scanner to retailer sites.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

const maxRedirects = 10

// Client performs bounded HTTP GETs for product pages and images.
type Client struct {
	HTTP      *http.Client
	userAgent string
	limiter   *HostLimiter
}

type options struct {
	verbose bool
	// writer receives verbose request logs, typically stderr, so structured
	// output on stdout stays clean.
	writer    io.Writer
	userAgent string
	limiter   *HostLimiter
	transport http.RoundTripper
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithRateLimit throttles requests per host. perSecond <= 0 only honours
// Retry-After cooldowns.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) { o.limiter = NewHostLimiter(perSecond, burst) }
}

// WithTransport replaces the underlying transport (tests use it to stub the network).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// loggingRoundTripper emits one line per request and response, with latency.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if t.w != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] http: %s %s\n", req.Method, req.URL.String())
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] http: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] http: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

func NewClient(opts ...Option) *Client {
	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}
	if o.userAgent == "" {
		o.userAgent = DefaultUserAgent
	}

	transport := o.transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}

	hc := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Client{HTTP: hc, userAgent: o.userAgent, limiter: o.limiter}
}

// Response is a fully read, size-capped HTTP response.
type Response struct {
	// URL is the final URL after redirects.
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Get retrieves rawURL within timeout, reading at most maxBytes of body.
// timeout <= 0 relies on ctx alone; maxBytes <= 0 disables the cap.
// Every failure is returned as a *FetchError.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration, maxBytes int64) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,image/*;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		slog.Debug("fetch failed", "url", rawURL, "err", err, "elapsed", time.Since(start))
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.limiter.Observe(u.Hostname(), resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		ferr := &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
		if until := c.limiter.Cooldown(u.Hostname()); until.After(time.Now()) {
			ferr.RetryAt = until
		}
		return nil, ferr
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrBodyTooLarge}
	}

	slog.Debug("fetched", "url", rawURL, "status", resp.StatusCode, "bytes", len(data), "elapsed", time.Since(start))
	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
