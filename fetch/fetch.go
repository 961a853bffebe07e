// Package fetch downloads listing and detail pages.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (compatible; collect/1.0)"

// ErrStatus is returned for non-2xx responses.
var ErrStatus = errors.New("unexpected response status")

// Request names a page and, optionally, the charset to decode it with.
// Without a charset the encoding is sniffed from headers and content.
type Request struct {
	URL     string
	Charset string
}

// Fetcher returns a page's body as UTF-8 text.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Options configures an HTTPFetcher.
type Options struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	// RequestsPerSecond limits outgoing requests; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Retries           int     `yaml:"retries"`
}

// HTTPFetcher implements Fetcher over HTTP GET.
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(opts Options, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", opts.UserAgent).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	f := &HTTPFetcher{
		client: client,
		logger: logger,
	}

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return f
}

// Fetch downloads req.URL and decodes it to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit error: %w", err)
		}
	}

	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(req.URL)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	f.logger.Debug("fetched page",
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode()),
		zap.Int("size", len(resp.Body())),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return "", fmt.Errorf("%w: %s returned %d", ErrStatus, req.URL, resp.StatusCode())
	}

	return Decode(resp.Body(), resp.Header().Get("Content-Type"), req.Charset)
}

// Decode converts body to UTF-8. A non-empty name forces that encoding;
// otherwise it is detected from contentType and the document itself.
func Decode(body []byte, contentType, name string) (string, error) {
	if name != "" {
		enc, err := htmlindex.Get(name)
		if err != nil {
			return "", fmt.Errorf("unknown charset %q: %w", name, err)
		}
		out, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return string(out), nil
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to detect charset: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}
	return string(out), nil
}
