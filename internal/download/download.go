// Package download fetches binary assets (product images) with exponential
// back-off, independently of the JSON request pipeline.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/jmylchreest/fixprice/internal/logger"
)

// Defaults for Options.
const (
	DefaultAttempts = 3
	DefaultTimeout  = 10 * time.Second
	DefaultMinWait  = 3 * time.Second
)

// ErrTooLarge indicates the asset exceeded Options.MaxBytes.
var ErrTooLarge = errors.New("asset too large")

// Options configures one download.
type Options struct {
	Attempts int           // attempts in total
	Timeout  time.Duration // per attempt; also the longest back-off wait
	MinWait  time.Duration // first back-off wait, doubled per retry
	MaxBytes int64         // 0 for unlimited
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MinWait <= 0 {
		o.MinWait = DefaultMinWait
	}
	return o
}

// Image is a downloaded asset named after the last segment of its URL path.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Downloader shares proxy and user agent with the browser session.
type Downloader struct {
	Proxy     string
	UserAgent string
}

// Download fetches rawURL. Connection errors, 429 and 5xx answers are retried;
// any other non-2xx status fails at once.
func (d *Downloader) Download(ctx context.Context, rawURL string, opts Options) (*Image, error) {
	opts = opts.withDefaults()

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid image URL %q", rawURL)
	}

	client, err := d.client(opts)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, rawURL, humanize.Bytes(uint64(opts.MaxBytes)))
	}

	img := &Image{
		Name:        path.Base(u.Path),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}
	logger.Debug("image downloaded", "url", rawURL, "name", img.Name, "size", humanize.Bytes(uint64(len(data))))
	return img, nil
}

func (d *Downloader) client(opts Options) (*retryablehttp.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if d.Proxy != "" {
		proxyURL, err := url.Parse(d.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Transport: transport, Timeout: opts.Timeout}
	c.RetryMax = opts.Attempts - 1
	c.RetryWaitMin = opts.MinWait
	c.RetryWaitMax = opts.Timeout
	c.Backoff = retryablehttp.DefaultBackoff
	c.Logger = logger.Component("download")
	// Hand back the last response instead of a generic "giving up" error.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c, nil
}
