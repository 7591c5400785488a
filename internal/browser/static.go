package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// HTTPConfig holds configuration for the colly-backed transport.
type HTTPConfig struct {
	UserAgent string
	Proxy     string
	Timeout   time.Duration

	// Cookies are installed into the jar for CookieURL before the first request.
	Cookies   []*http.Cookie
	CookieURL string
}

// HTTPTransport is a session.Transport that issues requests with colly
// instead of a browser. It shares one cookie jar across calls.
type HTTPTransport struct {
	config    HTTPConfig
	collector *colly.Collector
	closed    atomic.Bool
}

var _ session.Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport seeded with cfg.Cookies.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(cfg.Timeout)

	if cfg.Proxy != "" {
		if err := c.SetProxy(cfg.Proxy); err != nil {
			return nil, fmt.Errorf("invalid proxy: %w", err)
		}
	}
	if len(cfg.Cookies) > 0 {
		if err := c.SetCookies(cfg.CookieURL, cfg.Cookies); err != nil {
			return nil, fmt.Errorf("failed to seed cookies: %w", err)
		}
	}

	logger.Debug("http transport created",
		"proxy", cfg.Proxy != "",
		"cookies", len(cfg.Cookies),
		"timeout", cfg.Timeout)

	return &HTTPTransport{config: cfg, collector: c}, nil
}

// Do performs req and returns whatever status the server answered with.
func (t *HTTPTransport) Do(ctx context.Context, req session.Request) (session.RawResponse, error) {
	if t.closed.Load() {
		return session.RawResponse{}, session.ErrClosed
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// Clones share the backend and cookie jar but not callbacks.
	c := t.collector.Clone()
	c.ParseHTTPErrorResponse = true
	c.Context = ctx

	hdr := http.Header{}
	for name, value := range req.Headers {
		hdr.Set(name, value)
	}
	if req.Referrer != "" {
		hdr.Set("Referer", req.Referrer)
	}

	var (
		resp    session.RawResponse
		gotResp bool
	)
	c.OnResponse(func(r *colly.Response) {
		gotResp = true
		resp.URL = r.Request.URL.String()
		resp.Status = r.StatusCode
		resp.Body = r.Body
		if r.Headers != nil {
			resp.Headers = r.Headers.Clone()
		}
		logger.Debug("http transport response",
			"status", r.StatusCode,
			"content_type", r.Headers.Get("Content-Type"),
			"body_size", len(r.Body))
	})

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := strings.ToUpper(req.Method)
	err := c.Request(method, req.URL, body, nil, hdr)
	if err != nil {
		return session.RawResponse{}, classifyHTTPError(ctx, method, req.URL, err)
	}
	if !gotResp {
		return session.RawResponse{}, fmt.Errorf("%s %s: no response received", method, req.URL)
	}
	if resp.Headers == nil {
		resp.Headers = http.Header{}
	}
	return resp, nil
}

func classifyHTTPError(ctx context.Context, method, url string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s %s: %v", session.ErrTimeout, method, url, err)
	default:
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
}

// Close marks the transport unusable.
func (t *HTTPTransport) Close() error {
	t.closed.Store(true)
	return nil
}
