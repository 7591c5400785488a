package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// Chrome is a session.Browser backed by a single chromedp tab.
// API requests are issued with fetch() from inside the page so they carry the
// cookies, TLS fingerprint and origin of the real site.
type Chrome struct {
	config      Config
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ session.Browser = (*Chrome)(nil)

// NewChrome launches Chrome and opens a blank tab with the stealth script
// installed and the network domain enabled.
func NewChrome(ctx context.Context, cfg Config) (*Chrome, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:], stealthFlags()...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = FindChromePath()
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	for name, value := range cfg.Flags {
		opts = append(opts, chromedp.Flag(name, value))
	}

	// The browser outlives the ctx it was opened with; Close releases it.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)

	c := &Chrome{
		config:      cfg,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
	}

	logger.Debug("launching chrome",
		"headless", cfg.Headless,
		"proxy", cfg.Proxy != "",
		"flags", len(cfg.Flags),
		"timeout", cfg.Timeout)

	// The first Run starts the browser process and is bound to its context,
	// so it gets the untimed tab context. ctx only aborts the launch.
	stopLaunch := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	stopLaunch()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	if err := c.run(ctx, cfg.Timeout, network.Enable(), injectStealthScript()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to prepare chrome tab: %w", err)
	}
	return c, nil
}

// run executes actions on the tab, bounded by both ctx and timeout.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if c.closed.Load() {
		return session.ErrClosed
	}

	runCtx, cancel := context.WithTimeout(c.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.closed.Load() {
		return session.ErrClosed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", session.ErrTimeout, err)
	}
	return err
}

// Navigate loads url and waits for the load event.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	logger.Debug("chrome navigate", "url", url)
	return c.run(ctx, c.config.Timeout, chromedp.Navigate(url))
}

// WaitForSelector waits until selector is attached to the document.
func (c *Chrome) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return c.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// Reload reloads the current page.
func (c *Chrome) Reload(ctx context.Context) error {
	logger.Debug("chrome reload")
	return c.run(ctx, c.config.Timeout, chromedp.Reload())
}

// Content returns the outer HTML of the current document.
func (c *Chrome) Content(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.config.Timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Cookies exports every cookie of the browser context.
func (c *Chrome) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var raw []*network.Cookie
	err := c.run(ctx, c.config.Timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to export cookies: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(raw))
	for _, rc := range raw {
		hc := &http.Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Secure:   rc.Secure,
			HttpOnly: rc.HTTPOnly,
		}
		if rc.Expires > 0 {
			hc.Expires = time.Unix(int64(rc.Expires), 0)
		}
		cookies = append(cookies, hc)
	}
	return cookies, nil
}

// UserAgent reports the user agent Chrome was launched with.
func (c *Chrome) UserAgent() string {
	return c.config.UserAgent
}

// NewObserver returns a sniffer fed by this tab's network events.
func (c *Chrome) NewObserver(filter string) session.Observer {
	return NewSniffer(filter, c.attachSniffer)
}

func (c *Chrome) attachSniffer(ctx context.Context, s *Sniffer) error {
	if c.closed.Load() {
		return session.ErrClosed
	}
	// ListenTarget drops the listener once its context is cancelled.
	lctx, cancel := context.WithCancel(c.tabCtx)
	context.AfterFunc(ctx, cancel)

	chromedp.ListenTarget(lctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			s.RecordRequest(string(e.RequestID), e.Request.URL, flattenHeaders(e.Request.Headers))
		case *network.EventRequestWillBeSentExtraInfo:
			s.RecordExtra(string(e.RequestID), flattenHeaders(e.Headers))
		}
	})
	return nil
}

func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for name, v := range h {
		out[name] = fmt.Sprint(v)
	}
	return out
}

// fetchScript runs fetch() in the page. It resolves to either
// {status, url, headers, body} or {error}.
const fetchScript = `(async () => {
  const controller = new AbortController();
  const timer = setTimeout(() => controller.abort(), %d);
  try {
    const init = %s;
    init.signal = controller.signal;
    const resp = await fetch(%s, init);
    const headers = {};
    resp.headers.forEach((value, name) => { headers[name] = value; });
    const body = await resp.text();
    return { status: resp.status, url: resp.url, headers: headers, body: body };
  } catch (e) {
    return { error: String(e), aborted: e && e.name === 'AbortError' };
  } finally {
    clearTimeout(timer);
  }
})()`

type fetchInit struct {
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        *string           `json:"body,omitempty"`
	Referrer    string            `json:"referrer,omitempty"`
	Credentials string            `json:"credentials"`
	Mode        string            `json:"mode"`
}

type fetchResult struct {
	Status  int               `json:"status"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Error   string            `json:"error"`
	Aborted bool              `json:"aborted"`
}

// Do issues req with fetch() inside the page.
func (c *Chrome) Do(ctx context.Context, req session.Request) (session.RawResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	init := fetchInit{
		Method:      strings.ToUpper(req.Method),
		Headers:     req.Headers,
		Referrer:    req.Referrer,
		Credentials: "include",
		Mode:        "cors",
	}
	if req.Body != nil {
		body := string(req.Body)
		init.Body = &body
	}
	initJSON, err := json.Marshal(init)
	if err != nil {
		return session.RawResponse{}, fmt.Errorf("failed to encode fetch options: %w", err)
	}
	urlJSON, err := json.Marshal(req.URL)
	if err != nil {
		return session.RawResponse{}, fmt.Errorf("failed to encode URL: %w", err)
	}
	script := fmt.Sprintf(fetchScript, timeout.Milliseconds(), initJSON, urlJSON)

	var res fetchResult
	evaluate := chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	})
	// The page aborts the fetch at timeout; the extra margin lets it report that.
	if err := c.run(ctx, timeout+5*time.Second, evaluate); err != nil {
		return session.RawResponse{}, fmt.Errorf("in-page fetch %s %s: %w", init.Method, req.URL, err)
	}

	return res.response(init.Method, req.URL, timeout)
}

// response maps the script result onto a RawResponse. An aborted fetch
// means the in-page timer fired.
func (r fetchResult) response(method, reqURL string, timeout time.Duration) (session.RawResponse, error) {
	if r.Error != "" {
		if r.Aborted {
			return session.RawResponse{}, fmt.Errorf("%w: %s %s after %s", session.ErrTimeout, method, reqURL, timeout)
		}
		return session.RawResponse{}, fmt.Errorf("in-page fetch %s %s: %s", method, reqURL, r.Error)
	}

	hdr := make(http.Header, len(r.Headers))
	for name, value := range r.Headers {
		hdr.Set(name, value)
	}
	finalURL := r.URL
	if finalURL == "" {
		finalURL = reqURL
	}
	return session.RawResponse{
		URL:     finalURL,
		Status:  r.Status,
		Headers: hdr,
		Body:    []byte(r.Body),
	}, nil
}

// Close shuts the tab and the browser process. It is safe to call repeatedly.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancelTab()
		c.cancelAlloc()
		logger.Debug("chrome closed")
	})
	return nil
}
