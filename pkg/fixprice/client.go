package fixprice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmylchreest/fixprice/internal/browser"
	"github.com/jmylchreest/fixprice/internal/download"
	"github.com/jmylchreest/fixprice/internal/headers"
	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/internal/pipeline"
	"github.com/jmylchreest/fixprice/internal/warmup"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// Client is a warmed-up session against the API.
// Service methods are safe for concurrent use.
type Client struct {
	Catalog     *CatalogService
	Geolocation *GeolocationService
	Advertising *AdvertisingService
	General     *GeneralService

	config    Config
	store     *headers.Store
	browser   session.Browser
	transport session.Transport
	http      *browser.HTTPTransport // set in http mode, browser already closed
	pipeline  *pipeline.Pipeline
	warmup    warmup.Result

	closeOnce sync.Once
	closeErr  error
}

// Open launches the browser, runs the warm-up and returns a client ready for
// API calls. On any failure everything Open started is released, including a
// browser passed with WithBrowser.
func Open(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		if cfg.Browser != nil {
			_ = cfg.Browser.Close()
		}
		return nil, err
	}
	if cfg.Logger != nil {
		logger.SetLogger(cfg.Logger)
	}

	c := &Client{
		config:  cfg,
		store:   headers.NewStore(),
		browser: cfg.Browser,
	}
	if err := c.open(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) open(ctx context.Context) error {
	cfg := c.config

	if cfg.CityID > 0 {
		if err := c.store.SetCityID(cfg.CityID); err != nil {
			return err
		}
	}
	if cfg.Language != "" {
		if err := c.store.SetLanguage(cfg.Language); err != nil {
			return err
		}
	}

	if c.browser == nil {
		chrome, err := browser.NewChrome(ctx, browser.Config{
			Headless:  cfg.Headless,
			Proxy:     cfg.Proxy,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			ExecPath:  cfg.ExecPath,
			Flags:     cfg.BrowserFlags,
		})
		if err != nil {
			return err
		}
		c.browser = chrome
	}

	res, err := warmup.New(c.browser, c.store, warmup.Config{
		APIFilter:    cfg.BaseURL,
		Attempts:     cfg.WarmupAttempts,
		WaitTimeout:  cfg.Timeout,
		TokenTimeout: cfg.TokenTimeout,
	}).Run(ctx)
	if err != nil {
		return err
	}
	c.warmup = res

	c.transport = c.browser
	if cfg.Transport == TransportHTTP {
		if err := c.switchToHTTP(ctx); err != nil {
			return err
		}
	}

	c.pipeline = pipeline.New(c.transport, c.store, pipeline.Options{
		Attempts:   cfg.Retries,
		Backoff:    cfg.Backoff,
		Timeout:    cfg.Timeout,
		Referrer:   warmup.DefaultEntryURL,
		Classifier: cfg.Classifier,
		RateLimit:  cfg.RateLimit,
	})

	ep := &endpoint{pipeline: c.pipeline, store: c.store, baseURL: cfg.BaseURL}
	c.Catalog = &CatalogService{endpoint: ep, Product: &ProductService{endpoint: ep}}
	c.Geolocation = &GeolocationService{endpoint: ep, Shop: &ShopService{endpoint: ep}}
	c.Advertising = &AdvertisingService{endpoint: ep}
	c.General = &GeneralService{downloader: &download.Downloader{
		Proxy:     cfg.Proxy,
		UserAgent: c.browser.UserAgent(),
	}}

	logger.Debug("client ready",
		"transport", cfg.Transport,
		"warmup_attempts", res.Attempts,
		"captured_headers", len(res.Captured))
	return nil
}

// switchToHTTP hands the browser's cookies to a colly transport and shuts the
// browser down.
func (c *Client) switchToHTTP(ctx context.Context) error {
	cookies, err := c.browser.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to export browser cookies: %w", err)
	}
	t, err := browser.NewHTTPTransport(browser.HTTPConfig{
		UserAgent: c.browser.UserAgent(),
		Proxy:     c.config.Proxy,
		Timeout:   c.config.Timeout,
		Cookies:   cookies,
		CookieURL: c.config.BaseURL,
	})
	if err != nil {
		return err
	}
	c.http = t
	c.transport = t
	return c.browser.Close()
}

// Close releases the transport and the browser. It is safe to call more
// than once; later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		switch {
		case c.http != nil:
			errs = append(errs, c.http.Close())
		case c.browser != nil:
			errs = append(errs, c.browser.Close())
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// Warmup reports what the warm-up captured.
func (c *Client) Warmup() WarmupResult { return c.warmup }

// Token returns the auth key captured during warm-up.
func (c *Client) Token() string {
	token, _ := c.store.AuthKey()
	return token
}

// CityID returns the session city, if any.
func (c *Client) CityID() (int, bool) { return c.store.CityID() }

// SetCityID sets the session city. It returns an ErrValidation error for
// ids below 1 and keeps the previous value in that case.
func (c *Client) SetCityID(id int) error { return c.store.SetCityID(id) }

// ClearCityID unsets the city so the next response can supply one.
func (c *Client) ClearCityID() { c.store.Clear(headers.City) }

// Language returns the session language tag, if one is set.
func (c *Client) Language() (string, bool) { return c.store.Language() }

// SetLanguage sets the language tag sent as x-language, e.g. "ru" or "ru-RU".
func (c *Client) SetLanguage(tag string) error { return c.store.SetLanguage(tag) }

// ClearLanguage unsets the language so the next response can supply one.
func (c *Client) ClearLanguage() { c.store.Clear(headers.Language) }

// DeliveryType returns the delivery mode sent with every request.
func (c *Client) DeliveryType() (string, bool) { return c.store.DeliveryType() }

// SetDeliveryType overrides the delivery mode. Unknown modes fail with
// ErrValidation.
func (c *Client) SetDeliveryType(mode string) error { return c.store.SetDeliveryType(mode) }

// StoreID returns the pick-up store id, if one is set.
func (c *Client) StoreID() (string, bool) { return c.store.StoreID() }

// SetStoreID sets the pick-up store id.
func (c *Client) SetStoreID(id string) error { return c.store.SetStoreID(id) }

// ClientRoute returns the storefront route reported to the API.
func (c *Client) ClientRoute() (string, bool) { return c.store.ClientRoute() }

// SetClientRoute sets the storefront route reported to the API.
func (c *Client) SetClientRoute(route string) error { return c.store.SetClientRoute(route) }
