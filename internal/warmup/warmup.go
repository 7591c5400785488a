// Package warmup establishes a usable storefront session: it drives the
// browser to the catalog, waits for the app to mount and captures the
// unstandard headers (most importantly the auth key) the app sends to the API.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/fixprice/internal/headers"
	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// Defaults for the storefront.
const (
	DefaultEntryURL     = "https://fix-price.com/catalog"
	DefaultRootSelector = "#__nuxt"
	DefaultAPIFilter    = "https://api.fix-price.com/buyer"
	DefaultAttempts     = 3
)

// Config controls a warm-up run.
type Config struct {
	EntryURL     string
	RootSelector string
	APIFilter    string        // substring of request URLs worth sniffing
	Attempts     int           // navigation attempts in total, reloads included
	WaitTimeout  time.Duration // per-attempt wait for RootSelector
	TokenTimeout time.Duration // wait for the auth key once the app mounted
}

// DefaultConfig returns the storefront defaults.
func DefaultConfig() Config {
	return Config{
		EntryURL:     DefaultEntryURL,
		RootSelector: DefaultRootSelector,
		APIFilter:    DefaultAPIFilter,
		Attempts:     DefaultAttempts,
		WaitTimeout:  30 * time.Second,
		TokenTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EntryURL == "" {
		c.EntryURL = d.EntryURL
	}
	if c.RootSelector == "" {
		c.RootSelector = d.RootSelector
	}
	if c.APIFilter == "" {
		c.APIFilter = d.APIFilter
	}
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.TokenTimeout <= 0 {
		c.TokenTimeout = d.TokenTimeout
	}
	return c
}

// Result describes a successful run.
type Result struct {
	Attempts int               // navigation attempts used
	Captured map[string]string // sniffed headers, first observed value each
	Skipped  []string          // wire names of sniffed values the store rejected
}

// Controller runs the warm-up once against one browser.
type Controller struct {
	browser session.Browser
	store   *headers.Store
	config  Config
	log     *slog.Logger
	ran     atomic.Bool
}

// New creates a controller that fills store from b.
func New(b session.Browser, store *headers.Store, cfg Config) *Controller {
	return &Controller{
		browser: b,
		store:   store,
		config:  cfg.withDefaults(),
		log:     logger.Component("warmup"),
	}
}

// Run performs the warm-up. Every failure is an *Error matching ErrWarmup;
// there is no partial success. A second call returns ErrAlreadyRan.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	if !c.ran.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRan
	}

	obs := c.browser.NewObserver(c.config.APIFilter)
	if err := obs.Start(ctx); err != nil {
		return Result{}, &Error{Stage: StageObserve, Err: err}
	}
	defer obs.Complete()

	attempts, err := c.mount(ctx)
	if err != nil {
		return Result{}, c.fail(ctx, StageNavigate, attempts, err)
	}
	c.log.Debug("app mounted", "attempts", attempts)

	token := session.Conditions{Headers: []string{headers.AuthKey.Wire()}}
	if err := obs.Wait(ctx, token, c.config.TokenTimeout); err != nil {
		return Result{}, c.fail(ctx, StageToken, attempts, err)
	}

	captured := obs.Complete().First()
	skipped, err := c.merge(captured)
	if err != nil {
		return Result{}, &Error{Stage: StageMerge, Attempts: attempts, Err: err}
	}

	c.log.Info("warm-up complete",
		"attempts", attempts,
		"captured", len(captured),
		"skipped", len(skipped))
	return Result{Attempts: attempts, Captured: captured, Skipped: skipped}, nil
}

// mount navigates to the entry page and waits for the app root, reloading on
// timeout. Any other failure ends the loop at once.
func (c *Controller) mount(ctx context.Context) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.Attempts; attempt++ {
		var err error
		if attempt == 1 {
			err = c.browser.Navigate(ctx, c.config.EntryURL)
		} else {
			err = c.browser.Reload(ctx)
		}
		if err == nil {
			err = c.browser.WaitForSelector(ctx, c.config.RootSelector, c.config.WaitTimeout)
		}
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, session.ErrTimeout) {
			return attempt, err
		}

		lastErr = err
		c.log.Warn("app did not mount, reloading",
			"attempt", attempt,
			"max_attempts", c.config.Attempts,
			"error", err)
	}
	return c.config.Attempts, fmt.Errorf("app root %q not attached after %d attempts: %w",
		c.config.RootSelector, c.config.Attempts, lastErr)
}

// merge writes the sniffed headers into the store. Explicit city and language
// win over sniffed ones; other keys are only filled when unset.
func (c *Controller) merge(captured map[string]string) ([]string, error) {
	var skipped []string
	for _, k := range headers.Keys {
		value, ok := captured[k.Wire()]
		if !ok {
			continue
		}

		var err error
		switch k {
		case headers.AuthKey:
			if err := c.store.SetAuthKey(value); err != nil {
				return nil, err
			}
			continue
		case headers.City, headers.Language:
			_, err = c.store.AdoptIfUnset(k, value)
		default:
			if _, set := c.store.Get(k); !set {
				err = c.store.Set(k, value)
			}
		}
		if err != nil {
			c.log.Warn("skipping sniffed header", "header", k.Wire(), "value", value, "error", err)
			skipped = append(skipped, k.Wire())
		}
	}
	return skipped, nil
}

// fail builds the fatal error with whatever the page currently shows.
func (c *Controller) fail(ctx context.Context, stage Stage, attempts int, err error) error {
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	content, cerr := c.browser.Content(captureCtx)
	if cerr != nil {
		c.log.Debug("could not capture page content", "error", cerr)
	}
	diag := Diagnose(content)

	c.log.Error("warm-up failed",
		"stage", stage,
		"attempts", attempts,
		"title", diag.Title,
		"challenge", diag.Challenge,
		"error", err)

	return &Error{
		Stage:      stage,
		Attempts:   attempts,
		Diagnostic: diag,
		Content:    content,
		Err:        err,
	}
}
