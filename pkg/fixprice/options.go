// Package fixprice is a client for the Fix Price storefront API.
//
// The API only answers requests that look like they come from the storefront
// itself, so Open first warms up a real Chrome session on the catalog page,
// captures the token and headers the app sends, and then issues every call
// through that session.
package fixprice

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/fixprice/internal/browser"
	"github.com/jmylchreest/fixprice/internal/pipeline"
	"github.com/jmylchreest/fixprice/internal/warmup"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// CatalogURL is the base URL of the buyer API.
const CatalogURL = "https://api.fix-price.com/buyer"

// TransportMode selects how API calls leave the process once warm-up is done.
type TransportMode string

const (
	// TransportBrowser issues calls with fetch() inside the warmed-up page.
	TransportBrowser TransportMode = "browser"
	// TransportHTTP issues calls with a plain HTTP client seeded with the
	// browser's cookies and closes the browser after warm-up.
	TransportHTTP TransportMode = "http"
)

// Config holds all client configuration.
type Config struct {
	// Session settings
	Timeout   time.Duration `validate:"gt=0"`
	Headless  bool
	Proxy     string `validate:"omitempty,url"`
	UserAgent string
	ExecPath  string
	Transport TransportMode `validate:"oneof=browser http"`
	BaseURL   string        `validate:"required,url"`

	// Warm-up settings
	WarmupAttempts int           `validate:"gte=1,lte=10"`
	TokenTimeout   time.Duration `validate:"gt=0"`

	// Request settings
	Retries   int           `validate:"gte=1,lte=10"`
	Backoff   time.Duration `validate:"gt=0"`
	RateLimit int           `validate:"gte=0"` // requests per minute, 0 for none

	// Initial session state; zero values leave it to auto-adoption.
	CityID   int    `validate:"gte=0"`
	Language string `validate:"omitempty,len=2|len=5"`

	// BrowserFlags are handed to Chrome unvalidated and override built-in flags.
	BrowserFlags map[string]any `validate:"-"`

	Classifier pipeline.Classifier `validate:"-"`
	Browser    session.Browser     `validate:"-"`
	Logger     *slog.Logger        `validate:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		Headless:       true,
		UserAgent:      browser.DefaultUserAgent,
		Transport:      TransportBrowser,
		BaseURL:        CatalogURL,
		WarmupAttempts: warmup.DefaultAttempts,
		TokenTimeout:   30 * time.Second,
		Retries:        pipeline.DefaultAttempts,
		Backoff:        pipeline.DefaultBackoff,
	}
}

var validate = validator.New()

// Validate checks the validated fields of c.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError flattens validator errors into one ErrValidation.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", e.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation (value %v)", e.Field(), e.Tag(), e.Value())
	}
}

// Option configures the client.
type Option func(*Config)

// WithTimeout sets the navigation and request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithHeadless toggles headless Chrome.
func WithHeadless(enabled bool) Option {
	return func(c *Config) {
		c.Headless = enabled
	}
}

// WithProxy routes the browser and image downloads through proxy.
func WithProxy(proxy string) Option {
	return func(c *Config) {
		c.Proxy = proxy
	}
}

// WithUserAgent sets the browser user agent.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithExecPath sets the Chrome binary.
func WithExecPath(path string) Option {
	return func(c *Config) {
		c.ExecPath = path
	}
}

// WithTransport selects the transport used after warm-up.
func WithTransport(mode TransportMode) Option {
	return func(c *Config) {
		c.Transport = mode
	}
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = strings.TrimRight(url, "/")
	}
}

// WithWarmupAttempts sets the total navigation attempts of the warm-up.
func WithWarmupAttempts(n int) Option {
	return func(c *Config) {
		c.WarmupAttempts = n
	}
}

// WithTokenTimeout bounds the wait for the auth token during warm-up.
func WithTokenTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.TokenTimeout = d
	}
}

// WithRetries sets the attempts per call when the API answers with a rejection.
func WithRetries(n int) Option {
	return func(c *Config) {
		c.Retries = n
	}
}

// WithBackoff sets the fixed wait between rejected attempts. It must be positive.
func WithBackoff(d time.Duration) Option {
	return func(c *Config) {
		c.Backoff = d
	}
}

// WithRateLimit caps API calls per minute.
func WithRateLimit(perMinute int) Option {
	return func(c *Config) {
		c.RateLimit = perMinute
	}
}

// WithCityID sets the initial city.
func WithCityID(id int) Option {
	return func(c *Config) {
		c.CityID = id
	}
}

// WithLanguage sets the initial language tag.
func WithLanguage(tag string) Option {
	return func(c *Config) {
		c.Language = tag
	}
}

// WithBrowserFlags adds raw Chrome flags.
func WithBrowserFlags(flags map[string]any) Option {
	return func(c *Config) {
		if c.BrowserFlags == nil {
			c.BrowserFlags = make(map[string]any, len(flags))
		}
		for k, v := range flags {
			c.BrowserFlags[k] = v
		}
	}
}

// WithClassifier replaces the predicate that recognizes rejection payloads.
func WithClassifier(fn func(payload any) bool) Option {
	return func(c *Config) {
		c.Classifier = fn
	}
}

// WithBrowser uses b instead of launching Chrome. The client takes ownership
// and closes b on Close or when Open fails.
func WithBrowser(b session.Browser) Option {
	return func(c *Config) {
		c.Browser = b
	}
}

// WithLogger routes library logs into l.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
