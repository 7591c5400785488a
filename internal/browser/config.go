// Package browser implements the session transports: a chromedp-driven Chrome
// tab that issues API calls from inside the page, and a colly HTTP transport
// seeded with the cookies the browser earned.
package browser

import (
	"time"
)

// Config holds the launch options for a Chrome session.
type Config struct {
	Headless  bool
	Proxy     string // http://host:port or socks5://host:port
	UserAgent string
	Timeout   time.Duration // default deadline for navigation and requests
	ExecPath  string        // Chrome binary, looked up when empty

	// Flags are passed to Chrome verbatim and override the built-in flags.
	// They are not validated.
	Flags map[string]any
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:  true,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
	}
}

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}
