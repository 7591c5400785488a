// Package session defines the transport contract the fixprice client runs on.
// Implement these interfaces to plug in a custom browser or HTTP backend, for
// example to reuse an already running Chrome or to replay recorded traffic in tests.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Request is a single programmatic call issued through a session.
type Request struct {
	Method   string
	URL      string
	Body     []byte // JSON-encoded body, nil for none
	Headers  map[string]string
	Referrer string
	Timeout  time.Duration
}

// RawResponse is what a transport hands back before any payload interpretation.
type RawResponse struct {
	URL     string
	Status  int
	Headers http.Header
	Body    []byte
}

// Transport performs requests inside an established session.
type Transport interface {
	// Do issues the request and returns the raw response.
	// Connectivity failures are returned as errors; HTTP status codes are not.
	Do(ctx context.Context, req Request) (RawResponse, error)

	// Close releases the session.
	Close() error
}

// Page is the navigable document of a browser session.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Reload(ctx context.Context) error
	// Content returns the current outer HTML of the document.
	Content(ctx context.Context) (string, error)
}

// Conditions describe when an Observer has seen enough traffic.
type Conditions struct {
	// Headers lists header names (case-insensitive) that must each have been
	// observed at least once on a matching request.
	Headers []string
}

// Snapshot maps lower-cased header names to their distinct values in the
// order they were first observed.
type Snapshot map[string][]string

// First collapses the snapshot to the first observed value per header.
func (s Snapshot) First() map[string]string {
	out := make(map[string]string, len(s))
	for name, values := range s {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

// Observer sniffs outgoing request headers of a browser session.
type Observer interface {
	// Start begins accumulating headers. It must be called before navigation.
	Start(ctx context.Context) error

	// Wait blocks until cond is satisfied, ctx is done or timeout elapses.
	Wait(ctx context.Context, cond Conditions, timeout time.Duration) error

	// Complete stops observing and returns everything accumulated.
	Complete() Snapshot
}

// Browser is a Transport backed by a real browser page.
type Browser interface {
	Transport
	Page

	// NewObserver returns an observer scoped to request URLs containing filter.
	NewObserver(filter string) Observer

	// Cookies exports the cookies of the browser context.
	Cookies(ctx context.Context) ([]*http.Cookie, error)

	// UserAgent reports the user agent the browser presents.
	UserAgent() string
}

// Error types for distinguishing transport failures.
// Check with errors.Is(err, session.ErrTimeout).
var (
	// ErrTimeout indicates a navigation, wait or request exceeded its deadline.
	ErrTimeout = errors.New("session timeout")
	// ErrClosed indicates the session was used after Close.
	ErrClosed = errors.New("session closed")
)
