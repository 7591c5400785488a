// Package sessiontest provides an in-memory session.Browser for tests.
package sessiontest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jmylchreest/fixprice/internal/browser"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// APIURL is the default request URL the fake app sends its traffic to.
const APIURL = "https://api.fix-price.com/buyer/v1/category"

// Browser is a scripted session.Browser.
//
// WaitForSelector succeeds on the MountOn-th call (never when MountOn is 0).
// Once mounted the page emits one API request per entry in Traffic, which
// every started observer records.
type Browser struct {
	MountOn     int
	NavigateErr error
	HTML        string
	Traffic     []map[string]string
	TrafficURL  string // defaults to APIURL
	Cookie      []*http.Cookie
	Handler     func(req session.Request) (session.RawResponse, error)

	mu          sync.Mutex
	navigations int
	reloads     int
	waits       int
	closes      int
	closed      bool
	requests    []session.Request
	observers   []*browser.Sniffer
	nextID      int
}

var _ session.Browser = (*Browser)(nil)

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigations++
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.NavigateErr
}

func (b *Browser) Reload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads++
	return nil
}

func (b *Browser) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waits++
	if b.MountOn == 0 || b.waits < b.MountOn {
		return fmt.Errorf("%w: waiting for %s", session.ErrTimeout, selector)
	}
	if b.waits == b.MountOn {
		b.emitLocked()
	}
	return nil
}

func (b *Browser) emitLocked() {
	url := b.TrafficURL
	if url == "" {
		url = APIURL
	}
	for _, h := range b.Traffic {
		b.nextID++
		id := strconv.Itoa(b.nextID)
		for _, o := range b.observers {
			o.RecordRequest(id, url, h)
		}
	}
}

func (b *Browser) Content(ctx context.Context) (string, error) {
	return b.HTML, nil
}

func (b *Browser) NewObserver(filter string) session.Observer {
	s := browser.NewSniffer(filter, nil)
	b.mu.Lock()
	b.observers = append(b.observers, s)
	b.mu.Unlock()
	return s
}

func (b *Browser) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	return b.Cookie, nil
}

func (b *Browser) UserAgent() string { return "sessiontest" }

// Do records req and answers with Handler, or an empty JSON object.
func (b *Browser) Do(ctx context.Context, req session.Request) (session.RawResponse, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return session.RawResponse{}, session.ErrClosed
	}
	b.requests = append(b.requests, req)
	handler := b.Handler
	b.mu.Unlock()

	if handler == nil {
		return JSON(http.StatusOK, `{}`), nil
	}
	return handler(req)
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	b.closed = true
	return nil
}

// Counts reports how often each page operation ran.
func (b *Browser) Counts() (navigations, reloads, waits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navigations, b.reloads, b.waits
}

// Closes reports how often Close was called.
func (b *Browser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Requests returns the requests issued so far.
func (b *Browser) Requests() []session.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]session.Request(nil), b.requests...)
}

// JSON builds a response with a JSON content type.
func JSON(status int, body string) session.RawResponse {
	return session.RawResponse{
		Status:  status,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(body),
	}
}

// Sequence answers with responses in order and repeats the last one.
func Sequence(responses ...session.RawResponse) func(session.Request) (session.RawResponse, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(session.Request) (session.RawResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		r := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return r, nil
	}
}
