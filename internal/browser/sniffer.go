package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// AttachFunc subscribes a sniffer to a source of network events until ctx is
// cancelled. Implementations call the sniffer's RecordRequest and RecordExtra.
type AttachFunc func(ctx context.Context, s *Sniffer) error

// Sniffer accumulates request headers of matching network requests.
//
// Chrome reports a request in two halves: the request itself (with the URL and
// the headers the page set) and an extra-info event (with the headers the
// network stack added, keyed by request id only). The halves may arrive in
// either order, so extra headers are parked until their request id is matched.
type Sniffer struct {
	filter string
	attach AttachFunc

	mu       sync.Mutex
	seen     session.Snapshot
	requests map[string]bool                // request id -> URL matched filter
	pending  map[string][]map[string]string // extra headers awaiting their request
	changed  chan struct{}                  // closed and replaced on every new header value
	cancel   context.CancelFunc
	done     bool
}

// NewSniffer creates a sniffer for request URLs containing filter.
// attach may be nil, in which case events must be fed by the caller.
func NewSniffer(filter string, attach AttachFunc) *Sniffer {
	return &Sniffer{
		filter:   filter,
		attach:   attach,
		seen:     make(session.Snapshot),
		requests: make(map[string]bool),
		pending:  make(map[string][]map[string]string),
		changed:  make(chan struct{}),
	}
}

// Start begins accumulating. It must be called before the page navigates.
func (s *Sniffer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return session.ErrClosed
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.attach == nil {
		return nil
	}
	if err := s.attach(ctx, s); err != nil {
		return fmt.Errorf("failed to attach network observer: %w", err)
	}
	logger.Debug("network observer started", "filter", s.filter)
	return nil
}

// RecordRequest registers a request and its headers.
func (s *Sniffer) RecordRequest(requestID, url string, headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}

	match := strings.Contains(url, s.filter)
	s.requests[requestID] = match
	parked := s.pending[requestID]
	delete(s.pending, requestID)
	if !match {
		return
	}

	grew := s.merge(headers)
	for _, h := range parked {
		grew = s.merge(h) || grew
	}
	if grew {
		s.notify()
	}
}

// RecordExtra registers headers the network stack added to a request.
func (s *Sniffer) RecordExtra(requestID string, headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}

	match, known := s.requests[requestID]
	if !known {
		s.pending[requestID] = append(s.pending[requestID], headers)
		return
	}
	if match && s.merge(headers) {
		s.notify()
	}
}

// merge adds unseen values and reports whether anything was added.
// Callers hold s.mu.
func (s *Sniffer) merge(headers map[string]string) bool {
	grew := false
	for name, value := range headers {
		name = strings.ToLower(name)
		if contains(s.seen[name], value) {
			continue
		}
		s.seen[name] = append(s.seen[name], value)
		grew = true
	}
	return grew
}

// notify wakes every waiter. Callers hold s.mu.
func (s *Sniffer) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Wait blocks until every header named in cond has been observed.
func (s *Sniffer) Wait(ctx context.Context, cond session.Conditions, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		missing := s.missing(cond)
		changed := s.changed
		s.mu.Unlock()

		if len(missing) == 0 {
			return nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return fmt.Errorf("%w: headers %v not observed within %s", session.ErrTimeout, missing, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sniffer) missing(cond session.Conditions) []string {
	var out []string
	for _, name := range cond.Headers {
		if len(s.seen[strings.ToLower(name)]) == 0 {
			out = append(out, name)
		}
	}
	return out
}

// Complete stops observing and returns a copy of everything accumulated.
func (s *Sniffer) Complete() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		if s.cancel != nil {
			s.cancel()
		}
	}

	out := make(session.Snapshot, len(s.seen))
	for name, values := range s.seen {
		out[name] = append([]string(nil), values...)
	}
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
