// Package pipeline is the single path every API call takes: it attaches the
// session headers, performs the call, tells rejections from data, retries
// rejections and lets the session learn its city and language.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/fixprice/internal/headers"
	"github.com/jmylchreest/fixprice/internal/logger"
	"github.com/jmylchreest/fixprice/pkg/session"
)

// Defaults for Options.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 5 * time.Second
	DefaultReferrer = "https://fix-price.com/catalog"
	DefaultAccept   = "application/json, text/plain, */*"
)

// Options configures a Pipeline.
type Options struct {
	Attempts   int           // attempts in total per call
	Backoff    time.Duration // fixed wait between rejected attempts
	Timeout    time.Duration // per-attempt transport timeout, 0 for the transport default
	Referrer   string
	Classifier Classifier

	// RateLimit caps calls per minute across the pipeline; 0 disables it.
	RateLimit int
	Burst     int
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Referrer == "" {
		o.Referrer = DefaultReferrer
	}
	if o.Classifier == nil {
		o.Classifier = ErrorShape
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	return o
}

// Request is one pending API call.
type Request struct {
	Method string
	URL    string
	Body   any // JSON-encoded when non-nil

	// SkipHeaders sends only the base headers, without the session state.
	SkipHeaders bool
	// Route overrides the client-route header for this call.
	Route string
}

// Response is a data payload returned by the API.
type Response struct {
	URL      string
	Status   int
	Headers  http.Header
	Body     []byte
	Payload  any // decoded body, nil when the body was empty
	Attempts int
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrUnexpectedBody)
	}
	return json.Unmarshal(r.Body, v)
}

// Pipeline issues API calls over one transport and header store.
// It is safe for concurrent use.
type Pipeline struct {
	transport session.Transport
	store     *headers.Store
	opts      Options
	limiter   *rate.Limiter
	log       *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pipeline.
func New(t session.Transport, store *headers.Store, opts Options) *Pipeline {
	opts = opts.withDefaults()
	p := &Pipeline{
		transport: t,
		store:     store,
		opts:      opts,
		log:       logger.Component("pipeline"),
		sleep:     sleepContext,
	}
	if opts.RateLimit > 0 {
		// per minute -> per second
		p.limiter = rate.NewLimiter(rate.Limit(float64(opts.RateLimit)/60), opts.Burst)
	}
	return p
}

// Do performs req. Rejection payloads are retried after a fixed back-off
// until the attempt budget is spent. Transport failures and non-JSON bodies
// are returned at once.
func (p *Pipeline) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	log := p.log.With("request_id", uuid.NewString(), "method", method, "url", req.URL)

	for attempt := 1; ; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait: %w", err)
			}
		}

		log.Debug("request attempt", "attempt", attempt)
		raw, err := p.transport.Do(ctx, session.Request{
			Method:   method,
			URL:      req.URL,
			Body:     body,
			Headers:  p.headersFor(req, body != nil),
			Referrer: p.opts.Referrer,
			Timeout:  p.opts.Timeout,
		})
		if err != nil {
			log.Debug("transport error", "attempt", attempt, "error", err)
			return nil, err
		}

		payload, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
		}

		if p.opts.Classifier(payload) {
			if attempt >= p.opts.Attempts {
				log.Warn("rejected on every attempt", "attempts", attempt)
				return nil, &RetryExhaustedError{
					Method:   method,
					URL:      req.URL,
					Attempts: attempt,
					Payload:  payload,
				}
			}
			log.Warn("rejection payload, retrying",
				"attempt", attempt,
				"max_attempts", p.opts.Attempts,
				"backoff", p.opts.Backoff)
			if err := p.sleep(ctx, p.opts.Backoff); err != nil {
				return nil, err
			}
			continue
		}

		p.adopt(payload, raw.Headers, log)
		log.Debug("request done", "status", raw.Status, "attempts", attempt, "body_size", len(raw.Body))

		return &Response{
			URL:      raw.URL,
			Status:   raw.Status,
			Headers:  raw.Headers,
			Body:     raw.Body,
			Payload:  payload,
			Attempts: attempt,
		}, nil
	}
}

// headersFor builds the outgoing header set for one attempt.
func (p *Pipeline) headersFor(req Request, hasBody bool) map[string]string {
	h := map[string]string{"Accept": DefaultAccept}
	if hasBody {
		h["Content-Type"] = "application/json"
	}
	if req.SkipHeaders {
		return h
	}
	for name, value := range p.store.Snapshot() {
		h[name] = value
	}
	if req.Route != "" {
		h[headers.ClientRoute.Wire()] = req.Route
	}
	return h
}

func decode(raw session.RawResponse) (any, error) {
	trimmed := bytes.TrimSpace(raw.Body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil || dec.More() {
		snippet := string(trimmed)
		if len(snippet) > 120 {
			snippet = snippet[:120] + "..."
		}
		return nil, fmt.Errorf("%w: status %d, content-type %q: %s",
			ErrUnexpectedBody, raw.Status, raw.Headers.Get("Content-Type"), snippet)
	}
	return payload, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
