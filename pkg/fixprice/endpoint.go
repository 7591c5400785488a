package fixprice

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jmylchreest/fixprice/internal/headers"
	"github.com/jmylchreest/fixprice/internal/pipeline"
)

// endpoint is the state every API service shares.
type endpoint struct {
	pipeline *pipeline.Pipeline
	store    *headers.Store
	baseURL  string
}

func (e *endpoint) url(path string, query url.Values) string {
	u := e.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (e *endpoint) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return e.pipeline.Do(ctx, pipeline.Request{
		Method: http.MethodGet,
		URL:    e.url(path, query),
	})
}
