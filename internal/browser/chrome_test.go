package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/fixprice/pkg/session"
)

func TestFlattenHeaders(t *testing.T) {
	got := flattenHeaders(network.Headers{
		"x-key":  "tok",
		"X-City": float64(3),
		"x-flag": true,
	})
	assert.Equal(t, map[string]string{
		"x-key":  "tok",
		"X-City": "3",
		"x-flag": "true",
	}, got)

	assert.Empty(t, flattenHeaders(nil))
}

func TestFetchResult_Response(t *testing.T) {
	const reqURL = "https://api.fix-price.com/buyer/v1/category"

	t.Run("aborted is a timeout", func(t *testing.T) {
		_, err := fetchResult{Error: "AbortError: signal is aborted", Aborted: true}.
			response("GET", reqURL, time.Second)
		require.Error(t, err)
		assert.True(t, errors.Is(err, session.ErrTimeout))
		assert.Contains(t, err.Error(), reqURL)
	})

	t.Run("network failure is not a timeout", func(t *testing.T) {
		_, err := fetchResult{Error: "TypeError: Failed to fetch"}.
			response("POST", reqURL, time.Second)
		require.Error(t, err)
		assert.False(t, errors.Is(err, session.ErrTimeout))
		assert.Contains(t, err.Error(), "Failed to fetch")
	})

	t.Run("success", func(t *testing.T) {
		resp, err := fetchResult{
			Status:  http.StatusNotFound,
			URL:     reqURL + "?page=1",
			Headers: map[string]string{"x-city": "3", "content-type": "application/json"},
			Body:    `{"message":"missing"}`,
		}.response("GET", reqURL, time.Second)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)
		assert.Equal(t, reqURL+"?page=1", resp.URL)
		assert.Equal(t, "3", resp.Headers.Get("X-City"))
		assert.Equal(t, `{"message":"missing"}`, string(resp.Body))
	})

	t.Run("missing url falls back to the request", func(t *testing.T) {
		resp, err := fetchResult{Status: http.StatusOK}.response("GET", reqURL, time.Second)
		require.NoError(t, err)
		assert.Equal(t, reqURL, resp.URL)
		assert.Empty(t, resp.Body)
	})
}

func TestNewChrome_MissingBinary(t *testing.T) {
	_, err := NewChrome(context.Background(), Config{
		Headless: true,
		ExecPath: filepath.Join(t.TempDir(), "no-such-chrome"),
		Timeout:  5 * time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start chrome")
}

const storefrontPage = `<!doctype html>
<html><body>
<script>
  fetch('/api/v1/category', { headers: { 'x-key': 'tok', 'x-city': '3' } }).then(() => {
    const root = document.createElement('div');
    root.id = '__nuxt';
    document.body.appendChild(root);
  });
</script>
</body></html>`

func newStorefront(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(storefrontPage))
	})
	mux.HandleFunc("/api/v1/category", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-City", r.Header.Get("X-City"))
		w.Write([]byte(`[{"alias":"dom"}]`))
	})
	mux.HandleFunc("/api/v1/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChrome_SessionRoundTrip(t *testing.T) {
	if FindChromePath() == "" {
		t.Skip("chrome not installed")
	}
	srv := newStorefront(t)
	ctx := context.Background()

	// A short-lived ctx must not take the browser down with it.
	launchCtx, cancelLaunch := context.WithTimeout(ctx, 30*time.Second)
	c, err := NewChrome(launchCtx, Config{Headless: true, Timeout: 20 * time.Second})
	cancelLaunch()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	obs := c.NewObserver(srv.URL + "/api")
	require.NoError(t, obs.Start(ctx))

	require.NoError(t, c.Navigate(ctx, srv.URL+"/"))
	require.NoError(t, c.WaitForSelector(ctx, "#__nuxt", 10*time.Second))
	require.NoError(t, obs.Wait(ctx, session.Conditions{Headers: []string{"x-key", "x-city"}}, 10*time.Second))

	observed := obs.Complete().First()
	assert.Equal(t, "tok", observed["x-key"])
	assert.Equal(t, "3", observed["x-city"])

	resp, err := c.Do(ctx, session.Request{
		Method:  "get",
		URL:     srv.URL + "/api/v1/category",
		Headers: map[string]string{"x-city": "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, srv.URL+"/api/v1/category", resp.URL)
	assert.Equal(t, "5", resp.Headers.Get("X-City"))
	assert.JSONEq(t, `[{"alias":"dom"}]`, string(resp.Body))

	_, err = c.Do(ctx, session.Request{
		Method:  "GET",
		URL:     srv.URL + "/api/v1/slow",
		Timeout: time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrTimeout), "got %v", err)

	cookies, err := c.Cookies(ctx)
	require.NoError(t, err)
	var found bool
	for _, ck := range cookies {
		if ck.Name == "session" {
			found = true
			assert.Equal(t, "abc", ck.Value)
		}
	}
	assert.True(t, found, "session cookie not exported")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Navigate(ctx, srv.URL+"/"), session.ErrClosed)
}
