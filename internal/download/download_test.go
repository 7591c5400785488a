package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{MinWait: time.Millisecond, Timeout: time.Second}
}

func TestDownload_NamesBufferAfterURL(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/webp")
		w.Write([]byte("RIFF....WEBP"))
	}))
	defer srv.Close()

	d := &Downloader{UserAgent: "test-agent"}
	img, err := d.Download(context.Background(), srv.URL+"/images/product/1234.webp?v=2", fastOptions())
	require.NoError(t, err)

	assert.Equal(t, "1234.webp", img.Name)
	assert.Equal(t, "image/webp", img.ContentType)
	assert.Equal(t, []byte("RIFF....WEBP"), img.Data)
	assert.Equal(t, "test-agent", gotUA)
}

func TestDownload_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	img, err := (&Downloader{}).Download(context.Background(), srv.URL+"/a.png", fastOptions())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), img.Data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.Attempts = 2
	_, err := (&Downloader{}).Download(context.Background(), srv.URL+"/a.png", opts)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownload_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := (&Downloader{}).Download(context.Background(), srv.URL+"/missing.png", fastOptions())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownload_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.MaxBytes = 1024
	_, err := (&Downloader{}).Download(context.Background(), srv.URL+"/big.jpg", opts)
	assert.ErrorIs(t, err, ErrTooLarge)

	opts.MaxBytes = 4096
	img, err := (&Downloader{}).Download(context.Background(), srv.URL+"/big.jpg", opts)
	require.NoError(t, err)
	assert.Len(t, img.Data, 2048)
}

func TestDownload_InvalidURL(t *testing.T) {
	_, err := (&Downloader{}).Download(context.Background(), "not a url", fastOptions())
	assert.Error(t, err)
}
