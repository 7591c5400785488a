package fixprice

import (
	"context"
	"time"

	"github.com/jmylchreest/fixprice/internal/download"
)

// GeneralService covers calls that do not go through the API session.
type GeneralService struct {
	downloader *download.Downloader
}

// DownloadOptions tunes an image download. Zero values take the defaults:
// 3 attempts and a 10s timeout.
type DownloadOptions struct {
	Attempts int
	Timeout  time.Duration
	MaxBytes int64
}

// DownloadImage fetches an image with the session's proxy and user agent.
// Transient failures are retried with exponential back-off.
func (s *GeneralService) DownloadImage(ctx context.Context, url string, opts DownloadOptions) (*Image, error) {
	return s.downloader.Download(ctx, url, download.Options{
		Attempts: opts.Attempts,
		Timeout:  opts.Timeout,
		MaxBytes: opts.MaxBytes,
	})
}

// NewGeneralService returns a GeneralService that does not need a warmed-up
// session. Only the proxy and user agent options apply.
func NewGeneralService(opts ...Option) *GeneralService {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GeneralService{downloader: &download.Downloader{
		Proxy:     cfg.Proxy,
		UserAgent: cfg.UserAgent,
	}}
}
