package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Download is a fetched attachment.
type Download struct {
	Data []byte
	Mime string
}

// Fetcher downloads platform attachments with a size cap.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses a 60s timeout client.
func NewFetcher(log *slog.Logger, client *http.Client, maxBytes int64) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	return &Fetcher{client: client, maxBytes: maxBytes, logger: log.With(slog.String("service", "media"))}
}

// MaxBytes returns the configured cap.
func (f *Fetcher) MaxBytes() int64 {
	return f.maxBytes
}

// Fetch downloads url. size is the platform-reported size and is checked
// before any request is made.
func (f *Fetcher) Fetch(ctx context.Context, url string, size int64) (Download, error) {
	if err := CheckSize(size, f.maxBytes); err != nil {
		return Download{}, err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return Download{}, fmt.Errorf("%w: empty url", ErrDownloadFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Download{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Download{}, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Download{}, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return Download{}, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, f.maxBytes)
	}
	data, err := ReadAllWithLimit(resp.Body, f.maxBytes)
	if err != nil {
		return Download{}, err
	}
	mime := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	f.logger.Debug("attachment fetched", slog.Int("bytes", len(data)), slog.String("mime", mime))
	return Download{Data: data, Mime: mime}, nil
}
