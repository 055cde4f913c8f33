package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Fetcher reads reference files either from disk or over HTTP.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

func New(logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger.With("component", "fetcher"),
	}
}

// Read returns the content at location, which is a local path or an
// http(s) URL.
func (f *Fetcher) Read(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return f.download(ctx, location)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	f.logger.Debug("read local file", "path", location, "size_bytes", len(data))
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	f.logger.Info("starting download", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "bonvoyage/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("download failed",
			"url", url,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("unexpected HTTP status",
			"url", url,
			"status_code", resp.StatusCode,
		)
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	f.logger.Info("download completed",
		"url", url,
		"size_bytes", len(data),
		"total_duration_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}
