// Package logsource opens Cabrillo logs from local paths or public URLs.
package logsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rogercaminal/hamcontestlog/internal/domain"
)

// ErrLogNotFound is returned when a location does not hold a log.
var ErrLogNotFound = fmt.Errorf("log %w", domain.ErrNotFound)

const userAgent = "hamcontestlog/1.0"

// Local reads logs from the filesystem.
type Local struct{}

// Open opens the file at path.
func (Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrLogNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return f, nil
}

// HTTP fetches logs published on contest websites.
type HTTP struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTP creates an HTTP source with the given request timeout.
func NewHTTP(timeout time.Duration, logger *slog.Logger) *HTTP {
	return &HTTP{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Open issues a GET for url. Any status other than 200 means the log does
// not exist, matching how the contest sites answer for unknown calls.
func (h *HTTP) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch log: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: status %d", ErrLogNotFound, url, resp.StatusCode)
	}
	h.logger.Debug("log fetched", "url", url, "content_length", resp.ContentLength)
	return resp.Body, nil
}

// Router sends http(s) locations to the HTTP source and everything else to
// the local filesystem.
type Router struct {
	Local Local
	HTTP  *HTTP
}

// Open implements pipeline.LogSource.
func (r Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if IsRemote(location) {
		if r.HTTP == nil {
			return nil, fmt.Errorf("open %s: remote logs are not enabled", location)
		}
		return r.HTTP.Open(ctx, location)
	}
	return r.Local.Open(ctx, location)
}

// IsRemote reports whether location is an http or https URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
