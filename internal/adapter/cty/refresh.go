package cty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// statusSuffix names the JSON sidecar that remembers validators between runs.
const statusSuffix = ".status.json"

type fetchStatus struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Refresher keeps a local cty.plist in sync with its published copy using
// conditional GETs.
type Refresher struct {
	url        string
	path       string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRefresher creates a Refresher that mirrors url into path.
func NewRefresher(url, path string, timeout time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		url:        url,
		path:       path,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Refresh downloads the database when the remote copy changed. It reports
// whether the local file was replaced.
func (r *Refresher) Refresh(ctx context.Context) (bool, error) {
	prev := r.readStatus()
	_, statErr := os.Stat(r.path)
	exists := statErr == nil

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if exists && prev != nil {
		if prev.ETag != "" {
			req.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			req.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch cty plist: %w", err)
	}
	defer resp.Body.Close()

	status := fetchStatus{
		URL:          r.url,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		CheckedAt:    time.Now().UTC(),
	}

	if resp.StatusCode == http.StatusNotModified {
		if prev != nil {
			status.ETag, status.LastModified = prev.ETag, prev.LastModified
		}
		r.writeStatus(status)
		r.logger.Debug("cty database unchanged", "url", r.url)
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("fetch cty plist: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return false, fmt.Errorf("create cty directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "cty-*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return false, fmt.Errorf("write cty plist: %w", err)
	}
	if n == 0 {
		return false, errors.New("fetch cty plist: empty response body")
	}
	if _, err := Load(tmp.Name()); err != nil {
		return false, fmt.Errorf("validate downloaded cty plist: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return false, fmt.Errorf("replace cty plist: %w", err)
	}

	r.writeStatus(status)
	r.logger.Info("cty database updated", "url", r.url, "bytes", n)
	return true, nil
}

// LoadOrFetch loads the local database, downloading it first when it is
// missing.
func (r *Refresher) LoadOrFetch(ctx context.Context) (*Database, error) {
	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		if _, err := r.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return Load(r.path)
}

func (r *Refresher) readStatus() *fetchStatus {
	data, err := os.ReadFile(r.path + statusSuffix)
	if err != nil {
		return nil
	}
	var s fetchStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}

func (r *Refresher) writeStatus(s fetchStatus) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err == nil {
		err = os.WriteFile(r.path+statusSuffix, data, 0o644)
	}
	if err != nil {
		r.logger.Warn("write cty status failed", "path", r.path+statusSuffix, "error", err)
	}
}
