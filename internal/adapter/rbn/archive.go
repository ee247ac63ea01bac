// Package rbn downloads Reverse Beacon Network daily history archives.
package rbn

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jszwec/csvutil"
	"github.com/klauspost/compress/zip"
	"github.com/rogercaminal/hamcontestlog/internal/domain"
)

// DefaultBaseURL is the public RBN history directory.
const DefaultBaseURL = "https://data.reversebeacon.net/rbn_history"

var (
	// ErrArchiveNotFound is returned when RBN has no archive for the day.
	ErrArchiveNotFound = fmt.Errorf("rbn archive %w", domain.ErrNotFound)

	// ErrNoCSVInArchive is returned for archives without any .csv member.
	ErrNoCSVInArchive = errors.New("no .csv file found in rbn archive")
)

// Archive fetches and decodes daily RBN archives. It implements
// pipeline.SpotArchive.
type Archive struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewArchive creates an Archive rooted at baseURL.
func NewArchive(baseURL string, timeout time.Duration, logger *slog.Logger) *Archive {
	return &Archive{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ArchiveURL returns the location of the archive for day, e.g.
// {base}/20241123.zip.
func ArchiveURL(baseURL string, day time.Time) string {
	return fmt.Sprintf("%s/%s.zip", strings.TrimRight(baseURL, "/"), day.UTC().Format("20060102"))
}

// Fetch downloads the archive for day and concatenates every CSV member
// into one raw table.
func (a *Archive) Fetch(ctx context.Context, day time.Time) (domain.RawSpotTable, error) {
	url := ArchiveURL(a.baseURL, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("fetch rbn archive: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.RawSpotTable{}, fmt.Errorf("%w: %s", ErrArchiveNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return domain.RawSpotTable{}, fmt.Errorf("fetch rbn archive: %s: status %d", url, resp.StatusCode)
	}

	// zip needs random access, so spool the body to disk first.
	tmp, err := os.CreateTemp("", "rbn-*.zip")
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("download rbn archive: %w", err)
	}
	a.logger.Info("rbn archive downloaded", "url", url, "size", humanize.Bytes(uint64(size)))

	table, err := ReadArchive(tmp, size)
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("%s: %w", url, err)
	}
	a.logger.Info("rbn archive decoded", "day", day.Format(time.DateOnly), "rows", humanize.Comma(int64(len(table.Rows))))
	return table, nil
}

// ReadArchive decodes every .csv member of a zip archive. The header of the
// result is the union of the members' headers.
func ReadArchive(r io.ReaderAt, size int64) (domain.RawSpotTable, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("open rbn archive: %w", err)
	}

	var table domain.RawSpotTable
	found := false
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".csv") {
			continue
		}
		found = true
		part, err := readMember(f)
		if err != nil {
			return domain.RawSpotTable{}, err
		}
		for _, col := range part.Header {
			if !slices.Contains(table.Header, col) {
				table.Header = append(table.Header, col)
			}
		}
		table.Rows = append(table.Rows, part.Rows...)
	}
	if !found {
		return domain.RawSpotTable{}, ErrNoCSVInArchive
	}
	return table, nil
}

func readMember(f *zip.File) (domain.RawSpotTable, error) {
	rc, err := f.Open()
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	table, err := DecodeCSV(rc)
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return table, nil
}

// DecodeCSV reads one RBN CSV file. Header names are trimmed before rows are
// mapped onto domain.RawSpot, so "callsign, dx" decodes the same as
// "callsign,dx". Unknown columns are ignored; an empty file yields an empty
// table.
func DecodeCSV(r io.Reader) (domain.RawSpotTable, error) {
	cr := csv.NewReader(r)
	raw, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.RawSpotTable{}, nil
	}
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("read csv header: %w", err)
	}

	header := make([]string, 0, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header = append(header, strings.TrimSpace(h))
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return domain.RawSpotTable{}, fmt.Errorf("init csv decoder: %w", err)
	}

	var rows []domain.RawSpot
	if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return domain.RawSpotTable{}, fmt.Errorf("decode csv rows: %w", err)
	}
	return domain.RawSpotTable{Header: header, Rows: rows}, nil
}
