package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// spotDateLayouts are tried in order when parsing the RBN date column.
var spotDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 1504",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
}

// NormalizeSpots turns one day of raw RBN rows into typed spots.
//
// Missing continents are backfilled through resolver (nil disables it).
// Rows without a dx call and rows on bands not measured in plain meters are
// dropped. Any value that cannot be coerced fails the whole table with a
// SchemaViolationError. The input table is not modified.
func NormalizeSpots(ctx context.Context, table RawSpotTable, resolver ContinentResolver, logger *slog.Logger) ([]Spot, NormalizeStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stats := NormalizeStats{Input: len(table.Rows)}

	for _, col := range RequiredSpotColumns {
		if !slices.Contains(table.Header, col) {
			return nil, stats, &SchemaViolationError{Row: -1, Column: col}
		}
	}

	rows := slices.Clone(table.Rows)
	if err := backfillContinents(ctx, rows, resolver, logger, &stats); err != nil {
		return nil, stats, err
	}

	spots := make([]Spot, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		if r.DX == "" {
			stats.DroppedNullDX++
			continue
		}
		if !isMeterBand(r.Band) {
			stats.DroppedBand++
			continue
		}
		s, err := typeSpot(i, r)
		if err != nil {
			return nil, stats, err
		}
		spots = append(spots, s)
	}
	stats.Output = len(spots)
	return spots, stats, nil
}

// SpotID is the content address of a spot: the SHA-256 of dx, callsign, the
// raw date string and the frequency rendered the way the archive tooling
// renders floats ("14025.0").
func SpotID(dx, callsign, date string, freq float64) string {
	sum := sha256.Sum256([]byte(dx + callsign + date + formatFreq(freq)))
	return hex.EncodeToString(sum[:])
}

func isMeterBand(band string) bool {
	return strings.HasSuffix(band, "m") && !strings.Contains(band, "cm")
}

func typeSpot(row int, r *RawSpot) (Spot, error) {
	freq, err := strconv.ParseFloat(strings.TrimSpace(r.Freq), 64)
	if err != nil {
		return Spot{}, &SchemaViolationError{Row: row, Column: "freq", Value: r.Freq, Err: err}
	}
	band, err := strconv.Atoi(strings.TrimSuffix(r.Band, "m"))
	if err != nil {
		return Spot{}, &SchemaViolationError{Row: row, Column: "band", Value: r.Band, Err: err}
	}
	ts, err := parseSpotDate(r.Date)
	if err != nil {
		return Spot{}, &SchemaViolationError{Row: row, Column: "date", Value: r.Date, Err: err}
	}
	db, err := parseWholeNumber(r.DB)
	if err != nil {
		return Spot{}, &SchemaViolationError{Row: row, Column: "db", Value: r.DB, Err: err}
	}
	speed, err := parseWholeNumber(r.Speed)
	if err != nil {
		return Spot{}, &SchemaViolationError{Row: row, Column: "speed", Value: r.Speed, Err: err}
	}

	return Spot{
		ID:       SpotID(r.DX, r.Callsign, r.Date, freq),
		Callsign: r.Callsign,
		Freq:     freq,
		Band:     band,
		DX:       r.DX,
		Mode:     r.Mode,
		DB:       db,
		Speed:    speed,
		DeCont:   optional(r.DeCont),
		DxCont:   optional(r.DxCont),
		Datetime: ts,
	}, nil
}

func parseSpotDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range spotDateLayouts {
		var t time.Time
		t, err = time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// parseWholeNumber accepts "12" and the float rendering "12.0" that
// spreadsheet exports sometimes produce, but rejects fractional values.
func parseWholeNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrSyntax
	}
	return int(f), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// formatFreq renders a float using the shortest round-trip digits and
// always keeps a fractional part, so 14025 becomes "14025.0".
func formatFreq(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
