package rbn

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rogercaminal/hamcontestlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rbnHeader = "callsign,de_pfx,de_cont,freq,band,dx,dx_pfx,dx_cont,mode,db,date,speed,tx_mode\n"
	morning   = rbnHeader +
		"K3LR,K,NA,14025.0,20m,W1AW,K,NA,CW,21,2024-11-23 00:01:00,28,CQ\n" +
		"DL8LAS,DL,EU,7023.1,40m,EF6T,EA,,CW,15,2024-11-23 00:02:00,30,CQ\n"
	evening = rbnHeader +
		"VE7CC,VE,NA,3525.0,80m,,JA,AS,CW,9,2024-11-23 20:00:00,25,CQ\n"
)

var testDay = time.Date(2024, 11, 23, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildZip(t *testing.T, files map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func archiveServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rbn_history/20241123.zip" {
			http.NotFound(w, r)
			return
		}
		w.Write(body) //nolint:errcheck // test server
	}))
}

func TestArchiveURL(t *testing.T) {
	assert.Equal(t, "https://data.reversebeacon.net/rbn_history/20241123.zip", ArchiveURL(DefaultBaseURL, testDay))
	assert.Equal(t, "http://x/20240105.zip", ArchiveURL("http://x/", time.Date(2024, 1, 5, 23, 59, 0, 0, time.UTC)))
}

func TestArchive_Fetch(t *testing.T) {
	body := buildZip(t, map[string]string{
		"20241123.csv": morning,
		"notes.txt":    "not a spot file",
		"extra.CSV":    evening,
	}, "20241123.csv", "notes.txt", "extra.CSV")
	srv := archiveServer(t, body)
	defer srv.Close()

	a := NewArchive(srv.URL+"/rbn_history/", 5*time.Second, discardLogger())
	table, err := a.Fetch(context.Background(), testDay)
	require.NoError(t, err)

	require.Len(t, table.Rows, 3)
	assert.Contains(t, table.Header, "tx_mode")
	for _, col := range domain.RawSpotColumns {
		assert.Contains(t, table.Header, col)
	}

	first := table.Rows[0]
	assert.Equal(t, domain.RawSpot{
		Callsign: "K3LR", DePfx: "K", DeCont: "NA", Freq: "14025.0", Band: "20m",
		DX: "W1AW", DxPfx: "K", DxCont: "NA", Mode: "CW", DB: "21",
		Date: "2024-11-23 00:01:00", Speed: "28",
	}, first)
	assert.Equal(t, "", table.Rows[1].DxCont)
	assert.Equal(t, "", table.Rows[2].DX)
	assert.Equal(t, "VE7CC", table.Rows[2].Callsign)
}

func TestArchive_FetchNormalizes(t *testing.T) {
	srv := archiveServer(t, buildZip(t, map[string]string{"a.csv": morning, "b.csv": evening}, "a.csv", "b.csv"))
	defer srv.Close()

	table, err := NewArchive(srv.URL+"/rbn_history", 5*time.Second, discardLogger()).Fetch(context.Background(), testDay)
	require.NoError(t, err)

	spots, stats, err := domain.NormalizeSpots(context.Background(), table, nil, discardLogger())
	require.NoError(t, err)
	assert.Len(t, spots, 2)
	assert.Equal(t, 1, stats.DroppedNullDX)
}

func TestArchive_NotFound(t *testing.T) {
	srv := archiveServer(t, nil)
	defer srv.Close()

	_, err := NewArchive(srv.URL+"/rbn_history", time.Second, discardLogger()).Fetch(context.Background(), testDay.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestArchive_NoCSV(t *testing.T) {
	srv := archiveServer(t, buildZip(t, map[string]string{"readme.txt": "hello"}, "readme.txt"))
	defer srv.Close()

	_, err := NewArchive(srv.URL+"/rbn_history", time.Second, discardLogger()).Fetch(context.Background(), testDay)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCSVInArchive)
}

func TestArchive_NotAZip(t *testing.T) {
	srv := archiveServer(t, []byte("<html>oops</html>"))
	defer srv.Close()

	_, err := NewArchive(srv.URL+"/rbn_history", time.Second, discardLogger()).Fetch(context.Background(), testDay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open rbn archive")
}

func TestDecodeCSV(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		table, err := DecodeCSV(strings.NewReader(morning))
		require.NoError(t, err)
		assert.Len(t, table.Rows, 2)
		assert.Equal(t, "DL8LAS", table.Rows[1].Callsign)
		assert.Equal(t, "7023.1", table.Rows[1].Freq)
	})

	t.Run("empty file", func(t *testing.T) {
		table, err := DecodeCSV(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, table.Rows)
		assert.Empty(t, table.Header)
	})

	t.Run("header only", func(t *testing.T) {
		table, err := DecodeCSV(strings.NewReader(rbnHeader))
		require.NoError(t, err)
		assert.Empty(t, table.Rows)
		assert.Len(t, table.Header, 13)
	})

	t.Run("spaced header", func(t *testing.T) {
		spaced := "callsign, de_pfx, de_cont, freq, band, dx, dx_pfx, dx_cont, mode, db, date, speed, tx_mode\n" +
			"K3LR,K,NA,14025.0,20m,W1AW,K,NA,CW,21,2024-11-23 00:01:00,28,CQ\n"
		table, err := DecodeCSV(strings.NewReader(spaced))
		require.NoError(t, err)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, "dx", table.Header[5])

		row := table.Rows[0]
		assert.Equal(t, "W1AW", row.DX)
		assert.Equal(t, "14025.0", row.Freq)
		assert.Equal(t, "20m", row.Band)
		assert.Equal(t, "2024-11-23 00:01:00", row.Date)

		spots, stats, err := domain.NormalizeSpots(context.Background(), table, nil, discardLogger())
		require.NoError(t, err)
		assert.Len(t, spots, 1)
		assert.Zero(t, stats.DroppedNullDX)
	})

	t.Run("subset of columns", func(t *testing.T) {
		table, err := DecodeCSV(strings.NewReader("callsign,dx\nK3LR,W1AW\n"))
		require.NoError(t, err)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, []string{"callsign", "dx"}, table.Header)

		_, _, err = domain.NormalizeSpots(context.Background(), table, nil, discardLogger())
		assert.ErrorIs(t, err, domain.ErrSchemaViolation)
	})

	t.Run("ragged row", func(t *testing.T) {
		_, err := DecodeCSV(strings.NewReader("callsign,dx\nK3LR\n"))
		require.Error(t, err)
	})
}
