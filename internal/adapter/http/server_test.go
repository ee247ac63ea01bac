package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/rogercaminal/hamcontestlog/internal/adapter/http"
	"github.com/rogercaminal/hamcontestlog/internal/adapter/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStations struct {
	counts []store.StationCount
	err    error
}

func (m *mockStations) StationCounts(_ context.Context, _ string) ([]store.StationCount, error) {
	return m.counts, m.err
}

func newTestServer(readyErr error, stations *mockStations) *httpadapter.Server {
	if stations == nil {
		stations = &mockStations{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, stations, logger)
}

func get(t *testing.T, srv http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("database is locked"), nil), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "database is locked", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStationsReturnsCounts(t *testing.T) {
	stations := &mockStations{counts: []store.StationCount{
		{Callsign: "EF6T", Contacts: 10},
		{Callsign: "K3LR", Contacts: 4},
	}}
	rec := get(t, newTestServer(nil, stations), "/v1/contests/cw2024/stations")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Edition  string               `json:"edition"`
		Stations []store.StationCount `json:"stations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cw2024", body.Edition)
	assert.Equal(t, stations.counts, body.Stations)
}

func TestStationsErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid edition", fmt.Errorf("%w: %q", store.ErrInvalidEdition, "x"), http.StatusBadRequest},
		{"unknown edition", fmt.Errorf("%w: ssb1999", store.ErrUnknownEdition), http.StatusNotFound},
		{"store failure", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(nil, &mockStations{err: tt.err}), "/v1/contests/ssb1999/stations")
			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "disk I/O")
		})
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/v1/nothing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
