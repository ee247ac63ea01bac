package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/rogercaminal/hamcontestlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "contest.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLog(t *testing.T) domain.ParsedLog {
	t.Helper()
	log, err := domain.ParseCabrilloText(`START-OF-LOG: 3.0
CALLSIGN: EF6T
CONTEST: CQ-WW-CW
CATEGORY-OVERLAY:
QSO:    7044 CW 2024-11-23 0000 EF6T             599 14    YR8D             599  20      0
QSO:    7044 CW 2024-11-23 0000 EF6T             599 14    N1IX             599  05      0
QSO:   14041 CW 2024-11-23 0001 EF6T             599 14    W0EAR            599  04      1
END-OF-LOG:
`)
	require.NoError(t, err)
	return log
}

func strPtr(s string) *string { return &s }

func sampleSpots() []domain.Spot {
	ts := time.Date(2024, 11, 23, 0, 1, 0, 0, time.UTC)
	return []domain.Spot{
		{ID: domain.SpotID("W1AW", "K3LR", "2024-11-23 00:01:00", 14025), Callsign: "K3LR", Freq: 14025, Band: 20, DX: "W1AW", Mode: "CW", DB: 21, Speed: 28, DeCont: strPtr("NA"), DxCont: strPtr("NA"), Datetime: ts},
		{ID: domain.SpotID("EF6T", "DL8LAS", "2024-11-23 00:01:00", 7023.1), Callsign: "DL8LAS", Freq: 7023.1, Band: 40, DX: "EF6T", Mode: "CW", DB: 15, Speed: 30, DeCont: strPtr("EU"), Datetime: ts},
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestStore_SaveLogIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	log := sampleLog(t)

	n, err := s.SaveLog(ctx, "cw2024", log)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.SaveLog(ctx, "cw2024", log)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-ingesting inserts nothing")

	res, err := s.Query(ctx, "SELECT id, frequency, call, radio FROM "+s.Table("cw2024", "contacts")+" ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "frequency", "call", "radio"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "EF6T_0", res.Rows[0][0])
	assert.EqualValues(t, 7044, res.Rows[0][1])
	assert.Equal(t, "YR8D", res.Rows[0][2])
	assert.Equal(t, "1", res.Rows[2][3])

	meta, err := s.Query(ctx, "SELECT key, value FROM "+s.Table("cw2024", "metadata")+" WHERE log_id = ? ORDER BY key", "EF6T")
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"CALLSIGN", "EF6T"},
		{"CATEGORY-OVERLAY", ""},
		{"CONTEST", "CQ-WW-CW"},
		{"END-OF-LOG", ""},
		{"START-OF-LOG", "3.0"},
	}, meta.Rows)
}

func TestStore_SaveLogWithoutStation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	log, err := domain.ParseCabrilloText("START-OF-LOG: 3.0\nCONTEST: CQ-WW-CW\nEND-OF-LOG:\n")
	require.NoError(t, err)
	require.Empty(t, log.Station())

	_, err = s.SaveLog(ctx, "cw2024", log)
	require.ErrorIs(t, err, domain.ErrMissingStation)

	_, err = s.StationCounts(ctx, "cw2024")
	assert.ErrorIs(t, err, ErrUnknownEdition, "nothing is written for a rejected log")
}

func TestStore_EditionsAreSeparate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveLog(ctx, "cw2024", sampleLog(t))
	require.NoError(t, err)
	n, err := s.SaveLog(ctx, "cw2023", sampleLog(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_InvalidEdition(t *testing.T) {
	s := openTestStore(t)

	for _, edition := range []string{"", "CW2024", "cw2024; DROP TABLE x", "2024cw", `cw"2024`} {
		_, err := s.SaveLog(context.Background(), edition, sampleLog(t))
		assert.ErrorIs(t, err, ErrInvalidEdition, edition)
	}
}

func TestStore_SaveSpots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.SaveSpots(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.SaveSpots(ctx, sampleSpots())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same observations from another archive file collapse onto the same ids.
	n, err = s.SaveSpots(ctx, sampleSpots())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := s.Query(ctx, "SELECT dx, de_cont, dx_cont FROM "+s.SpotsTable()+" ORDER BY dx")
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"EF6T", "EU", nil},
		{"W1AW", "NA", "NA"},
	}, res.Rows)
}

func TestStore_StationCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.StationCounts(ctx, "cw2024")
	assert.ErrorIs(t, err, ErrUnknownEdition)

	_, err = s.SaveLog(ctx, "cw2024", sampleLog(t))
	require.NoError(t, err)
	other, err := domain.ParseCabrilloText("CALLSIGN: K3LR\nQSO: 14025 CW 2024-11-23 0100 K3LR 599 5 EF6T 599 14\n")
	require.NoError(t, err)
	_, err = s.SaveLog(ctx, "cw2024", other)
	require.NoError(t, err)

	counts, err := s.StationCounts(ctx, "cw2024")
	require.NoError(t, err)
	assert.Equal(t, []StationCount{{"EF6T", 3}, {"K3LR", 1}}, counts)

	_, err = s.StationCounts(ctx, "bad edition")
	assert.ErrorIs(t, err, ErrInvalidEdition)
}

func TestStore_WithTx(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ensureEdition(ctx, "cw2024"))
	table := s.Table("cw2024", "metadata")

	count := func() int {
		res, err := s.Query(ctx, "SELECT COUNT(*) FROM "+table)
		require.NoError(t, err)
		n, ok := res.Rows[0][0].(int64)
		require.True(t, ok)
		return int(n)
	}

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO "+table+" (log_id, key, value) VALUES ('X', 'K', 'V')")
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, count())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = s.WithTx(ctx, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "INSERT INTO "+table+" (log_id, key, value) VALUES ('X', 'K', 'V')")
				require.NoError(t, err)
				panic("boom")
			})
		})
		assert.Equal(t, 0, count())
	})

	t.Run("commit", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO "+table+" (log_id, key, value) VALUES ('X', 'K', 'V')")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})
}

func TestStore_CheckReadiness(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CheckReadiness(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.CheckReadiness(context.Background()))
}

func TestDialectSQL(t *testing.T) {
	pg, err := lookupDialect("pgx")
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "rbn"."spots" ("id", "dx") VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		pg.insert(pg.table("rbn", "spots"), []string{"id", "dx"}))

	my, err := lookupDialect("MySQL")
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT IGNORE INTO `cw2024`.`contacts` (`id`, `call`) VALUES (?, ?)",
		my.insert(my.table("cw2024", "contacts"), []string{"id", "call"}))

	lite, err := lookupDialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, `"cw2024_contacts"`, lite.table("cw2024", "contacts"))

	duck, err := lookupDialect("duckdb")
	require.NoError(t, err)
	assert.Contains(t, duck.createTable(duck.table("cw2024", "metadata"), metadataColumns, "log_id", "key"),
		`PRIMARY KEY ("log_id", "key")`)
}
