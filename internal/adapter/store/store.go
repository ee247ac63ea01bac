// Package store persists parsed contest logs and RBN spots in a SQL
// database. SQLite, DuckDB, PostgreSQL and MySQL are supported.
//
// Each contest edition gets its own namespace (for example "cw2024") with a
// contacts table and a long-form metadata table keyed by (log_id, key).
// Spots live in the "rbn" namespace. Inserts ignore rows whose primary key
// already exists, so re-ingesting a log or an archive day is harmless.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/rogercaminal/hamcontestlog/internal/domain"
)

const spotNamespace = "rbn"

var (
	// ErrInvalidEdition rejects namespace names that are not plain
	// identifiers.
	ErrInvalidEdition = errors.New("invalid edition name")

	// ErrUnknownEdition is returned when nothing has been stored for an
	// edition yet.
	ErrUnknownEdition = errors.New("unknown edition")

	editionRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)
)

// Store is a SQL-backed log and spot repository.
type Store struct {
	db     *sql.DB
	d      dialect
	logger *slog.Logger

	mu      sync.Mutex
	created map[string]bool // namespaces whose tables exist
}

// Open connects to the database described by driver and dsn and verifies
// the connection.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", d.name, err)
	}
	if d.singleConn {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", d.name, err)
	}
	if d.name == "sqlite" {
		for _, pragma := range []string{"pragma busy_timeout=5000", "pragma journal_mode=WAL"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
			}
		}
	}

	logger.Info("store opened", "driver", d.name)
	return &Store{
		db:      db,
		d:       d,
		logger:  logger,
		created: make(map[string]bool),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the dialect name in use.
func (s *Store) Driver() string { return s.d.name }

// CheckReadiness reports whether the database answers.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck // re-panicking
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SaveLog stores a parsed log under edition and returns the number of
// contacts that were not already present. Metadata and contacts are written
// in a single transaction. A log without a station is rejected with
// domain.ErrMissingStation before anything is written.
func (s *Store) SaveLog(ctx context.Context, edition string, log domain.ParsedLog) (int, error) {
	logID := log.Station()
	if logID == "" {
		return 0, fmt.Errorf("save log: %w", domain.ErrMissingStation)
	}
	if err := s.ensureEdition(ctx, edition); err != nil {
		return 0, err
	}
	metaSQL := s.d.insert(s.d.table(edition, "metadata"), columnNames(metadataColumns))
	contactSQL := s.d.insert(s.d.table(edition, "contacts"), columnNames(contactColumns))

	inserted := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for k, v := range log.Metadata {
			if _, err := tx.ExecContext(ctx, metaSQL, logID, k, v); err != nil {
				return fmt.Errorf("insert metadata %s: %w", k, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, contactSQL)
		if err != nil {
			return fmt.Errorf("prepare contact insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range log.Contacts {
			res, err := stmt.ExecContext(ctx,
				c.ID, c.Frequency, c.Mode, c.Datetime, c.MyCall, c.MyRST,
				c.MyExch, c.Call, c.RST, c.Exch, c.Radio,
			)
			if err != nil {
				return fmt.Errorf("insert contact %s: %w", c.ID, err)
			}
			inserted += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("log saved", "edition", edition, "station", logID, "contacts", len(log.Contacts), "inserted", inserted)
	return inserted, nil
}

// SaveSpots stores normalized spots and returns how many were new.
func (s *Store) SaveSpots(ctx context.Context, spots []domain.Spot) (int, error) {
	if len(spots) == 0 {
		return 0, nil
	}
	if err := s.ensureSpots(ctx); err != nil {
		return 0, err
	}
	query := s.d.insert(s.d.table(spotNamespace, "spots"), columnNames(spotColumns))

	inserted := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare spot insert: %w", err)
		}
		defer stmt.Close()

		for _, sp := range spots {
			res, err := stmt.ExecContext(ctx,
				sp.ID, sp.Callsign, sp.Freq, sp.Band, sp.DX, sp.Mode,
				sp.DB, sp.Speed, nullable(sp.DeCont), nullable(sp.DxCont), sp.Datetime,
			)
			if err != nil {
				return fmt.Errorf("insert spot %s: %w", sp.ID, err)
			}
			inserted += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// StationCount is the number of stored contacts logged by one station.
type StationCount struct {
	Callsign string `json:"callsign"`
	Contacts int    `json:"contacts"`
}

// StationCounts lists contacts per station for an edition, busiest first.
func (s *Store) StationCounts(ctx context.Context, edition string) ([]StationCount, error) {
	if !editionRe.MatchString(edition) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEdition, edition)
	}
	exists, err := s.tableExists(ctx, edition, "contacts")
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEdition, edition)
	}

	q := fmt.Sprintf("SELECT %[1]s, COUNT(*) AS n FROM %[2]s GROUP BY %[1]s ORDER BY n DESC, %[1]s",
		s.d.quote("mycall"), s.d.table(edition, "contacts"))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query station counts: %w", err)
	}
	defer rows.Close()

	counts := []StationCount{}
	for rows.Next() {
		var c StationCount
		if err := rows.Scan(&c.Callsign, &c.Contacts); err != nil {
			return nil, fmt.Errorf("scan station count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Result is a generic query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Query runs an arbitrary read query. Byte slices are returned as strings.
func (s *Store) Query(ctx context.Context, query string, args ...any) (Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}
	res := Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("query scan: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

// Table returns the fully qualified, quoted name of a table so callers can
// build queries that work on every dialect.
func (s *Store) Table(namespace, name string) string {
	return s.d.table(namespace, name)
}

// SpotsTable is the qualified name of the spots table.
func (s *Store) SpotsTable() string {
	return s.d.table(spotNamespace, "spots")
}

func (s *Store) ensureEdition(ctx context.Context, edition string) error {
	if !editionRe.MatchString(edition) {
		return fmt.Errorf("%w: %q", ErrInvalidEdition, edition)
	}
	return s.ensureNamespace(ctx, edition, []string{
		s.d.createTable(s.d.table(edition, "metadata"), metadataColumns, "log_id", "key"),
		s.d.createTable(s.d.table(edition, "contacts"), contactColumns, "id"),
	})
}

func (s *Store) ensureSpots(ctx context.Context) error {
	return s.ensureNamespace(ctx, spotNamespace, []string{
		s.d.createTable(s.d.table(spotNamespace, "spots"), spotColumns, "id"),
	})
}

// ensureNamespace runs DDL once per namespace and process. DDL runs outside
// of data transactions because MySQL commits implicitly around it.
func (s *Store) ensureNamespace(ctx context.Context, namespace string, ddl []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[namespace] {
		return nil
	}
	if s.d.schemas {
		ddl = append([]string{"CREATE SCHEMA IF NOT EXISTS " + s.d.quote(namespace)}, ddl...)
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s tables: %w", namespace, err)
		}
	}
	s.created[namespace] = true
	return nil
}

func (s *Store) tableExists(ctx context.Context, namespace, name string) (bool, error) {
	q, args := s.d.tableExists(namespace, name)
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

func affected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
