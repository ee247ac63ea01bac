package store

import (
	"fmt"
	"strings"
)

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name    string
	driver  string // database/sql driver name
	schemas bool   // namespaces map to schemas rather than table prefixes

	keyType   string
	textType  string
	floatType string
	timeType  string

	insertVerb     string // "INSERT INTO" or "INSERT IGNORE INTO"
	conflictClause string // appended to inserts, "" when insertVerb ignores conflicts

	dollarParams bool
	backticks    bool
	singleConn   bool
}

var dialects = map[string]dialect{
	"sqlite": {
		name:           "sqlite",
		driver:         "sqlite",
		keyType:        "TEXT",
		textType:       "TEXT",
		floatType:      "REAL",
		timeType:       "TIMESTAMP",
		insertVerb:     "INSERT INTO",
		conflictClause: " ON CONFLICT DO NOTHING",
		singleConn:     true,
	},
	"duckdb": {
		name:           "duckdb",
		driver:         "duckdb",
		schemas:        true,
		keyType:        "VARCHAR",
		textType:       "VARCHAR",
		floatType:      "DOUBLE",
		timeType:       "TIMESTAMP",
		insertVerb:     "INSERT INTO",
		conflictClause: " ON CONFLICT DO NOTHING",
	},
	"postgres": {
		name:           "postgres",
		driver:         "pgx",
		schemas:        true,
		keyType:        "TEXT",
		textType:       "TEXT",
		floatType:      "DOUBLE PRECISION",
		timeType:       "TIMESTAMPTZ",
		insertVerb:     "INSERT INTO",
		conflictClause: " ON CONFLICT DO NOTHING",
		dollarParams:   true,
	},
	"mysql": {
		name:       "mysql",
		driver:     "mysql",
		schemas:    true,
		keyType:    "VARCHAR(191)",
		textType:   "TEXT",
		floatType:  "DOUBLE",
		timeType:   "DATETIME",
		insertVerb: "INSERT IGNORE INTO",
		backticks:  true,
	},
}

// lookupDialect resolves a STORE_DRIVER value. "pgx" is accepted as an
// alias for postgres.
func lookupDialect(name string) (dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "pgx" || name == "postgresql" {
		name = "postgres"
	}
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported store driver %q", name)
	}
	return d, nil
}

func (d dialect) quote(ident string) string {
	if d.backticks {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

func (d dialect) param(n int) string {
	if d.dollarParams {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// table names a table inside a namespace: "cw2024"."contacts" where
// schemas exist, "cw2024_contacts" otherwise.
func (d dialect) table(namespace, name string) string {
	if d.schemas {
		return d.quote(namespace) + "." + d.quote(name)
	}
	return d.quote(namespace + "_" + name)
}

func (d dialect) insert(table string, cols []string) string {
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.quote(c)
		params[i] = d.param(i + 1)
	}
	return fmt.Sprintf("%s %s (%s) VALUES (%s)%s",
		d.insertVerb, table, strings.Join(quoted, ", "), strings.Join(params, ", "), d.conflictClause)
}

// tableExists returns a query counting tables called name in namespace.
func (d dialect) tableExists(namespace, name string) (string, []any) {
	if !d.schemas {
		return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", []any{namespace + "_" + name}
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = %s AND table_name = %s",
		d.param(1), d.param(2)), []any{namespace, name}
}

type column struct {
	name string
	typ  func(dialect) string
}

func keyCol(d dialect) string   { return d.keyType }
func textCol(d dialect) string  { return d.textType }
func floatCol(d dialect) string { return d.floatType }
func timeCol(d dialect) string  { return d.timeType }
func intCol(dialect) string     { return "INTEGER" }

var (
	contactColumns = []column{
		{"id", keyCol},
		{"frequency", intCol},
		{"mode", textCol},
		{"datetime", timeCol},
		{"mycall", textCol},
		{"myrst", intCol},
		{"myexch", textCol},
		{"call", textCol},
		{"rst", textCol},
		{"exch", textCol},
		{"radio", textCol},
	}

	metadataColumns = []column{
		{"log_id", keyCol},
		{"key", keyCol},
		{"value", textCol},
	}

	spotColumns = []column{
		{"id", keyCol},
		{"callsign", textCol},
		{"freq", floatCol},
		{"band", intCol},
		{"dx", textCol},
		{"mode", textCol},
		{"db", intCol},
		{"speed", intCol},
		{"de_cont", textCol},
		{"dx_cont", textCol},
		{"datetime", timeCol},
	}
)

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func (d dialect) createTable(table string, cols []column, primaryKey ...string) string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, d.quote(c.name)+" "+c.typ(d))
	}
	pk := make([]string, len(primaryKey))
	for i, k := range primaryKey {
		pk[i] = d.quote(k)
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))
}
