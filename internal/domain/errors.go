package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord marks a contact line that breaks the Cabrillo QSO
	// token or timestamp contract. It aborts the parse of the whole log.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrSchemaViolation marks RBN input that is missing target columns or
	// holds a value that cannot be coerced to its declared type.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrResolutionMiss is reported by continent resolvers that have no entry
	// for a callsign. It never escapes NormalizeSpots.
	ErrResolutionMiss = errors.New("continent resolution miss")

	// ErrNotFound is wrapped by collaborators whose remote resource does not
	// exist. Retrying such a fetch is pointless.
	ErrNotFound = errors.New("not found")

	// ErrMissingStation marks a log with neither a CALLSIGN header nor any
	// contact to take the station from. Its metadata has no key to live under.
	ErrMissingStation = errors.New("log has no station callsign")
)

// MalformedRecordError identifies the offending Cabrillo line.
type MalformedRecordError struct {
	Line   int // 1-based line number within the log
	Text   string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed record on line %d: %s: %q", e.Line, e.Reason, e.Text)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// SchemaViolationError identifies the offending RBN row and column.
// Row is -1 when the table header itself is at fault.
type SchemaViolationError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	var msg string
	if e.Row < 0 {
		msg = fmt.Sprintf("schema violation: missing column %q", e.Column)
	} else {
		msg = fmt.Sprintf("schema violation in row %d column %q: %q", e.Row, e.Column, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

func (e *SchemaViolationError) Unwrap() error { return e.Err }
