package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes raised by bad listing input
const (
	// ErrCodeUndefinedColumn is raised when a filter or sort names a missing column
	ErrCodeUndefinedColumn = "42703"
	// ErrCodeUndefinedTable is raised when a catalogue entry names a missing table
	ErrCodeUndefinedTable = "42P01"
	// ErrCodeInvalidTextRepresentation is raised when a lenient value does not fit its column
	ErrCodeInvalidTextRepresentation = "22P02"
	// ErrCodeDatetimeFieldOverflow is raised for out of range dates
	ErrCodeDatetimeFieldOverflow = "22008"
	// ErrCodeNumericValueOutOfRange is raised for out of range numbers
	ErrCodeNumericValueOutOfRange = "22003"
	// ErrCodeInvalidRowCountInLimit is raised for a negative LIMIT
	ErrCodeInvalidRowCountInLimit = "2201W"
	// ErrCodeInvalidRowCountInOffset is raised for a negative OFFSET
	ErrCodeInvalidRowCountInOffset = "2201X"
	// ErrCodeQueryCanceled is raised when statement_timeout or cancellation fires
	ErrCodeQueryCanceled = "57014"
)

// PgCode returns the SQLSTATE of a PostgreSQL error, or "".
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUndefinedColumn checks if an error is an undefined column error
func IsUndefinedColumn(err error) bool {
	return PgCode(err) == ErrCodeUndefinedColumn
}

// IsInvalidInput reports whether the database rejected a value carried in the
// request. Hosts answer these with 400 rather than 500.
func IsInvalidInput(err error) bool {
	switch PgCode(err) {
	case ErrCodeUndefinedColumn,
		ErrCodeInvalidTextRepresentation,
		ErrCodeDatetimeFieldOverflow,
		ErrCodeNumericValueOutOfRange,
		ErrCodeInvalidRowCountInLimit,
		ErrCodeInvalidRowCountInOffset:
		return true
	}
	return false
}

// IsCanceled reports whether the query was cancelled by a timeout.
func IsCanceled(err error) bool {
	return PgCode(err) == ErrCodeQueryCanceled
}
