package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgCode(t *testing.T) {
	t.Run("returns code of pg error", func(t *testing.T) {
		assert.Equal(t, "42703", PgCode(&pgconn.PgError{Code: ErrCodeUndefinedColumn}))
	})

	t.Run("unwraps wrapped pg error", func(t *testing.T) {
		err := fmt.Errorf("select on users failed: %w", &pgconn.PgError{Code: ErrCodeInvalidTextRepresentation})
		assert.Equal(t, "22P02", PgCode(err))
	})

	t.Run("returns empty for non-pg error", func(t *testing.T) {
		assert.Empty(t, PgCode(errors.New("generic error")))
	})

	t.Run("returns empty for nil error", func(t *testing.T) {
		assert.Empty(t, PgCode(nil))
	})
}

func TestIsInvalidInput(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{ErrCodeUndefinedColumn, true},
		{ErrCodeInvalidTextRepresentation, true},
		{ErrCodeDatetimeFieldOverflow, true},
		{ErrCodeNumericValueOutOfRange, true},
		{ErrCodeInvalidRowCountInLimit, true},
		{ErrCodeInvalidRowCountInOffset, true},
		{ErrCodeUndefinedTable, false},
		{ErrCodeQueryCanceled, false},
		{"08006", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInvalidInput(&pgconn.PgError{Code: tt.code}))
		})
	}

	assert.False(t, IsInvalidInput(errors.New("generic error")))
}

func TestIsUndefinedColumn(t *testing.T) {
	assert.True(t, IsUndefinedColumn(&pgconn.PgError{Code: ErrCodeUndefinedColumn}))
	assert.False(t, IsUndefinedColumn(&pgconn.PgError{Code: ErrCodeUndefinedTable}))
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(&pgconn.PgError{Code: ErrCodeQueryCanceled}))
	assert.False(t, IsCanceled(nil))
}
