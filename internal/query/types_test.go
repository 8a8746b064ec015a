package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Relation Constants Tests
// =============================================================================

func TestRelation_Constants(t *testing.T) {
	t.Run("comparison relations have expected values", func(t *testing.T) {
		assert.Equal(t, Relation("eq"), RelEqual)
		assert.Equal(t, Relation("neq"), RelNotEqual)
		assert.Equal(t, Relation("gt"), RelGreaterThan)
		assert.Equal(t, Relation("gte"), RelGreaterOrEqual)
		assert.Equal(t, Relation("lt"), RelLessThan)
		assert.Equal(t, Relation("lte"), RelLessOrEqual)
	})

	t.Run("set relations have expected values", func(t *testing.T) {
		assert.Equal(t, Relation("between"), RelBetween)
		assert.Equal(t, Relation("in"), RelIn)
		assert.Equal(t, Relation("not_in"), RelNotIn)
	})

	t.Run("pattern relations have expected values", func(t *testing.T) {
		assert.Equal(t, Relation("starts_with"), RelStartsWith)
		assert.Equal(t, Relation("ends_with"), RelEndsWith)
		assert.Equal(t, Relation("contains"), RelContains)
	})

	t.Run("null relations have expected values", func(t *testing.T) {
		assert.Equal(t, Relation("is_null"), RelIsNull)
		assert.Equal(t, Relation("is_not_null"), RelIsNotNull)
	})

	t.Run("baseline set holds every relation once", func(t *testing.T) {
		seen := make(map[Relation]bool)
		for _, r := range Relations {
			assert.False(t, seen[r], "duplicate relation %s", r)
			seen[r] = true
		}
		assert.Len(t, Relations, 14)
	})
}

func TestRelation_IsNullCheck(t *testing.T) {
	for _, r := range Relations {
		t.Run(string(r), func(t *testing.T) {
			want := r == RelIsNull || r == RelIsNotNull
			assert.Equal(t, want, r.IsNullCheck())
		})
	}
}

// =============================================================================
// Kind Tests
// =============================================================================

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"", KindUntyped},
		{"string", KindString},
		{"integer", KindInteger},
		{"int", KindInteger},
		{"decimal", KindDecimal},
		{"float", KindDecimal},
		{"boolean", KindBoolean},
		{"date", KindDate},
		{"datetime", KindDateTime},
		{"date_time", KindDateTime},
		{" Time ", KindTime},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			k, err := ParseKind(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, k)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ParseKind("uuid")
		assert.Error(t, err)
	})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "untyped", KindUntyped.String())
	assert.Equal(t, "integer", KindInteger.String())
	assert.Equal(t, "datetime", KindDateTime.String())
}
