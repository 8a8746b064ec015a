package output

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testDoc struct {
	Select Statement `json:"select" yaml:"select"`
	Rows   [][]string
}

func (d testDoc) Statements() []Statement { return []Statement{d.Select} }

func (d testDoc) Tables() []Table {
	return []Table{{Title: "Filters", Headers: []string{"Field", "Relation"}, Rows: d.Rows}}
}

func sampleDoc() testDoc {
	return testDoc{
		Select: Statement{
			Label: "select",
			SQL:   `SELECT "users".* FROM "public"."users" WHERE "users"."age" > $1`,
			Args:  []any{int64(30)},
		},
		Rows: [][]string{{"age", "gt"}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid output format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Print
// =============================================================================

func TestFormatter_PrintTableFormat(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatTable, false, &buf)
	require.NoError(t, f.Print(sampleDoc()))

	out := buf.String()
	assert.Contains(t, out, "-- select\n")
	assert.Contains(t, out, `WHERE "users"."age" > $1;`)
	assert.Contains(t, out, "--   $1 = 30")
	assert.Contains(t, out, "Filters:")
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "age")
	assert.True(t, strings.Index(out, "SELECT") < strings.Index(out, "Filters:"))
}

func TestFormatter_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatTable, true, &buf)
	require.NoError(t, f.PrintTable(Table{Headers: []string{"Field"}, Rows: [][]string{{"age"}}}))

	assert.NotContains(t, buf.String(), "FIELD")
	assert.Contains(t, buf.String(), "age")
}

func TestFormatter_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatTable, false, &buf)
	require.NoError(t, f.PrintTable(Table{Title: "Sorts", Headers: []string{"Key"}}))
	assert.Empty(t, buf.String())
}

func TestFormatter_PrintJSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatJSON, false, &buf)
	require.NoError(t, f.Print(sampleDoc()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	sel := decoded["select"].(map[string]any)
	assert.Contains(t, sel["sql"], "SELECT")
	assert.Equal(t, []any{float64(30)}, sel["args"])
	assert.NotContains(t, sel, "Label")
}

func TestFormatter_PrintYAML(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatYAML, false, &buf)
	require.NoError(t, f.Print(map[string]int{"total": 3}))

	var decoded map[string]int
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded["total"])
}

func TestFormatter_TableAsStructured(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatJSON, false, &buf)
	require.NoError(t, f.PrintTable(Table{
		Headers: []string{"key", "direction"},
		Rows:    [][]string{{"name", "asc"}, {"id", "desc"}},
	}))

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []map[string]string{
		{"key": "name", "direction": "asc"},
		{"key": "id", "direction": "desc"},
	}, decoded)
}

func TestFormatter_NonDocumentFallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatTable, false, &buf)
	require.NoError(t, f.Print([]string{"orders", "users"}))
	assert.Equal(t, "- orders\n- users\n", buf.String())
}

// =============================================================================
// FormatArg
// =============================================================================

func TestFormatArg(t *testing.T) {
	tests := []struct {
		name string
		arg  any
		want string
	}{
		{"nil", nil, "NULL"},
		{"string", "bob", "'bob'"},
		{"quote", "o'brien", "'o''brien'"},
		{"integer", int64(42), "42"},
		{"bool", true, "true"},
		{"time", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "'2024-01-02 00:00:00 +0000 UTC'"},
		{"list", []any{int64(1), "a"}, "{1, 'a'}"},
		{"numeric", pgtype.Numeric{Int: big.NewInt(42), Valid: true}, "'42'"},
		{"null numeric", pgtype.Numeric{}, "NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatArg(tt.arg))
		})
	}
}
