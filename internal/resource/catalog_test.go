package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/tabulate"
)

const catalogYAML = `
resources:
  users:
    schema: public
    joins:
      - JOIN "public"."accounts" ON "accounts"."id" = "users"."account_id"
    tabulate_by:
      - name: accounts.name
        alias: account
    filters:
      - name: email
        kind: string
      - name: age
        kind: integer
        strict: true
      - name: created_at
        kind: date_time
    sorts:
      - name: created_at
    default_sort:
      key: created_at
      direction: asc
    per_page:
      max: 50
    search:
      mode: ilike
      columns: [email, accounts.name]
  order_totals:
    schema: public
    table: orders
    select_expr:
      - '"orders"."customer_id"'
      - 'SUM("orders"."total") AS total'
    group_by: [customer_id]
    search:
      scope: fts
      param: term
      mode: fts
      config: english
      columns: [notes]
`

func defaults() Defaults {
	return Defaults{Limits: pagination.DefaultLimits(), SearchParam: "q"}
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(catalogYAML), defaults())
	require.NoError(t, err)
	assert.Equal(t, []string{"order_totals", "users"}, c.Names())

	t.Run("users", func(t *testing.T) {
		r, ok := c.Get("users")
		require.True(t, ok)

		assert.Len(t, r.Config.Filters(), 4)
		assert.Equal(t, "account", r.Config.Filters()[0].ParameterName())
		assert.Equal(t, query.KindDateTime, r.Config.Filters()[3].Kind())
		assert.True(t, r.Config.Filters()[2].IsStrict())
		assert.Equal(t, []string{"account", "created_at"}, r.Config.SortKeys())
		assert.Equal(t, query.Asc, r.Config.DefaultSort().Direction)
		assert.Equal(t, pagination.Limits{Default: 10, Max: 50}, r.Config.Limits())
		assert.Equal(t, tabulate.SearchConfig{Scope: "search", Param: "q"}, r.Config.Search())
		assert.True(t, r.Searches.Has("search"))

		sql, _ := r.Scope.BuildSelect()
		assert.Equal(t,
			`SELECT "users".* FROM "public"."users" JOIN "public"."accounts" ON "accounts"."id" = "users"."account_id"`,
			sql)
	})

	t.Run("grouped resource", func(t *testing.T) {
		r, ok := c.Get("order_totals")
		require.True(t, ok)
		assert.True(t, r.Scope.IsGrouped())
		assert.Equal(t, tabulate.SearchConfig{Scope: "fts", Param: "term"}, r.Config.Search())
		assert.True(t, r.Searches.Has("fts"))

		sql, _ := r.Scope.BuildCount()
		assert.Equal(t,
			`SELECT COUNT(*) OVER () FROM "public"."orders" GROUP BY "orders"."customer_id" LIMIT 1`,
			sql)
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, ok := c.Get("missing")
		assert.False(t, ok)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "resources: [\n"},
		{"unknown kind", "resources:\n  users:\n    filters:\n      - name: id\n        kind: uuid\n"},
		{"bad direction", "resources:\n  users:\n    default_sort:\n      key: id\n      direction: up\n"},
		{"duplicate filter", "resources:\n  users:\n    filters:\n      - name: a\n      - name: a\n"},
		{"search without columns", "resources:\n  users:\n    search:\n      mode: ilike\n"},
		{"unknown search mode", "resources:\n  users:\n    search:\n      mode: regex\n      columns: [a]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), defaults())
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	c, err := Load(path, defaults())
	require.NoError(t, err)
	assert.Len(t, c.Names(), 2)

	_, err = Load(filepath.Join(dir, "missing.yaml"), defaults())
	assert.Error(t, err)
}

func TestParse_TableDefaultsToName(t *testing.T) {
	c, err := Parse([]byte("resources:\n  posts: {}\n"), Defaults{})
	require.NoError(t, err)

	r, ok := c.Get("posts")
	require.True(t, ok)
	assert.Equal(t, "posts", r.Scope.Table())
	assert.Equal(t, pagination.DefaultLimits(), r.Config.Limits())
	assert.Equal(t, "q", r.Config.Search().Param)
}
