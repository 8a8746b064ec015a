package pagination

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/tabulate/internal/scope"
)

func intPtr(n int) *int { return &n }

// =============================================================================
// ParseRequest Tests
// =============================================================================

func TestParseRequest(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name       string
		page       string
		perPage    string
		expected   Request
		wantOffset int
	}{
		{"defaults", "", "", Request{Page: 1, PerPage: 10}, 0},
		{"explicit", "3", "25", Request{Page: 3, PerPage: 25}, 50},
		{"per_page above max is clamped", "1", "500", Request{Page: 1, PerPage: 100}, 0},
		{"per_page at max", "2", "100", Request{Page: 2, PerPage: 100}, 100},
		{"per_page zero becomes one", "1", "0", Request{Page: 1, PerPage: 1}, 0},
		{"per_page negative becomes one", "4", "-5", Request{Page: 4, PerPage: 1}, 3},
		{"per_page garbage uses default", "1", "lots", Request{Page: 1, PerPage: 10}, 0},
		{"page zero becomes one", "0", "10", Request{Page: 1, PerPage: 10}, 0},
		{"negative page becomes one", "-3", "10", Request{Page: 1, PerPage: 10}, 0},
		{"garbage page becomes one", "last", "10", Request{Page: 1, PerPage: 10}, 0},
		{"whitespace is trimmed", " 2 ", " 20 ", Request{Page: 2, PerPage: 20}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseRequest(tt.page, tt.perPage, limits)
			assert.Equal(t, tt.expected, r)
			assert.Equal(t, tt.wantOffset, r.Offset())
			assert.Equal(t, r.PerPage, r.Limit())
		})
	}
}

func TestParseRequest_OffsetInvariant(t *testing.T) {
	limits := Limits{Default: 15, Max: 50}
	for page := -2; page <= 6; page++ {
		for _, perPage := range []string{"", "1", "7", "50", "51", "1000"} {
			r := ParseRequest(strconv.Itoa(page), perPage, limits)
			assert.GreaterOrEqual(t, r.Page, 1)
			assert.GreaterOrEqual(t, r.PerPage, 1)
			assert.LessOrEqual(t, r.PerPage, 50)
			assert.Equal(t, (r.Page-1)*r.PerPage, r.Offset())
		}
	}
}

func TestParseRequest_HugePage(t *testing.T) {
	tests := []struct {
		perPage  string
		wantPage int
	}{
		{"1", math.MaxInt},
		{"10", math.MaxInt/10 + 1},
		{"100", math.MaxInt/100 + 1},
	}

	for _, tt := range tests {
		t.Run("per_page "+tt.perPage, func(t *testing.T) {
			r := ParseRequest(strconv.Itoa(math.MaxInt), tt.perPage, DefaultLimits())

			assert.Equal(t, tt.wantPage, r.Page)
			assert.GreaterOrEqual(t, r.Offset(), 0)
			assert.Equal(t, (r.Page-1)*r.PerPage, r.Offset())

			res := Calculate(r, 250)
			require.NotNil(t, res.PrevPage)
			assert.Equal(t, r.Page-1, *res.PrevPage)
			assert.Nil(t, res.NextPage)
		})
	}
}

func TestLimits_Validate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
	assert.Error(t, Limits{Default: 0, Max: 10}.Validate())
	assert.Error(t, Limits{Default: 20, Max: 10}.Validate())
}

// =============================================================================
// Calculate Tests
// =============================================================================

func TestCalculate(t *testing.T) {
	tests := []struct {
		name     string
		request  Request
		total    int
		expected Result
	}{
		{
			name:     "empty collection",
			request:  Request{Page: 1, PerPage: 10},
			total:    0,
			expected: Result{TotalCount: 0, TotalPages: 0, Page: 1, PerPage: 10},
		},
		{
			name:     "single partial page",
			request:  Request{Page: 1, PerPage: 10},
			total:    3,
			expected: Result{TotalCount: 3, TotalPages: 1, Page: 1, PerPage: 10},
		},
		{
			name:     "first of many",
			request:  Request{Page: 1, PerPage: 10},
			total:    25,
			expected: Result{TotalCount: 25, TotalPages: 3, Page: 1, PerPage: 10, NextPage: intPtr(2)},
		},
		{
			name:    "middle page",
			request: Request{Page: 2, PerPage: 10},
			total:   25,
			expected: Result{
				TotalCount: 25, TotalPages: 3, Page: 2, PerPage: 10,
				NextPage: intPtr(3), PrevPage: intPtr(1),
			},
		},
		{
			name:     "last page",
			request:  Request{Page: 3, PerPage: 10},
			total:    30,
			expected: Result{TotalCount: 30, TotalPages: 3, Page: 3, PerPage: 10, PrevPage: intPtr(2)},
		},
		{
			name:     "past the end",
			request:  Request{Page: 9, PerPage: 10},
			total:    30,
			expected: Result{TotalCount: 30, TotalPages: 3, Page: 9, PerPage: 10, PrevPage: intPtr(8)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Calculate(tt.request, tt.total))
		})
	}
}

// =============================================================================
// Paginate Tests
// =============================================================================

func TestPaginate(t *testing.T) {
	base := scope.New("public", "users").Limit(3)

	t.Run("counts the unpaged scope and bounds the result", func(t *testing.T) {
		var counted string
		counter := CounterFunc(func(_ context.Context, s scope.Scope) (int, error) {
			counted, _ = s.BuildSelect()
			return 42, nil
		})

		paged, res, err := Paginate(context.Background(), counter, base, Request{Page: 2, PerPage: 10})
		require.NoError(t, err)

		assert.Equal(t, `SELECT "users".* FROM "public"."users"`, counted)
		sql, _ := paged.BuildSelect()
		assert.Equal(t, `SELECT "users".* FROM "public"."users" LIMIT 10 OFFSET 10`, sql)
		assert.Equal(t, 42, res.TotalCount)
		assert.Equal(t, 5, res.TotalPages)
	})

	t.Run("count failure", func(t *testing.T) {
		boom := errors.New("boom")
		counter := CounterFunc(func(context.Context, scope.Scope) (int, error) { return 0, boom })

		_, _, err := Paginate(context.Background(), counter, base, Request{Page: 1, PerPage: 10})
		assert.ErrorIs(t, err, boom)
	})
}

// =============================================================================
// Series Tests
// =============================================================================

func pages(items []SeriesItem) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		if it.Gap {
			out = append(out, 0)
			continue
		}
		out = append(out, it.Page)
	}
	return out
}

func TestSeries(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		total    int
		expected []int
	}{
		{"no pages", 1, 0, []int{}},
		{"single page", 1, 1, []int{1}},
		{"short list", 3, 5, []int{1, 2, 3, 4, 5}},
		{"middle of long list", 9, 36, []int{1, 0, 7, 8, 9, 10, 11, 0, 36}},
		{"start of long list", 1, 36, []int{1, 2, 3, 0, 36}},
		{"near start", 4, 36, []int{1, 2, 3, 4, 5, 6, 0, 36}},
		{"end of long list", 36, 36, []int{1, 0, 34, 35, 36}},
		{"page beyond total", 50, 20, []int{1, 0, 18, 19, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Series(tt.page, tt.total)
			assert.Equal(t, tt.expected, pages(items))

			for _, it := range items {
				if it.Gap {
					continue
				}
				assert.GreaterOrEqual(t, it.Page, 1)
				assert.LessOrEqual(t, it.Page, tt.total)
			}
		})
	}

	t.Run("marks the current page", func(t *testing.T) {
		items := Series(2, 3)
		assert.Equal(t, []SeriesItem{{Page: 1}, {Page: 2, Current: true}, {Page: 3}}, items)
	})

	t.Run("result helper", func(t *testing.T) {
		res := Calculate(Request{Page: 1, PerPage: 10}, 25)
		assert.Len(t, res.Series(), 3)
	})
}
