// Package pagination turns page parameters into LIMIT/OFFSET bounds and derives
// count-based page metadata.
package pagination

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/tabulate/internal/scope"
)

const (
	// DefaultPerPage is used when per_page is absent or unparseable
	DefaultPerPage = 10
	// MaxPerPage caps per_page; larger requests are clamped, not rejected
	MaxPerPage = 100
)

// Limits bounds the page size.
type Limits struct {
	Default int `mapstructure:"default_per_page" yaml:"default_per_page"`
	Max     int `mapstructure:"max_per_page" yaml:"max_per_page"`
}

// DefaultLimits returns the stock page size bounds.
func DefaultLimits() Limits {
	return Limits{Default: DefaultPerPage, Max: MaxPerPage}
}

// Validate checks that the limits are usable.
func (l Limits) Validate() error {
	if l.Default < 1 {
		return fmt.Errorf("default per page must be at least 1, got %d", l.Default)
	}
	if l.Max < l.Default {
		return fmt.Errorf("max per page (%d) must not be below default per page (%d)", l.Max, l.Default)
	}
	return nil
}

// Request is a validated page request.
type Request struct {
	Page    int
	PerPage int
}

// ParseRequest reads raw page and per_page values. Pages below 1, blank or not
// numeric, become 1. per_page falls back to the default when blank or not
// numeric and is clamped to [1, limits.Max]. page is capped so the offset
// fits in an int.
func ParseRequest(rawPage, rawPerPage string, limits Limits) Request {
	page := 1
	if n, err := strconv.Atoi(strings.TrimSpace(rawPage)); err == nil && n > 1 {
		page = n
	}

	perPage := limits.Default
	if n, err := strconv.Atoi(strings.TrimSpace(rawPerPage)); err == nil {
		perPage = n
	}
	switch {
	case perPage > limits.Max:
		log.Debug().Int("requested", perPage).Int("max", limits.Max).Msg("Clamping per_page to maximum")
		perPage = limits.Max
	case perPage < 1:
		perPage = 1
	}

	if page-1 > math.MaxInt/perPage {
		maxPage := math.MaxInt/perPage + 1
		log.Debug().Int("requested", page).Int("max", maxPage).Msg("Clamping page to maximum")
		page = maxPage
	}

	return Request{Page: page, PerPage: perPage}
}

// Offset is the number of rows skipped before the page.
func (r Request) Offset() int {
	return (r.Page - 1) * r.PerPage
}

// Limit is the page size.
func (r Request) Limit() int {
	return r.PerPage
}

// Apply bounds s to the requested page.
func (r Request) Apply(s scope.Scope) scope.Scope {
	return s.Limit(r.Limit()).Offset(r.Offset())
}

// Result is the page metadata reported to the caller.
type Result struct {
	TotalCount int  `json:"total_count"`
	TotalPages int  `json:"total_pages"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	NextPage   *int `json:"next_page"`
	PrevPage   *int `json:"prev_page"`
}

// Calculate derives page metadata from the request and the unpaged row count.
func Calculate(r Request, totalCount int) Result {
	res := Result{
		TotalCount: totalCount,
		Page:       r.Page,
		PerPage:    r.PerPage,
	}
	if r.PerPage > 0 {
		res.TotalPages = (totalCount + r.PerPage - 1) / r.PerPage
	}
	if r.Page < res.TotalPages {
		next := r.Page + 1
		res.NextPage = &next
	}
	if r.Page > 1 {
		prev := r.Page - 1
		res.PrevPage = &prev
	}
	return res
}

// Counter reports how many rows a scope yields without its LIMIT and OFFSET.
type Counter interface {
	Count(ctx context.Context, s scope.Scope) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context, s scope.Scope) (int, error)

// Count implements Counter.
func (f CounterFunc) Count(ctx context.Context, s scope.Scope) (int, error) {
	return f(ctx, s)
}

// Paginate counts the unpaged scope and returns it bounded to the requested page.
func Paginate(ctx context.Context, counter Counter, s scope.Scope, r Request) (scope.Scope, Result, error) {
	total, err := counter.Count(ctx, s.Unpaged())
	if err != nil {
		return s, Result{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return r.Apply(s), Calculate(r, total), nil
}
