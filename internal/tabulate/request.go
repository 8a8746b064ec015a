package tabulate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxbase-eu/tabulate/internal/builder"
	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/scope"
)

// Request carries one request's parameters through the pipeline and remembers
// what each stage applied.
type Request struct {
	p      *Pipeline
	params query.Params

	filters []query.Condition
	sorts   []query.SortCondition
	term    string
	page    *pagination.Result
}

var _ Tabulator = (*Request)(nil)

// Filter resolves the declared filters and conjoins them onto s.
func (r *Request) Filter(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	out := s
	err := r.p.stage(ctx, StageFilter, func(ctx context.Context) error {
		conditions, err := query.Resolve(r.p.cfg.filters, r.params)
		if err != nil {
			return err
		}
		filtered, err := r.p.filterer.Apply(s, conditions)
		if err != nil {
			return err
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("tabulate.filters", len(conditions)))
		r.filters = conditions
		out = filtered
		return nil
	})
	return out, err
}

// Search applies the configured search scope when the term is present.
func (r *Request) Search(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	out := s
	err := r.p.stage(ctx, StageSearch, func(ctx context.Context) error {
		term, _ := r.params.First(r.p.cfg.search.Param)
		if term == "" || r.p.searcher == nil {
			return nil
		}
		searched, err := r.p.searcher.Search(s, r.p.cfg.search.Scope, term)
		if err != nil {
			return err
		}
		r.term = term
		out = searched
		return nil
	})
	return out, err
}

// Sort replaces the ordering of s with the requested (or default) sorts.
func (r *Request) Sort(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	out := s
	err := r.p.stage(ctx, StageSort, func(ctx context.Context) error {
		sorts, err := r.resolveSorts()
		if err != nil {
			return err
		}
		r.sorts = sorts
		out = builder.Order(s, sorts)
		return nil
	})
	return out, err
}

// Paginate counts the unpaged scope and bounds s to the requested page.
func (r *Request) Paginate(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	out := s
	err := r.p.stage(ctx, StagePaginate, func(ctx context.Context) error {
		if r.p.counter == nil {
			return fmt.Errorf("no counter configured: %w", ErrPaginationNotPerformed)
		}
		page, _ := r.params.First(ParamPage)
		perPage, _ := r.params.First(ParamPerPage)
		req := pagination.ParseRequest(page, perPage, r.p.cfg.limits)

		paged, res, err := pagination.Paginate(ctx, r.p.counter, s, req)
		if err != nil {
			return err
		}
		r.page = &res
		out = paged

		if r.p.recorder != nil {
			r.p.recorder.RecordPage(res.PerPage, res.TotalCount)
		}
		return nil
	})
	return out, err
}

// Tabulate runs filter, search, sort and paginate in that order.
func (r *Request) Tabulate(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	stages := []func(context.Context, scope.Scope) (scope.Scope, error){
		r.Filter, r.Search, r.Sort, r.Paginate,
	}
	var err error
	for _, stage := range stages {
		if s, err = stage(ctx, s); err != nil {
			return s, err
		}
	}

	if r.p.recorder != nil {
		r.p.recorder.RecordConditions(len(r.filters), len(r.sorts))
	}
	log.Debug().
		Int("filters", len(r.filters)).
		Int("sorts", len(r.sorts)).
		Bool("search", r.term != "").
		Int("page", r.page.Page).
		Int("total", r.page.TotalCount).
		Msg("Tabulated scope")
	return s, nil
}

// Filters returns the conditions applied by Filter.
func (r *Request) Filters() []query.Condition {
	return append([]query.Condition(nil), r.filters...)
}

// Sorts returns the sort conditions applied by Sort.
func (r *Request) Sorts() []query.SortCondition {
	return append([]query.SortCondition(nil), r.sorts...)
}

// SearchTerm returns the trimmed search term, or "" when none was applied.
func (r *Request) SearchTerm() string {
	return r.term
}

// PageInfo returns the pagination metadata computed by Paginate.
func (r *Request) PageInfo() (pagination.Result, error) {
	if r.page == nil {
		return pagination.Result{}, ErrPaginationNotPerformed
	}
	return *r.page, nil
}

// resolveSorts zips repeated sort_key and sort_direction values.
func (r *Request) resolveSorts() ([]query.SortCondition, error) {
	cfg := r.p.cfg
	keys := r.raw(ParamSortKey)
	dirs := r.raw(ParamSortDirection)

	var sorts []query.SortCondition
	for i, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		dir := cfg.defaultSort.Direction
		if i < len(dirs) && strings.TrimSpace(dirs[i]) != "" {
			d, err := query.ParseDirection(dirs[i])
			if err != nil {
				return nil, err
			}
			dir = d
		}

		if def, ok := cfg.sortFor(key); ok {
			sorts = append(sorts, def.Condition(dir))
			continue
		}
		if key == cfg.defaultSort.Parameter {
			c := cfg.defaultSort
			c.Direction = dir
			sorts = append(sorts, c)
			continue
		}
		return nil, &query.InvalidSortKeyError{Key: key, Allowed: cfg.SortKeys()}
	}

	if len(sorts) == 0 {
		if len(dirs) > 0 && strings.TrimSpace(dirs[0]) != "" {
			d, err := query.ParseDirection(dirs[0])
			if err != nil {
				return nil, err
			}
			c := cfg.defaultSort
			c.Direction = d
			return []query.SortCondition{c}, nil
		}
		return []query.SortCondition{cfg.defaultSort}, nil
	}
	return sorts, nil
}

func (r *Request) raw(key string) []string {
	return append(append([]string(nil), r.params[key]...), r.params[key+"[]"]...)
}
