// Package tabulate composes filtering, searching, sorting and pagination over a
// scope in that fixed order and reports what was applied.
package tabulate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/search"
)

// Request parameter names
const (
	ParamSortKey       = "sort_key"
	ParamSortDirection = "sort_direction"
	ParamPage          = "page"
	ParamPerPage       = "per_page"
	DefaultSearchParam = "q"
	DefaultSortKey     = "id"
)

// SearchConfig names the search scope and the parameter carrying the term.
type SearchConfig struct {
	Scope string `json:"scope"`
	Param string `json:"param"`
}

// Config is the immutable declaration of what a listing accepts.
type Config struct {
	filters     []query.FilterDefinition
	sorts       []query.SortDefinition
	defaultSort query.SortCondition
	limits      pagination.Limits
	search      SearchConfig
}

// Filters returns the filter definitions in declaration order.
func (c Config) Filters() []query.FilterDefinition {
	return append([]query.FilterDefinition(nil), c.filters...)
}

// Sorts returns the sort definitions in declaration order.
func (c Config) Sorts() []query.SortDefinition {
	return append([]query.SortDefinition(nil), c.sorts...)
}

// DefaultSort returns the sort applied when no sort_key is given.
func (c Config) DefaultSort() query.SortCondition { return c.defaultSort }

// Limits returns the page size bounds.
func (c Config) Limits() pagination.Limits { return c.limits }

// Search returns the search settings.
func (c Config) Search() SearchConfig { return c.search }

// SortKeys lists the accepted sort_key values: declared parameter names plus the default key.
func (c Config) SortKeys() []string {
	keys := make([]string, 0, len(c.sorts)+1)
	seen := make(map[string]bool)
	for _, s := range c.sorts {
		if !seen[s.ParameterName()] {
			keys = append(keys, s.ParameterName())
			seen[s.ParameterName()] = true
		}
	}
	if !seen[c.defaultSort.Parameter] {
		keys = append(keys, c.defaultSort.Parameter)
	}
	return keys
}

// sortFor resolves a sort_key value.
func (c Config) sortFor(key string) (query.SortDefinition, bool) {
	for _, s := range c.sorts {
		if s.ParameterName() == key {
			return s, true
		}
	}
	return query.SortDefinition{}, false
}

// Builder assembles a Config. Errors are collected and reported by Build.
type Builder struct {
	filters          []query.FilterDefinition
	sorts            []query.SortDefinition
	defaultKey       string
	defaultDirection string
	limits           pagination.Limits
	search           SearchConfig
	errs             []error
}

// NewBuilder starts a Config with the stock defaults: sort by id desc, 10 rows per
// page up to 100, search scope "search" read from "q".
func NewBuilder() *Builder {
	return &Builder{
		defaultKey:       DefaultSortKey,
		defaultDirection: string(query.Desc),
		limits:           pagination.DefaultLimits(),
		search:           SearchConfig{Scope: search.DefaultScope, Param: DefaultSearchParam},
	}
}

// Filter declares a filter.
func (b *Builder) Filter(name string, opts ...query.FilterOption) *Builder {
	f, err := query.NewFilter(name, opts...)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.filters = append(b.filters, f)
	return b
}

// Sort declares a sort key.
func (b *Builder) Sort(name string, opts ...query.SortOption) *Builder {
	s, err := query.NewSort(name, opts...)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.sorts = append(b.sorts, s)
	return b
}

// TabulateBy declares a field as both filter and sort key under the same parameter name.
func (b *Builder) TabulateBy(name string, opts ...query.FilterOption) *Builder {
	f, err := query.NewFilter(name, opts...)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.filters = append(b.filters, f)
	return b.Sort(f.Name(), query.WithSortAlias(f.Alias()))
}

// DefaultSort sets the sort applied when the request names none.
func (b *Builder) DefaultSort(key, direction string) *Builder {
	b.defaultKey = strings.TrimSpace(key)
	b.defaultDirection = direction
	return b
}

// PerPage sets the default and maximum page size.
func (b *Builder) PerPage(def, max int) *Builder {
	b.limits = pagination.Limits{Default: def, Max: max}
	return b
}

// SearchWith names the search scope and the request parameter holding the term.
func (b *Builder) SearchWith(scopeName, param string) *Builder {
	b.search = SearchConfig{Scope: strings.TrimSpace(scopeName), Param: strings.TrimSpace(param)}
	return b
}

// Build validates the declarations and returns the immutable Config.
func (b *Builder) Build() (Config, error) {
	errs := append([]error(nil), b.errs...)

	seen := make(map[string]bool)
	for _, f := range b.filters {
		if seen[f.ParameterName()] {
			errs = append(errs, fmt.Errorf("duplicate filter parameter %q", f.ParameterName()))
		}
		seen[f.ParameterName()] = true
	}

	seen = make(map[string]bool)
	for _, s := range b.sorts {
		if seen[s.ParameterName()] {
			errs = append(errs, fmt.Errorf("duplicate sort parameter %q", s.ParameterName()))
		}
		seen[s.ParameterName()] = true
	}

	dir, err := query.ParseDirection(b.defaultDirection)
	if err != nil {
		errs = append(errs, fmt.Errorf("default sort: %w", err))
	}
	if b.defaultKey == "" {
		errs = append(errs, errors.New("default sort key is required"))
	}
	if err := b.limits.Validate(); err != nil {
		errs = append(errs, err)
	}
	if b.search.Scope == "" || b.search.Param == "" {
		errs = append(errs, errors.New("search scope and parameter are required"))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	cfg := Config{
		filters: append([]query.FilterDefinition(nil), b.filters...),
		sorts:   append([]query.SortDefinition(nil), b.sorts...),
		limits:  b.limits,
		search:  b.search,
	}
	cfg.defaultSort = query.SortCondition{Key: b.defaultKey, Parameter: b.defaultKey, Direction: dir}
	if def, ok := cfg.sortFor(b.defaultKey); ok {
		cfg.defaultSort = def.Condition(dir)
	}
	return cfg, nil
}

// MustBuild is like Build but panics on invalid declarations.
func (b *Builder) MustBuild() Config {
	cfg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cfg
}
