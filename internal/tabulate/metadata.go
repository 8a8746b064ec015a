package tabulate

import (
	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/query"
)

// FilterInfo describes a declared filter for building UI controls.
type FilterInfo struct {
	Parameter string           `json:"parameter"`
	Kind      string           `json:"kind"`
	Relations []query.Relation `json:"relations"`
	HTMLType  string           `json:"html_type"`
	Strict    bool             `json:"strict,omitempty"`
}

// SearchInfo reports the search parameter and the term applied.
type SearchInfo struct {
	Param string `json:"param"`
	Term  string `json:"term"`
}

// PageInfo is the pagination result plus the page links to render.
type PageInfo struct {
	pagination.Result
	Series []pagination.SeriesItem `json:"series"`
}

// Metadata is everything a caller needs to redisplay the listing state.
type Metadata struct {
	Filters    []query.Condition     `json:"filters"`
	Sorts      []query.SortCondition `json:"sorts"`
	Filterable []FilterInfo          `json:"filterable"`
	Sortable   []string              `json:"sortable"`
	Search     SearchInfo            `json:"search"`
	Pagination *PageInfo             `json:"pagination,omitempty"`
}

// Metadata aggregates what the stages applied. Pagination is nil until Paginate ran.
func (r *Request) Metadata() Metadata {
	cfg := r.p.cfg

	filterable := make([]FilterInfo, 0, len(cfg.filters))
	for _, f := range cfg.filters {
		filterable = append(filterable, FilterInfo{
			Parameter: f.ParameterName(),
			Kind:      f.Kind().String(),
			Relations: f.Relations(),
			HTMLType:  f.HTMLType(),
			Strict:    f.IsStrict(),
		})
	}

	sortable := make([]string, 0, len(cfg.sorts))
	for _, s := range cfg.sorts {
		sortable = append(sortable, s.ParameterName())
	}

	m := Metadata{
		Filters:    r.Filters(),
		Sorts:      r.Sorts(),
		Filterable: filterable,
		Sortable:   sortable,
		Search:     SearchInfo{Param: cfg.search.Param, Term: r.term},
	}
	if m.Filters == nil {
		m.Filters = []query.Condition{}
	}
	if m.Sorts == nil {
		m.Sorts = []query.SortCondition{}
	}

	if res, err := r.PageInfo(); err == nil {
		m.Pagination = &PageInfo{Result: res, Series: res.Series()}
	}
	return m
}
