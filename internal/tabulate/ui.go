package tabulate

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cast"

	"github.com/fluxbase-eu/tabulate/internal/query"
)

// FilterURLParams rebuilds the query parameters of the applied filters.
func (r *Request) FilterURLParams() url.Values {
	v := url.Values{}
	for _, c := range r.filters {
		v.Set(c.Parameter+query.RelationSuffix, string(c.Relation))
		if c.Relation.IsNullCheck() {
			continue
		}
		if query.IsSequence(c.Value) {
			for _, item := range c.Values() {
				v.Add(c.Parameter+"[]", formatValue(query.Condition{Value: item}))
			}
			continue
		}
		v.Set(c.Parameter, formatValue(c))
	}
	return v
}

// SortURLParams returns the parameters of the applied sorts.
func (r *Request) SortURLParams() url.Values {
	v := url.Values{}
	for _, s := range r.sorts {
		v.Add(ParamSortKey, s.Parameter)
		v.Add(ParamSortDirection, string(s.Direction))
	}
	return v
}

// ToggleSortURLParams returns the parameters that sort by key: the opposite
// direction when key is the current primary sort, ascending otherwise.
func (r *Request) ToggleSortURLParams(key string) url.Values {
	dir := query.Asc
	if len(r.sorts) > 0 && r.sorts[0].Parameter == key {
		dir = r.sorts[0].Direction.Opposite()
	}
	return url.Values{
		ParamSortKey:       {key},
		ParamSortDirection: {string(dir)},
	}
}

// PageURLParams returns the parameters for the given page at the current page size.
func (r *Request) PageURLParams(page int) url.Values {
	v := url.Values{ParamPage: {strconv.Itoa(page)}}
	if r.page != nil {
		v.Set(ParamPerPage, strconv.Itoa(r.page.PerPage))
	}
	return v
}

// SearchURLParams returns the parameter of the applied search term.
func (r *Request) SearchURLParams() url.Values {
	v := url.Values{}
	if r.term != "" {
		v.Set(r.p.cfg.search.Param, r.term)
	}
	return v
}

// URLParams merges filter, search, sort and page parameters, for links that keep
// the whole listing state.
func (r *Request) URLParams(page int) url.Values {
	v := url.Values{}
	for _, part := range []url.Values{r.FilterURLParams(), r.SearchURLParams(), r.SortURLParams(), r.PageURLParams(page)} {
		for key, values := range part {
			v[key] = append(v[key], values...)
		}
	}
	return v
}

func formatValue(c query.Condition) string {
	switch v := c.HTMLValue().(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return s
	}
}
