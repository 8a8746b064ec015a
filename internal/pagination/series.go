package pagination

// SeriesItem is one entry of a pagination control: a page link or a gap.
type SeriesItem struct {
	Page    int  `json:"page,omitempty"`
	Current bool `json:"current,omitempty"`
	Gap     bool `json:"gap,omitempty"`
}

// seriesWindow is how many pages are listed without gaps
const seriesWindow = 9

// Series lists the pages to link for the current page, e.g.
// 1 … 7 8 [9] 10 11 … 36. Pages outside [1, totalPages] are never emitted.
func Series(page, totalPages int) []SeriesItem {
	if totalPages < 1 {
		return nil
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	item := func(p int) SeriesItem {
		return SeriesItem{Page: p, Current: p == page}
	}

	if totalPages <= seriesWindow {
		items := make([]SeriesItem, 0, totalPages)
		for p := 1; p <= totalPages; p++ {
			items = append(items, item(p))
		}
		return items
	}

	lo := max(page-2, 2)
	hi := min(page+2, totalPages-1)

	items := []SeriesItem{item(1)}
	if lo > 2 {
		items = append(items, SeriesItem{Gap: true})
	}
	for p := lo; p <= hi; p++ {
		items = append(items, item(p))
	}
	if hi < totalPages-1 {
		items = append(items, SeriesItem{Gap: true})
	}
	return append(items, item(totalPages))
}

// Series lists the pages to link for the result.
func (r Result) Series() []SeriesItem {
	return Series(r.Page, r.TotalPages)
}
