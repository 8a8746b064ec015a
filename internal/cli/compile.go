package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/tabulate/internal/builder"
	"github.com/fluxbase-eu/tabulate/internal/output"
	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/resource"
	"github.com/fluxbase-eu/tabulate/internal/scope"
	"github.com/fluxbase-eu/tabulate/internal/tabulate"
)

type compileOptions struct {
	resourcesPath string
	resource      string
	searchParam   string
	perPage       int
	maxPerPage    int
	total         int
	legacyGT      bool
}

// Compilation is what one listing request compiles to
type Compilation struct {
	Resource string           `json:"resource" yaml:"resource"`
	Select   output.Statement `json:"select" yaml:"select"`
	Count    output.Statement `json:"count" yaml:"count"`
	Filters  []FilterRow      `json:"filters" yaml:"filters"`
	Sorts    []SortRow        `json:"sorts" yaml:"sorts"`
	Search   string           `json:"search,omitempty" yaml:"search,omitempty"`
	Page     PageRow          `json:"page" yaml:"page"`
}

// FilterRow is an applied filter condition
type FilterRow struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	Column    string `json:"column" yaml:"column"`
	Relation  string `json:"relation" yaml:"relation"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
}

// SortRow is an applied sort
type SortRow struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	Column    string `json:"column" yaml:"column"`
	Direction string `json:"direction" yaml:"direction"`
}

// PageRow is the requested page window
type PageRow struct {
	Page       int `json:"page" yaml:"page"`
	PerPage    int `json:"per_page" yaml:"per_page"`
	Offset     int `json:"offset" yaml:"offset"`
	TotalCount int `json:"total_count" yaml:"total_count"`
	TotalPages int `json:"total_pages" yaml:"total_pages"`
}

// Statements implements output.Document
func (c Compilation) Statements() []output.Statement {
	return []output.Statement{c.Select, c.Count}
}

// Tables implements output.Document
func (c Compilation) Tables() []output.Table {
	filters := output.Table{Title: "Filters", Headers: []string{"Parameter", "Column", "Relation", "Value"}}
	for _, f := range c.Filters {
		filters.Rows = append(filters.Rows, []string{f.Parameter, f.Column, f.Relation, f.Value})
	}

	sorts := output.Table{Title: "Sorts", Headers: []string{"Parameter", "Column", "Direction"}}
	for _, s := range c.Sorts {
		sorts.Rows = append(sorts.Rows, []string{s.Parameter, s.Column, s.Direction})
	}

	page := output.Table{
		Title:   "Page",
		Headers: []string{"Page", "Per Page", "Offset", "Total Count", "Total Pages"},
		Rows: [][]string{{
			strconv.Itoa(c.Page.Page),
			strconv.Itoa(c.Page.PerPage),
			strconv.Itoa(c.Page.Offset),
			strconv.Itoa(c.Page.TotalCount),
			strconv.Itoa(c.Page.TotalPages),
		}},
	}

	tables := []output.Table{filters, sorts}
	if c.Search != "" {
		tables = append(tables, output.Table{
			Title:   "Search",
			Headers: []string{"Term"},
			Rows:    [][]string{{c.Search}},
		})
	}
	return append(tables, page)
}

func newCompileCommand(opts *globalOptions) *cobra.Command {
	co := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile [query]",
		Short: "Print the SQL a listing request compiles to",
		Long: `Compile a listing query string against a catalogue resource without
touching a database. Prints the paged SELECT, the COUNT used for pagination,
and the filters and sorts that were applied.`,
		Example: `  tabulate compile -r users "age=30&age.rel=gt&sort_key=name"
  tabulate compile -r users -o json "email=bob&email.rel=starts_with&page=2"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) > 0 {
				raw = args[0]
			}
			return runCompile(cmd.Context(), cmd.OutOrStdout(), opts, co, raw)
		},
	}

	cmd.Flags().StringVarP(&co.resourcesPath, "resources", "f", "./resources.yaml",
		"resource catalogue file")
	cmd.Flags().StringVarP(&co.resource, "resource", "r", "",
		"resource to compile against")
	cmd.Flags().StringVar(&co.searchParam, "search-param", "q",
		"search parameter for resources that do not name one")
	cmd.Flags().IntVar(&co.perPage, "per-page", pagination.DefaultPerPage,
		"default page size for resources that do not set one")
	cmd.Flags().IntVar(&co.maxPerPage, "max-per-page", pagination.MaxPerPage,
		"maximum page size for resources that do not set one")
	cmd.Flags().IntVar(&co.total, "total", 0,
		"row count to assume when computing page metadata")
	cmd.Flags().BoolVar(&co.legacyGT, "legacy-gt", false,
		"compile gt as NOT (field < value)")
	_ = cmd.MarkFlagRequired("resource")

	return cmd
}

func runCompile(ctx context.Context, w io.Writer, opts *globalOptions, co *compileOptions, raw string) error {
	formatter, err := opts.formatter(w)
	if err != nil {
		return err
	}

	catalog, err := resource.Load(co.resourcesPath, resource.Defaults{
		Limits:      pagination.Limits{Default: co.perPage, Max: co.maxPerPage},
		SearchParam: co.searchParam,
	})
	if err != nil {
		return err
	}
	res, ok := catalog.Get(co.resource)
	if !ok {
		return fmt.Errorf("unknown resource %q (available: %s)", co.resource, strings.Join(catalog.Names(), ", "))
	}

	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return fmt.Errorf("invalid query string: %w", err)
	}

	var count output.Statement
	counter := pagination.CounterFunc(func(_ context.Context, s scope.Scope) (int, error) {
		sql, args := s.BuildCount()
		count = output.Statement{Label: "count", SQL: sql, Args: args}
		return co.total, nil
	})

	var filterOpts []builder.Option
	if co.legacyGT {
		filterOpts = append(filterOpts, builder.WithLegacyGreaterThan())
	}
	pipeline := tabulate.NewPipeline(res.Config, counter,
		tabulate.WithFilterer(builder.NewFilterer(filterOpts...)),
		tabulate.WithSearcher(res.Searches),
	)

	req := pipeline.NewRequest(values)
	scoped, err := req.Tabulate(ctx, res.Scope)
	if err != nil {
		var clientErr query.ClientError
		if errors.As(err, &clientErr) {
			return fmt.Errorf("invalid listing parameters (%s): %w", clientErr.Code(), err)
		}
		return err
	}

	page, err := req.PageInfo()
	if err != nil {
		return err
	}

	sql, args := scoped.BuildSelect()
	return formatter.Print(Compilation{
		Resource: res.Name,
		Select:   output.Statement{Label: "select", SQL: sql, Args: args},
		Count:    count,
		Filters:  filterRows(req.Filters()),
		Sorts:    sortRows(req.Sorts()),
		Search:   req.SearchTerm(),
		Page: PageRow{
			Page:       page.Page,
			PerPage:    page.PerPage,
			Offset:     (page.Page - 1) * page.PerPage,
			TotalCount: page.TotalCount,
			TotalPages: page.TotalPages,
		},
	})
}

func filterRows(conditions []query.Condition) []FilterRow {
	rows := make([]FilterRow, 0, len(conditions))
	for _, c := range conditions {
		row := FilterRow{
			Parameter: c.Parameter,
			Column:    c.Field,
			Relation:  string(c.Relation),
		}
		switch {
		case c.Relation.IsNullCheck():
		case query.IsSequence(c.Value):
			row.Value = output.FormatArg(c.Values())
		default:
			row.Value = output.FormatArg(c.Value)
		}
		rows = append(rows, row)
	}
	return rows
}

func sortRows(sorts []query.SortCondition) []SortRow {
	rows := make([]SortRow, 0, len(sorts))
	for _, s := range sorts {
		rows = append(rows, SortRow{
			Parameter: s.Parameter,
			Column:    s.Key,
			Direction: string(s.Direction),
		})
	}
	return rows
}
