// Package resource loads the declarative catalogue of listable tables.
package resource

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/scope"
	"github.com/fluxbase-eu/tabulate/internal/search"
	"github.com/fluxbase-eu/tabulate/internal/tabulate"
)

// Search modes
const (
	SearchILike    = "ilike"
	SearchFullText = "fts"
)

// File is the on-disk shape of the catalogue.
type File struct {
	Resources map[string]Spec `yaml:"resources"`
}

// Spec declares one listable resource.
type Spec struct {
	Schema      string       `yaml:"schema"`
	Table       string       `yaml:"table"`
	Select      []string     `yaml:"select"`
	SelectExpr  []string     `yaml:"select_expr"`
	Joins       []string     `yaml:"joins"`
	GroupBy     []string     `yaml:"group_by"`
	Filters     []FilterSpec `yaml:"filters"`
	Sorts       []SortSpec   `yaml:"sorts"`
	TabulateBy  []FilterSpec `yaml:"tabulate_by"`
	DefaultSort *SortDefault `yaml:"default_sort"`
	PerPage     *PerPageSpec `yaml:"per_page"`
	Search      *SearchSpec  `yaml:"search"`
}

// FilterSpec declares a filter (or, under tabulate_by, a filter and a sort).
type FilterSpec struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	Alias         string `yaml:"alias"`
	Strict        bool   `yaml:"strict"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}

// SortSpec declares a sort key.
type SortSpec struct {
	Name  string `yaml:"name"`
	Alias string `yaml:"alias"`
}

// SortDefault is the fallback sort.
type SortDefault struct {
	Key       string `yaml:"key"`
	Direction string `yaml:"direction"`
}

// PerPageSpec overrides the page size bounds.
type PerPageSpec struct {
	Default int `yaml:"default"`
	Max     int `yaml:"max"`
}

// SearchSpec declares the search scope.
type SearchSpec struct {
	Scope   string   `yaml:"scope"`
	Param   string   `yaml:"param"`
	Mode    string   `yaml:"mode"`
	Config  string   `yaml:"config"`
	Columns []string `yaml:"columns"`
}

// Defaults fill in what a resource leaves out.
type Defaults struct {
	Limits      pagination.Limits
	SearchParam string
}

// Resource is a compiled catalogue entry.
type Resource struct {
	Name     string
	Config   tabulate.Config
	Scope    scope.Scope
	Searches *search.Registry
}

// Catalog is the set of compiled resources, read-only after loading.
type Catalog struct {
	resources map[string]*Resource
	digest    [sha256.Size]byte
}

// Load reads and compiles a catalogue file.
func Load(path string, defaults Defaults) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource catalogue: %w", err)
	}
	return Parse(data, defaults)
}

// Parse compiles catalogue YAML.
func Parse(data []byte, defaults Defaults) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse resource catalogue: %w", err)
	}

	c := &Catalog{
		resources: make(map[string]*Resource, len(f.Resources)),
		digest:    sha256.Sum256(data),
	}
	var errs []error
	for name, spec := range f.Resources {
		r, err := compile(name, spec, defaults)
		if err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", name, err))
			continue
		}
		c.resources[name] = r
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Digest is the SHA-256 of the YAML the catalogue was compiled from.
func (c *Catalog) Digest() [sha256.Size]byte {
	return c.digest
}

// Get returns the named resource.
func (c *Catalog) Get(name string) (*Resource, bool) {
	r, ok := c.resources[name]
	return r, ok
}

// Names lists the resources in name order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.resources))
	for name := range c.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func compile(name string, spec Spec, defaults Defaults) (*Resource, error) {
	table := strings.TrimSpace(spec.Table)
	if table == "" {
		table = name
	}

	b := tabulate.NewBuilder()
	for _, fs := range spec.TabulateBy {
		opts, err := filterOptions(fs)
		if err != nil {
			return nil, err
		}
		b.TabulateBy(fs.Name, opts...)
	}
	for _, fs := range spec.Filters {
		opts, err := filterOptions(fs)
		if err != nil {
			return nil, err
		}
		b.Filter(fs.Name, opts...)
	}
	for _, ss := range spec.Sorts {
		b.Sort(ss.Name, query.WithSortAlias(ss.Alias))
	}
	if spec.DefaultSort != nil {
		b.DefaultSort(spec.DefaultSort.Key, spec.DefaultSort.Direction)
	}

	limits := defaults.Limits
	if limits.Default == 0 && limits.Max == 0 {
		limits = pagination.DefaultLimits()
	}
	if spec.PerPage != nil {
		if spec.PerPage.Default > 0 {
			limits.Default = spec.PerPage.Default
		}
		if spec.PerPage.Max > 0 {
			limits.Max = spec.PerPage.Max
		}
	}
	b.PerPage(limits.Default, limits.Max)

	searches := search.NewRegistry()
	param := defaults.SearchParam
	if param == "" {
		param = tabulate.DefaultSearchParam
	}
	scopeName := search.DefaultScope
	if spec.Search != nil {
		if spec.Search.Scope != "" {
			scopeName = spec.Search.Scope
		}
		if spec.Search.Param != "" {
			param = spec.Search.Param
		}
		fn, err := searchFunc(*spec.Search)
		if err != nil {
			return nil, err
		}
		searches.Register(scopeName, fn)
	}
	b.SearchWith(scopeName, param)

	cfg, err := b.Build()
	if err != nil {
		return nil, err
	}

	s := scope.New(spec.Schema, table)
	switch {
	case len(spec.SelectExpr) > 0:
		s = s.SelectExpr(spec.SelectExpr...)
	case len(spec.Select) > 0:
		s = s.Select(spec.Select...)
	}
	for _, j := range spec.Joins {
		s = s.Joins(j)
	}
	if len(spec.GroupBy) > 0 {
		s = s.Group(spec.GroupBy...)
	}

	return &Resource{Name: name, Config: cfg, Scope: s, Searches: searches}, nil
}

func filterOptions(fs FilterSpec) ([]query.FilterOption, error) {
	kind, err := query.ParseKind(fs.Kind)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", fs.Name, err)
	}
	opts := []query.FilterOption{query.WithKind(kind)}
	if fs.Alias != "" {
		opts = append(opts, query.WithAlias(fs.Alias))
	}
	if fs.Strict {
		opts = append(opts, query.Strict())
	}
	if fs.CaseSensitive {
		opts = append(opts, query.CaseSensitive())
	}
	return opts, nil
}

func searchFunc(spec SearchSpec) (search.Func, error) {
	if len(spec.Columns) == 0 {
		return nil, errors.New("search requires at least one column")
	}
	switch strings.ToLower(spec.Mode) {
	case "", SearchILike:
		return search.ILike(spec.Columns...), nil
	case SearchFullText:
		config := spec.Config
		if config == "" {
			config = "simple"
		}
		return search.FullText(config, spec.Columns...), nil
	default:
		return nil, fmt.Errorf("unknown search mode %q", spec.Mode)
	}
}
