package api

import (
	"bytes"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/tabulate/internal/database"
	"github.com/fluxbase-eu/tabulate/internal/export"
	"github.com/fluxbase-eu/tabulate/internal/middleware"
	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/tabulate"
)

// exportFormatParam selects the download format. It is stripped before the
// query reaches the pipeline.
const exportFormatParam = "format"

// TableResponse is one page of a resource listing
type TableResponse struct {
	Data  []database.Row    `json:"data"`
	Meta  tabulate.Metadata `json:"meta"`
	Links Links             `json:"links"`
}

// Links are ready-made query strings that keep the filter, search and sort
// state of the current request.
type Links struct {
	Self  string `json:"self"`
	First string `json:"first"`
	Last  string `json:"last"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// ResourceSummary describes a listable resource
type ResourceSummary struct {
	Name        string   `json:"name"`
	Filters     []string `json:"filters"`
	Sorts       []string `json:"sorts"`
	SearchParam string   `json:"search_param"`
	DefaultSort string   `json:"default_sort"`
	PerPage     int      `json:"per_page"`
	MaxPerPage  int      `json:"max_per_page"`
}

// handleListResources lists the catalogue resources the caller may read
func (s *Server) handleListResources(c *fiber.Ctx) error {
	state := s.current()
	claims := middleware.Claims(c)

	summaries := make([]ResourceSummary, 0, len(state.pipelines))
	for _, name := range state.catalog.Names() {
		if claims != nil && !claims.CanRead(name) {
			continue
		}
		cfg := state.pipelines[name].Config()

		filters := make([]string, 0, len(cfg.Filters()))
		for _, f := range cfg.Filters() {
			filters = append(filters, f.ParameterName())
		}
		def := cfg.DefaultSort()

		summaries = append(summaries, ResourceSummary{
			Name:        name,
			Filters:     filters,
			Sorts:       cfg.SortKeys(),
			SearchParam: cfg.Search().Param,
			DefaultSort: def.Parameter + " " + string(def.Direction),
			PerPage:     cfg.Limits().Default,
			MaxPerPage:  cfg.Limits().Max,
		})
	}
	return c.JSON(fiber.Map{"data": summaries})
}

// listing is one executed page of a resource
type listing struct {
	req  *tabulate.Request
	rows []database.Row
	page pagination.Result
}

// list filters, searches, sorts and paginates one resource. Failures are
// returned as errors for handleListingError.
func (s *Server) list(c *fiber.Ctx, name string, values url.Values) (*listing, error) {
	state := s.current()
	res, ok := state.catalog.Get(name)
	if !ok {
		return nil, &requestError{
			status:  fiber.StatusNotFound,
			err:     "Resource not found",
			code:    CodeResourceNotFound,
			message: "No resource named " + name + " is configured",
		}
	}

	ctx := c.UserContext()
	req := state.pipelines[name].NewRequest(values)

	scoped, err := req.Tabulate(ctx, res.Scope)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.Select(ctx, scoped)
	if err != nil {
		return nil, err
	}

	page, err := req.PageInfo()
	if err != nil {
		return nil, err
	}

	return &listing{req: req, rows: rows, page: page}, nil
}

// handleTable returns one page of a resource as JSON
func (s *Server) handleTable(c *fiber.Ctx) error {
	name := c.Params("resource")

	values, err := queryValues(c)
	if err != nil {
		return handleListingError(c, name, err)
	}

	l, err := s.list(c, name, values)
	if err != nil {
		return handleListingError(c, name, err)
	}

	return c.JSON(TableResponse{
		Data:  l.rows,
		Meta:  l.req.Metadata(),
		Links: buildLinks(c.Path(), l.req, l.page),
	})
}

// handleExport returns one page of a resource as a CSV or XLSX download
func (s *Server) handleExport(c *fiber.Ctx) error {
	name := c.Params("resource")

	values, err := queryValues(c)
	if err != nil {
		return handleListingError(c, name, err)
	}

	format, err := export.ParseFormat(values.Get(exportFormatParam))
	if err != nil {
		return SendError(c, fiber.StatusBadRequest, "Invalid export format", CodeInvalidQuery, err.Error())
	}
	values.Del(exportFormatParam)

	l, err := s.list(c, name, values)
	if err != nil {
		return handleListingError(c, name, err)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, name, l.rows); err != nil {
		log.Error().Err(err).Str("resource", name).Str("format", string(format)).Msg("Export failed")
		return SendError(c, fiber.StatusInternalServerError, "Internal Server Error", CodeInternal, "")
	}

	c.Attachment(format.Filename(name))
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Send(buf.Bytes())
}

func queryValues(c *fiber.Ctx) (url.Values, error) {
	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return nil, &requestError{
			status:  fiber.StatusBadRequest,
			err:     "Invalid query string",
			code:    CodeInvalidQuery,
			message: err.Error(),
		}
	}
	return values, nil
}

func buildLinks(path string, req *tabulate.Request, page pagination.Result) Links {
	link := func(n int) string {
		return path + "?" + req.URLParams(n).Encode()
	}

	last := page.TotalPages
	if last < 1 {
		last = 1
	}

	links := Links{
		Self:  link(page.Page),
		First: link(1),
		Last:  link(last),
	}
	if page.PrevPage != nil {
		links.Prev = link(*page.PrevPage)
	}
	if page.NextPage != nil {
		links.Next = link(*page.NextPage)
	}
	return links
}
