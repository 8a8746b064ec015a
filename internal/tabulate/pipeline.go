package tabulate

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxbase-eu/tabulate/internal/builder"
	"github.com/fluxbase-eu/tabulate/internal/pagination"
	"github.com/fluxbase-eu/tabulate/internal/query"
	"github.com/fluxbase-eu/tabulate/internal/scope"
)

// Pipeline stages, in execution order
const (
	StageFilter   = "filter"
	StageSearch   = "search"
	StageSort     = "sort"
	StagePaginate = "paginate"
)

// ErrPaginationNotPerformed is returned when page info is read before Paginate ran.
// It signals a programming error, not bad input.
var ErrPaginationNotPerformed = errors.New("pagination not performed")

// Searcher applies a named search scope.
type Searcher interface {
	Search(s scope.Scope, name, term string) (scope.Scope, error)
}

// Recorder receives pipeline measurements.
type Recorder interface {
	RecordStage(stage string, duration time.Duration, err error)
	RecordConditions(filters, sorts int)
	RecordPage(perPage, totalCount int)
}

// Tabulator is the per-request surface a handler drives.
type Tabulator interface {
	Filter(ctx context.Context, s scope.Scope) (scope.Scope, error)
	Search(ctx context.Context, s scope.Scope) (scope.Scope, error)
	Sort(ctx context.Context, s scope.Scope) (scope.Scope, error)
	Paginate(ctx context.Context, s scope.Scope) (scope.Scope, error)
}

// Pipeline binds a Config to its collaborators. It holds no per-request state and
// is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	filterer *builder.Filterer
	searcher Searcher
	counter  pagination.Counter
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithFilterer replaces the default filterer.
func WithFilterer(f *builder.Filterer) Option {
	return func(p *Pipeline) {
		p.filterer = f
	}
}

// WithSearcher enables the search stage.
func WithSearcher(s Searcher) Option {
	return func(p *Pipeline) {
		p.searcher = s
	}
}

// WithRecorder reports stage timings and sizes.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// NewPipeline creates a pipeline. counter is consulted by the paginate stage.
func NewPipeline(cfg Config, counter pagination.Counter, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		filterer: builder.NewFilterer(),
		counter:  counter,
		tracer:   otel.Tracer("tabulate"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the pipeline's declarations.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// NewRequest binds the pipeline to one request's parameters. A Request must not be
// shared between goroutines.
func (p *Pipeline) NewRequest(values url.Values) *Request {
	return &Request{p: p, params: query.Params(values)}
}

// stage runs fn inside a span and reports its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "tabulate."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var clientErr query.ClientError
		if errors.As(err, &clientErr) {
			span.SetAttributes(attribute.String("tabulate.error_code", clientErr.Code()))
		}
	}
	if p.recorder != nil {
		p.recorder.RecordStage(name, time.Since(start), err)
	}
	return err
}
