// Package search applies named search scopes to a scope between filtering and sorting.
package search

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fluxbase-eu/tabulate/internal/scope"
)

// DefaultScope is the search scope name used when none is configured
const DefaultScope = "search"

// ErrUnknownScope is returned when a search names a scope nobody registered.
// It is a configuration bug, not a client error.
var ErrUnknownScope = errors.New("unknown search scope")

// Func narrows s to rows matching term. term is never blank.
type Func func(s scope.Scope, term string) scope.Scope

// Registry holds named search scopes.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string]Func)}
}

// Register adds or replaces a search scope.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes[name] = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.scopes[name]
	return ok
}

// Names lists the registered scopes in name order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search applies the named scope. A blank term returns s unchanged without
// looking the scope up.
func (r *Registry) Search(s scope.Scope, name, term string) (scope.Scope, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s, nil
	}

	r.mu.RLock()
	fn, ok := r.scopes[name]
	r.mu.RUnlock()
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrUnknownScope, name, s.Table())
	}
	return fn(s, term), nil
}

// ILike matches the term anywhere in any of the columns, case-insensitively.
func ILike(columns ...string) Func {
	return func(s scope.Scope, term string) scope.Scope {
		pattern := "%" + scope.EscapeLike(term) + "%"
		preds := make([]scope.Predicate, 0, len(columns))
		for _, col := range columns {
			preds = append(preds, scope.Like(s.Ref(col), pattern, false))
		}
		return s.Where(scope.Or(preds...))
	}
}

// FullText matches the term with websearch_to_tsquery against the concatenated
// columns, using the given text search configuration ("english", "simple", ...).
func FullText(config string, columns ...string) Func {
	return func(s scope.Scope, term string) scope.Scope {
		refs := make([]scope.Ref, 0, len(columns))
		for _, col := range columns {
			refs = append(refs, s.Ref(col))
		}
		return s.Where(fullText{config: config, refs: refs, term: term})
	}
}

type fullText struct {
	config string
	refs   []scope.Ref
	term   string
}

func (f fullText) WriteSQL(w *scope.Writer) {
	if len(f.refs) == 0 {
		w.WriteString("FALSE")
		return
	}

	parts := make([]string, 0, len(f.refs))
	for _, ref := range f.refs {
		parts = append(parts, "coalesce("+ref.SQL()+"::text, '')")
	}

	w.WriteString("to_tsvector(")
	w.Arg(f.config)
	w.WriteString("::regconfig, " + strings.Join(parts, " || ' ' || ") + ") @@ websearch_to_tsquery(")
	w.Arg(f.config)
	w.WriteString("::regconfig, ")
	w.Arg(f.term)
	w.WriteString(")")
}
