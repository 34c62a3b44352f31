package nav

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"sharedledger.org/internal/access"
)

var ErrNoRoute = errors.New("nav: no route")

// classifier turns a matched route into its access requirement.
type classifier func(rctx *chi.Context) (access.Route, error)

// Table maps client paths to access classes. Matching is delegated to a chi
// mux so patterns, params and regex constraints behave like server routes.
type Table struct {
	mux      *chi.Mux
	patterns map[string]classifier
}

var noop = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

func NewTable() *Table {
	return &Table{mux: chi.NewRouter(), patterns: make(map[string]classifier)}
}

// DefaultTable is the shared-ledger client's route set.
func DefaultTable() *Table {
	t := NewTable()
	t.Public("/")
	t.Public(access.DefaultLoginPath)
	t.Public("/register")
	t.AuthenticatedOnly("/groups")
	t.AuthenticatedOnly("/groups/new")
	t.AuthenticatedOnly("/profile")
	t.ResourceScoped("/groups/{id:[0-9]+}", "id")
	t.ResourceScoped("/groups/{id:[0-9]+}/expenses", "id")
	return t
}

func (t *Table) Public(pattern string) {
	t.handle(pattern, func(*chi.Context) (access.Route, error) { return access.Public(), nil })
}

func (t *Table) AuthenticatedOnly(pattern string) {
	t.handle(pattern, func(*chi.Context) (access.Route, error) { return access.AuthenticatedOnly(), nil })
}

// ResourceScoped registers a route whose param names the group id.
func (t *Table) ResourceScoped(pattern, param string) {
	t.handle(pattern, func(rctx *chi.Context) (access.Route, error) {
		raw := rctx.URLParam(param)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return access.Route{}, fmt.Errorf("%w: bad %s %q", ErrNoRoute, param, raw)
		}
		return access.ResourceScoped(id), nil
	})
}

func (t *Table) handle(pattern string, c classifier) {
	t.mux.Get(pattern, noop)
	t.patterns[pattern] = c
}

// Classify resolves a path (without query) to its access requirement.
func (t *Table) Classify(path string) (access.Route, error) {
	path = normalize(path)
	rctx := chi.NewRouteContext()
	if !t.mux.Match(rctx, http.MethodGet, path) {
		return access.Route{}, fmt.Errorf("%w: %s", ErrNoRoute, path)
	}
	c, ok := t.patterns[rctx.RoutePattern()]
	if !ok {
		return access.Route{}, fmt.Errorf("%w: %s", ErrNoRoute, path)
	}
	return c(rctx)
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
