// Package devserver is an in-memory shared-expense backend speaking the same
// REST surface the client expects. It backs integration tests and local runs.
package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sharedledger.org/internal/auth"
	"sharedledger.org/internal/ledger"
	"sharedledger.org/internal/obs"
	"sharedledger.org/internal/stream"
)

const (
	defaultSessionTTL = 12 * time.Hour
	maxBodyBytes      = 1 << 20
)

// API is the HTTP layer.
type API struct {
	router     chi.Router
	users      *auth.Users
	tokens     *auth.Issuer
	ledger     ledger.Service
	stream     *stream.Stream
	sessionTTL time.Duration
	version    string

	rateBurst  int
	ratePerSec int

	shareMu sync.RWMutex
	shares  map[int64]string // group id -> share token
}

type Option func(*API)

func WithSessionTTL(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.sessionTTL = d
		}
	}
}

func WithRateLimit(perSecond, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

func WithLedger(svc ledger.Service) Option {
	return func(a *API) {
		if svc != nil {
			a.ledger = svc
		}
	}
}

func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// New builds the API. secret signs session tokens.
func New(secret string, opts ...Option) (*API, error) {
	tokens, err := auth.NewIssuer(secret)
	if err != nil {
		return nil, err
	}
	a := &API{
		users:      auth.NewUsers(),
		tokens:     tokens,
		ledger:     ledger.NewInMemory(),
		stream:     stream.New(),
		sessionTTL: defaultSessionTTL,
		version:    "dev",
		rateBurst:  40,
		ratePerSec: 20,
		shares:     make(map[int64]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.Healthz)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.withSession)

		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/logout", a.handleLogout)
		r.Get("/auth/user", a.handleCurrentUser)
		r.Post("/users/register", a.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Put("/users/profile", a.handleUpdateProfile)
			r.Get("/groups", a.handleListGroups)
			r.Post("/groups", a.handleCreateGroup)
			r.Post("/groups/{id}/share", a.handleShareGroup)
			r.Post("/expenses/group/{id}", a.handleAddExpense)
		})

		r.Get("/groups/{id}", a.handleGetGroup)
		r.Get("/groups/{id}/balances", a.handleBalances)
		r.Get("/groups/{id}/events", a.handleGroupEvents)
		r.Get("/expenses/group/{id}", a.handleListExpenses)
	})
	return r
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, maxBodyBytes)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "sharedledger-devserver",
		"version": a.version,
	})
}
