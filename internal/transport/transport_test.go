package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"sharedledger.org/internal/obs"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestChainOrderAndHeaders(t *testing.T) {
	var got http.Header
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	})

	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}

	client := &http.Client{Transport: Chain(srv.Client().Transport,
		mark("a"), RequestID(), ClientID("cli-1"), Bearer("tok"), mark("b"),
	)}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/user", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order %v", order)
	}
	if got.Get(RequestIDHeader) == "" {
		t.Fatal("request id missing")
	}
	if got.Get(ClientIDHeader) != "cli-1" {
		t.Fatalf("client id = %q", got.Get(ClientIDHeader))
	}
	if got.Get("Authorization") != "Bearer tok" {
		t.Fatalf("authorization = %q", got.Get("Authorization"))
	}
	if req.Header.Get(RequestIDHeader) != "" {
		t.Fatal("caller's request must not be mutated")
	}
}

func TestRequestIDKeepsExisting(t *testing.T) {
	var seen string
	rt := RequestID()(RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get(RequestIDHeader)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	req.Header.Set(RequestIDHeader, "fixed")
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if seen != "fixed" {
		t.Fatalf("request id = %q", seen)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	calls := 0
	rt := RateLimit(0.001, 1)(RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rt.RoundTrip(req.WithContext(ctx)); err == nil {
		t.Fatal("expected the limiter to refuse the second request")
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestObserveCountsRequests(t *testing.T) {
	obs.Init()
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	client := &http.Client{Transport: Chain(srv.Client().Transport, Observe(zap.NewNop()))}

	counter := obs.ClientRequests.WithLabelValues(http.MethodGet, "/api/groups/:id", "403")
	before := testutil.ToFloat64(counter)

	resp, err := client.Get(srv.URL + "/api/groups/42")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestObservePassesErrors(t *testing.T) {
	boom := errors.New("dial failed")
	rt := Observe(zap.NewNop())(RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	}))
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/x", nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}
