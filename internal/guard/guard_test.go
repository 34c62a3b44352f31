package guard

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeNavigator struct {
	mu        sync.Mutex
	location  *url.URL
	redirects []string
}

func (n *fakeNavigator) Location() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.location == nil {
		return nil
	}
	u := *n.location
	return &u
}

func (n *fakeNavigator) Redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, path)
	n.location = &url.URL{Path: path}
}

func (n *fakeNavigator) redirectCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.redirects)
}

type memCredentials struct {
	mu    sync.Mutex
	token string
}

func (m *memCredentials) SessionToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *memCredentials) Capture(cookies []*http.Cookie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cookies {
		if c.Name != SessionCookie {
			continue
		}
		if c.MaxAge < 0 || c.Value == "" {
			m.token = ""
		} else {
			m.token = c.Value
		}
	}
}

type guardFixture struct {
	client *http.Client
	srv    *httptest.Server
	cache  *countingInvalidator
	nav    *fakeNavigator
	creds  *memCredentials
}

// newFixture serves every request with status and echoes the session cookie.
func newFixture(t *testing.T, status int, location string) *guardFixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(SessionCookie); err == nil {
			w.Header().Set("X-Seen-Session", c.Value)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"message":"nope"}`)
	}))
	t.Cleanup(srv.Close)

	f := &guardFixture{
		srv:   srv,
		cache: &countingInvalidator{},
		nav:   &fakeNavigator{},
		creds: &memCredentials{token: "sess-1"},
	}
	if location != "" {
		u, err := url.Parse(location)
		if err != nil {
			t.Fatalf("parse location: %v", err)
		}
		f.nav.location = u
	}
	f.client = &http.Client{Transport: New(srv.Client().Transport, f.cache,
		WithNavigator(f.nav),
		WithCredentials(f.creds),
		WithRules(DefaultRules("/login")),
	)}
	return f
}

func (f *guardFixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAttachesSessionCredential(t *testing.T) {
	f := newFixture(t, http.StatusOK, "")
	resp := f.do(t, http.MethodGet, "/api/groups")
	if got := resp.Header.Get("X-Seen-Session"); got != "sess-1" {
		t.Fatalf("session cookie not attached, server saw %q", got)
	}
}

func TestPublicReadExemption(t *testing.T) {
	f := newFixture(t, http.StatusForbidden, "/groups/42")
	resp := f.do(t, http.MethodGet, "/api/groups/42")

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected original 403, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"message":"nope"}` {
		t.Fatalf("body not delivered unchanged: %q", body)
	}
	if f.cache.count() != 0 {
		t.Fatalf("public read must not invalidate")
	}
	if f.nav.redirectCount() != 0 {
		t.Fatalf("public read must not redirect")
	}
}

func TestTokenExemption(t *testing.T) {
	f := newFixture(t, http.StatusUnauthorized, "/groups/5?token=abc")
	resp := f.do(t, http.MethodPost, "/api/expenses")

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %d", resp.StatusCode)
	}
	if f.cache.count() != 0 || f.nav.redirectCount() != 0 {
		t.Fatalf("token-bearing location must not invalidate or redirect")
	}
}

func TestIdentityEndpointNeverRedirects(t *testing.T) {
	f := newFixture(t, http.StatusUnauthorized, "/groups")
	resp := f.do(t, http.MethodGet, "/api/auth/user")

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %d", resp.StatusCode)
	}
	if f.nav.redirectCount() != 0 {
		t.Fatalf("identity endpoint failure must not redirect")
	}
	if f.cache.count() != 1 {
		t.Fatalf("expected identity invalidated once, got %d", f.cache.count())
	}
}

func TestGeneralAuthFailureInvalidatesAndRedirects(t *testing.T) {
	f := newFixture(t, http.StatusUnauthorized, "/groups")
	resp := f.do(t, http.MethodGet, "/api/groups")

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %d", resp.StatusCode)
	}
	if f.cache.count() != 1 {
		t.Fatalf("expected 1 invalidate, got %d", f.cache.count())
	}
	if f.nav.redirectCount() != 1 || f.nav.redirects[0] != "/login" {
		t.Fatalf("expected redirect to /login, got %v", f.nav.redirects)
	}

	// Now on /login: a further failure invalidates without another redirect.
	f.do(t, http.MethodGet, "/api/groups")
	if f.nav.redirectCount() != 1 {
		t.Fatalf("expected no second redirect, got %v", f.nav.redirects)
	}
	if f.cache.count() != 2 {
		t.Fatalf("expected 2 invalidates, got %d", f.cache.count())
	}
}

func TestPreAuthPathsAreNotIntercepted(t *testing.T) {
	f := newFixture(t, http.StatusUnauthorized, "/login")
	for _, path := range []string{"/api/auth/login", "/api/users/register"} {
		resp := f.do(t, http.MethodPost, path)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected original 401, got %d", path, resp.StatusCode)
		}
	}
	if f.cache.count() != 0 || f.nav.redirectCount() != 0 {
		t.Fatalf("pre-auth paths must not trigger side effects")
	}
}

func TestOtherFailuresPassThrough(t *testing.T) {
	f := newFixture(t, http.StatusInternalServerError, "/groups")
	resp := f.do(t, http.MethodGet, "/api/groups")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if f.cache.count() != 0 || f.nav.redirectCount() != 0 {
		t.Fatalf("non-auth failures must not trigger side effects")
	}
}

func TestCapturesSessionCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "fresh", Path: "/"})
		case "/api/auth/logout":
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	creds := &memCredentials{}
	client := &http.Client{Transport: New(srv.Client().Transport, &countingInvalidator{}, WithCredentials(creds))}

	resp, err := client.Post(srv.URL+"/api/auth/login", "application/json", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if creds.SessionToken() != "fresh" {
		t.Fatalf("session cookie not captured, got %q", creds.SessionToken())
	}

	resp, err = client.Post(srv.URL+"/api/auth/logout", "application/json", nil)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if creds.SessionToken() != "" {
		t.Fatalf("expired cookie did not clear credential")
	}
}

type failingTransport struct{ err error }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, f.err }

func TestTransportErrorsPassThrough(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	inv := &countingInvalidator{}
	nav := &fakeNavigator{}
	client := &http.Client{Transport: New(failingTransport{err: boom}, inv, WithNavigator(nav))}

	_, err := client.Get("http://ledger.invalid/api/groups")
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error to propagate, got %v", err)
	}
	if inv.count() != 0 || nav.redirectCount() != 0 {
		t.Fatalf("transport errors must not trigger side effects")
	}
}
