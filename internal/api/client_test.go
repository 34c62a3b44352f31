package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sharedledger.org/internal/access"
	"sharedledger.org/internal/identity"
	"sharedledger.org/internal/ledger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("expected ErrMissingBaseURL, got %v", err)
	}
	if _, err := New("/relative", nil); err == nil {
		t.Fatal("expected error for relative url")
	}
}

func TestFetchIdentity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		status   int
		body     any
		wantAuth bool
		wantErr  error
		anyErr   bool
	}{
		{
			name:     "authenticated",
			status:   http.StatusOK,
			body:     IdentityResponse{Authenticated: true, User: &User{ID: 7, DisplayName: "Ana"}},
			wantAuth: true,
		},
		{
			name:   "explicitly anonymous",
			status: http.StatusOK,
			body:   IdentityResponse{Authenticated: false},
		},
		{
			name:   "rejected session",
			status: http.StatusUnauthorized,
			body:   map[string]string{"error": "unauthorized"},
		},
		{
			name:    "authenticated without user",
			status:  http.StatusOK,
			body:    IdentityResponse{Authenticated: true},
			wantErr: identity.ErrInvalidResult,
		},
		{
			name:    "authenticated with zero id",
			status:  http.StatusOK,
			body:    IdentityResponse{Authenticated: true, User: &User{DisplayName: "ghost"}},
			wantErr: identity.ErrInvalidResult,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]string{"error": "internal error"},
			anyErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != PathIdentity || r.Method != http.MethodGet {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				writeJSON(w, tc.status, tc.body)
			})

			res, err := c.FetchIdentity(context.Background())
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			case tc.anyErr:
				if err == nil {
					t.Fatal("expected error")
				}
				return
			case err != nil:
				t.Fatalf("FetchIdentity: %v", err)
			}
			if got := res.Resolve().Authenticated; got != tc.wantAuth {
				t.Fatalf("authenticated = %v, want %v", got, tc.wantAuth)
			}
		})
	}
}

func TestMapStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ledger.ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusUnprocessableEntity, ErrBadRequest},
	}
	for _, tc := range cases {
		err := error(&Error{Method: "GET", Path: "/x", Status: tc.status})
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: errors.Is(%v) = false", tc.status, tc.want)
		}
		if StatusOf(err) != tc.status {
			t.Fatalf("StatusOf = %d, want %d", StatusOf(err), tc.status)
		}
	}
	if errors.Is(&Error{Status: http.StatusBadGateway}, ErrForbidden) {
		t.Fatal("502 must not map to a sentinel")
	}
}

func TestErrorCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered", "request_id": "rid-1"})
	})

	_, err := c.Register(context.Background(), Registration{Email: "a@b.c", Password: "x"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Message != "email already registered" || apiErr.RequestID != "rid-1" {
		t.Fatalf("unexpected error payload: %+v", apiErr)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected ErrConflict")
	}
}

func TestLoginSendsCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != PathLogin {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode: %v", err)
		}
		if creds.Email != "ana@example.com" || creds.Password != "secret" {
			t.Errorf("unexpected credentials: %+v", creds)
		}
		writeJSON(w, http.StatusOK, userEnvelope{User: User{ID: 3, DisplayName: "Ana", Email: creds.Email}})
	})

	id, err := c.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !id.Authenticated || id.ID != 3 || id.DisplayName != "Ana" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestShareTokenReachesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "share-abc" {
			t.Errorf("token query = %q", got)
		}
		writeJSON(w, http.StatusOK, []ledger.Expense{{ID: 1, GroupID: 5}})
	})

	items, err := c.GroupExpenses(context.Background(), 5, WithShareToken("share-abc"))
	if err != nil {
		t.Fatalf("GroupExpenses: %v", err)
	}
	if len(items) != 1 || items[0].GroupID != 5 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestVisibility(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/groups/1":
			writeJSON(w, http.StatusOK, ledger.Group{ID: 1, IsPublic: true})
		default:
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
	})

	v, err := c.Visibility(context.Background(), 1)
	if err != nil || !v.IsPublic {
		t.Fatalf("expected public group, got %+v err=%v", v, err)
	}
	if _, err := c.Visibility(context.Background(), 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestVisibilityWithShareToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "share-abc" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		writeJSON(w, http.StatusOK, ledger.Group{ID: 3})
	})

	ctx := access.WithShareToken(context.Background(), "share-abc")
	v, err := c.Visibility(ctx, 3)
	if err != nil || v.IsPublic || !v.Shared {
		t.Fatalf("expected shared private group, got %+v err=%v", v, err)
	}

	v, err = c.Visibility(context.Background(), 3)
	if !errors.Is(err, ErrUnauthorized) || v.Shared {
		t.Fatalf("read without token: %+v err=%v", v, err)
	}
}

func TestLogoutAcceptsNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
}
