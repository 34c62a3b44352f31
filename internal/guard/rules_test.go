package guard

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestRulesDecide(t *testing.T) {
	t.Parallel()

	rules := DefaultRules("/login")
	mustURL := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		return u
	}

	cases := []struct {
		name     string
		method   string
		target   string
		header   map[string]string
		status   int
		location string
		want     Decision
	}{
		{name: "success", method: http.MethodGet, target: "/api/groups", status: 200, want: DecisionPass},
		{name: "server error", method: http.MethodGet, target: "/api/groups", status: 500, want: DecisionPass},
		{name: "not found", method: http.MethodGet, target: "/api/groups/9", status: 404, want: DecisionPass},
		{name: "login failure", method: http.MethodPost, target: "/api/auth/login", status: 401, want: DecisionPreAuth},
		{name: "register failure", method: http.MethodPost, target: "/api/users/register", status: 403, want: DecisionPreAuth},
		{name: "group read 403", method: http.MethodGet, target: "/api/groups/42", status: 403, want: DecisionPublicRead},
		{name: "group read 401", method: http.MethodGet, target: "/api/groups/42", status: 401, want: DecisionPublicRead},
		{name: "group expenses read", method: http.MethodGet, target: "/api/expenses/group/42", status: 401, want: DecisionPublicRead},
		{name: "group head", method: http.MethodHead, target: "/api/groups/42", status: 403, want: DecisionPublicRead},
		{name: "group write", method: http.MethodPut, target: "/api/groups/42", status: 403, want: DecisionRedirect},
		{name: "group subresource", method: http.MethodGet, target: "/api/groups/42/settlements", status: 403, want: DecisionRedirect},
		{name: "non numeric group", method: http.MethodGet, target: "/api/groups/abc", status: 403, want: DecisionRedirect},
		{name: "location token", method: http.MethodPost, target: "/api/expenses", status: 401, location: "/groups/5?token=abc", want: DecisionBypassToken},
		{name: "empty location token", method: http.MethodPost, target: "/api/expenses", status: 401, location: "/groups/5?token=", want: DecisionBypassToken},
		{name: "request token", method: http.MethodGet, target: "/api/groups/5/settlements?token=abc", status: 403, want: DecisionBypassToken},
		{name: "header token", method: http.MethodGet, target: "/api/groups/5/settlements", header: map[string]string{ShareTokenHeader: "abc"}, status: 403, want: DecisionBypassToken},
		{name: "identity endpoint", method: http.MethodGet, target: "/api/auth/user", status: 401, want: DecisionInvalidate},
		{name: "already on login", method: http.MethodGet, target: "/api/groups", status: 401, location: "/login", want: DecisionInvalidate},
		{name: "general 401", method: http.MethodGet, target: "/api/groups", status: 401, location: "/groups", want: DecisionRedirect},
		{name: "general 403", method: http.MethodDelete, target: "/api/expenses/3", status: 403, want: DecisionRedirect},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tc.method, tc.target, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			var loc *url.URL
			if tc.location != "" {
				loc = mustURL(tc.location)
			}
			if got := rules.Decide(req, tc.status, loc); got != tc.want {
				t.Fatalf("Decide() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDecisionInvalidates(t *testing.T) {
	for d, want := range map[Decision]bool{
		DecisionPass:        false,
		DecisionPreAuth:     false,
		DecisionPublicRead:  false,
		DecisionBypassToken: false,
		DecisionInvalidate:  true,
		DecisionRedirect:    true,
	} {
		if got := d.Invalidates(); got != want {
			t.Fatalf("%s.Invalidates() = %v, want %v", d, got, want)
		}
	}
}
