package guard

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	// BypassTokenKey is the query key carrying a share token.
	BypassTokenKey = "token"
	// ShareTokenHeader carries a share token on API calls.
	ShareTokenHeader = "X-Share-Token"
)

// Decision is what the guard did with one response.
type Decision string

const (
	DecisionPass        Decision = "pass"
	DecisionPreAuth     Decision = "preauth"
	DecisionPublicRead  Decision = "public_read"
	DecisionBypassToken Decision = "bypass_token"
	DecisionInvalidate  Decision = "invalidate"
	DecisionRedirect    Decision = "redirect"
)

// Invalidates reports whether the decision clears the identity cache.
func (d Decision) Invalidates() bool {
	return d == DecisionInvalidate || d == DecisionRedirect
}

// Rules is the fixed interception policy.
type Rules struct {
	// PreAuthSuffixes are request paths never intercepted.
	PreAuthSuffixes []string
	// IdentitySuffix is the identity lookup endpoint; failures there never redirect.
	IdentitySuffix string
	// PublicReads match endpoints an anonymous visitor may read for public groups.
	PublicReads []*regexp.Regexp
	// LoginPath is the navigation route redirects go to.
	LoginPath string
}

var defaultPublicReads = []*regexp.Regexp{
	regexp.MustCompile(`/groups/\d+$`),
	regexp.MustCompile(`/expenses/group/\d+$`),
}

// DefaultRules returns the policy for the shared ledger API.
func DefaultRules(loginPath string) Rules {
	if loginPath == "" {
		loginPath = "/login"
	}
	return Rules{
		PreAuthSuffixes: []string{"/auth/login", "/users/register"},
		IdentitySuffix:  "/auth/user",
		PublicReads:     defaultPublicReads,
		LoginPath:       loginPath,
	}
}

// Decide classifies the response to req. location is the navigator's current
// location and may be nil.
func (r Rules) Decide(req *http.Request, status int, location *url.URL) Decision {
	path := req.URL.Path
	if r.isPreAuth(path) {
		return DecisionPreAuth
	}
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return DecisionPass
	}
	if isSafeMethod(req.Method) && r.isPublicRead(path) {
		return DecisionPublicRead
	}
	if hasBypassToken(req, location) {
		return DecisionBypassToken
	}
	if strings.HasSuffix(path, r.IdentitySuffix) {
		return DecisionInvalidate
	}
	if location != nil && location.Path == r.LoginPath {
		return DecisionInvalidate
	}
	return DecisionRedirect
}

func (r Rules) isPreAuth(path string) bool {
	for _, suffix := range r.PreAuthSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func (r Rules) isPublicRead(path string) bool {
	for _, re := range r.PublicReads {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func isSafeMethod(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func hasBypassToken(req *http.Request, location *url.URL) bool {
	if location != nil && location.Query().Has(BypassTokenKey) {
		return true
	}
	if req.URL.Query().Has(BypassTokenKey) {
		return true
	}
	return req.Header.Get(ShareTokenHeader) != ""
}
