package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"sharedledger.org/internal/access"
	"sharedledger.org/internal/guard"
	"sharedledger.org/internal/identity"
	"sharedledger.org/internal/ledger"
)

var ErrMissingBaseURL = errors.New("api: base url is required")

// Client talks to the shared-expense backend. Authentication state lives
// in the http.Client's transport chain, not here.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client rooted at baseURL. A nil hc uses http.DefaultClient.
func New(baseURL string, hc *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: base url %q must be absolute", baseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: u, http: hc}, nil
}

// FetchIdentity asks the backend who the session belongs to. A rejected
// session is an anonymous result, not an error.
func (c *Client) FetchIdentity(ctx context.Context) (identity.Result, error) {
	var resp IdentityResponse
	err := c.do(ctx, http.MethodGet, PathIdentity, nil, nil, &resp)
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return identity.NotAuthenticated(), nil
	case err != nil:
		return identity.Result{}, err
	}
	if !resp.Authenticated {
		return identity.NotAuthenticated(), nil
	}
	if resp.User == nil {
		return identity.Result{}, fmt.Errorf("%w: authenticated without user", identity.ErrInvalidResult)
	}
	res := identity.Authenticated(resp.User.Identity())
	if err := res.Validate(); err != nil {
		return identity.Result{}, err
	}
	return res, nil
}

// Login exchanges credentials for a session cookie and returns the user.
func (c *Client) Login(ctx context.Context, creds Credentials) (identity.Identity, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPost, PathLogin, nil, creds, &env); err != nil {
		return identity.Identity{}, err
	}
	return env.User.Identity(), nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, PathLogout, nil, nil, nil)
}

// Register creates an account. It does not start a session.
func (c *Client) Register(ctx context.Context, reg Registration) (User, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPost, PathRegister, nil, reg, &env); err != nil {
		return User{}, err
	}
	return env.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (identity.Identity, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPut, PathProfile, nil, upd, &env); err != nil {
		return identity.Identity{}, err
	}
	return env.User.Identity(), nil
}

// Visibility reports whether a group is publicly readable. With a share
// token in ctx the read carries it, and a successful read marks the group
// Shared.
func (c *Client) Visibility(ctx context.Context, groupID int64) (access.Visibility, error) {
	tok := access.ShareTokenFromContext(ctx)
	g, err := c.Group(ctx, groupID, WithShareToken(tok))
	if err != nil {
		return access.Visibility{}, err
	}
	return access.Visibility{IsPublic: g.IsPublic, Shared: tok != ""}, nil
}

// ReadOption adjusts a read request.
type ReadOption func(url.Values)

// WithShareToken attaches a share-link token to the request query.
func WithShareToken(token string) ReadOption {
	return func(q url.Values) {
		if token != "" {
			q.Set(guard.BypassTokenKey, token)
		}
	}
}

func (c *Client) Group(ctx context.Context, id int64, opts ...ReadOption) (ledger.Group, error) {
	var g ledger.Group
	err := c.do(ctx, http.MethodGet, groupPath(id), readQuery(opts), nil, &g)
	return g, err
}

func (c *Client) Groups(ctx context.Context) ([]ledger.Group, error) {
	var groups []ledger.Group
	err := c.do(ctx, http.MethodGet, PathGroups, nil, nil, &groups)
	return groups, err
}

func (c *Client) CreateGroup(ctx context.Context, g NewGroup) (ledger.Group, error) {
	var out ledger.Group
	err := c.do(ctx, http.MethodPost, PathGroups, nil, g, &out)
	return out, err
}

func (c *Client) GroupExpenses(ctx context.Context, groupID int64, opts ...ReadOption) ([]ledger.Expense, error) {
	var items []ledger.Expense
	err := c.do(ctx, http.MethodGet, groupExpensesPath(groupID), readQuery(opts), nil, &items)
	return items, err
}

// Balances returns per-member net positions as computed by the backend.
func (c *Client) Balances(ctx context.Context, groupID int64, opts ...ReadOption) ([]ledger.Balance, error) {
	var items []ledger.Balance
	err := c.do(ctx, http.MethodGet, balancesPath(groupID), readQuery(opts), nil, &items)
	return items, err
}

// ShareGroup returns the group's share-link token. Members only.
func (c *Client) ShareGroup(ctx context.Context, groupID int64) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, sharePath(groupID), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func readQuery(opts []ReadOption) url.Values {
	if len(opts) == 0 {
		return nil
	}
	q := url.Values{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, method, path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response, method, path string) error {
	apiErr := &Error{Method: method, Path: path, Status: resp.StatusCode}
	var payload struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if json.Unmarshal(raw, &payload) == nil {
		apiErr.Message = payload.Error
		apiErr.RequestID = payload.RequestID
	}
	return apiErr
}
