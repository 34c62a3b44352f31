package devserver

import (
	"net/http"
	"strings"

	"sharedledger.org/internal/api"
	"sharedledger.org/internal/audit"
	"sharedledger.org/internal/auth"
)

func toWire(u auth.User) api.User {
	return api.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
		Profile:     u.Profile,
	}
}

func userEnvelope(u auth.User) map[string]any {
	return map[string]any{"user": toWire(u)}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.Credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
	u, err := a.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"email": strings.ToLower(req.Email)})
		handleError(w, r, err)
		return
	}

	token, expiresAt, err := a.tokens.GenerateToken(u.ID, u.Role, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	setSessionCookie(w, token, expiresAt)
	_ = audit.LogEvent(audit.WithUserID(ctx, u.ID), audit.EventLogin, map[string]any{"expires_at": expiresAt})
	writeJSON(w, http.StatusOK, userEnvelope(u))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		a.tokens.Revoke(p.Claims)
		ctx = audit.WithUserID(ctx, p.UserID)
	}
	clearSessionCookie(w)
	_ = audit.LogEvent(ctx, audit.EventLogout, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleCurrentUser answers 401 for anonymous callers, mirroring the
// backend the client was built against.
func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	u, err := a.users.Find(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	wire := toWire(u)
	writeJSON(w, http.StatusOK, api.IdentityResponse{Authenticated: true, User: &wire})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.Registration
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		handleError(w, r, err)
		return
	}
	ctx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
	_ = audit.LogEvent(audit.WithUserID(ctx, u.ID), audit.EventRegister, nil)
	writeJSON(w, http.StatusCreated, userEnvelope(u))
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	var req api.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.UpdateProfile(r.Context(), p.UserID, auth.ProfileChange{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Profile:     req.Profile,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	ctx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
	_ = audit.LogEvent(audit.WithUserID(ctx, u.ID), audit.EventProfileUpdate, nil)
	writeJSON(w, http.StatusOK, userEnvelope(u))
}
