package devserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sharedledger.org/internal/api"
	"sharedledger.org/internal/auth"
	"sharedledger.org/internal/guard"
	"sharedledger.org/internal/ledger"
	"sharedledger.org/internal/stream"
)

type expenseRequest struct {
	Description string       `json:"description"`
	Amount      ledger.Money `json:"amount"`
	PaidBy      int64        `json:"paidBy,omitempty"`
	SplitAmong  []int64      `json:"splitAmong,omitempty"`
}

func groupID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// readableGroup loads the group and checks read access: public groups,
// members, and holders of the group's share token may read.
func (a *API) readableGroup(w http.ResponseWriter, r *http.Request) (ledger.Group, bool) {
	id, ok := groupID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid group id")
		return ledger.Group{}, false
	}
	g, err := a.ledger.Group(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return ledger.Group{}, false
	}
	if g.IsPublic || a.hasShareToken(r, g.ID) {
		return g, true
	}
	p, authed := auth.PrincipalFrom(r.Context())
	switch {
	case !authed:
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return ledger.Group{}, false
	case !g.HasMember(p.UserID):
		writeError(w, r, http.StatusForbidden, "not a member of this group")
		return ledger.Group{}, false
	}
	return g, true
}

// memberGroup loads the group and requires the caller to be a member.
func (a *API) memberGroup(w http.ResponseWriter, r *http.Request) (ledger.Group, auth.Principal, bool) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, ok := groupID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid group id")
		return ledger.Group{}, p, false
	}
	g, err := a.ledger.Group(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return ledger.Group{}, p, false
	}
	if !g.HasMember(p.UserID) {
		writeError(w, r, http.StatusForbidden, "not a member of this group")
		return ledger.Group{}, p, false
	}
	return g, p, true
}

func (a *API) hasShareToken(r *http.Request, id int64) bool {
	tok := r.URL.Query().Get(guard.BypassTokenKey)
	if tok == "" {
		tok = r.Header.Get(guard.ShareTokenHeader)
	}
	if tok == "" {
		return false
	}
	a.shareMu.RLock()
	defer a.shareMu.RUnlock()
	return a.shares[id] == tok
}

func (a *API) handleListGroups(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	groups, err := a.ledger.GroupsFor(r.Context(), p.UserID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if groups == nil {
		groups = []ledger.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	var req api.NewGroup
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for _, m := range req.Members {
		if _, err := a.users.Find(r.Context(), m); err != nil {
			writeError(w, r, http.StatusBadRequest, "unknown member "+strconv.FormatInt(m, 10))
			return
		}
	}
	g, err := a.ledger.CreateGroup(r.Context(), ledger.Group{
		Name:     req.Name,
		IsPublic: req.IsPublic,
		OwnerID:  p.UserID,
		Members:  req.Members,
		Currency: req.Currency,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, ok := a.readableGroup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleShareGroup returns the group's share token, minting it on first use.
func (a *API) handleShareGroup(w http.ResponseWriter, r *http.Request) {
	g, _, ok := a.memberGroup(w, r)
	if !ok {
		return
	}
	a.shareMu.Lock()
	tok, exists := a.shares[g.ID]
	if !exists {
		tok = uuid.NewString()
		a.shares[g.ID] = tok
	}
	a.shareMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	g, ok := a.readableGroup(w, r)
	if !ok {
		return
	}
	items, err := a.ledger.Expenses(r.Context(), g.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if items == nil {
		items = []ledger.Expense{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	g, p, ok := a.memberGroup(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	paidBy := req.PaidBy
	if paidBy == 0 {
		paidBy = p.UserID
	}
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	e, err := a.ledger.AddExpense(r.Context(), ledger.Expense{
		GroupID:        g.ID,
		PaidBy:         paidBy,
		Description:    strings.TrimSpace(req.Description),
		Amount:         ledger.Money{Currency: strings.ToUpper(req.Amount.Currency), Amount: req.Amount.Amount},
		SplitAmong:     req.SplitAmong,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if idemKey != "" {
		w.Header().Set("Idempotency-Key", idemKey)
	}
	a.stream.Publish(stream.Event{Type: stream.EventExpenseAdded, GroupID: g.ID, Expense: &e})
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	g, ok := a.readableGroup(w, r)
	if !ok {
		return
	}
	items, err := a.ledger.Balances(r.Context(), g.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
