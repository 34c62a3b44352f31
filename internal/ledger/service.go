package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Service defines the group ledger operations the API serves.
type Service interface {
	CreateGroup(ctx context.Context, g Group) (Group, error)
	Group(ctx context.Context, id int64) (Group, error)
	GroupsFor(ctx context.Context, userID int64) ([]Group, error)
	AddExpense(ctx context.Context, e Expense) (Expense, error)
	Expenses(ctx context.Context, groupID int64) ([]Expense, error)
	Balances(ctx context.Context, groupID int64) ([]Balance, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	groups   map[int64]*Group
	nextID   int64
	seq      uint64
	expenses map[int64][]Expense // group id -> expenses
	idem     map[string]Expense  // idempotency key -> expense
}

// NewInMemory creates an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		groups:   make(map[int64]*Group),
		expenses: make(map[int64][]Expense),
		idem:     make(map[string]Expense),
	}
}

func (s *InMemory) CreateGroup(ctx context.Context, g Group) (Group, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" || g.OwnerID == 0 {
		return Group{}, ErrInvalidGroup
	}
	g.Currency = strings.ToUpper(strings.TrimSpace(g.Currency))
	if g.Currency == "" {
		return Group{}, ErrInvalidCurrency
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	g.ID = s.nextID
	g.CreatedAt = time.Now().UTC()
	if !g.HasMember(g.OwnerID) {
		g.Members = append([]int64{g.OwnerID}, g.Members...)
	}
	stored := g
	stored.Members = append([]int64(nil), g.Members...)
	s.groups[g.ID] = &stored
	return copyGroup(&stored), nil
}

func (s *InMemory) Group(ctx context.Context, id int64) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, ErrNotFound
	}
	return copyGroup(g), nil
}

func (s *InMemory) GroupsFor(ctx context.Context, userID int64) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Group
	for _, g := range s.groups {
		if g.HasMember(userID) {
			res = append(res, copyGroup(g))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemory) AddExpense(ctx context.Context, e Expense) (Expense, error) {
	if !e.Amount.IsPositive() {
		return Expense{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IdempotencyKey != "" {
		if prev, ok := s.idem[e.IdempotencyKey]; ok {
			return prev, nil
		}
	}

	g, ok := s.groups[e.GroupID]
	if !ok {
		return Expense{}, ErrNotFound
	}
	if e.Amount.Currency != g.Currency {
		return Expense{}, ErrInvalidCurrency
	}
	if !g.HasMember(e.PaidBy) {
		return Expense{}, ErrNotMember
	}
	if len(e.SplitAmong) == 0 {
		e.SplitAmong = append([]int64(nil), g.Members...)
	}
	for _, m := range e.SplitAmong {
		if !g.HasMember(m) {
			return Expense{}, ErrNotMember
		}
	}

	s.seq++
	e.ID = int64(s.seq)
	e.Sequence = s.seq
	e.CreatedAt = time.Now().UTC()
	s.expenses[e.GroupID] = append(s.expenses[e.GroupID], e)
	if e.IdempotencyKey != "" {
		s.idem[e.IdempotencyKey] = e
	}
	return e, nil
}

func (s *InMemory) Expenses(ctx context.Context, groupID int64) ([]Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.groups[groupID]; !ok {
		return nil, ErrNotFound
	}
	return append([]Expense(nil), s.expenses[groupID]...), nil
}

// Balances returns each member's net position. Shares that do not divide
// evenly leave the remainder with the payer. Net positions sum to zero.
func (s *InMemory) Balances(ctx context.Context, groupID int64) ([]Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}

	net := make(map[int64]int64, len(g.Members))
	for _, m := range g.Members {
		net[m] = 0
	}
	for _, e := range s.expenses[groupID] {
		share := e.Amount.Amount / int64(len(e.SplitAmong))
		net[e.PaidBy] += e.Amount.Amount
		for _, m := range e.SplitAmong {
			net[m] -= share
		}
		net[e.PaidBy] -= e.Amount.Amount - share*int64(len(e.SplitAmong))
	}

	res := make([]Balance, 0, len(net))
	for _, m := range g.Members {
		res = append(res, Balance{UserID: m, Net: Money{Currency: g.Currency, Amount: net[m]}})
	}
	return res, nil
}

func copyGroup(g *Group) Group {
	out := *g
	out.Members = append([]int64(nil), g.Members...)
	return out
}
