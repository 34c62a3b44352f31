package ledger

import (
	"errors"
	"time"
)

// Money is represented in minor units (e.g., cents). No floats.
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsZero() bool     { return m.Amount == 0 }

// Group is a set of people sharing expenses. Public groups are readable
// without a session.
type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"isPublic"`
	OwnerID   int64     `json:"ownerId"`
	Members   []int64   `json:"members"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID belongs to the group.
func (g Group) HasMember(userID int64) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Expense is one payment split evenly among group members.
type Expense struct {
	ID             int64     `json:"id"`
	GroupID        int64     `json:"groupId"`
	PaidBy         int64     `json:"paidBy"`
	Description    string    `json:"description"`
	Amount         Money     `json:"amount"`
	SplitAmong     []int64   `json:"splitAmong"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Sequence       uint64    `json:"sequence"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Balance is a member's net position in a group: positive is owed to them.
type Balance struct {
	UserID int64 `json:"userId"`
	Net    Money `json:"net"`
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount (must be > 0)")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrNotMember       = errors.New("user is not a group member")
	ErrInvalidGroup    = errors.New("invalid group")
)
