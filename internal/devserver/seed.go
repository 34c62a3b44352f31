package devserver

import (
	"context"
	"fmt"

	"sharedledger.org/internal/ledger"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

// Seeded lists what Seed created.
type Seeded struct {
	Users         map[string]int64 // email -> id
	PrivateGroup  int64
	PublicGroup   int64
	OutsiderGroup int64
}

// Seed creates demo users, a private and a public group with a few expenses,
// and a private group the demo users do not belong to.
func (a *API) Seed(ctx context.Context) (Seeded, error) {
	out := Seeded{Users: make(map[string]int64)}
	people := []struct{ email, name string }{
		{"ana@example.com", "Ana"},
		{"bo@example.com", "Bo"},
		{"cy@example.com", "Cy"},
	}
	for _, p := range people {
		u, err := a.users.Register(ctx, p.email, p.name, DemoPassword)
		if err != nil {
			return Seeded{}, fmt.Errorf("seed user %s: %w", p.email, err)
		}
		out.Users[p.email] = u.ID
	}
	ana, bo, cy := out.Users["ana@example.com"], out.Users["bo@example.com"], out.Users["cy@example.com"]

	flat, err := a.ledger.CreateGroup(ctx, ledger.Group{Name: "Flat", OwnerID: ana, Members: []int64{bo}, Currency: "EUR"})
	if err != nil {
		return Seeded{}, fmt.Errorf("seed group: %w", err)
	}
	trip, err := a.ledger.CreateGroup(ctx, ledger.Group{Name: "Climbing trip", OwnerID: bo, Members: []int64{ana}, Currency: "EUR", IsPublic: true})
	if err != nil {
		return Seeded{}, fmt.Errorf("seed group: %w", err)
	}
	other, err := a.ledger.CreateGroup(ctx, ledger.Group{Name: "Book club", OwnerID: cy, Currency: "EUR"})
	if err != nil {
		return Seeded{}, fmt.Errorf("seed group: %w", err)
	}

	expenses := []ledger.Expense{
		{GroupID: flat.ID, PaidBy: ana, Description: "Groceries", Amount: ledger.Money{Currency: "EUR", Amount: 4250}},
		{GroupID: flat.ID, PaidBy: bo, Description: "Internet", Amount: ledger.Money{Currency: "EUR", Amount: 3000}},
		{GroupID: trip.ID, PaidBy: bo, Description: "Fuel", Amount: ledger.Money{Currency: "EUR", Amount: 6000}},
	}
	for _, e := range expenses {
		if _, err := a.ledger.AddExpense(ctx, e); err != nil {
			return Seeded{}, fmt.Errorf("seed expense: %w", err)
		}
	}

	out.PrivateGroup, out.PublicGroup, out.OutsiderGroup = flat.ID, trip.ID, other.ID
	return out, nil
}
