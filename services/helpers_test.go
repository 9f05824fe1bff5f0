package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"referral-ledger/models"
	"referral-ledger/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	ctx   context.Context
	store *store.MemoryStore
	clock *manualClock
	deps  Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	clk := &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return &fixture{
		ctx:   context.Background(),
		store: st,
		clock: clk,
		deps:  Deps{Store: st, Clock: clk},
	}
}

func (f *fixture) account(t *testing.T, balance string, tier models.ReferralTier, referredBy string) string {
	t.Helper()
	acc := &models.Account{ID: uuid.NewString(), Balance: d(balance), ReferralTier: tier}
	if referredBy != "" {
		acc.ReferredByID = &referredBy
	}
	if err := f.store.CreateAccount(f.ctx, acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc.ID
}

func (f *fixture) product(t *testing.T, rate string, period int, unit models.ReturnPeriodUnit) *models.InvestmentProduct {
	t.Helper()
	p := &models.InvestmentProduct{
		ID:               uuid.NewString(),
		Name:             "Starter Plan",
		MinimumAmount:    decimal.Zero,
		ReturnRate:       d(rate),
		ReturnPeriod:     period,
		ReturnPeriodUnit: unit,
		Status:           models.ProductActive,
	}
	if err := f.store.CreateProduct(f.ctx, p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.GetAccount(f.ctx, id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return acc.Balance
}

func (f *fixture) requireBalance(t *testing.T, id, want string) {
	t.Helper()
	if got := f.balance(t, id); !got.Equal(d(want)) {
		t.Fatalf("balance of %s = %s, want %s", id, got, want)
	}
}

func (f *fixture) earnings(t *testing.T, accountID string) []models.Earning {
	t.Helper()
	list, err := f.store.ListEarnings(f.ctx, store.EarningFilter{AccountID: accountID})
	if err != nil {
		t.Fatalf("list earnings: %v", err)
	}
	return list
}
