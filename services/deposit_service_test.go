package services

import (
	"context"
	"errors"
	"testing"

	"referral-ledger/models"
)

type fakeProofs struct {
	known map[string]bool
	err   error
}

func (p fakeProofs) Exists(_ context.Context, ref string) (bool, error) {
	return p.known[ref], p.err
}

func TestDepositApproveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "10", models.TierBronze, "")
	svc := NewDepositService(f.deps, nil)

	r, err := svc.RequestDeposit(f.ctx, acc, d("250"), "proofs/receipt.png")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	f.requireBalance(t, acc, "10")
	if r.Status != models.StatusPending {
		t.Fatalf("new request must be pending, got %s", r.Status)
	}

	approved, err := svc.ReviewDeposit(f.ctx, r.ID, DecisionApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ProcessedAt == nil || approved.Status != models.StatusApproved {
		t.Fatalf("unexpected reviewed request %+v", approved)
	}
	f.requireBalance(t, acc, "260")

	for _, again := range []Decision{DecisionApproved, DecisionRejected} {
		if _, err := svc.ReviewDeposit(f.ctx, r.ID, again); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict on re-review, got %v", err)
		}
	}
	f.requireBalance(t, acc, "260")
}

func TestDepositRejectHasNoBalanceEffect(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "10", models.TierBronze, "")
	svc := NewDepositService(f.deps, nil)

	r, _ := svc.RequestDeposit(f.ctx, acc, d("99.99"), "https://cdn.example/proof.jpg")
	if _, err := svc.ReviewDeposit(f.ctx, r.ID, DecisionRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	f.requireBalance(t, acc, "10")

	stored, _ := f.store.GetRechargeRequest(f.ctx, r.ID)
	if stored.Status != models.StatusRejected {
		t.Fatalf("expected rejected, got %s", stored.Status)
	}
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "0", models.TierBronze, "")
	svc := NewDepositService(f.deps, fakeProofs{known: map[string]bool{"proofs/ok.png": true}})

	if _, err := svc.RequestDeposit(f.ctx, acc, d("-1"), "proofs/ok.png"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for negative amount, got %v", err)
	}
	if _, err := svc.RequestDeposit(f.ctx, acc, d("10"), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for missing proof, got %v", err)
	}
	if _, err := svc.RequestDeposit(f.ctx, "ghost", d("10"), "proofs/ok.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.RequestDeposit(f.ctx, acc, d("10"), "proofs/missing.png"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for unknown proof, got %v", err)
	}
	if _, err := svc.RequestDeposit(f.ctx, acc, d("10"), "proofs/ok.png"); err != nil {
		t.Fatalf("valid request: %v", err)
	}
	if _, err := svc.ReviewDeposit(f.ctx, "missing", DecisionApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	broken := NewDepositService(f.deps, fakeProofs{err: errors.New("r2 unavailable")})
	if _, err := broken.RequestDeposit(f.ctx, acc, d("10"), "proofs/ok.png"); !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected transient error when proof store fails, got %v", err)
	}
}

func TestListDepositsByStatus(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "0", models.TierBronze, "")
	svc := NewDepositService(f.deps, nil)
	r1, _ := svc.RequestDeposit(f.ctx, acc, d("10"), "p1")
	_, _ = svc.RequestDeposit(f.ctx, acc, d("20"), "p2")
	_, _ = svc.ReviewDeposit(f.ctx, r1.ID, DecisionApproved)

	pending, _ := svc.ListDepositsByStatus(f.ctx, "")
	if len(pending) != 1 {
		t.Fatalf("expected one pending deposit, got %d", len(pending))
	}
	mine, _ := svc.ListDeposits(f.ctx, acc)
	if len(mine) != 2 {
		t.Fatalf("expected both deposits for the account, got %d", len(mine))
	}
}
