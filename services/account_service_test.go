package services

import (
	"errors"
	"testing"

	"referral-ledger/models"
)

func TestTierForReferralCount(t *testing.T) {
	tests := map[int64]models.ReferralTier{
		0:   models.TierBronze,
		4:   models.TierBronze,
		5:   models.TierSilver,
		9:   models.TierSilver,
		10:  models.TierGold,
		19:  models.TierGold,
		20:  models.TierDiamond,
		39:  models.TierDiamond,
		40:  models.TierPlatinum,
		400: models.TierPlatinum,
	}
	for n, want := range tests {
		if got := TierForReferralCount(n); got != want {
			t.Fatalf("TierForReferralCount(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestRegisterReferralPromotesTier(t *testing.T) {
	f := newFixture(t)
	referrer := f.account(t, "0", models.TierBronze, "")
	svc := NewAccountService(f.deps)

	var last *models.Account
	for i := 0; i < 5; i++ {
		referred := f.account(t, "0", models.TierBronze, "")
		acc, err := svc.RegisterReferral(f.ctx, referrer, referred)
		if err != nil {
			t.Fatalf("register referral %d: %v", i, err)
		}
		last = acc
	}
	if last.ReferralCount != 5 || last.ReferralTier != models.TierSilver {
		t.Fatalf("expected 5 referrals at silver, got %+v", last)
	}
	stored, _ := svc.GetAccount(f.ctx, referrer)
	if stored.ReferralTier != models.TierSilver {
		t.Fatalf("tier not persisted: %s", stored.ReferralTier)
	}
}

func TestRegisterReferralRejections(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "0", models.TierBronze, "")
	b := f.account(t, "0", models.TierBronze, a)
	c := f.account(t, "0", models.TierBronze, "")
	svc := NewAccountService(f.deps)

	if _, err := svc.RegisterReferral(f.ctx, a, a); !errors.Is(err, ErrValidation) {
		t.Fatalf("self referral: expected validation, got %v", err)
	}
	if _, err := svc.RegisterReferral(f.ctx, c, b); !errors.Is(err, ErrConflict) {
		t.Fatalf("already referred: expected conflict, got %v", err)
	}
	if _, err := svc.RegisterReferral(f.ctx, "ghost", c); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown referrer: expected not found, got %v", err)
	}
	stored, _ := svc.GetAccount(f.ctx, c)
	if stored.ReferredByID != nil {
		t.Fatalf("failed registration must not link accounts")
	}
	if _, err := svc.GetAccount(f.ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSyncMirrorsKeepsRegisteredReferral(t *testing.T) {
	f := newFixture(t)
	referrer := f.account(t, "0", models.TierBronze, "")
	investor := f.account(t, "100", models.TierBronze, "")
	accounts := NewAccountService(f.deps)

	if _, err := accounts.RegisterReferral(f.ctx, referrer, investor); err != nil {
		t.Fatalf("register referral: %v", err)
	}
	updated := f.clock.Now()
	n, err := accounts.SyncMirrors(f.ctx, []models.Account{
		{ID: investor, RemoteUpdatedAt: &updated},
		{ID: "newcomer", RemoteUpdatedAt: &updated},
	})
	if err != nil || n != 2 {
		t.Fatalf("sync: n=%d err=%v", n, err)
	}

	stored, err := accounts.GetAccount(f.ctx, investor)
	if err != nil {
		t.Fatalf("get investor: %v", err)
	}
	if stored.ReferredByID == nil || *stored.ReferredByID != referrer {
		t.Fatalf("referral link lost by sync: %v", stored.ReferredByID)
	}
	f.requireBalance(t, investor, "100")
	if newcomer, err := accounts.GetAccount(f.ctx, "newcomer"); err != nil || newcomer.ReferredByID != nil {
		t.Fatalf("newcomer mirror %+v, %v", newcomer, err)
	}

	product := f.product(t, "5", 1, models.PeriodDay)
	res, err := NewInvestmentService(f.deps).CreateInvestment(f.ctx, investor, product.ID, d("100"))
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}
	if !res.CommissionAwarded.Equal(d("10")) {
		t.Fatalf("commission %s, want 10", res.CommissionAwarded)
	}
	f.requireBalance(t, referrer, "10")
}
