package services

import (
	"errors"
	"testing"

	"referral-ledger/models"
)

func TestCommissionRateDefaults(t *testing.T) {
	f := newFixture(t)
	calc := NewCommissionCalculator(NewSettingsService(f.store, nil))

	want := map[models.ReferralTier]string{
		models.TierBronze:   "10",
		models.TierSilver:   "15",
		models.TierGold:     "20",
		models.TierDiamond:  "25",
		models.TierPlatinum: "30",
	}
	for tier, rate := range want {
		got, err := calc.Rate(f.ctx, tier)
		if err != nil {
			t.Fatalf("rate(%s): %v", tier, err)
		}
		if !got.Equal(d(rate)) {
			t.Fatalf("rate(%s) = %s, want %s", tier, got, rate)
		}
	}
}

func TestCommissionRateReadsSettingsEachCall(t *testing.T) {
	f := newFixture(t)
	calc := NewCommissionCalculator(NewSettingsService(f.store, nil))

	f.store.SetSetting(models.SettingReferralBonus, "8")
	f.store.SetSetting(models.SettingReferralBonusIncrement, "3")
	got, err := calc.Rate(f.ctx, models.TierGold)
	if err != nil || !got.Equal(d("14")) {
		t.Fatalf("expected 14, got %s (%v)", got, err)
	}

	f.store.SetSetting(models.SettingReferralBonus, "12")
	got, _ = calc.Rate(f.ctx, models.TierGold)
	if !got.Equal(d("18")) {
		t.Fatalf("expected updated rate 18, got %s", got)
	}
}

func TestCommissionRateSettingsFailureIsNotDefaulted(t *testing.T) {
	f := newFixture(t)
	calc := NewCommissionCalculator(NewSettingsService(f.store, nil))

	f.store.Fail("GetSetting", "", errors.New("connection reset"))
	if _, err := calc.Rate(f.ctx, models.TierBronze); !errors.Is(err, ErrSettingsUnavailable) {
		t.Fatalf("expected ErrSettingsUnavailable, got %v", err)
	}

	f.store.Fail("GetSetting", "", nil)
	f.store.SetSetting(models.SettingReferralBonus, "ten")
	if _, err := calc.Rate(f.ctx, models.TierBronze); !errors.Is(err, ErrSettingsUnavailable) {
		t.Fatalf("expected ErrSettingsUnavailable for non-numeric value, got %v", err)
	}
}

func TestCommissionRateRejectsUnknownTier(t *testing.T) {
	f := newFixture(t)
	calc := NewCommissionCalculator(NewSettingsService(f.store, nil))
	if _, err := calc.Rate(f.ctx, models.ReferralTier(7)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCommissionForRounding(t *testing.T) {
	tests := []struct{ amount, rate, want string }{
		{"100", "20", "20"},
		{"200", "10", "20"},
		{"333.33", "15", "50"},
		{"0.05", "10", "0.01"},
		{"0.04", "10", "0"},
	}
	for _, tt := range tests {
		if got := CommissionFor(d(tt.amount), d(tt.rate)); !got.Equal(d(tt.want)) {
			t.Fatalf("CommissionFor(%s, %s) = %s, want %s", tt.amount, tt.rate, got, tt.want)
		}
	}
}
