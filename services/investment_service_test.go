package services

import (
	"errors"
	"testing"
	"time"

	"referral-ledger/models"
	"referral-ledger/store"

	"github.com/shopspring/decimal"
)

func TestScenarioAInvestAndReturnNextDay(t *testing.T) {
	f := newFixture(t)
	investor := f.account(t, "1000", models.TierBronze, "")
	product := f.product(t, "5", 1, models.PeriodDay)
	svc := NewInvestmentService(f.deps)

	res, err := svc.CreateInvestment(f.ctx, investor, product.ID, d("200"))
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}
	f.requireBalance(t, investor, "800")
	if !res.Investment.AmountInvested.Equal(d("200")) || !res.Investment.CurrentValue.Equal(d("200")) {
		t.Fatalf("unexpected investment amounts: %+v", res.Investment)
	}
	if !res.Investment.LastReturnDate.Equal(f.clock.Now()) {
		t.Fatalf("lastReturnDate should be creation time")
	}
	if !res.CommissionAwarded.IsZero() {
		t.Fatalf("no referrer, expected zero commission, got %s", res.CommissionAwarded)
	}

	f.clock.Advance(24 * time.Hour)
	stats, err := NewReturnProcessor(f.deps, 1).RunScheduledReturnPass(f.ctx)
	if err != nil {
		t.Fatalf("return pass: %v", err)
	}
	if stats.Processed != 1 || !stats.TotalDistributed.Equal(d("10")) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	f.requireBalance(t, investor, "810")

	inv, _ := f.store.GetInvestment(f.ctx, res.Investment.ID)
	if !inv.LastReturnDate.Equal(f.clock.Now()) {
		t.Fatalf("lastReturnDate not advanced: %s", inv.LastReturnDate)
	}
	earnings := f.earnings(t, investor)
	if len(earnings) != 1 || earnings[0].Source != models.SourceInvestment || !earnings[0].Amount.Equal(d("10")) {
		t.Fatalf("expected one investment earning of 10, got %+v", earnings)
	}
}

func TestScenarioBTierTwoCommission(t *testing.T) {
	f := newFixture(t)
	referrer := f.account(t, "0", models.TierGold, "")
	investor := f.account(t, "100", models.TierBronze, referrer)
	product := f.product(t, "5", 1, models.PeriodDay)

	res, err := NewInvestmentService(f.deps).CreateInvestment(f.ctx, investor, product.ID, d("100"))
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}
	if !res.CommissionAwarded.Equal(d("20")) {
		t.Fatalf("expected commission 20, got %s", res.CommissionAwarded)
	}
	f.requireBalance(t, referrer, "20")
	f.requireBalance(t, investor, "0")

	earnings := f.earnings(t, referrer)
	if len(earnings) != 1 {
		t.Fatalf("expected exactly one earning, got %d", len(earnings))
	}
	e := earnings[0]
	if e.Source != models.SourceReferral || e.Status != models.EarningCredited || !e.Amount.Equal(d("20")) {
		t.Fatalf("unexpected earning %+v", e)
	}
	if e.ReferenceID == nil || *e.ReferenceID != res.Investment.ID || e.ReferenceModel != "investment" {
		t.Fatalf("earning should reference the investment: %+v", e)
	}
}

func TestCommissionConservation(t *testing.T) {
	for tier := models.TierBronze; tier <= models.TierPlatinum; tier++ {
		f := newFixture(t)
		referrer := f.account(t, "37.15", tier, "")
		investor := f.account(t, "1000", models.TierBronze, referrer)
		product := f.product(t, "2", 1, models.PeriodWeek)

		amount := d("123.45")
		res, err := NewInvestmentService(f.deps).CreateInvestment(f.ctx, investor, product.ID, amount)
		if err != nil {
			t.Fatalf("tier %s: %v", tier, err)
		}
		rate := DefaultReferralBonus.Add(DefaultReferralBonusIncrement.Mul(decimal.NewFromInt(int64(tier))))
		want := CommissionFor(amount, rate)

		if !res.CommissionAwarded.Equal(want) {
			t.Fatalf("tier %s: commission %s, want %s", tier, res.CommissionAwarded, want)
		}
		f.requireBalance(t, investor, d("1000").Sub(amount).String())
		f.requireBalance(t, referrer, d("37.15").Add(want).String())
	}
}

func TestInvestmentWithoutReferrerCreatesNoEarning(t *testing.T) {
	f := newFixture(t)
	investor := f.account(t, "500", models.TierBronze, "")
	product := f.product(t, "5", 1, models.PeriodDay)

	if _, err := NewInvestmentService(f.deps).CreateInvestment(f.ctx, investor, product.ID, d("250")); err != nil {
		t.Fatalf("create investment: %v", err)
	}
	f.requireBalance(t, investor, "250")
	all, _ := f.store.ListEarnings(f.ctx, store.EarningFilter{})
	if len(all) != 0 {
		t.Fatalf("expected no earnings, got %d", len(all))
	}
}

func TestCreateInvestmentRejections(t *testing.T) {
	f := newFixture(t)
	investor := f.account(t, "150", models.TierBronze, "")
	product := f.product(t, "5", 1, models.PeriodDay)
	svc := NewInvestmentService(f.deps)

	inactive := &models.InvestmentProduct{ID: "inactive", Name: "Old", ReturnRate: d("1"), ReturnPeriod: 1, ReturnPeriodUnit: models.PeriodDay, Status: models.ProductInactive}
	_ = f.store.CreateProduct(f.ctx, inactive)
	premium := &models.InvestmentProduct{ID: "premium", Name: "Premium", MinimumAmount: d("120"), ReturnRate: d("1"), ReturnPeriod: 1, ReturnPeriodUnit: models.PeriodDay, Status: models.ProductActive}
	_ = f.store.CreateProduct(f.ctx, premium)

	tests := []struct {
		name      string
		account   string
		product   string
		amount    string
		wantKind  error
		configure func()
	}{
		{name: "zero amount", account: investor, product: product.ID, amount: "0", wantKind: ErrValidation},
		{name: "negative amount", account: investor, product: product.ID, amount: "-5", wantKind: ErrValidation},
		{name: "sub-cent amount", account: investor, product: product.ID, amount: "1.001", wantKind: ErrValidation},
		{name: "missing product", account: investor, product: "nope", amount: "10", wantKind: ErrNotFound},
		{name: "inactive product", account: investor, product: "inactive", amount: "10", wantKind: ErrValidation},
		{name: "below product minimum", account: investor, product: "premium", amount: "100", wantKind: ErrValidation},
		{name: "missing account", account: "ghost", product: product.ID, amount: "10", wantKind: ErrNotFound},
		{name: "insufficient funds", account: investor, product: product.ID, amount: "150.01", wantKind: ErrInsufficientFunds},
		{
			name: "below configured minimum", account: investor, product: product.ID, amount: "50", wantKind: ErrValidation,
			configure: func() { f.store.SetSetting(models.SettingMinInvestment, "100") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.configure != nil {
				tt.configure()
			}
			_, err := svc.CreateInvestment(f.ctx, tt.account, tt.product, d(tt.amount))
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("expected %v, got %v", tt.wantKind, err)
			}
			f.requireBalance(t, investor, "150")
		})
	}

	list, _ := svc.ListInvestments(f.ctx, investor)
	if len(list) != 0 {
		t.Fatalf("rejected requests must not create investments, got %d", len(list))
	}
}

func TestCommissionFailureKeepsInvestment(t *testing.T) {
	f := newFixture(t)
	referrer := f.account(t, "0", models.TierBronze, "")
	investor := f.account(t, "300", models.TierBronze, referrer)
	product := f.product(t, "5", 1, models.PeriodDay)
	svc := NewInvestmentService(f.deps)

	f.store.Fail("CreateEarning", referrer, errors.New("disk full"))
	res, err := svc.CreateInvestment(f.ctx, investor, product.ID, d("200"))
	if err != nil {
		t.Fatalf("investment must succeed when commission fails: %v", err)
	}
	if !res.CommissionAwarded.IsZero() {
		t.Fatalf("failed commission must report zero, got %s", res.CommissionAwarded)
	}
	f.requireBalance(t, investor, "100")
	f.requireBalance(t, referrer, "0")

	f.store.Fail("CreateEarning", referrer, nil)
	amount, err := svc.RetryCommission(f.ctx, res.Investment.ID)
	if err != nil {
		t.Fatalf("retry commission: %v", err)
	}
	if !amount.Equal(d("20")) {
		t.Fatalf("expected retried commission 20, got %s", amount)
	}
	f.requireBalance(t, referrer, "20")

	again, err := svc.RetryCommission(f.ctx, res.Investment.ID)
	if err != nil || !again.Equal(d("20")) {
		t.Fatalf("second retry should report the original amount, got %s (%v)", again, err)
	}
	f.requireBalance(t, referrer, "20")
	if n := len(f.earnings(t, referrer)); n != 1 {
		t.Fatalf("expected exactly one commission earning, got %d", n)
	}
}

func TestCommissionSettingsOutageKeepsInvestment(t *testing.T) {
	f := newFixture(t)
	referrer := f.account(t, "0", models.TierBronze, "")
	investor := f.account(t, "300", models.TierBronze, referrer)
	product := f.product(t, "5", 1, models.PeriodDay)
	svc := NewInvestmentService(f.deps)

	f.store.Fail("GetSetting", models.SettingReferralBonus, errors.New("timeout"))
	res, err := svc.CreateInvestment(f.ctx, investor, product.ID, d("100"))
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}
	if !res.CommissionAwarded.IsZero() {
		t.Fatalf("expected zero commission during settings outage")
	}
	f.requireBalance(t, investor, "200")
	f.requireBalance(t, referrer, "0")
}

func TestWithdrawInvestmentPrincipal(t *testing.T) {
	f := newFixture(t)
	investor := f.account(t, "500", models.TierBronze, "")
	other := f.account(t, "0", models.TierBronze, "")
	product := f.product(t, "5", 1, models.PeriodDay)
	svc := NewInvestmentService(f.deps)

	res, err := svc.CreateInvestment(f.ctx, investor, product.ID, d("300"))
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}

	if _, err := svc.WithdrawInvestmentPrincipal(f.ctx, res.Investment.ID, other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign investment should be not found, got %v", err)
	}

	amount, err := svc.WithdrawInvestmentPrincipal(f.ctx, res.Investment.ID, investor)
	if err != nil {
		t.Fatalf("withdraw principal: %v", err)
	}
	if !amount.Equal(d("300")) {
		t.Fatalf("expected 300 back, got %s", amount)
	}
	f.requireBalance(t, investor, "500")

	inv, _ := f.store.GetInvestment(f.ctx, res.Investment.ID)
	if inv.Status != models.InvestmentWithdrawn || inv.WithdrawnAt == nil {
		t.Fatalf("investment should be withdrawn: %+v", inv)
	}

	if _, err := svc.WithdrawInvestmentPrincipal(f.ctx, res.Investment.ID, investor); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on second withdrawal, got %v", err)
	}
	f.requireBalance(t, investor, "500")
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewInvestmentService(f.deps)

	if _, err := svc.CreateProduct(f.ctx, ProductInput{Name: "x", ReturnRate: d("1"), ReturnPeriod: 0, ReturnPeriodUnit: models.PeriodDay}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero period, got %v", err)
	}
	if _, err := svc.CreateProduct(f.ctx, ProductInput{Name: "x", ReturnRate: d("1"), ReturnPeriod: 1, ReturnPeriodUnit: "year"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unit, got %v", err)
	}
	p, err := svc.CreateProduct(f.ctx, ProductInput{Name: "Gold", ReturnRate: d("2.5"), ReturnPeriod: 1, ReturnPeriodUnit: models.PeriodMonth})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if p.Status != models.ProductActive {
		t.Fatalf("new products default to active, got %s", p.Status)
	}
	list, _ := svc.ListProducts(f.ctx, true)
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("expected the new product listed, got %+v", list)
	}
}

func TestUpdateProductStatus(t *testing.T) {
	f := newFixture(t)
	svc := NewInvestmentService(f.deps)
	first := f.account(t, "500", models.TierBronze, "")
	second := f.account(t, "500", models.TierBronze, "")
	product := f.product(t, "3", 1, models.PeriodWeek)

	running, err := svc.CreateInvestment(f.ctx, first, product.ID, d("200"))
	if err != nil {
		t.Fatalf("create investment: %v", err)
	}

	inactive := models.ProductInactive
	p, err := svc.UpdateProduct(f.ctx, product.ID, ProductPatch{Status: &inactive})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if p.Status != models.ProductInactive || p.Name != product.Name || !p.ReturnRate.Equal(d("3")) {
		t.Fatalf("unexpected product after deactivation %+v", p)
	}
	if _, err := svc.CreateInvestment(f.ctx, second, product.ID, d("100")); !errors.Is(err, ErrValidation) {
		t.Fatalf("investing in inactive product: expected validation, got %v", err)
	}
	f.requireBalance(t, second, "500")
	if active, _ := svc.ListProducts(f.ctx, true); len(active) != 0 {
		t.Fatalf("inactive product still listed as active: %+v", active)
	}
	kept, err := f.store.GetInvestment(f.ctx, running.Investment.ID)
	if err != nil || kept.Status != models.InvestmentActive {
		t.Fatalf("running investment should stay active: %+v, %v", kept, err)
	}

	rate, minimum := d("4.5"), d("50")
	p, err = svc.UpdateProduct(f.ctx, product.ID, ProductPatch{ReturnRate: &rate, MinimumAmount: &minimum})
	if err != nil || !p.ReturnRate.Equal(rate) || !p.MinimumAmount.Equal(minimum) || p.Status != models.ProductInactive {
		t.Fatalf("partial update %+v, %v", p, err)
	}

	empty, negative, paused := "", d("-1"), models.ProductStatus("paused")
	for name, patch := range map[string]ProductPatch{
		"empty name":    {Name: &empty},
		"negative rate": {ReturnRate: &negative},
		"negative min":  {MinimumAmount: &negative},
		"bad status":    {Status: &paused},
	} {
		if _, err := svc.UpdateProduct(f.ctx, product.ID, patch); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation, got %v", name, err)
		}
	}
	if _, err := svc.UpdateProduct(f.ctx, "missing", ProductPatch{Status: &inactive}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing product: expected not found, got %v", err)
	}
}

func TestListAllInvestments(t *testing.T) {
	f := newFixture(t)
	svc := NewInvestmentService(f.deps)
	a := f.account(t, "300", models.TierBronze, "")
	b := f.account(t, "300", models.TierBronze, "")
	product := f.product(t, "1", 1, models.PeriodDay)

	for _, id := range []string{a, b, a} {
		if _, err := svc.CreateInvestment(f.ctx, id, product.ID, d("50")); err != nil {
			t.Fatalf("create investment for %s: %v", id, err)
		}
	}
	all, err := svc.ListAllInvestments(f.ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("all investments %d, %v", len(all), err)
	}
	if all[0].AccountID != a || all[1].AccountID != b || all[2].AccountID != a {
		t.Fatalf("expected newest first, got %s %s %s", all[0].AccountID, all[1].AccountID, all[2].AccountID)
	}
	mine, err := svc.ListInvestments(f.ctx, b)
	if err != nil || len(mine) != 1 || mine[0].AccountID != b {
		t.Fatalf("account investments %+v, %v", mine, err)
	}
	if _, err := svc.ListInvestments(f.ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty account id: expected validation, got %v", err)
	}
}
