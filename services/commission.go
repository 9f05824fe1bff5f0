package services

import (
	"context"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
)

var (
	DefaultReferralBonus          = decimal.NewFromInt(10)
	DefaultReferralBonusIncrement = decimal.NewFromInt(5)

	hundred = decimal.NewFromInt(100)
)

// CommissionCalculator derives a referrer's commission percentage from its tier:
// base + tier * increment, both read from settings on every call.
type CommissionCalculator struct {
	settings *SettingsService
}

func NewCommissionCalculator(settings *SettingsService) *CommissionCalculator {
	return &CommissionCalculator{settings: settings}
}

func (c *CommissionCalculator) Rate(ctx context.Context, tier models.ReferralTier) (decimal.Decimal, error) {
	const op = "commission rate"
	if !tier.Valid() {
		return decimal.Zero, validationError(op, "unknown referral tier %d", int(tier))
	}
	base, err := c.settings.DecimalOr(ctx, models.SettingReferralBonus, DefaultReferralBonus)
	if err != nil {
		return decimal.Zero, err
	}
	inc, err := c.settings.DecimalOr(ctx, models.SettingReferralBonusIncrement, DefaultReferralBonusIncrement)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Add(inc.Mul(decimal.NewFromInt(int64(tier)))), nil
}

// CommissionFor returns amount * rate / 100 rounded half away from zero to cents.
func CommissionFor(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(ratePercent).Div(hundred).Round(2)
}
