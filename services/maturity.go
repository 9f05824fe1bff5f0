package services

import (
	"fmt"
	"time"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
)

const (
	msPerDay  = float64(24 * time.Hour / time.Millisecond)
	msPerWeek = 7 * msPerDay

	// daysPerMonth approximates the fractional month contributed by the day-of-month difference.
	daysPerMonth = 30.44
)

// Elapsed measures how many return periods of unit have passed between last and now.
// Day and week use whole milliseconds; month counts calendar months plus the day difference
// over 30.44, evaluated in UTC.
func Elapsed(unit models.ReturnPeriodUnit, last, now time.Time) (float64, error) {
	switch unit {
	case models.PeriodDay:
		return float64(now.Sub(last).Milliseconds()) / msPerDay, nil
	case models.PeriodWeek:
		return float64(now.Sub(last).Milliseconds()) / msPerWeek, nil
	case models.PeriodMonth:
		l, n := last.UTC(), now.UTC()
		months := (n.Year()-l.Year())*12 + int(n.Month()) - int(l.Month())
		return float64(months) + float64(n.Day()-l.Day())/daysPerMonth, nil
	}
	return 0, fmt.Errorf("invalid return period unit %q", unit)
}

// IsDue reports whether a full return period has passed since the investment's last return.
func IsDue(product *models.InvestmentProduct, lastReturn, now time.Time) (bool, error) {
	elapsed, err := Elapsed(product.ReturnPeriodUnit, lastReturn, now)
	if err != nil {
		return false, err
	}
	return elapsed >= float64(product.ReturnPeriod), nil
}

// ReturnAmount is the per-period payout, amountInvested * returnRate / 100, in cents.
func ReturnAmount(amountInvested, returnRate decimal.Decimal) decimal.Decimal {
	return amountInvested.Mul(returnRate).Div(hundred).Round(2)
}
