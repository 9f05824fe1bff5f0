package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a user supplied money amount: positive, at most two decimal places.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places allowed", ErrInvalidAmount)
	}
	return nil
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders d with thousands grouping and two decimals, e.g. 1,234.50.
func FormatAmount(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	grouped := whole
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		grouped = amountPrinter.Sprintf("%d", n)
	}
	if d.IsNegative() {
		grouped = "-" + grouped
	}
	return grouped + "." + frac
}
