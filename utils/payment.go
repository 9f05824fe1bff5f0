package utils

import (
	"referral-ledger/models"

	"github.com/gosimple/slug"
)

var paymentMethodAliases = map[string]models.PaymentMethod{
	"easypaisa":     models.MethodEasypaisa,
	"easy-paisa":    models.MethodEasypaisa,
	"jazzcash":      models.MethodJazzcash,
	"jazz-cash":     models.MethodJazzcash,
	"bank":          models.MethodBank,
	"bank-transfer": models.MethodBank,
	"bank-account":  models.MethodBank,
}

// NormalizePaymentMethod maps free-form input ("Bank Transfer", "EasyPaisa") to a supported method.
func NormalizePaymentMethod(raw string) (models.PaymentMethod, bool) {
	m, ok := paymentMethodAliases[slug.Make(raw)]
	return m, ok
}
