package services

import (
	"context"
	"errors"

	"referral-ledger/logging"
	"referral-ledger/models"
	"referral-ledger/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettingsService reads numeric site settings at call time, so admin changes apply immediately.
type SettingsService struct {
	store store.SettingsStore
	log   *zap.Logger
}

func NewSettingsService(st store.SettingsStore, log *zap.Logger) *SettingsService {
	return &SettingsService{store: st, log: logging.OrNop(log).Named("settings")}
}

// Decimal returns the setting value, or ok=false when the key is absent. A store failure or a
// value that is not a number is ErrSettingsUnavailable.
func (s *SettingsService) Decimal(ctx context.Context, key string) (value decimal.Decimal, ok bool, err error) {
	const op = "read setting"
	setting, err := s.store.GetSetting(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, &LedgerError{Kind: ErrSettingsUnavailable, Op: op, Msg: key, Err: err}
	}
	value, err = decimal.NewFromString(setting.Value)
	if err != nil {
		return decimal.Zero, false, &LedgerError{Kind: ErrSettingsUnavailable, Op: op, Msg: key + " is not numeric", Err: err}
	}
	return value, true, nil
}

// DecimalOr is Decimal with a default for absent keys.
func (s *SettingsService) DecimalOr(ctx context.Context, key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok, err := s.Decimal(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

func (s *SettingsService) SeedDefaults(ctx context.Context) error {
	if err := s.store.EnsureSettings(ctx, models.DefaultSettings); err != nil {
		return &LedgerError{Kind: ErrSettingsUnavailable, Op: "seed settings", Err: err}
	}
	s.log.Info("default settings ensured", zap.Int("count", len(models.DefaultSettings)))
	return nil
}
