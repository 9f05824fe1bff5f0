package services

import (
	"context"
	"errors"
	"time"

	"referral-ledger/models"
	"referral-ledger/store"

	"go.uber.org/zap"
)

// TierForReferralCount maps the number of direct referrals to a tier.
func TierForReferralCount(n int64) models.ReferralTier {
	switch {
	case n >= 40:
		return models.TierPlatinum
	case n >= 20:
		return models.TierDiamond
	case n >= 10:
		return models.TierGold
	case n >= 5:
		return models.TierSilver
	}
	return models.TierBronze
}

type AccountService struct {
	Deps
	log *zap.Logger
}

func NewAccountService(deps Deps) *AccountService {
	deps = deps.withDefaults()
	return &AccountService{Deps: deps, log: deps.Log.Named("accounts")}
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.Store.GetAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("get account", "account")
	}
	return acc, classify("get account", err)
}

// RegisterReferral links referred to referrer, bumps the referrer's count and recomputes its tier.
// An account can be referred only once.
func (s *AccountService) RegisterReferral(ctx context.Context, referrerID, referredID string) (*models.Account, error) {
	const op = "register referral"
	if referrerID == "" || referredID == "" {
		return nil, validationError(op, "referrer and referred ids are required")
	}
	if referrerID == referredID {
		return nil, validationError(op, "an account cannot refer itself")
	}

	var updated *models.Account
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		referred, err := tx.GetAccountForUpdate(ctx, referredID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(op, "referred account")
		}
		if err != nil {
			return err
		}
		if referred.ReferredByID != nil && *referred.ReferredByID != "" {
			return conflictError(op, "account already has a referrer")
		}
		referrer, err := tx.GetAccountForUpdate(ctx, referrerID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(op, "referrer account")
		}
		if err != nil {
			return err
		}

		if err := tx.UpdateReferral(ctx, referredID, store.ReferralUpdate{ReferredByID: &referrerID}); err != nil {
			return err
		}
		count := referrer.ReferralCount + 1
		tier := TierForReferralCount(count)
		if err := tx.UpdateReferral(ctx, referrerID, store.ReferralUpdate{ReferralCount: &count, ReferralTier: &tier}); err != nil {
			return err
		}
		referrer.ReferralCount = count
		referrer.ReferralTier = tier
		updated = referrer
		return nil
	})
	s.Metrics.Operation("register_referral", err)
	if err != nil {
		return nil, classify(op, err)
	}

	s.log.Info("referral registered",
		zap.String("referrer_id", referrerID),
		zap.String("referred_id", referredID),
		zap.Int64("referral_count", updated.ReferralCount),
		zap.Stringer("tier", updated.ReferralTier),
	)
	return updated, nil
}

// SyncMirrors stores accounts mirrored from the profile service.
func (s *AccountService) SyncMirrors(ctx context.Context, accounts []models.Account) (int, error) {
	n, err := s.Store.UpsertAccountMirrors(ctx, accounts)
	if err != nil {
		return n, classify("sync accounts", err)
	}
	return n, nil
}

// MirrorCursor is the latest remote update already mirrored; zero when nothing was synced yet.
func (s *AccountService) MirrorCursor(ctx context.Context) (time.Time, error) {
	t, err := s.Store.LatestAccountUpdate(ctx)
	return t, classify("sync accounts", err)
}
