package services

import (
	"context"
	"errors"
	"strings"

	"referral-ledger/models"
	"referral-ledger/store"
	"referral-ledger/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Decision is an administrator's verdict on a pending withdrawal or deposit.
type Decision = models.ReviewStatus

const (
	DecisionApproved Decision = models.StatusApproved
	DecisionRejected Decision = models.StatusRejected
)

func validDecision(d Decision) bool {
	return d == DecisionApproved || d == DecisionRejected
}

// WithdrawalService runs the withdrawal state machine. Funds leave the balance when the request
// is made and come back only if it is rejected.
type WithdrawalService struct {
	Deps
	log *zap.Logger
}

func NewWithdrawalService(deps Deps) *WithdrawalService {
	deps = deps.withDefaults()
	return &WithdrawalService{Deps: deps, log: deps.Log.Named("withdrawals")}
}

func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, accountID string, amount decimal.Decimal, method, details string) (*models.Withdrawal, error) {
	w, err := s.requestWithdrawal(ctx, accountID, amount, method, details)
	s.Metrics.Operation("request_withdrawal", err)
	return w, err
}

func (s *WithdrawalService) requestWithdrawal(ctx context.Context, accountID string, amount decimal.Decimal, method, details string) (*models.Withdrawal, error) {
	const op = "request withdrawal"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, validationError(op, "%v", err)
	}
	pm, ok := utils.NormalizePaymentMethod(method)
	if !ok {
		return nil, validationError(op, "payment method must be easypaisa, jazzcash or bank")
	}
	details = strings.TrimSpace(details)
	if details == "" {
		return nil, validationError(op, "payment details are required")
	}
	if minimum, ok, err := s.Settings.Decimal(ctx, models.SettingMinimumWithdrawal); err != nil {
		return nil, err
	} else if ok && amount.LessThan(minimum) {
		return nil, validationError(op, "minimum withdrawal amount is %s", minimum.StringFixed(2))
	}

	w := &models.Withdrawal{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Amount:         amount,
		PaymentMethod:  pm,
		PaymentDetails: details,
		Status:         models.StatusPending,
	}
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.AdjustBalance(ctx, accountID, amount.Neg()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError(op, "account")
			}
			return err
		}
		return tx.CreateWithdrawal(ctx, w)
	})
	if err != nil {
		return nil, classify(op, err)
	}

	s.log.Info("withdrawal requested",
		zap.String("withdrawal_id", w.ID),
		zap.String("account_id", accountID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("method", string(pm)),
	)
	return w, nil
}

// ReviewWithdrawal settles a pending withdrawal. Rejection refunds the amount in the same
// transaction; any second review of the same withdrawal is ErrConflict.
func (s *WithdrawalService) ReviewWithdrawal(ctx context.Context, withdrawalID string, decision Decision) (*models.Withdrawal, error) {
	w, err := s.reviewWithdrawal(ctx, withdrawalID, decision)
	s.Metrics.Operation("review_withdrawal", err)
	return w, err
}

func (s *WithdrawalService) reviewWithdrawal(ctx context.Context, withdrawalID string, decision Decision) (*models.Withdrawal, error) {
	const op = "review withdrawal"
	if !validDecision(decision) {
		return nil, validationError(op, "status must be approved or rejected")
	}

	var reviewed *models.Withdrawal
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWithdrawalForUpdate(ctx, withdrawalID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(op, "withdrawal")
		}
		if err != nil {
			return err
		}
		if w.Status != models.StatusPending {
			return conflictError(op, "withdrawal already %s", w.Status)
		}
		if decision == DecisionRejected {
			if _, err := tx.AdjustBalance(ctx, w.AccountID, w.Amount); err != nil {
				return err
			}
		}
		now := s.Clock.Now()
		if err := tx.UpdateWithdrawal(ctx, w.ID, decision, now); err != nil {
			return err
		}
		w.Status = decision
		w.ProcessedAt = &now
		reviewed = w
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}

	s.log.Info("withdrawal reviewed",
		zap.String("withdrawal_id", reviewed.ID),
		zap.String("account_id", reviewed.AccountID),
		zap.String("status", string(reviewed.Status)),
		zap.String("amount", reviewed.Amount.StringFixed(2)),
	)
	return reviewed, nil
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, accountID string) ([]models.Withdrawal, error) {
	list, err := s.Store.ListWithdrawals(ctx, store.ReviewFilter{AccountID: accountID})
	return list, classify("list withdrawals", err)
}

// ListWithdrawalsByStatus is the admin review queue; an empty status means pending.
func (s *WithdrawalService) ListWithdrawalsByStatus(ctx context.Context, status models.ReviewStatus) ([]models.Withdrawal, error) {
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return nil, validationError("list withdrawals", "unknown status %q", status)
	}
	list, err := s.Store.ListWithdrawals(ctx, store.ReviewFilter{Status: status})
	return list, classify("list withdrawals", err)
}
