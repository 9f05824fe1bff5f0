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

// ProofVerifier checks that an uploaded proof of payment exists.
type ProofVerifier interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

// DepositService handles recharge requests. Nothing is credited until an administrator
// approves the request.
type DepositService struct {
	Deps
	proofs ProofVerifier
	log    *zap.Logger
}

// NewDepositService builds the service; proofs may be nil to accept any proof reference.
func NewDepositService(deps Deps, proofs ProofVerifier) *DepositService {
	deps = deps.withDefaults()
	return &DepositService{Deps: deps, proofs: proofs, log: deps.Log.Named("deposits")}
}

func (s *DepositService) RequestDeposit(ctx context.Context, accountID string, amount decimal.Decimal, proofRef string) (*models.RechargeRequest, error) {
	r, err := s.requestDeposit(ctx, accountID, amount, proofRef)
	s.Metrics.Operation("request_deposit", err)
	return r, err
}

func (s *DepositService) requestDeposit(ctx context.Context, accountID string, amount decimal.Decimal, proofRef string) (*models.RechargeRequest, error) {
	const op = "request deposit"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, validationError(op, "%v", err)
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, validationError(op, "payment proof is required")
	}
	if _, err := s.Store.GetAccount(ctx, accountID); errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(op, "account")
	} else if err != nil {
		return nil, classify(op, err)
	}
	if s.proofs != nil {
		ok, err := s.proofs.Exists(ctx, proofRef)
		if err != nil {
			return nil, &LedgerError{Kind: ErrTransaction, Op: op, Msg: "could not verify payment proof", Err: err}
		}
		if !ok {
			return nil, validationError(op, "payment proof %q was not found", proofRef)
		}
	}

	r := &models.RechargeRequest{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    amount,
		Proof:     proofRef,
		Status:    models.StatusPending,
	}
	if err := s.Store.CreateRechargeRequest(ctx, r); err != nil {
		return nil, classify(op, err)
	}

	s.log.Info("deposit requested",
		zap.String("request_id", r.ID),
		zap.String("account_id", accountID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return r, nil
}

// ReviewDeposit settles a pending recharge request. Approval credits the account in the same
// transaction; any second review is ErrConflict.
func (s *DepositService) ReviewDeposit(ctx context.Context, requestID string, decision Decision) (*models.RechargeRequest, error) {
	r, err := s.reviewDeposit(ctx, requestID, decision)
	s.Metrics.Operation("review_deposit", err)
	return r, err
}

func (s *DepositService) reviewDeposit(ctx context.Context, requestID string, decision Decision) (*models.RechargeRequest, error) {
	const op = "review deposit"
	if !validDecision(decision) {
		return nil, validationError(op, "status must be approved or rejected")
	}

	var reviewed *models.RechargeRequest
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetRechargeRequestForUpdate(ctx, requestID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(op, "recharge request")
		}
		if err != nil {
			return err
		}
		if r.Status != models.StatusPending {
			return conflictError(op, "recharge request already %s", r.Status)
		}
		if decision == DecisionApproved {
			if _, err := tx.AdjustBalance(ctx, r.AccountID, r.Amount); err != nil {
				return err
			}
		}
		now := s.Clock.Now()
		if err := tx.UpdateRechargeRequest(ctx, r.ID, decision, now); err != nil {
			return err
		}
		r.Status = decision
		r.ProcessedAt = &now
		reviewed = r
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}

	s.log.Info("deposit reviewed",
		zap.String("request_id", reviewed.ID),
		zap.String("account_id", reviewed.AccountID),
		zap.String("status", string(reviewed.Status)),
		zap.String("amount", reviewed.Amount.StringFixed(2)),
	)
	return reviewed, nil
}

func (s *DepositService) ListDeposits(ctx context.Context, accountID string) ([]models.RechargeRequest, error) {
	list, err := s.Store.ListRechargeRequests(ctx, store.ReviewFilter{AccountID: accountID})
	return list, classify("list deposits", err)
}

// ListDepositsByStatus is the admin review queue; an empty status means pending.
func (s *DepositService) ListDepositsByStatus(ctx context.Context, status models.ReviewStatus) ([]models.RechargeRequest, error) {
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return nil, validationError("list deposits", "unknown status %q", status)
	}
	list, err := s.Store.ListRechargeRequests(ctx, store.ReviewFilter{Status: status})
	return list, classify("list deposits", err)
}
