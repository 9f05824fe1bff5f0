package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"referral-ledger/models"
	"referral-ledger/store"
	"referral-ledger/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EarningService struct {
	Deps
	log *zap.Logger
}

func NewEarningService(deps Deps) *EarningService {
	deps = deps.withDefaults()
	return &EarningService{Deps: deps, log: deps.Log.Named("earnings")}
}

type CreditInput struct {
	AccountID      string               `json:"account_id"`
	Amount         decimal.Decimal      `json:"amount"`
	Source         models.EarningSource `json:"source"`
	Description    string               `json:"description"`
	ReferenceID    string               `json:"reference_id"`
	IdempotencyKey string               `json:"idempotency_key"`
}

// CreditEarning credits the balance and records the earning atomically. It is the entry point for
// collaborators such as task review. A repeated idempotency key is ErrConflict and credits nothing.
func (s *EarningService) CreditEarning(ctx context.Context, in CreditInput) (*models.Earning, error) {
	e, err := s.creditEarning(ctx, in)
	s.Metrics.Operation("credit_earning", err)
	return e, err
}

func (s *EarningService) creditEarning(ctx context.Context, in CreditInput) (*models.Earning, error) {
	const op = "credit earning"
	if in.AccountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if err := utils.ValidateAmount(in.Amount); err != nil {
		return nil, validationError(op, "%v", err)
	}
	if in.Source == "" {
		in.Source = models.SourceTask
	}
	if !in.Source.Valid() {
		return nil, validationError(op, "unknown earning source %q", in.Source)
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return nil, validationError(op, "description is required")
	}

	e := &models.Earning{
		ID:          uuid.NewString(),
		AccountID:   in.AccountID,
		Amount:      in.Amount,
		Source:      in.Source,
		Description: in.Description,
		Status:      models.EarningCredited,
		CreatedAt:   s.Clock.Now(),
	}
	if in.ReferenceID != "" {
		ref := in.ReferenceID
		e.ReferenceID = &ref
		e.ReferenceModel = string(in.Source)
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		e.IdempotencyKey = &key
	}

	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		if e.IdempotencyKey != nil {
			if _, err := tx.GetEarningByKey(ctx, *e.IdempotencyKey); err == nil {
				return conflictError(op, "earning %q already credited", *e.IdempotencyKey)
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		if _, err := tx.AdjustBalance(ctx, in.AccountID, in.Amount); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError(op, "account")
			}
			return err
		}
		return tx.CreateEarning(ctx, e)
	})
	if err != nil {
		return nil, classify(op, err)
	}

	s.log.Info("earning credited",
		zap.String("earning_id", e.ID),
		zap.String("account_id", e.AccountID),
		zap.String("source", string(e.Source)),
		zap.String("amount", e.Amount.StringFixed(2)),
	)
	return e, nil
}

type EarningsSummary struct {
	TotalEarnings       decimal.Decimal `json:"total_earnings"`
	PendingWithdrawals  decimal.Decimal `json:"pending_withdrawals"`
	ApprovedWithdrawals decimal.Decimal `json:"approved_withdrawals"`
	AvailableBalance    decimal.Decimal `json:"available_balance"`
}

// Summary reports an account's lifetime earnings next to its withdrawal totals. The available
// balance is the account balance itself.
func (s *EarningService) Summary(ctx context.Context, accountID string) (*EarningsSummary, error) {
	const op = "earnings summary"
	acc, err := s.Store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(op, "account")
	}
	if err != nil {
		return nil, classify(op, err)
	}

	bySource, err := s.Store.SumEarnings(ctx, store.EarningFilter{AccountID: accountID})
	if err != nil {
		return nil, classify(op, err)
	}
	total := decimal.Zero
	for _, v := range bySource {
		total = total.Add(v)
	}
	pending, err := s.Store.SumWithdrawals(ctx, accountID, models.StatusPending)
	if err != nil {
		return nil, classify(op, err)
	}
	approved, err := s.Store.SumWithdrawals(ctx, accountID, models.StatusApproved)
	if err != nil {
		return nil, classify(op, err)
	}

	return &EarningsSummary{
		TotalEarnings:       total,
		PendingWithdrawals:  pending,
		ApprovedWithdrawals: approved,
		AvailableBalance:    acc.Balance,
	}, nil
}

// ByType totals credited earnings per source since the given time (all time when nil).
// Every source is present in the result.
func (s *EarningService) ByType(ctx context.Context, accountID string, since *time.Time) (map[models.EarningSource]decimal.Decimal, error) {
	sums, err := s.Store.SumEarnings(ctx, store.EarningFilter{
		AccountID: accountID,
		Status:    models.EarningCredited,
		Since:     since,
	})
	if err != nil {
		return nil, classify("earnings by type", err)
	}
	out := make(map[models.EarningSource]decimal.Decimal, len(models.EarningSources))
	for _, src := range models.EarningSources {
		out[src] = decimal.Zero
		if v, ok := sums[src]; ok {
			out[src] = v
		}
	}
	return out, nil
}

// ByPeriod resolves the named periods used by the API ("last_30_days", "all_time").
func (s *EarningService) ByPeriod(ctx context.Context, accountID, period string) (map[models.EarningSource]decimal.Decimal, error) {
	switch period {
	case "", "last_30_days":
		since := s.Clock.Now().AddDate(0, 0, -30)
		return s.ByType(ctx, accountID, &since)
	case "all_time":
		return s.ByType(ctx, accountID, nil)
	}
	return nil, validationError("earnings by type", "unknown period %q", period)
}

func (s *EarningService) ListEarnings(ctx context.Context, accountID string) ([]models.Earning, error) {
	list, err := s.Store.ListEarnings(ctx, store.EarningFilter{AccountID: accountID})
	return list, classify("list earnings", err)
}
