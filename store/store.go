package store

import (
	"context"
	"errors"
	"time"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("store: record not found")
	ErrInsufficientFunds = errors.New("store: insufficient funds")
	ErrDuplicate         = errors.New("store: duplicate key")
)

type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// GetAccountForUpdate locks the row until the surrounding transaction ends.
	GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error)
	CreateAccount(ctx context.Context, acc *models.Account) error
	// AdjustBalance locks the account and applies delta. A result below zero fails with
	// ErrInsufficientFunds and leaves the balance untouched.
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (*models.Account, error)
	UpdateReferral(ctx context.Context, id string, upd ReferralUpdate) error
	// UpsertAccountMirrors inserts unknown accounts and refreshes referral links of known ones.
	// Balances and tiers of existing rows are never touched.
	UpsertAccountMirrors(ctx context.Context, accounts []models.Account) (int, error)
	LatestAccountUpdate(ctx context.Context) (time.Time, error)
}

type ReferralUpdate struct {
	ReferredByID  *string
	ReferralCount *int64
	ReferralTier  *models.ReferralTier
}

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*models.InvestmentProduct, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]models.InvestmentProduct, error)
	CreateProduct(ctx context.Context, p *models.InvestmentProduct) error
	UpdateProduct(ctx context.Context, id string, upd ProductUpdate) error
}

// ProductUpdate changes only the non-nil fields. The return period is fixed once a product exists.
type ProductUpdate struct {
	Name          *string
	Description   *string
	MinimumAmount *decimal.Decimal
	ReturnRate    *decimal.Decimal
	Status        *models.ProductStatus
}

type InvestmentStore interface {
	GetInvestment(ctx context.Context, id string) (*models.Investment, error)
	GetInvestmentForUpdate(ctx context.Context, id string) (*models.Investment, error)
	CreateInvestment(ctx context.Context, inv *models.Investment) error
	UpdateInvestment(ctx context.Context, id string, upd InvestmentUpdate) error
	// FindActiveInvestments returns a snapshot; later changes do not affect the returned slice.
	FindActiveInvestments(ctx context.Context) ([]models.Investment, error)
	// ListInvestments lists newest first; an empty accountID lists every account's investments.
	ListInvestments(ctx context.Context, accountID string) ([]models.Investment, error)
}

type InvestmentUpdate struct {
	LastReturnDate *time.Time
	Status         *models.InvestmentStatus
	WithdrawnAt    *time.Time
}

type EarningStore interface {
	CreateEarning(ctx context.Context, e *models.Earning) error
	GetEarningByKey(ctx context.Context, key string) (*models.Earning, error)
	ListEarnings(ctx context.Context, f EarningFilter) ([]models.Earning, error)
	SumEarnings(ctx context.Context, f EarningFilter) (map[models.EarningSource]decimal.Decimal, error)
}

type EarningFilter struct {
	AccountID string
	Status    models.EarningStatus
	Since     *time.Time
}

type WithdrawalStore interface {
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	GetWithdrawalForUpdate(ctx context.Context, id string) (*models.Withdrawal, error)
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	UpdateWithdrawal(ctx context.Context, id string, status models.ReviewStatus, processedAt time.Time) error
	ListWithdrawals(ctx context.Context, f ReviewFilter) ([]models.Withdrawal, error)
	SumWithdrawals(ctx context.Context, accountID string, status models.ReviewStatus) (decimal.Decimal, error)
}

type RechargeRequestStore interface {
	GetRechargeRequest(ctx context.Context, id string) (*models.RechargeRequest, error)
	GetRechargeRequestForUpdate(ctx context.Context, id string) (*models.RechargeRequest, error)
	CreateRechargeRequest(ctx context.Context, r *models.RechargeRequest) error
	UpdateRechargeRequest(ctx context.Context, id string, status models.ReviewStatus, processedAt time.Time) error
	ListRechargeRequests(ctx context.Context, f ReviewFilter) ([]models.RechargeRequest, error)
}

// ReviewFilter selects withdrawals or recharge requests. Empty fields match everything.
type ReviewFilter struct {
	AccountID string
	Status    models.ReviewStatus
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (*models.SiteSetting, error)
	// EnsureSettings inserts the given settings, keeping any value already present.
	EnsureSettings(ctx context.Context, settings []models.SiteSetting) error
}

// Tx is everything that can run inside a transaction.
type Tx interface {
	AccountStore
	ProductStore
	InvestmentStore
	EarningStore
	WithdrawalStore
	RechargeRequestStore
	SettingsStore
}

type TransactionRunner interface {
	// RunInTx commits when fn returns nil and rolls back every write made through tx otherwise.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Store serves single statements directly and multi-row changes through RunInTx.
type Store interface {
	Tx
	TransactionRunner
}
