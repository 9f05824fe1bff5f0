package services

import (
	"context"
	"errors"
	"fmt"

	"referral-ledger/models"
	"referral-ledger/store"
	"referral-ledger/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InvestmentService struct {
	Deps
	commission *CommissionCalculator
	log        *zap.Logger
}

func NewInvestmentService(deps Deps) *InvestmentService {
	deps = deps.withDefaults()
	return &InvestmentService{
		Deps:       deps,
		commission: NewCommissionCalculator(deps.Settings),
		log:        deps.Log.Named("investments"),
	}
}

type InvestmentResult struct {
	Investment        *models.Investment `json:"investment"`
	CommissionAwarded decimal.Decimal    `json:"commission_awarded"`
}

// CreateInvestment debits the investor and opens the position in one transaction, then credits
// the referrer's commission in a second one. A failed commission is logged and reported as zero;
// the investment stands.
func (s *InvestmentService) CreateInvestment(ctx context.Context, accountID, productID string, amount decimal.Decimal) (*InvestmentResult, error) {
	res, err := s.createInvestment(ctx, accountID, productID, amount)
	s.Metrics.Operation("create_investment", err)
	return res, err
}

func (s *InvestmentService) createInvestment(ctx context.Context, accountID, productID string, amount decimal.Decimal) (*InvestmentResult, error) {
	const op = "create investment"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if productID == "" {
		return nil, validationError(op, "product id is required")
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, validationError(op, "%v", err)
	}

	product, err := s.Store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(op, "investment product")
	}
	if err != nil {
		return nil, classify(op, err)
	}
	if product.Status != models.ProductActive {
		return nil, validationError(op, "investment product is not active")
	}
	if amount.LessThan(product.MinimumAmount) {
		return nil, validationError(op, "minimum investment for this product is %s", product.MinimumAmount.StringFixed(2))
	}
	if minimum, ok, err := s.Settings.Decimal(ctx, models.SettingMinInvestment); err != nil {
		return nil, err
	} else if ok && amount.LessThan(minimum) {
		return nil, validationError(op, "minimum investment is %s", minimum.StringFixed(2))
	}

	now := s.Clock.Now()
	inv := &models.Investment{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		ProductID:      product.ID,
		AmountInvested: amount,
		CurrentValue:   amount,
		LastReturnDate: now,
		Status:         models.InvestmentActive,
	}

	var investor *models.Account
	err = s.Store.RunInTx(ctx, func(tx store.Tx) error {
		acc, err := tx.AdjustBalance(ctx, accountID, amount.Neg())
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(op, "account")
		}
		if err != nil {
			return err
		}
		investor = acc
		return tx.CreateInvestment(ctx, inv)
	})
	if err != nil {
		return nil, classify(op, err)
	}

	s.log.Info("investment created",
		zap.String("investment_id", inv.ID),
		zap.String("account_id", accountID),
		zap.String("product_id", product.ID),
		zap.String("amount", amount.StringFixed(2)),
	)

	inv.Product = product
	return &InvestmentResult{
		Investment:        inv,
		CommissionAwarded: s.awardCommission(ctx, investor, inv),
	}, nil
}

func (s *InvestmentService) awardCommission(ctx context.Context, investor *models.Account, inv *models.Investment) decimal.Decimal {
	if investor.ReferredByID == nil || *investor.ReferredByID == "" {
		return decimal.Zero
	}
	awarded, err := s.applyCommission(ctx, *investor.ReferredByID, investor.ID, inv)
	s.Metrics.Operation("referral_commission", err)
	if err != nil {
		s.log.Error("referral commission failed, investment kept",
			zap.String("investment_id", inv.ID),
			zap.String("referrer_id", *investor.ReferredByID),
			zap.Error(err),
		)
		return decimal.Zero
	}
	return awarded
}

func commissionKey(investmentID string) string {
	return "referral:" + investmentID
}

// applyCommission credits the referrer at most once per investment.
func (s *InvestmentService) applyCommission(ctx context.Context, referrerID, investorID string, inv *models.Investment) (decimal.Decimal, error) {
	const op = "referral commission"
	key := commissionKey(inv.ID)

	if existing, err := s.Store.GetEarningByKey(ctx, key); err == nil {
		return existing.Amount, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, classify(op, err)
	}

	referrer, err := s.Store.GetAccount(ctx, referrerID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("referrer not found, no commission", zap.String("referrer_id", referrerID))
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, classify(op, err)
	}

	rate, err := s.commission.Rate(ctx, referrer.ReferralTier)
	if err != nil {
		return decimal.Zero, err
	}
	amount := CommissionFor(inv.AmountInvested, rate)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	var awarded decimal.Decimal
	err = s.Store.RunInTx(ctx, func(tx store.Tx) error {
		if existing, err := tx.GetEarningByKey(ctx, key); err == nil {
			awarded = existing.Amount
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, referrerID, amount); err != nil {
			return err
		}
		ref := inv.ID
		if err := tx.CreateEarning(ctx, &models.Earning{
			ID:             uuid.NewString(),
			AccountID:      referrerID,
			Amount:         amount,
			Source:         models.SourceReferral,
			Description:    fmt.Sprintf("Referral commission of %s%% (%s tier) on an investment of %s", rate.String(), referrer.ReferralTier, utils.FormatAmount(inv.AmountInvested)),
			Status:         models.EarningCredited,
			ReferenceID:    &ref,
			ReferenceModel: "investment",
			IdempotencyKey: &key,
			CreatedAt:      s.Clock.Now(),
		}); err != nil {
			return err
		}
		awarded = amount
		return nil
	})
	if err != nil {
		return decimal.Zero, classify(op, err)
	}

	s.log.Info("referral commission credited",
		zap.String("investment_id", inv.ID),
		zap.String("referrer_id", referrerID),
		zap.String("investor_id", investorID),
		zap.String("rate", rate.String()),
		zap.String("amount", awarded.StringFixed(2)),
	)
	return awarded, nil
}

// RetryCommission re-applies the referral commission of an investment. It never credits twice.
func (s *InvestmentService) RetryCommission(ctx context.Context, investmentID string) (decimal.Decimal, error) {
	const op = "retry commission"
	inv, err := s.Store.GetInvestment(ctx, investmentID)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, notFoundError(op, "investment")
	}
	if err != nil {
		return decimal.Zero, classify(op, err)
	}
	investor, err := s.Store.GetAccount(ctx, inv.AccountID)
	if err != nil {
		return decimal.Zero, classify(op, err)
	}
	if investor.ReferredByID == nil || *investor.ReferredByID == "" {
		return decimal.Zero, nil
	}
	amount, err := s.applyCommission(ctx, *investor.ReferredByID, investor.ID, inv)
	s.Metrics.Operation("referral_commission", err)
	return amount, err
}

// WithdrawInvestmentPrincipal closes an active investment and credits its current value back.
// Investments of other accounts are reported as not found.
func (s *InvestmentService) WithdrawInvestmentPrincipal(ctx context.Context, investmentID, accountID string) (decimal.Decimal, error) {
	const op = "withdraw investment"
	var credited decimal.Decimal
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		inv, err := tx.GetInvestmentForUpdate(ctx, investmentID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(op, "investment")
		}
		if err != nil {
			return err
		}
		if inv.AccountID != accountID {
			return notFoundError(op, "investment")
		}
		if inv.Status == models.InvestmentWithdrawn {
			return conflictError(op, "investment already withdrawn")
		}
		if _, err := tx.AdjustBalance(ctx, accountID, inv.CurrentValue); err != nil {
			return err
		}
		now := s.Clock.Now()
		withdrawn := models.InvestmentWithdrawn
		if err := tx.UpdateInvestment(ctx, inv.ID, store.InvestmentUpdate{Status: &withdrawn, WithdrawnAt: &now}); err != nil {
			return err
		}
		credited = inv.CurrentValue
		return nil
	})
	err = classify(op, err)
	s.Metrics.Operation("withdraw_principal", err)
	if err != nil {
		return decimal.Zero, err
	}
	s.log.Info("investment principal withdrawn",
		zap.String("investment_id", investmentID),
		zap.String("account_id", accountID),
		zap.String("amount", credited.StringFixed(2)),
	)
	return credited, nil
}

func (s *InvestmentService) ListInvestments(ctx context.Context, accountID string) ([]models.Investment, error) {
	if accountID == "" {
		return nil, validationError("list investments", "account id is required")
	}
	list, err := s.Store.ListInvestments(ctx, accountID)
	return list, classify("list investments", err)
}

func (s *InvestmentService) ListProducts(ctx context.Context, activeOnly bool) ([]models.InvestmentProduct, error) {
	list, err := s.Store.ListProducts(ctx, activeOnly)
	return list, classify("list products", err)
}

type ProductInput struct {
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	MinimumAmount    decimal.Decimal         `json:"minimum_amount"`
	ReturnRate       decimal.Decimal         `json:"return_rate"`
	ReturnPeriod     int                     `json:"return_period"`
	ReturnPeriodUnit models.ReturnPeriodUnit `json:"return_period_unit"`
	Status           models.ProductStatus    `json:"status"`
}

func (s *InvestmentService) CreateProduct(ctx context.Context, in ProductInput) (*models.InvestmentProduct, error) {
	const op = "create product"
	if in.Name == "" {
		return nil, validationError(op, "name is required")
	}
	if in.ReturnRate.IsNegative() {
		return nil, validationError(op, "return rate must not be negative")
	}
	if in.MinimumAmount.IsNegative() {
		return nil, validationError(op, "minimum amount must not be negative")
	}
	if in.ReturnPeriod < 1 {
		return nil, validationError(op, "return period must be at least 1")
	}
	if !in.ReturnPeriodUnit.Valid() {
		return nil, validationError(op, "return period unit must be day, week or month")
	}
	if in.Status == "" {
		in.Status = models.ProductActive
	}
	if in.Status != models.ProductActive && in.Status != models.ProductInactive {
		return nil, validationError(op, "status must be active or inactive")
	}

	p := &models.InvestmentProduct{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Description:      in.Description,
		MinimumAmount:    in.MinimumAmount.Round(2),
		ReturnRate:       in.ReturnRate,
		ReturnPeriod:     in.ReturnPeriod,
		ReturnPeriodUnit: in.ReturnPeriodUnit,
		Status:           in.Status,
	}
	if err := s.Store.CreateProduct(ctx, p); err != nil {
		return nil, classify(op, err)
	}
	return p, nil
}

// ProductPatch is the admin edit of an existing product. Nil fields are left as they are.
type ProductPatch struct {
	Name          *string               `json:"name"`
	Description   *string               `json:"description"`
	MinimumAmount *decimal.Decimal      `json:"minimum_amount"`
	ReturnRate    *decimal.Decimal      `json:"return_rate"`
	Status        *models.ProductStatus `json:"status"`
}

// UpdateProduct edits a product. Deactivating one stops new investments; running ones keep paying.
func (s *InvestmentService) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*models.InvestmentProduct, error) {
	const op = "update product"
	if patch.Name != nil && *patch.Name == "" {
		return nil, validationError(op, "name must not be empty")
	}
	if patch.ReturnRate != nil && patch.ReturnRate.IsNegative() {
		return nil, validationError(op, "return rate must not be negative")
	}
	if patch.MinimumAmount != nil && patch.MinimumAmount.IsNegative() {
		return nil, validationError(op, "minimum amount must not be negative")
	}
	if patch.Status != nil && *patch.Status != models.ProductActive && *patch.Status != models.ProductInactive {
		return nil, validationError(op, "status must be active or inactive")
	}

	err := s.Store.UpdateProduct(ctx, id, store.ProductUpdate{
		Name:          patch.Name,
		Description:   patch.Description,
		MinimumAmount: patch.MinimumAmount,
		ReturnRate:    patch.ReturnRate,
		Status:        patch.Status,
	})
	s.Metrics.Operation("update_product", err)
	if err != nil {
		return nil, classify(op, err)
	}
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}
	s.log.Info("product updated", zap.String("product_id", p.ID), zap.String("status", string(p.Status)))
	return p, nil
}

// ListAllInvestments is the admin view across every account, newest first.
func (s *InvestmentService) ListAllInvestments(ctx context.Context) ([]models.Investment, error) {
	list, err := s.Store.ListInvestments(ctx, "")
	return list, classify("list all investments", err)
}
