package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres. Driver errors are translated so duplicate keys surface as
// gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Account{},
		&models.InvestmentProduct{},
		&models.Investment{},
		&models.Earning{},
		&models.Withdrawal{},
		&models.RechargeRequest{},
		&models.SiteSetting{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// GormStore is the Postgres-backed Store.
type GormStore struct {
	*gormTx
	root *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{gormTx: &gormTx{db: db}, root: db}
}

func (s *GormStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return mapErr(s.root.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	}))
}

// AdjustBalance outside an explicit transaction still needs one for the row lock to hold.
func (s *GormStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (*models.Account, error) {
	var acc *models.Account
	err := s.RunInTx(ctx, func(tx Tx) error {
		var err error
		acc, err = tx.AdjustBalance(ctx, id, delta)
		return err
	})
	return acc, err
}

type gormTx struct {
	db *gorm.DB
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func (t *gormTx) q(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *gormTx) locked(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// --- accounts ---

func (t *gormTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := t.q(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		return nil, mapErr(err)
	}
	return &acc, nil
}

func (t *gormTx) GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := t.locked(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		return nil, mapErr(err)
	}
	return &acc, nil
}

func (t *gormTx) CreateAccount(ctx context.Context, acc *models.Account) error {
	acc.Balance = acc.Balance.Round(2)
	return mapErr(t.q(ctx).Create(acc).Error)
}

func (t *gormTx) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (*models.Account, error) {
	acc, err := t.GetAccountForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	next := acc.Balance.Add(delta).Round(2)
	if next.IsNegative() {
		return nil, ErrInsufficientFunds
	}
	if err := t.q(ctx).Model(&models.Account{}).Where("id = ?", id).Update("balance", next).Error; err != nil {
		return nil, mapErr(err)
	}
	acc.Balance = next
	return acc, nil
}

func (t *gormTx) UpdateReferral(ctx context.Context, id string, upd ReferralUpdate) error {
	fields := map[string]interface{}{}
	if upd.ReferredByID != nil {
		fields["referred_by_id"] = *upd.ReferredByID
	}
	if upd.ReferralCount != nil {
		fields["referral_count"] = *upd.ReferralCount
	}
	if upd.ReferralTier != nil {
		fields["referral_tier"] = *upd.ReferralTier
	}
	if len(fields) == 0 {
		return nil
	}
	res := t.q(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) UpsertAccountMirrors(ctx context.Context, accounts []models.Account) (int, error) {
	var (
		upserted int
		errs     []error
	)
	for i := range accounts {
		acc := accounts[i]
		acc.Balance = decimal.Zero
		acc.ReferralTier = models.TierBronze
		acc.ReferralCount = 0
		err := t.q(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Set{
				// a feed entry without a referrer keeps a link registered locally
				{Column: clause.Column{Name: "referred_by_id"}, Value: gorm.Expr("COALESCE(EXCLUDED.referred_by_id, accounts.referred_by_id)")},
				{Column: clause.Column{Name: "remote_updated_at"}, Value: gorm.Expr("EXCLUDED.remote_updated_at")},
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("EXCLUDED.updated_at")},
			},
		}).Create(&acc).Error
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", acc.ID, err))
			continue
		}
		upserted++
	}
	return upserted, errors.Join(errs...)
}

func (t *gormTx) LatestAccountUpdate(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime
	err := t.q(ctx).Model(&models.Account{}).Select("MAX(remote_updated_at)").Row().Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// --- products ---

func (t *gormTx) GetProduct(ctx context.Context, id string) (*models.InvestmentProduct, error) {
	var p models.InvestmentProduct
	if err := t.q(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (t *gormTx) ListProducts(ctx context.Context, activeOnly bool) ([]models.InvestmentProduct, error) {
	var products []models.InvestmentProduct
	q := t.q(ctx).Order("created_at ASC")
	if activeOnly {
		q = q.Where("status = ?", models.ProductActive)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, mapErr(err)
	}
	return products, nil
}

func (t *gormTx) CreateProduct(ctx context.Context, p *models.InvestmentProduct) error {
	return mapErr(t.q(ctx).Create(p).Error)
}

func (t *gormTx) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) error {
	fields := map[string]interface{}{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if upd.MinimumAmount != nil {
		fields["minimum_amount"] = upd.MinimumAmount.Round(2)
	}
	if upd.ReturnRate != nil {
		fields["return_rate"] = *upd.ReturnRate
	}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	if len(fields) == 0 {
		_, err := t.GetProduct(ctx, id)
		return err
	}
	res := t.q(ctx).Model(&models.InvestmentProduct{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- investments ---

func (t *gormTx) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	var inv models.Investment
	if err := t.q(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

func (t *gormTx) GetInvestmentForUpdate(ctx context.Context, id string) (*models.Investment, error) {
	var inv models.Investment
	if err := t.locked(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

func (t *gormTx) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	inv.AmountInvested = inv.AmountInvested.Round(2)
	inv.CurrentValue = inv.CurrentValue.Round(2)
	return mapErr(t.q(ctx).Omit(clause.Associations).Create(inv).Error)
}

func (t *gormTx) UpdateInvestment(ctx context.Context, id string, upd InvestmentUpdate) error {
	fields := map[string]interface{}{}
	if upd.LastReturnDate != nil {
		fields["last_return_date"] = *upd.LastReturnDate
	}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	if upd.WithdrawnAt != nil {
		fields["withdrawn_at"] = *upd.WithdrawnAt
	}
	if len(fields) == 0 {
		return nil
	}
	res := t.q(ctx).Model(&models.Investment{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) FindActiveInvestments(ctx context.Context) ([]models.Investment, error) {
	var list []models.Investment
	err := t.q(ctx).Where("status = ?", models.InvestmentActive).Order("created_at ASC").Find(&list).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return list, nil
}

func (t *gormTx) ListInvestments(ctx context.Context, accountID string) ([]models.Investment, error) {
	var list []models.Investment
	q := t.q(ctx).Preload("Product").Order("created_at DESC")
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	err := q.Find(&list).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return list, nil
}

// --- earnings ---

func (t *gormTx) CreateEarning(ctx context.Context, e *models.Earning) error {
	e.Amount = e.Amount.Round(2)
	return mapErr(t.q(ctx).Create(e).Error)
}

func (t *gormTx) GetEarningByKey(ctx context.Context, key string) (*models.Earning, error) {
	var e models.Earning
	if err := t.q(ctx).Where("idempotency_key = ?", key).First(&e).Error; err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (t *gormTx) earningQuery(ctx context.Context, f EarningFilter) *gorm.DB {
	q := t.q(ctx).Model(&models.Earning{})
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	return q
}

func (t *gormTx) ListEarnings(ctx context.Context, f EarningFilter) ([]models.Earning, error) {
	var list []models.Earning
	if err := t.earningQuery(ctx, f).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, mapErr(err)
	}
	return list, nil
}

func (t *gormTx) SumEarnings(ctx context.Context, f EarningFilter) (map[models.EarningSource]decimal.Decimal, error) {
	var rows []struct {
		Source models.EarningSource
		Total  decimal.Decimal
	}
	err := t.earningQuery(ctx, f).
		Select("source, COALESCE(SUM(amount), 0) AS total").
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, mapErr(err)
	}
	out := make(map[models.EarningSource]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Source] = r.Total
	}
	return out, nil
}

// --- withdrawals ---

func (t *gormTx) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := t.q(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (t *gormTx) GetWithdrawalForUpdate(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := t.locked(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (t *gormTx) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	w.Amount = w.Amount.Round(2)
	return mapErr(t.q(ctx).Create(w).Error)
}

func (t *gormTx) UpdateWithdrawal(ctx context.Context, id string, status models.ReviewStatus, processedAt time.Time) error {
	res := t.q(ctx).Model(&models.Withdrawal{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "processed_at": processedAt})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func reviewQuery(q *gorm.DB, f ReviewFilter) *gorm.DB {
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

func (t *gormTx) ListWithdrawals(ctx context.Context, f ReviewFilter) ([]models.Withdrawal, error) {
	var list []models.Withdrawal
	if err := reviewQuery(t.q(ctx), f).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, mapErr(err)
	}
	return list, nil
}

func (t *gormTx) SumWithdrawals(ctx context.Context, accountID string, status models.ReviewStatus) (decimal.Decimal, error) {
	var total decimal.Decimal
	q := reviewQuery(t.q(ctx).Model(&models.Withdrawal{}), ReviewFilter{AccountID: accountID, Status: status})
	if err := q.Select("COALESCE(SUM(amount), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, mapErr(err)
	}
	return total, nil
}

// --- recharge requests ---

func (t *gormTx) GetRechargeRequest(ctx context.Context, id string) (*models.RechargeRequest, error) {
	var r models.RechargeRequest
	if err := t.q(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (t *gormTx) GetRechargeRequestForUpdate(ctx context.Context, id string) (*models.RechargeRequest, error) {
	var r models.RechargeRequest
	if err := t.locked(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (t *gormTx) CreateRechargeRequest(ctx context.Context, r *models.RechargeRequest) error {
	r.Amount = r.Amount.Round(2)
	return mapErr(t.q(ctx).Create(r).Error)
}

func (t *gormTx) UpdateRechargeRequest(ctx context.Context, id string, status models.ReviewStatus, processedAt time.Time) error {
	res := t.q(ctx).Model(&models.RechargeRequest{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "processed_at": processedAt})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) ListRechargeRequests(ctx context.Context, f ReviewFilter) ([]models.RechargeRequest, error) {
	var list []models.RechargeRequest
	if err := reviewQuery(t.q(ctx), f).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, mapErr(err)
	}
	return list, nil
}

// --- settings ---

func (t *gormTx) GetSetting(ctx context.Context, key string) (*models.SiteSetting, error) {
	var s models.SiteSetting
	if err := t.q(ctx).Where(`"key" = ?`, key).First(&s).Error; err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (t *gormTx) EnsureSettings(ctx context.Context, settings []models.SiteSetting) error {
	if len(settings) == 0 {
		return nil
	}
	rows := append([]models.SiteSetting(nil), settings...)
	return mapErr(t.q(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error)
}
