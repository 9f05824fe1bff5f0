package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"referral-ledger/models"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps the ledger in process memory. Transactions are serialized and run against a
// private copy that replaces the committed state only when fn succeeds.
type MemoryStore struct {
	txMu sync.Mutex // serializes writers
	mu   sync.RWMutex
	data *memData

	faultMu sync.Mutex
	faults  map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData(), faults: map[string]error{}}
}

// Fail makes every call of op (a method name such as "CreateEarning") return err until cleared
// with a nil err. With id set, only calls for that id fail; inserts are matched on the account id.
func (s *MemoryStore) Fail(op, id string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	key := op + "/" + id
	if err == nil {
		delete(s.faults, key)
		return
	}
	s.faults[key] = err
}

func (s *MemoryStore) fault(op, id string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err, ok := s.faults[op+"/"+id]; ok {
		return err
	}
	return s.faults[op+"/"]
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{store: s, data: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// readLocked runs a read against committed state.
func readLocked[T any](s *MemoryStore, fn func(tx *memTx) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{store: s, data: s.data})
}

func (s *MemoryStore) write(ctx context.Context, fn func(tx Tx) error) error {
	return s.RunInTx(ctx, fn)
}

// --- Store methods outside a transaction ---

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return readLocked(s, func(tx *memTx) (*models.Account, error) { return tx.GetAccount(ctx, id) })
}

func (s *MemoryStore) GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return s.GetAccount(ctx, id)
}

func (s *MemoryStore) CreateAccount(ctx context.Context, acc *models.Account) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateAccount(ctx, acc) })
}

func (s *MemoryStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (*models.Account, error) {
	var acc *models.Account
	err := s.write(ctx, func(tx Tx) error {
		var err error
		acc, err = tx.AdjustBalance(ctx, id, delta)
		return err
	})
	return acc, err
}

func (s *MemoryStore) UpdateReferral(ctx context.Context, id string, upd ReferralUpdate) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateReferral(ctx, id, upd) })
}

func (s *MemoryStore) UpsertAccountMirrors(ctx context.Context, accounts []models.Account) (int, error) {
	var n int
	err := s.write(ctx, func(tx Tx) error {
		var err error
		n, err = tx.UpsertAccountMirrors(ctx, accounts)
		return err
	})
	return n, err
}

func (s *MemoryStore) LatestAccountUpdate(ctx context.Context) (time.Time, error) {
	return readLocked(s, func(tx *memTx) (time.Time, error) { return tx.LatestAccountUpdate(ctx) })
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*models.InvestmentProduct, error) {
	return readLocked(s, func(tx *memTx) (*models.InvestmentProduct, error) { return tx.GetProduct(ctx, id) })
}

func (s *MemoryStore) ListProducts(ctx context.Context, activeOnly bool) ([]models.InvestmentProduct, error) {
	return readLocked(s, func(tx *memTx) ([]models.InvestmentProduct, error) { return tx.ListProducts(ctx, activeOnly) })
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p *models.InvestmentProduct) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateProduct(ctx, p) })
}

func (s *MemoryStore) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateProduct(ctx, id, upd) })
}

func (s *MemoryStore) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	return readLocked(s, func(tx *memTx) (*models.Investment, error) { return tx.GetInvestment(ctx, id) })
}

func (s *MemoryStore) GetInvestmentForUpdate(ctx context.Context, id string) (*models.Investment, error) {
	return s.GetInvestment(ctx, id)
}

func (s *MemoryStore) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateInvestment(ctx, inv) })
}

func (s *MemoryStore) UpdateInvestment(ctx context.Context, id string, upd InvestmentUpdate) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateInvestment(ctx, id, upd) })
}

func (s *MemoryStore) FindActiveInvestments(ctx context.Context) ([]models.Investment, error) {
	return readLocked(s, func(tx *memTx) ([]models.Investment, error) { return tx.FindActiveInvestments(ctx) })
}

func (s *MemoryStore) ListInvestments(ctx context.Context, accountID string) ([]models.Investment, error) {
	return readLocked(s, func(tx *memTx) ([]models.Investment, error) { return tx.ListInvestments(ctx, accountID) })
}

func (s *MemoryStore) CreateEarning(ctx context.Context, e *models.Earning) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateEarning(ctx, e) })
}

func (s *MemoryStore) GetEarningByKey(ctx context.Context, key string) (*models.Earning, error) {
	return readLocked(s, func(tx *memTx) (*models.Earning, error) { return tx.GetEarningByKey(ctx, key) })
}

func (s *MemoryStore) ListEarnings(ctx context.Context, f EarningFilter) ([]models.Earning, error) {
	return readLocked(s, func(tx *memTx) ([]models.Earning, error) { return tx.ListEarnings(ctx, f) })
}

func (s *MemoryStore) SumEarnings(ctx context.Context, f EarningFilter) (map[models.EarningSource]decimal.Decimal, error) {
	return readLocked(s, func(tx *memTx) (map[models.EarningSource]decimal.Decimal, error) { return tx.SumEarnings(ctx, f) })
}

func (s *MemoryStore) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	return readLocked(s, func(tx *memTx) (*models.Withdrawal, error) { return tx.GetWithdrawal(ctx, id) })
}

func (s *MemoryStore) GetWithdrawalForUpdate(ctx context.Context, id string) (*models.Withdrawal, error) {
	return s.GetWithdrawal(ctx, id)
}

func (s *MemoryStore) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateWithdrawal(ctx, w) })
}

func (s *MemoryStore) UpdateWithdrawal(ctx context.Context, id string, status models.ReviewStatus, at time.Time) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateWithdrawal(ctx, id, status, at) })
}

func (s *MemoryStore) ListWithdrawals(ctx context.Context, f ReviewFilter) ([]models.Withdrawal, error) {
	return readLocked(s, func(tx *memTx) ([]models.Withdrawal, error) { return tx.ListWithdrawals(ctx, f) })
}

func (s *MemoryStore) SumWithdrawals(ctx context.Context, accountID string, status models.ReviewStatus) (decimal.Decimal, error) {
	return readLocked(s, func(tx *memTx) (decimal.Decimal, error) { return tx.SumWithdrawals(ctx, accountID, status) })
}

func (s *MemoryStore) GetRechargeRequest(ctx context.Context, id string) (*models.RechargeRequest, error) {
	return readLocked(s, func(tx *memTx) (*models.RechargeRequest, error) { return tx.GetRechargeRequest(ctx, id) })
}

func (s *MemoryStore) GetRechargeRequestForUpdate(ctx context.Context, id string) (*models.RechargeRequest, error) {
	return s.GetRechargeRequest(ctx, id)
}

func (s *MemoryStore) CreateRechargeRequest(ctx context.Context, r *models.RechargeRequest) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateRechargeRequest(ctx, r) })
}

func (s *MemoryStore) UpdateRechargeRequest(ctx context.Context, id string, status models.ReviewStatus, at time.Time) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateRechargeRequest(ctx, id, status, at) })
}

func (s *MemoryStore) ListRechargeRequests(ctx context.Context, f ReviewFilter) ([]models.RechargeRequest, error) {
	return readLocked(s, func(tx *memTx) ([]models.RechargeRequest, error) { return tx.ListRechargeRequests(ctx, f) })
}

func (s *MemoryStore) GetSetting(ctx context.Context, key string) (*models.SiteSetting, error) {
	return readLocked(s, func(tx *memTx) (*models.SiteSetting, error) { return tx.GetSetting(ctx, key) })
}

func (s *MemoryStore) EnsureSettings(ctx context.Context, settings []models.SiteSetting) error {
	return s.write(ctx, func(tx Tx) error { return tx.EnsureSettings(ctx, settings) })
}

// SetSetting overwrites a setting value.
func (s *MemoryStore) SetSetting(key, value string) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	next := s.data.clone()
	next.settings[key] = models.SiteSetting{Key: key, Value: value, Type: "number"}
	s.mu.Lock()
	s.data = next
	s.mu.Unlock()
}

// --- state ---

type memData struct {
	last        time.Time
	accounts    map[string]models.Account
	products    map[string]models.InvestmentProduct
	investments map[string]models.Investment
	earnings    []models.Earning
	earningKeys map[string]int
	withdrawals map[string]models.Withdrawal
	recharges   map[string]models.RechargeRequest
	settings    map[string]models.SiteSetting
}

func newMemData() *memData {
	return &memData{
		accounts:    map[string]models.Account{},
		products:    map[string]models.InvestmentProduct{},
		investments: map[string]models.Investment{},
		earningKeys: map[string]int{},
		withdrawals: map[string]models.Withdrawal{},
		recharges:   map[string]models.RechargeRequest{},
		settings:    map[string]models.SiteSetting{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table. Pointer fields are shared; writers replace them instead of mutating.
func (d *memData) clone() *memData {
	return &memData{
		last:        d.last,
		accounts:    cloneMap(d.accounts),
		products:    cloneMap(d.products),
		investments: cloneMap(d.investments),
		earnings:    append([]models.Earning(nil), d.earnings...),
		earningKeys: cloneMap(d.earningKeys),
		withdrawals: cloneMap(d.withdrawals),
		recharges:   cloneMap(d.recharges),
		settings:    cloneMap(d.settings),
	}
}

// tick returns a strictly increasing creation time so ordering by CreatedAt is stable.
func (d *memData) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(d.last) {
		now = d.last.Add(time.Microsecond)
	}
	d.last = now
	return now
}

type memTx struct {
	store *MemoryStore
	data  *memData
}

func (t *memTx) check(op, id string) error {
	return t.store.fault(op, id)
}

func (t *memTx) GetAccount(_ context.Context, id string) (*models.Account, error) {
	if err := t.check("GetAccount", id); err != nil {
		return nil, err
	}
	acc, ok := t.data.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &acc, nil
}

func (t *memTx) GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) CreateAccount(_ context.Context, acc *models.Account) error {
	if err := t.check("CreateAccount", acc.ID); err != nil {
		return err
	}
	if _, ok := t.data.accounts[acc.ID]; ok {
		return ErrDuplicate
	}
	acc.Balance = acc.Balance.Round(2)
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = t.data.tick()
	}
	acc.UpdatedAt = acc.CreatedAt
	t.data.accounts[acc.ID] = *acc
	return nil
}

func (t *memTx) AdjustBalance(_ context.Context, id string, delta decimal.Decimal) (*models.Account, error) {
	if err := t.check("AdjustBalance", id); err != nil {
		return nil, err
	}
	acc, ok := t.data.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := acc.Balance.Add(delta).Round(2)
	if next.IsNegative() {
		return nil, ErrInsufficientFunds
	}
	acc.Balance = next
	t.data.accounts[id] = acc
	return &acc, nil
}

func (t *memTx) UpdateReferral(_ context.Context, id string, upd ReferralUpdate) error {
	if err := t.check("UpdateReferral", id); err != nil {
		return err
	}
	acc, ok := t.data.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if upd.ReferredByID != nil {
		ref := *upd.ReferredByID
		acc.ReferredByID = &ref
	}
	if upd.ReferralCount != nil {
		acc.ReferralCount = *upd.ReferralCount
	}
	if upd.ReferralTier != nil {
		acc.ReferralTier = *upd.ReferralTier
	}
	t.data.accounts[id] = acc
	return nil
}

func (t *memTx) UpsertAccountMirrors(_ context.Context, accounts []models.Account) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, remote := range accounts {
		if err := t.check("UpsertAccountMirrors", remote.ID); err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", remote.ID, err))
			continue
		}
		local, ok := t.data.accounts[remote.ID]
		if !ok {
			local = models.Account{ID: remote.ID, Balance: decimal.Zero}
			local.CreatedAt = remote.CreatedAt
		}
		if remote.ReferredByID != nil {
			local.ReferredByID = remote.ReferredByID
		}
		local.RemoteUpdatedAt = remote.RemoteUpdatedAt
		local.UpdatedAt = remote.UpdatedAt
		t.data.accounts[remote.ID] = local
		n++
	}
	return n, errors.Join(errs...)
}

func (t *memTx) LatestAccountUpdate(_ context.Context) (time.Time, error) {
	var latest time.Time
	for _, acc := range t.data.accounts {
		if acc.RemoteUpdatedAt != nil && acc.RemoteUpdatedAt.After(latest) {
			latest = *acc.RemoteUpdatedAt
		}
	}
	return latest, nil
}

func (t *memTx) GetProduct(_ context.Context, id string) (*models.InvestmentProduct, error) {
	if err := t.check("GetProduct", id); err != nil {
		return nil, err
	}
	p, ok := t.data.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) ListProducts(_ context.Context, activeOnly bool) ([]models.InvestmentProduct, error) {
	out := make([]models.InvestmentProduct, 0, len(t.data.products))
	for _, p := range t.data.products {
		if activeOnly && p.Status != models.ProductActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) CreateProduct(_ context.Context, p *models.InvestmentProduct) error {
	if _, ok := t.data.products[p.ID]; ok {
		return ErrDuplicate
	}
	p.CreatedAt = t.data.tick()
	p.UpdatedAt = p.CreatedAt
	t.data.products[p.ID] = *p
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, id string, upd ProductUpdate) error {
	if err := t.check("UpdateProduct", id); err != nil {
		return err
	}
	p, ok := t.data.products[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.MinimumAmount != nil {
		p.MinimumAmount = upd.MinimumAmount.Round(2)
	}
	if upd.ReturnRate != nil {
		p.ReturnRate = *upd.ReturnRate
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	p.UpdatedAt = t.data.tick()
	t.data.products[id] = p
	return nil
}

func (t *memTx) GetInvestment(_ context.Context, id string) (*models.Investment, error) {
	if err := t.check("GetInvestment", id); err != nil {
		return nil, err
	}
	inv, ok := t.data.investments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (t *memTx) GetInvestmentForUpdate(ctx context.Context, id string) (*models.Investment, error) {
	return t.GetInvestment(ctx, id)
}

func (t *memTx) CreateInvestment(_ context.Context, inv *models.Investment) error {
	if err := t.check("CreateInvestment", inv.ID); err != nil {
		return err
	}
	if _, ok := t.data.investments[inv.ID]; ok {
		return ErrDuplicate
	}
	inv.AmountInvested = inv.AmountInvested.Round(2)
	inv.CurrentValue = inv.CurrentValue.Round(2)
	inv.CreatedAt = t.data.tick()
	inv.UpdatedAt = inv.CreatedAt
	row := *inv
	row.Product = nil
	t.data.investments[inv.ID] = row
	return nil
}

func (t *memTx) UpdateInvestment(_ context.Context, id string, upd InvestmentUpdate) error {
	if err := t.check("UpdateInvestment", id); err != nil {
		return err
	}
	inv, ok := t.data.investments[id]
	if !ok {
		return ErrNotFound
	}
	if upd.LastReturnDate != nil {
		inv.LastReturnDate = *upd.LastReturnDate
	}
	if upd.Status != nil {
		inv.Status = *upd.Status
	}
	if upd.WithdrawnAt != nil {
		at := *upd.WithdrawnAt
		inv.WithdrawnAt = &at
	}
	t.data.investments[id] = inv
	return nil
}

func (t *memTx) FindActiveInvestments(_ context.Context) ([]models.Investment, error) {
	if err := t.check("FindActiveInvestments", ""); err != nil {
		return nil, err
	}
	var out []models.Investment
	for _, inv := range t.data.investments {
		if inv.Status == models.InvestmentActive {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) ListInvestments(_ context.Context, accountID string) ([]models.Investment, error) {
	var out []models.Investment
	for _, inv := range t.data.investments {
		if accountID != "" && inv.AccountID != accountID {
			continue
		}
		if p, ok := t.data.products[inv.ProductID]; ok {
			inv.Product = &p
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) CreateEarning(_ context.Context, e *models.Earning) error {
	if err := t.check("CreateEarning", e.AccountID); err != nil {
		return err
	}
	if e.IdempotencyKey != nil {
		if _, dup := t.data.earningKeys[*e.IdempotencyKey]; dup {
			return ErrDuplicate
		}
	}
	e.Amount = e.Amount.Round(2)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.data.tick()
	}
	if e.IdempotencyKey != nil {
		t.data.earningKeys[*e.IdempotencyKey] = len(t.data.earnings)
	}
	t.data.earnings = append(t.data.earnings, *e)
	return nil
}

func (t *memTx) GetEarningByKey(_ context.Context, key string) (*models.Earning, error) {
	i, ok := t.data.earningKeys[key]
	if !ok {
		return nil, ErrNotFound
	}
	e := t.data.earnings[i]
	return &e, nil
}

func (f EarningFilter) match(e models.Earning) bool {
	if f.AccountID != "" && e.AccountID != f.AccountID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

func (t *memTx) ListEarnings(_ context.Context, f EarningFilter) ([]models.Earning, error) {
	var out []models.Earning
	for i := len(t.data.earnings) - 1; i >= 0; i-- {
		if e := t.data.earnings[i]; f.match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) SumEarnings(_ context.Context, f EarningFilter) (map[models.EarningSource]decimal.Decimal, error) {
	out := map[models.EarningSource]decimal.Decimal{}
	for _, e := range t.data.earnings {
		if f.match(e) {
			out[e.Source] = out[e.Source].Add(e.Amount)
		}
	}
	return out, nil
}

func (t *memTx) GetWithdrawal(_ context.Context, id string) (*models.Withdrawal, error) {
	w, ok := t.data.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (t *memTx) GetWithdrawalForUpdate(ctx context.Context, id string) (*models.Withdrawal, error) {
	return t.GetWithdrawal(ctx, id)
}

func (t *memTx) CreateWithdrawal(_ context.Context, w *models.Withdrawal) error {
	if err := t.check("CreateWithdrawal", w.AccountID); err != nil {
		return err
	}
	if _, ok := t.data.withdrawals[w.ID]; ok {
		return ErrDuplicate
	}
	w.Amount = w.Amount.Round(2)
	w.CreatedAt = t.data.tick()
	w.UpdatedAt = w.CreatedAt
	t.data.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) UpdateWithdrawal(_ context.Context, id string, status models.ReviewStatus, at time.Time) error {
	if err := t.check("UpdateWithdrawal", id); err != nil {
		return err
	}
	w, ok := t.data.withdrawals[id]
	if !ok {
		return ErrNotFound
	}
	w.Status = status
	w.ProcessedAt = &at
	t.data.withdrawals[id] = w
	return nil
}

func (f ReviewFilter) match(accountID string, status models.ReviewStatus) bool {
	return (f.AccountID == "" || f.AccountID == accountID) && (f.Status == "" || f.Status == status)
}

func (t *memTx) ListWithdrawals(_ context.Context, f ReviewFilter) ([]models.Withdrawal, error) {
	var out []models.Withdrawal
	for _, w := range t.data.withdrawals {
		if f.match(w.AccountID, w.Status) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) SumWithdrawals(_ context.Context, accountID string, status models.ReviewStatus) (decimal.Decimal, error) {
	total := decimal.Zero
	f := ReviewFilter{AccountID: accountID, Status: status}
	for _, w := range t.data.withdrawals {
		if f.match(w.AccountID, w.Status) {
			total = total.Add(w.Amount)
		}
	}
	return total, nil
}

func (t *memTx) GetRechargeRequest(_ context.Context, id string) (*models.RechargeRequest, error) {
	r, ok := t.data.recharges[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) GetRechargeRequestForUpdate(ctx context.Context, id string) (*models.RechargeRequest, error) {
	return t.GetRechargeRequest(ctx, id)
}

func (t *memTx) CreateRechargeRequest(_ context.Context, r *models.RechargeRequest) error {
	if err := t.check("CreateRechargeRequest", r.AccountID); err != nil {
		return err
	}
	if _, ok := t.data.recharges[r.ID]; ok {
		return ErrDuplicate
	}
	r.Amount = r.Amount.Round(2)
	r.CreatedAt = t.data.tick()
	r.UpdatedAt = r.CreatedAt
	t.data.recharges[r.ID] = *r
	return nil
}

func (t *memTx) UpdateRechargeRequest(_ context.Context, id string, status models.ReviewStatus, at time.Time) error {
	if err := t.check("UpdateRechargeRequest", id); err != nil {
		return err
	}
	r, ok := t.data.recharges[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.ProcessedAt = &at
	t.data.recharges[id] = r
	return nil
}

func (t *memTx) ListRechargeRequests(_ context.Context, f ReviewFilter) ([]models.RechargeRequest, error) {
	var out []models.RechargeRequest
	for _, r := range t.data.recharges {
		if f.match(r.AccountID, r.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) GetSetting(_ context.Context, key string) (*models.SiteSetting, error) {
	if err := t.check("GetSetting", key); err != nil {
		return nil, err
	}
	s, ok := t.data.settings[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) EnsureSettings(_ context.Context, settings []models.SiteSetting) error {
	for _, s := range settings {
		if _, ok := t.data.settings[s.Key]; !ok {
			t.data.settings[s.Key] = s
		}
	}
	return nil
}
