package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"referral-ledger/models"
	"referral-ledger/store"
	"referral-ledger/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RunStats struct {
	Found            int             `json:"found"`
	Processed        int             `json:"processed"`
	Skipped          int             `json:"skipped"`
	Errors           int             `json:"errors"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	StartedAt        time.Time       `json:"started_at"`
	Duration         time.Duration   `json:"duration"`
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeError
)

type returnResult struct {
	outcome outcome
	amount  decimal.Decimal
}

// errNotDue aborts a return transaction whose locked row was already paid by a concurrent pass.
var errNotDue = errors.New("investment not due")

// ReturnProcessor credits periodic returns on active investments.
type ReturnProcessor struct {
	Deps
	// Workers bounds how many investments are processed concurrently. Values below 1 mean 1.
	Workers int
	log     *zap.Logger
}

func NewReturnProcessor(deps Deps, workers int) *ReturnProcessor {
	deps = deps.withDefaults()
	return &ReturnProcessor{Deps: deps, Workers: workers, log: deps.Log.Named("returns")}
}

func returnKey(investmentID string, lastReturn time.Time) string {
	return "return:" + investmentID + ":" + strconv.FormatInt(lastReturn.UnixMilli(), 10)
}

// RunScheduledReturnPass visits every active investment once. Failures of single investments are
// counted and logged; only a failure to list the active investments aborts the pass.
func (p *ReturnProcessor) RunScheduledReturnPass(ctx context.Context) (RunStats, error) {
	stats := RunStats{StartedAt: p.Clock.Now(), TotalDistributed: decimal.Zero}
	started := time.Now()

	active, err := p.Store.FindActiveInvestments(ctx)
	if err != nil {
		stats.Duration = time.Since(started)
		p.Metrics.ReturnRun("failed", 0, 0, 0, decimal.Zero, stats.Duration, p.Clock.Now())
		return stats, classify("return pass", err)
	}
	stats.Found = len(active)
	p.log.Info("return pass started", zap.Int("active_investments", stats.Found))

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	products := &productCache{store: p.Store, items: map[string]*models.InvestmentProduct{}}
	jobs := make(chan models.Investment)
	results := make(chan returnResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inv := range jobs {
				results <- p.processOne(ctx, inv, products)
			}
		}()
	}
	go func() {
		for _, inv := range active {
			jobs <- inv
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		switch r.outcome {
		case outcomeProcessed:
			stats.Processed++
			stats.TotalDistributed = stats.TotalDistributed.Add(r.amount)
		case outcomeSkipped:
			stats.Skipped++
		case outcomeError:
			stats.Errors++
		}
	}

	stats.Duration = time.Since(started)
	p.Metrics.ReturnRun("ok", stats.Processed, stats.Skipped, stats.Errors, stats.TotalDistributed, stats.Duration, p.Clock.Now())
	p.log.Info("return pass finished",
		zap.Int("found", stats.Found),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.String("total_distributed", stats.TotalDistributed.StringFixed(2)),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (p *ReturnProcessor) processOne(ctx context.Context, inv models.Investment, products *productCache) returnResult {
	log := p.log.With(zap.String("investment_id", inv.ID))

	product, err := products.get(ctx, inv.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("skipping investment, product not found", zap.String("product_id", inv.ProductID))
		return returnResult{outcome: outcomeSkipped}
	}
	if err != nil {
		log.Error("failed to load product", zap.Error(err))
		return returnResult{outcome: outcomeError}
	}
	if _, err := p.Store.GetAccount(ctx, inv.AccountID); errors.Is(err, store.ErrNotFound) {
		log.Warn("skipping investment, account not found", zap.String("account_id", inv.AccountID))
		return returnResult{outcome: outcomeSkipped}
	} else if err != nil {
		log.Error("failed to load account", zap.Error(err))
		return returnResult{outcome: outcomeError}
	}

	now := p.Clock.Now()
	due, err := IsDue(product, inv.LastReturnDate, now)
	if err != nil {
		log.Error("cannot evaluate return period", zap.Error(err))
		return returnResult{outcome: outcomeError}
	}
	if !due {
		return returnResult{outcome: outcomeSkipped}
	}

	amount := ReturnAmount(inv.AmountInvested, product.ReturnRate)
	if !amount.IsPositive() {
		log.Warn("skipping investment, return amount is not positive", zap.String("return_rate", product.ReturnRate.String()))
		return returnResult{outcome: outcomeSkipped}
	}

	err = p.Store.RunInTx(ctx, func(tx store.Tx) error {
		locked, err := tx.GetInvestmentForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		if locked.Status != models.InvestmentActive {
			return errNotDue
		}
		if due, err := IsDue(product, locked.LastReturnDate, now); err != nil {
			return err
		} else if !due {
			return errNotDue
		}

		if _, err := tx.AdjustBalance(ctx, locked.AccountID, amount); err != nil {
			return err
		}
		if err := tx.UpdateInvestment(ctx, locked.ID, store.InvestmentUpdate{LastReturnDate: &now}); err != nil {
			return err
		}
		key := returnKey(locked.ID, locked.LastReturnDate)
		ref := locked.ID
		return tx.CreateEarning(ctx, &models.Earning{
			ID:             uuid.NewString(),
			AccountID:      locked.AccountID,
			Amount:         amount,
			Source:         models.SourceInvestment,
			Description:    fmt.Sprintf("Return of %s%% on %s invested in %s", product.ReturnRate.String(), utils.FormatAmount(locked.AmountInvested), product.Name),
			Status:         models.EarningCredited,
			ReferenceID:    &ref,
			ReferenceModel: "investment",
			IdempotencyKey: &key,
			CreatedAt:      now,
		})
	})
	switch {
	case errors.Is(err, errNotDue), errors.Is(err, store.ErrDuplicate):
		log.Info("investment already paid for this period")
		return returnResult{outcome: outcomeSkipped}
	case err != nil:
		log.Error("return transaction failed", zap.Error(err))
		return returnResult{outcome: outcomeError}
	}

	log.Debug("return credited",
		zap.String("account_id", inv.AccountID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return returnResult{outcome: outcomeProcessed, amount: amount}
}

// productCache memoizes product lookups for the duration of one pass.
type productCache struct {
	store store.ProductStore
	mu    sync.Mutex
	items map[string]*models.InvestmentProduct
}

func (c *productCache) get(ctx context.Context, id string) (*models.InvestmentProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.items[id]; ok {
		if p == nil {
			return nil, store.ErrNotFound
		}
		return p, nil
	}
	p, err := c.store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.items[id] = nil
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.items[id] = p
	return p, nil
}
