package handlers

import (
	"context"
	"mime/multipart"
	"strings"
	"time"

	"referral-ledger/logging"
	"referral-ledger/middleware"
	"referral-ledger/models"
	"referral-ledger/services"
	"referral-ledger/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReturnTrigger starts an on-demand return pass.
type ReturnTrigger interface {
	TriggerNow(ctx context.Context) (services.RunStats, error)
}

// ProofUploader stores payment proofs sent as multipart uploads.
type ProofUploader interface {
	Upload(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type LedgerHandler struct {
	accounts    *services.AccountService
	investments *services.InvestmentService
	withdrawals *services.WithdrawalService
	deposits    *services.DepositService
	earnings    *services.EarningService
	returns     ReturnTrigger
	proofs      ProofUploader
	log         *zap.Logger
}

type LedgerHandlerConfig struct {
	Accounts    *services.AccountService
	Investments *services.InvestmentService
	Withdrawals *services.WithdrawalService
	Deposits    *services.DepositService
	Earnings    *services.EarningService
	Returns     ReturnTrigger
	// Proofs may be nil; multipart deposits are then refused.
	Proofs ProofUploader
	Log    *zap.Logger
}

func NewLedgerHandler(cfg LedgerHandlerConfig) *LedgerHandler {
	return &LedgerHandler{
		accounts:    cfg.Accounts,
		investments: cfg.Investments,
		withdrawals: cfg.Withdrawals,
		deposits:    cfg.Deposits,
		earnings:    cfg.Earnings,
		returns:     cfg.Returns,
		proofs:      cfg.Proofs,
		log:         logging.OrNop(cfg.Log).Named("http"),
	}
}

// ---- account ----

func (h *LedgerHandler) GetAccount(c *fiber.Ctx) error {
	acc, err := h.accounts.GetAccount(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"account":         acc,
		"tier":            acc.ReferralTier.String(),
		"balance_display": utils.FormatAmount(acc.Balance),
	})
}

func (h *LedgerHandler) RegisterReferral(c *fiber.Ctx) error {
	var req struct {
		ReferrerID string `json:"referrer_id"`
		ReferredID string `json:"referred_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	acc, err := h.accounts.RegisterReferral(c.UserContext(), req.ReferrerID, req.ReferredID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(acc)
}

// ---- products and investments ----

func (h *LedgerHandler) ListActiveProducts(c *fiber.Ctx) error {
	return h.listProducts(c, true)
}

func (h *LedgerHandler) ListAllProducts(c *fiber.Ctx) error {
	return h.listProducts(c, false)
}

func (h *LedgerHandler) listProducts(c *fiber.Ctx, activeOnly bool) error {
	list, err := h.investments.ListProducts(c.UserContext(), activeOnly)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *LedgerHandler) CreateProduct(c *fiber.Ctx) error {
	var in services.ProductInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	p, err := h.investments.CreateProduct(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *LedgerHandler) UpdateProduct(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var patch services.ProductPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "invalid request body")
	}
	p, err := h.investments.UpdateProduct(c.UserContext(), id, patch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}

func (h *LedgerHandler) ListAllInvestments(c *fiber.Ctx) error {
	list, err := h.investments.ListAllInvestments(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *LedgerHandler) ListInvestments(c *fiber.Ctx) error {
	list, err := h.investments.ListInvestments(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *LedgerHandler) CreateInvestment(c *fiber.Ctx) error {
	var req struct {
		ProductID string          `json:"product_id"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.investments.CreateInvestment(c.UserContext(), middleware.UserID(c), req.ProductID, req.Amount)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *LedgerHandler) WithdrawPrincipal(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	amount, err := h.investments.WithdrawInvestmentPrincipal(c.UserContext(), id, middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"investment_id": id, "amount_returned": amount})
}

func (h *LedgerHandler) RetryCommission(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	amount, err := h.investments.RetryCommission(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"investment_id": id, "commission_awarded": amount})
}

func (h *LedgerHandler) RunReturns(c *fiber.Ctx) error {
	stats, err := h.returns.TriggerNow(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(stats)
}

// ---- withdrawals ----

func (h *LedgerHandler) ListWithdrawals(c *fiber.Ctx) error {
	list, err := h.withdrawals.ListWithdrawals(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *LedgerHandler) RequestWithdrawal(c *fiber.Ctx) error {
	var req struct {
		Amount         decimal.Decimal `json:"amount"`
		PaymentMethod  string          `json:"payment_method"`
		PaymentDetails string          `json:"payment_details"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	w, err := h.withdrawals.RequestWithdrawal(c.UserContext(), middleware.UserID(c), req.Amount, req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(w)
}

type reviewRequest struct {
	Status models.ReviewStatus `json:"status"`
}

func (h *LedgerHandler) ReviewQueueWithdrawals(c *fiber.Ctx) error {
	list, err := h.withdrawals.ListWithdrawalsByStatus(c.UserContext(), models.ReviewStatus(c.Query("status")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *LedgerHandler) ReviewWithdrawal(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	w, err := h.withdrawals.ReviewWithdrawal(c.UserContext(), id, req.Status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(w)
}

// ---- deposits ----

func (h *LedgerHandler) ListDeposits(c *fiber.Ctx) error {
	list, err := h.deposits.ListDeposits(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

// RequestDeposit accepts either JSON {amount, proof} with an already uploaded proof reference,
// or multipart form data with an amount field and a proof file.
func (h *LedgerHandler) RequestDeposit(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	var (
		amount   decimal.Decimal
		proof    string
		uploaded bool
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		parsed, err := utils.ParseAmount(c.FormValue("amount"))
		if err != nil {
			return badRequest(c, err.Error())
		}
		fh, err := c.FormFile("proof")
		if err != nil {
			return badRequest(c, "proof file is required")
		}
		if h.proofs == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "proof uploads are not configured"})
		}
		if _, err := h.accounts.GetAccount(c.UserContext(), userID); err != nil {
			return h.fail(c, err)
		}
		key, err := h.proofs.Upload(c.UserContext(), fh, utils.ProofKey(userID, fh.Filename))
		if err != nil {
			h.log.Error("proof upload failed", zap.String("account_id", userID), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to store payment proof"})
		}
		amount, proof, uploaded = parsed, key, true
	} else {
		var req struct {
			Amount decimal.Decimal `json:"amount"`
			Proof  string          `json:"proof"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		amount, proof = req.Amount, req.Proof
	}

	r, err := h.deposits.RequestDeposit(c.UserContext(), userID, amount, proof)
	if err != nil {
		if uploaded {
			if derr := h.proofs.Delete(c.UserContext(), proof); derr != nil {
				h.log.Warn("failed to remove orphaned proof", zap.String("key", proof), zap.Error(derr))
			}
		}
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (h *LedgerHandler) ReviewQueueDeposits(c *fiber.Ctx) error {
	list, err := h.deposits.ListDepositsByStatus(c.UserContext(), models.ReviewStatus(c.Query("status")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *LedgerHandler) ReviewDeposit(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := h.deposits.ReviewDeposit(c.UserContext(), id, req.Status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(r)
}

// ---- earnings ----

func (h *LedgerHandler) ListEarnings(c *fiber.Ctx) error {
	list, err := h.earnings.ListEarnings(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *LedgerHandler) EarningsSummary(c *fiber.Ctx) error {
	sum, err := h.earnings.Summary(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(sum)
}

func (h *LedgerHandler) EarningsByType(c *fiber.Ctx) error {
	period := c.Query("period", "last_30_days")
	totals, err := h.earnings.ByPeriod(c.UserContext(), middleware.UserID(c), period)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"period": period, "totals": totals})
}

func (h *LedgerHandler) CreditEarning(c *fiber.Ctx) error {
	var in services.CreditInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	e, err := h.earnings.CreditEarning(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
}
