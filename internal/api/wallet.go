package api

import (
	"context"  // Context for cache lookups
	"net/http" // HTTP status codes

	"wallet_ledger/internal/domain"    // Domain models
	"wallet_ledger/internal/engine"    // Transaction Engine
	"wallet_ledger/internal/reporting" // Wallet history
	"wallet_ledger/internal/utils"     // Cache keys

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logging library
)

// AddMoneyRequest represents a top-up request
type AddMoneyRequest struct {
	Amount            decimal.Decimal `json:"amount"`            // Amount to add
	PaymentMethod     string          `json:"paymentMethod"`     // Channel label
	PaymentMethodID   *uint           `json:"paymentMethodId"`   // Stored payment method
	PaymentGatewayRef string          `json:"paymentGatewayRef"` // Gateway reference
	Description       string          `json:"description"`       // Free text
	Reference         string          `json:"reference"`         // Idempotency reference
	DeferSettlement   bool            `json:"deferSettlement"`   // Wait for the gateway callback
}

// WithdrawRequest represents a withdrawal request
type WithdrawRequest struct {
	Amount          decimal.Decimal `json:"amount"`          // Amount to withdraw
	PaymentMethod   string          `json:"paymentMethod"`   // BANK_TRANSFER or CARD
	BankAccount     string          `json:"bankAccount"`     // Bank payouts
	IFSCCode        string          `json:"ifscCode"`        // Bank payouts
	PaymentMethodID *uint           `json:"paymentMethodId"` // Card payouts
	Description     string          `json:"description"`     // Free text
	Reference       string          `json:"reference"`       // Idempotency reference
}

// walletFor loads the wallet named in the path and checks the caller may use it.
func walletFor(c *gin.Context, d *Deps) (*domain.Wallet, *domain.Identity, bool) {
	id, found := caller(c)
	if !found {
		return nil, nil, false
	}
	w, err := cachedWallet(c.Request.Context(), d, c.Param("walletNumber"))
	if err != nil {
		fail(c, err, nil)
		return nil, nil, false
	}
	if !mayAccess(id, w.UserID) {
		forbidden(c)
		return nil, nil, false
	}
	return w, id, true
}

// cachedWallet reads a wallet by number through the cache.
func cachedWallet(ctx context.Context, d *Deps, number string) (*domain.Wallet, error) {
	key := utils.WalletKey(number)
	var cached domain.Wallet
	if hit, err := d.Cache.Get(ctx, key, &cached); err != nil {
		logrus.WithError(err).Warn("Redis GET failed")
	} else if hit {
		return &cached, nil
	}
	w, err := d.Store.GetWallet(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := d.Cache.Set(ctx, key, w); err != nil {
		logrus.WithError(err).Warn("Redis SET failed")
	}
	return w, nil
}

// respond answers a ledger operation. Rejections carry the FAILED row they recorded.
func respond(c *gin.Context, d *Deps, status int, message string, row *domain.Transaction, err error) {
	if row != nil {
		d.invalidateRows(c.Request.Context(), row)
	}
	if err != nil {
		if row != nil {
			fail(c, err, row)
		} else {
			fail(c, err, nil)
		}
		return
	}
	ok(c, status, message, row)
}

// GetWalletHandler returns a wallet by number
func GetWalletHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, _, found := walletFor(c, d)
		if !found {
			return
		}
		ok(c, http.StatusOK, "", w)
	}
}

// GetLimitsHandler reports limits, spend and headroom for the current windows
func GetLimitsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, _, found := walletFor(c, d)
		if !found {
			return
		}
		// Spend must reflect the latest commits, so bypass the cached row
		fresh, err := d.Store.GetWalletByID(c.Request.Context(), w.ID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		window, err := d.Limits.Snapshot(d.Store.Reader(c.Request.Context()), fresh)
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "", window)
	}
}

// AddMoneyHandler credits a wallet from an external source
func AddMoneyHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, _, found := walletFor(c, d)
		if !found {
			return
		}
		var req AddMoneyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		row, err := d.Engine.TopUp(c.Request.Context(), engine.TopUpRequest{
			WalletNumber:    w.WalletNumber,
			Amount:          req.Amount,
			PaymentMethod:   req.PaymentMethod,
			PaymentMethodID: req.PaymentMethodID,
			GatewayRef:      req.PaymentGatewayRef,
			Description:     req.Description,
			Reference:       reference(c, req.Reference),
			DeferSettlement: req.DeferSettlement,
		})
		status := http.StatusCreated
		if row != nil && row.Status == domain.StatusPending {
			status = http.StatusAccepted
		}
		respond(c, d, status, "Money added", row, err)
	}
}

// WithdrawHandler pays funds out to a bank account or card
func WithdrawHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, _, found := walletFor(c, d)
		if !found {
			return
		}
		var req WithdrawRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		var methodID uint
		if req.PaymentMethodID != nil {
			methodID = *req.PaymentMethodID
		}
		payout, err := engine.ParsePayout(req.PaymentMethod, req.BankAccount, req.IFSCCode, methodID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		row, err := d.Engine.Withdraw(c.Request.Context(), engine.WithdrawRequest{
			WalletNumber: w.WalletNumber,
			Amount:       req.Amount,
			Payout:       payout,
			Description:  req.Description,
			Reference:    reference(c, req.Reference),
		})
		respond(c, d, http.StatusCreated, "Withdrawal completed", row, err)
	}
}

// HistoryHandler pages a wallet's transactions with committed totals
func HistoryHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, _, found := walletFor(c, d)
		if !found {
			return
		}
		ctx := c.Request.Context()
		page := pageFrom(c)
		family := utils.HistoryFamily(w.ID)
		key := utils.PageKey(family, d.Cache.Version(ctx, family), page.Page, page.PageSize)

		var cached reporting.History
		if hit, err := d.Cache.Get(ctx, key, &cached); err != nil {
			logrus.WithError(err).Warn("Redis GET failed")
		} else if hit {
			ok(c, http.StatusOK, "", &cached)
			return
		}
		history, err := d.Reports.WalletHistory(ctx, w.ID, page)
		if err != nil {
			fail(c, err, nil)
			return
		}
		if err := d.Cache.Set(ctx, key, history); err != nil {
			logrus.WithError(err).Warn("Redis SET failed")
		}
		ok(c, http.StatusOK, "", history)
	}
}
