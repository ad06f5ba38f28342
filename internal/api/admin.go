package api

import (
	"net/http" // HTTP status codes

	"wallet_ledger/internal/admin"     // Admin controller
	"wallet_ledger/internal/domain"    // Domain models
	"wallet_ledger/internal/reporting" // Read-only queries

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point money
)

// WalletStatusRequest moves a wallet to a new status
type WalletStatusRequest struct {
	Status string `json:"status" binding:"required"` // ACTIVE, INACTIVE, FROZEN or BLOCKED
}

// LimitsRequest replaces a wallet's spend caps
type LimitsRequest struct {
	DailyLimit          *decimal.Decimal `json:"dailyLimit" binding:"required"`          // Cap per day
	MonthlyLimit        *decimal.Decimal `json:"monthlyLimit" binding:"required"`        // Cap per month
	PerTransactionLimit *decimal.Decimal `json:"perTransactionLimit" binding:"required"` // Cap per debit
}

// RefundRequest carries an optional refund reason
type RefundRequest struct {
	Reason string `json:"reason"` // Shown on the compensating rows
}

// DashboardHandler returns system-wide aggregates
func DashboardHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := d.Reports.Dashboard(c.Request.Context())
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "", stats)
	}
}

// ListWalletsHandler pages wallets, optionally filtered by ?status=
func ListWalletsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallets, err := d.Reports.ListWallets(c.Request.Context(), c.Query("status"), pageFrom(c))
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "", wallets)
	}
}

// SetWalletStatusHandler activates, deactivates, freezes or blocks a wallet
func SetWalletStatusHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		walletID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		var req WalletStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "status is required")
			return
		}
		status, err := domain.ParseWalletStatus(req.Status)
		if err != nil {
			fail(c, err, nil)
			return
		}
		w, err := d.Admin.SetWalletStatus(c.Request.Context(), walletID, status, id.UserID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		d.invalidate(c.Request.Context(), w)
		ok(c, http.StatusOK, "Wallet status updated", w)
	}
}

// UpdateLimitsHandler replaces a wallet's spend caps
func UpdateLimitsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		walletID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		var req LimitsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "dailyLimit, monthlyLimit and perTransactionLimit are required")
			return
		}
		w, err := d.Admin.UpdateWalletLimits(c.Request.Context(), walletID, admin.Limits{
			DailyLimit:          *req.DailyLimit,
			MonthlyLimit:        *req.MonthlyLimit,
			PerTransactionLimit: *req.PerTransactionLimit,
		}, id.UserID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		d.invalidate(c.Request.Context(), w)
		ok(c, http.StatusOK, "Wallet limits updated", w)
	}
}

// ListTransactionsHandler pages transactions filtered by ?status= and ?type=
func ListTransactionsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := d.Reports.ListTransactions(c.Request.Context(), reporting.TxFilter{
			Status: c.Query("status"),
			Type:   c.Query("type"),
			Page:   pageFrom(c),
		})
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "", txs)
	}
}

// RefundHandler reverses a completed transaction
func RefundHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefundRequest
		// The body is optional
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, "Invalid request")
				return
			}
		}
		rows, err := d.Engine.Refund(c.Request.Context(), c.Param("ref"), req.Reason)
		if err != nil {
			fail(c, err, nil)
			return
		}
		d.invalidateRows(c.Request.Context(), rows...)
		ok(c, http.StatusCreated, "Transaction refunded", rows)
	}
}

// ListAllPaymentMethodsHandler pages every stored payment method
func ListAllPaymentMethodsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		methods, err := d.Reports.ListPaymentMethods(c.Request.Context(), pageFrom(c))
		if err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "", methods)
	}
}

// DeletePaymentMethodHandler removes a payment method no pending transaction uses
func DeletePaymentMethodHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		methodID, valid := uintParam(c, "id")
		if !valid {
			return
		}
		if err := d.Admin.DeletePaymentMethod(c.Request.Context(), methodID, id.UserID); err != nil {
			fail(c, err, nil)
			return
		}
		ok(c, http.StatusOK, "Payment method deleted", nil)
	}
}
