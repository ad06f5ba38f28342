package api

import (
	"net/http" // HTTP status codes

	"wallet_ledger/internal/engine" // Transaction Engine

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point money
)

// TransferRequest represents a wallet to wallet transfer
type TransferRequest struct {
	FromWalletID   uint            `json:"fromWalletId" binding:"required"`   // Source wallet
	ToWalletNumber string          `json:"toWalletNumber" binding:"required"` // Destination wallet
	Amount         decimal.Decimal `json:"amount"`                            // Amount to move
	Description    string          `json:"description"`                       // Free text
	Reference      string          `json:"reference"`                         // Idempotency reference
}

// PaymentRequest represents a merchant payment
type PaymentRequest struct {
	WalletNumber string          `json:"walletNumber" binding:"required"` // Paying wallet
	Amount       decimal.Decimal `json:"amount"`                          // Amount to pay
	MerchantRef  string          `json:"merchantRef" binding:"required"`  // Merchant order reference
	Description  string          `json:"description"`                     // Free text
	Reference    string          `json:"reference"`                       // Idempotency reference
}

// SettleRequest is the gateway outcome of a pending top-up
type SettleRequest struct {
	Success    *bool  `json:"success" binding:"required"` // Gateway outcome
	GatewayRef string `json:"gatewayRef"`                 // Gateway reference
}

// TransferHandler moves funds from the caller's wallet to another wallet
func TransferHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		var req TransferRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		ctx := c.Request.Context()
		from, err := d.Store.GetWalletByID(ctx, req.FromWalletID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		// Only the owner may move money out of a wallet
		if !mayAccess(id, from.UserID) {
			forbidden(c)
			return
		}
		result, err := d.Engine.Transfer(ctx, engine.TransferRequest{
			FromWalletID:   req.FromWalletID,
			ToWalletNumber: req.ToWalletNumber,
			Amount:         req.Amount,
			Description:    req.Description,
			Reference:      reference(c, req.Reference),
		})
		if result != nil {
			d.invalidateRows(ctx, result.Debit, result.Credit)
		}
		if err != nil {
			if result != nil && result.Debit != nil {
				fail(c, err, result)
			} else {
				fail(c, err, nil)
			}
			return
		}
		ok(c, http.StatusCreated, "Transfer completed", result)
	}
}

// PaymentHandler pays a merchant from a wallet
func PaymentHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		var req PaymentRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		w, err := cachedWallet(c.Request.Context(), d, req.WalletNumber)
		if err != nil {
			fail(c, err, nil)
			return
		}
		if !mayAccess(id, w.UserID) {
			forbidden(c)
			return
		}
		row, err := d.Engine.Pay(c.Request.Context(), engine.PaymentRequest{
			WalletNumber: w.WalletNumber,
			Amount:       req.Amount,
			MerchantRef:  req.MerchantRef,
			Description:  req.Description,
			Reference:    reference(c, req.Reference),
		})
		respond(c, d, http.StatusCreated, "Payment completed", row, err)
	}
}

// GetTransactionHandler returns one transaction by reference
func GetTransactionHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, found := caller(c)
		if !found {
			return
		}
		ctx := c.Request.Context()
		row, err := d.Store.GetTransaction(ctx, c.Param("ref"))
		if err != nil {
			fail(c, err, nil)
			return
		}
		w, err := d.Store.GetWalletByID(ctx, row.WalletID)
		if err != nil {
			fail(c, err, nil)
			return
		}
		if !mayAccess(id, w.UserID) {
			forbidden(c)
			return
		}
		ok(c, http.StatusOK, "", row)
	}
}

// SettleHandler applies the gateway outcome to a pending top-up
func SettleHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SettleRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "success is required")
			return
		}
		row, err := d.Engine.Settle(c.Request.Context(), c.Param("ref"), *req.Success, req.GatewayRef)
		respond(c, d, http.StatusOK, "Transaction settled", row, err)
	}
}
