package api

import (
	"context" // Cache invalidation context

	"wallet_ledger/internal/admin"      // Admin controller and accounts
	"wallet_ledger/internal/domain"     // Domain models
	"wallet_ledger/internal/engine"     // Transaction Engine
	"wallet_ledger/internal/ledger"     // Ledger Store
	"wallet_ledger/internal/limits"     // Limit Tracker
	"wallet_ledger/internal/middleware" // Authentication and role gates
	"wallet_ledger/internal/reporting"  // Read-only queries
	"wallet_ledger/internal/utils"      // Redis cache

	"github.com/gin-gonic/gin" // Gin web framework
)

// Deps are the services the handlers call
type Deps struct {
	Engine   *engine.Engine
	Store    *ledger.Store
	Limits   *limits.Tracker
	Admin    *admin.Controller
	Accounts *admin.Accounts
	Reports  *reporting.Facade
	Cache    *utils.Cache // nil disables caching
}

// RegisterRoutes mounts the API under /api/v1
func RegisterRoutes(r *gin.Engine, d *Deps) {
	v1 := r.Group("/api/v1")

	// Public routes
	v1.POST("/users/register", RegisterHandler(d))
	v1.POST("/users/login", LoginHandler(d))

	auth := v1.Group("")
	auth.Use(middleware.JWTAuthMiddleware(d.Accounts))
	adminOnly := middleware.AdminOnlyMiddleware()

	// User routes
	auth.GET("/users", adminOnly, ListUsersHandler(d))
	auth.GET("/users/:id", GetUserHandler(d))
	auth.PUT("/users/:id", UpdateProfileHandler(d))
	auth.PUT("/users/:id/admin", adminOnly, UpdateUserAdminHandler(d))
	auth.GET("/users/:id/payment-methods", ListPaymentMethodsHandler(d))
	auth.POST("/users/:id/payment-methods", AddPaymentMethodHandler(d))

	// Wallet routes
	auth.GET("/wallets/:walletNumber", GetWalletHandler(d))
	auth.GET("/wallets/:walletNumber/limits", GetLimitsHandler(d))
	auth.POST("/wallets/:walletNumber/add-money", AddMoneyHandler(d))
	auth.POST("/wallets/:walletNumber/withdraw", WithdrawHandler(d))

	// Transaction routes
	auth.POST("/transactions/transfer", TransferHandler(d))
	auth.POST("/transactions/payment", PaymentHandler(d))
	auth.GET("/transactions/history/:walletNumber", HistoryHandler(d))
	auth.GET("/transactions/:ref", GetTransactionHandler(d))
	auth.POST("/transactions/:ref/settle", adminOnly, SettleHandler(d))

	// Admin routes
	adminGroup := auth.Group("/admin", adminOnly)
	adminGroup.GET("/dashboard", DashboardHandler(d))
	adminGroup.GET("/wallets", ListWalletsHandler(d))
	adminGroup.PUT("/wallets/:id", SetWalletStatusHandler(d))
	adminGroup.PUT("/wallets/:id/limits", UpdateLimitsHandler(d))
	adminGroup.GET("/transactions", ListTransactionsHandler(d))
	adminGroup.POST("/transactions/:ref/refund", RefundHandler(d))
	adminGroup.GET("/payment-methods", ListAllPaymentMethodsHandler(d))
	adminGroup.DELETE("/payment-methods/:id", DeletePaymentMethodHandler(d))
}

// invalidate drops cached reads of the given wallets after a commit
func (d *Deps) invalidate(ctx context.Context, wallets ...*domain.Wallet) {
	m := make(map[uint]string, len(wallets))
	for _, w := range wallets {
		if w != nil {
			m[w.ID] = w.WalletNumber
		}
	}
	d.Cache.InvalidateWallets(ctx, m)
}

// invalidateRows resolves the wallets touched by rows and invalidates them
func (d *Deps) invalidateRows(ctx context.Context, rows ...*domain.Transaction) {
	if d.Cache == nil {
		return
	}
	seen := map[uint]bool{}
	var wallets []*domain.Wallet
	for _, row := range rows {
		if row == nil || seen[row.WalletID] {
			continue
		}
		seen[row.WalletID] = true
		if w, err := d.Store.GetWalletByID(ctx, row.WalletID); err == nil {
			wallets = append(wallets, w)
		}
	}
	d.invalidate(ctx, wallets...)
}
