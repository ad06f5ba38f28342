package admin

import (
	"context"
	"errors"
	"fmt"

	"wallet_ledger/internal/domain" // Domain models
	"wallet_ledger/internal/events" // Post-commit notifications
	"wallet_ledger/internal/ledger" // Ledger Store

	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logrus for structured logging
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Row locking
)

// Controller applies administrative overrides. None of its operations move money.
type Controller struct {
	db     *gorm.DB
	store  *ledger.Store
	events events.Publisher
}

func NewController(db *gorm.DB, store *ledger.Store, publisher events.Publisher) *Controller {
	if publisher == nil {
		publisher = events.Fallback{}
	}
	return &Controller{db: db, store: store, events: publisher}
}

// SetWalletStatus moves a wallet to any status. It is an independent write:
// it takes the wallet row lock, so it orders against in-flight ledger units,
// but it writes no transaction rows.
func (c *Controller) SetWalletStatus(ctx context.Context, walletID uint, status domain.WalletStatus, actor uint) (*domain.Wallet, error) {
	status, err := domain.ParseWalletStatus(string(status))
	if err != nil {
		return nil, err
	}

	var wallet domain.Wallet
	var previous domain.WalletStatus
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, &wallet, walletID, domain.ErrWalletNotFound); err != nil {
			return err
		}
		previous = wallet.Status
		if previous == status {
			return nil
		}
		now := c.store.Now()
		err := tx.Model(&domain.Wallet{}).Where("id = ?", walletID).
			Updates(map[string]any{"wallet_status": status, "updated_at": now}).Error
		if err != nil {
			return fmt.Errorf("update wallet status: %w", err)
		}
		wallet.Status, wallet.UpdatedAt = status, now
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"wallet": wallet.WalletNumber,
		"from":   previous,
		"to":     status,
		"actor":  actor,
	}).Info("Wallet status changed")
	if previous != status {
		events.Emit(ctx, c.events, events.WalletStatusChanged, events.WalletStatusEvent{
			WalletID:     wallet.ID,
			WalletNumber: wallet.WalletNumber,
			From:         previous,
			To:           status,
			ChangedBy:    actor,
			OccurredAt:   wallet.UpdatedAt,
		})
	}
	return &wallet, nil
}

// Limits are the spend caps of a wallet.
type Limits struct {
	DailyLimit          decimal.Decimal
	MonthlyLimit        decimal.Decimal
	PerTransactionLimit decimal.Decimal
}

// Validate requires 0 <= per-transaction <= daily <= monthly with cent precision.
func (l Limits) Validate() error {
	for _, v := range []decimal.Decimal{l.DailyLimit, l.MonthlyLimit, l.PerTransactionLimit} {
		if v.IsNegative() {
			return domain.Validationf("limits must not be negative")
		}
		if !v.Equal(v.Round(2)) {
			return domain.Validationf("limits must have at most two decimal places")
		}
	}
	if l.PerTransactionLimit.GreaterThan(l.DailyLimit) || l.DailyLimit.GreaterThan(l.MonthlyLimit) {
		return domain.Validationf("limits must satisfy per-transaction <= daily <= monthly")
	}
	return nil
}

// UpdateWalletLimits replaces a wallet's spend caps.
func (c *Controller) UpdateWalletLimits(ctx context.Context, walletID uint, limits Limits, actor uint) (*domain.Wallet, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	var wallet domain.Wallet
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, &wallet, walletID, domain.ErrWalletNotFound); err != nil {
			return err
		}
		now := c.store.Now()
		err := tx.Model(&domain.Wallet{}).Where("id = ?", walletID).Updates(map[string]any{
			"daily_limit":           limits.DailyLimit,
			"monthly_limit":         limits.MonthlyLimit,
			"per_transaction_limit": limits.PerTransactionLimit,
			"updated_at":            now,
		}).Error
		if err != nil {
			return fmt.Errorf("update wallet limits: %w", err)
		}
		wallet.DailyLimit = limits.DailyLimit
		wallet.MonthlyLimit = limits.MonthlyLimit
		wallet.PerTransactionLimit = limits.PerTransactionLimit
		wallet.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"wallet":  wallet.WalletNumber,
		"daily":   limits.DailyLimit.StringFixed(2),
		"monthly": limits.MonthlyLimit.StringFixed(2),
		"per_tx":  limits.PerTransactionLimit.StringFixed(2),
		"actor":   actor,
	}).Info("Wallet limits updated")
	return &wallet, nil
}

// UserUpdate holds the administrative user fields. Nil means unchanged.
type UserUpdate struct {
	KYCStatus *string
	Role      *string
	IsActive  *bool
}

// UpdateUserAdminFields validates and applies KYC status, role and active
// flag in one write. The user's wallet is not touched. Only a SUPERUSER actor
// may grant SUPERUSER.
func (c *Controller) UpdateUserAdminFields(ctx context.Context, userID uint, in UserUpdate, actor uint) (*domain.User, error) {
	updates := map[string]any{}
	grantsSuperuser := false
	if in.KYCStatus != nil {
		kyc, err := domain.ParseKYCStatus(*in.KYCStatus)
		if err != nil {
			return nil, err
		}
		updates["kyc_status"] = kyc
	}
	if in.Role != nil {
		role, err := domain.ParseUserRole(*in.Role)
		if err != nil {
			return nil, err
		}
		updates["user_role"] = role
		grantsSuperuser = role == domain.RoleSuperuser
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return nil, domain.Validationf("at least one of kycStatus, userRole or isActive is required")
	}

	var user domain.User
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if grantsSuperuser {
			var by domain.User
			if err := tx.Take(&by, actor).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load actor: %w", err)
			}
			if by.Role != domain.RoleSuperuser {
				return domain.NewError(domain.KindForbidden, "only a SUPERUSER can grant SUPERUSER")
			}
		}
		if err := lockRow(tx, &user, userID, domain.NewError(domain.KindNotFound, "user %d not found", userID)); err != nil {
			return err
		}
		updates["updated_at"] = c.store.Now()
		if err := tx.Model(&domain.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return tx.Take(&user, userID).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"kyc":       user.KYCStatus,
		"role":      user.Role,
		"is_active": user.IsActive,
		"actor":     actor,
	}).Info("User admin fields updated")
	return &user, nil
}

// DeletePaymentMethod removes a stored payment method unless a PENDING
// transaction still references it.
func (c *Controller) DeletePaymentMethod(ctx context.Context, id uint, actor uint) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pm domain.PaymentMethod
		if err := lockRow(tx, &pm, id, domain.NewError(domain.KindNotFound, "payment method %d not found", id)); err != nil {
			return err
		}
		var pending int64
		err := tx.Model(&domain.Transaction{}).
			Where("payment_method_id = ? AND transaction_status = ?", id, domain.StatusPending).
			Count(&pending).Error
		if err != nil {
			return fmt.Errorf("count pending transactions: %w", err)
		}
		if pending > 0 {
			return domain.NewError(domain.KindResourceInUse,
				"payment method %d is referenced by %d pending transaction(s)", id, pending)
		}
		if err := tx.Delete(&domain.PaymentMethod{}, id).Error; err != nil {
			return fmt.Errorf("delete payment method: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"payment_method_id": id, "actor": actor}).Info("Payment method deleted")
	return nil
}

// lockRow loads dest by primary key FOR UPDATE, returning missing when absent.
func lockRow(tx *gorm.DB, dest any, id uint, missing error) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return missing
	}
	if err != nil {
		return fmt.Errorf("load row: %w", err)
	}
	return nil
}
