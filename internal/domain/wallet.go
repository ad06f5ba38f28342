package domain

import (
	"strings"
	"time" // Timestamps and time zones

	"github.com/shopspring/decimal" // Fixed-point money
)

// WalletStatus governs whether a wallet may take part in new transactions.
type WalletStatus string

const (
	WalletActive   WalletStatus = "ACTIVE"
	WalletInactive WalletStatus = "INACTIVE"
	WalletFrozen   WalletStatus = "FROZEN"
	WalletBlocked  WalletStatus = "BLOCKED"
)

// ParseWalletStatus validates a client supplied status name.
func ParseWalletStatus(s string) (WalletStatus, error) {
	st := WalletStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case WalletActive, WalletInactive, WalletFrozen, WalletBlocked:
		return st, nil
	}
	return "", Validationf("unknown wallet status %q", s)
}

// WalletType classifies the wallet. It has no effect on ledger rules.
type WalletType string

const (
	WalletPersonal WalletType = "PERSONAL"
	WalletBusiness WalletType = "BUSINESS"
	WalletSavings  WalletType = "SAVINGS"
)

// ParseWalletType validates a client supplied wallet type, defaulting to PERSONAL.
func ParseWalletType(s string) (WalletType, error) {
	if strings.TrimSpace(s) == "" {
		return WalletPersonal, nil
	}
	t := WalletType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case WalletPersonal, WalletBusiness, WalletSavings:
		return t, nil
	}
	return "", Validationf("unknown wallet type %q", s)
}

// Wallet Model
type Wallet struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`                                              // Primary key
	WalletNumber        string          `gorm:"size:20;uniqueIndex;not null" json:"walletNumber"`                  // Client-facing number
	UserID              uint            `gorm:"uniqueIndex;not null" json:"userId"`                                // Owning user, one wallet each
	Currency            string          `gorm:"size:3;not null" json:"currency"`                                   // ISO code
	Balance             decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"balance"`              // Only changed by committed entries
	Status              WalletStatus    `gorm:"column:wallet_status;size:20;not null;index" json:"status"`         // Lifecycle status
	Type                WalletType      `gorm:"column:wallet_type;size:20;not null" json:"walletType"`             // Classification
	TimeZone            string          `gorm:"size:64;not null" json:"timeZone"`                                  // Day boundary for limit windows
	DailyLimit          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"dailyLimit"`                     // Spend cap per calendar day
	MonthlyLimit        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"monthlyLimit"`                   // Spend cap per calendar month
	PerTransactionLimit decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"perTransactionLimit"`            // Cap on a single debit
	CreatedAt           time.Time       `json:"createdAt"`                                                         // Creation time
	UpdatedAt           time.Time       `json:"updatedAt"`                                                         // Last change
}

// Location resolves the wallet's time zone, falling back to UTC.
func (w *Wallet) Location() *time.Location {
	if w.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
