package domain

import (
	"strings"
	"time" // Timestamps
)

// PaymentType is the kind of stored instrument.
type PaymentType string

const (
	PaymentCreditCard   PaymentType = "CREDIT_CARD"
	PaymentDebitCard    PaymentType = "DEBIT_CARD"
	PaymentBankAccount  PaymentType = "BANK_ACCOUNT"
	PaymentUPI          PaymentType = "UPI"
	PaymentMobileWallet PaymentType = "MOBILE_WALLET"
)

// IsCard reports whether the instrument is a card.
func (p PaymentType) IsCard() bool { return p == PaymentCreditCard || p == PaymentDebitCard }

// ParsePaymentType validates a client supplied payment type.
func ParsePaymentType(s string) (PaymentType, error) {
	p := PaymentType(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PaymentCreditCard, PaymentDebitCard, PaymentBankAccount, PaymentUPI, PaymentMobileWallet:
		return p, nil
	}
	return "", Validationf("unknown payment type %q", s)
}

type PaymentMethodStatus string

const (
	PaymentMethodActive   PaymentMethodStatus = "ACTIVE"
	PaymentMethodInactive PaymentMethodStatus = "INACTIVE"
	PaymentMethodExpired  PaymentMethodStatus = "EXPIRED"
	PaymentMethodBlocked  PaymentMethodStatus = "BLOCKED"
)

// PaymentMethod Model
type PaymentMethod struct {
	ID            uint                `gorm:"primaryKey" json:"id"`                                      // Primary key
	UserID        uint                `gorm:"index;not null" json:"userId"`                              // Owner
	Type          PaymentType         `gorm:"column:payment_type;size:20;not null" json:"paymentType"`   // Instrument kind
	ProviderName  string              `gorm:"size:100" json:"providerName,omitempty"`                    // Bank or network
	AccountNumber string              `gorm:"size:50" json:"accountNumber,omitempty"`                    // Stored masked
	CardLastFour  string              `gorm:"size:4" json:"cardLastFour,omitempty"`                      // Cards only
	IsDefault     bool                `gorm:"not null" json:"isDefault"`                                 // Preferred method
	Status        PaymentMethodStatus `gorm:"column:pm_status;size:20;not null" json:"status"`           // Usable when ACTIVE
	CreatedAt     time.Time           `json:"createdAt"`                                                 // Creation time
	UpdatedAt     time.Time           `json:"updatedAt"`                                                 // Last change
}

// MaskAccount keeps the last four characters of an account or card number.
func MaskAccount(number string) string {
	n := strings.TrimSpace(number)
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}
