package domain

import (
	"strings"
	"time" // Timestamps

	"github.com/shopspring/decimal" // Fixed-point money
)

// TxType is the closed set of ledger entry kinds.
type TxType string

const (
	TxCredit      TxType = "CREDIT"
	TxDebit       TxType = "DEBIT"
	TxTopUp       TxType = "TOP_UP"
	TxWithdrawal  TxType = "WITHDRAWAL"
	TxTransferIn  TxType = "TRANSFER_IN"
	TxTransferOut TxType = "TRANSFER_OUT"
	TxPayment     TxType = "PAYMENT"
	TxRefund      TxType = "REFUND"
)

// Direction is the side of the balance an entry lands on.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// Opposite returns the reversing side.
func (d Direction) Opposite() Direction {
	if d == DirectionCredit {
		return DirectionDebit
	}
	return DirectionCredit
}

// txRule centralizes the per-type dispatch so fee, limit and refund rules never
// match on raw strings.
type txRule struct {
	direction  Direction // empty for REFUND, which takes the opposite side of what it reverses
	spend      bool      // counts toward daily/monthly spend windows
	refundable bool      // may be moved COMPLETED -> REFUNDED
}

var txRules = map[TxType]txRule{
	TxCredit:      {direction: DirectionCredit, refundable: true},
	TxTopUp:       {direction: DirectionCredit, refundable: true},
	TxTransferIn:  {direction: DirectionCredit},
	TxDebit:       {direction: DirectionDebit, spend: true, refundable: true},
	TxWithdrawal:  {direction: DirectionDebit, spend: true, refundable: true},
	TxTransferOut: {direction: DirectionDebit, spend: true, refundable: true},
	TxPayment:     {direction: DirectionDebit, spend: true, refundable: true},
	TxRefund:      {},
}

// ParseTxType validates a client supplied type name.
func ParseTxType(s string) (TxType, error) {
	t := TxType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", Validationf("unknown transaction type %q", s)
	}
	return t, nil
}

func (t TxType) Valid() bool {
	_, ok := txRules[t]
	return ok
}

// Direction reports the fixed balance side of the type. REFUND has none.
func (t TxType) Direction() Direction { return txRules[t].direction }

// CountsTowardLimits reports whether the type consumes daily/monthly spend.
func (t TxType) CountsTowardLimits() bool { return txRules[t].spend }

// Refundable reports whether a completed entry of this type may be refunded.
func (t TxType) Refundable() bool { return txRules[t].refundable }

// SpendTypes lists every type that counts toward spend windows.
func SpendTypes() []TxType {
	out := make([]TxType, 0, 4)
	for _, t := range []TxType{TxDebit, TxWithdrawal, TxTransferOut, TxPayment} {
		if t.CountsTowardLimits() {
			out = append(out, t)
		}
	}
	return out
}

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	StatusPending   TxStatus = "PENDING"
	StatusCompleted TxStatus = "COMPLETED"
	StatusFailed    TxStatus = "FAILED"
	StatusCancelled TxStatus = "CANCELLED" // kept for schema compatibility, nothing moves into it
	StatusRefunded  TxStatus = "REFUNDED"
)

var transitions = map[TxStatus][]TxStatus{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// CanTransitionTo reports whether s -> next is a legal lifecycle move.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Committed reports whether rows in this status carry a balance effect.
func (s TxStatus) Committed() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// ParseTxStatus validates a client supplied status name.
func ParseTxStatus(s string) (TxStatus, error) {
	st := TxStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", Validationf("unknown transaction status %q", s)
}

// Transaction Model
type Transaction struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`                                                       // Primary key
	Reference            string          `gorm:"column:transaction_ref;size:64;uniqueIndex;not null" json:"reference"`       // Idempotency reference
	CorrelationID        string          `gorm:"size:64;index" json:"correlationId,omitempty"`                               // Links transfer legs and refunds
	WalletID             uint            `gorm:"index;not null" json:"walletId"`                                             // Acting wallet
	CounterpartyWalletID *uint           `gorm:"index" json:"counterpartyWalletId,omitempty"`                                // Other wallet, nil for external
	Type                 TxType          `gorm:"column:transaction_type;size:20;not null;index" json:"type"`                 // Entry kind
	Direction            Direction       `gorm:"size:10;not null" json:"direction"`                                          // CREDIT or DEBIT
	Status               TxStatus        `gorm:"column:transaction_status;size:20;not null;index" json:"status"`             // Lifecycle state
	Amount               decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`                                  // Always positive
	Fee                  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"fee"`                           // Charged on debits only
	Currency             string          `gorm:"size:3;not null" json:"currency"`                                            // ISO code
	BalanceBefore        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balanceBefore"`                           // Snapshot on the acting wallet
	BalanceAfter         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balanceAfter"`                            // Snapshot on the acting wallet
	Description          string          `gorm:"size:255" json:"description,omitempty"`                                      // Free text
	PaymentMethod        string          `gorm:"size:50" json:"paymentMethod,omitempty"`                                     // Channel label
	PaymentMethodID      *uint           `gorm:"index" json:"paymentMethodId,omitempty"`                                     // Stored payment method, if any
	ExternalRef          string          `gorm:"size:100" json:"externalRef,omitempty"`                                      // Gateway or payout reference
	PayoutDetails        string          `gorm:"size:255" json:"payoutDetails,omitempty"`                                    // Masked payout destination
	OriginalReference    string          `gorm:"size:64;index" json:"originalReference,omitempty"`                           // Set on refunds
	FailureKind          string          `gorm:"size:40" json:"failureKind,omitempty"`                                       // Error kind for FAILED rows
	FailureReason        string          `gorm:"size:255" json:"failureReason,omitempty"`                                    // Human message for FAILED rows
	Fingerprint          string          `gorm:"size:160" json:"-"`                                                          // Operation identity for replays
	CreatedAt            time.Time       `gorm:"index" json:"createdAt"`                                                     // Creation time
	CompletedAt          *time.Time      `json:"completedAt,omitempty"`                                                      // Terminal transition time
}

// Effect is the signed change this row has made to its wallet balance.
func (t *Transaction) Effect() decimal.Decimal {
	if !t.Status.Committed() {
		return decimal.Zero
	}
	if t.Direction == DirectionCredit {
		return t.Amount
	}
	return t.Amount.Add(t.Fee).Neg()
}
