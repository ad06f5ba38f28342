package events

import (
	"time"

	"wallet_ledger/internal/domain" // Domain models

	"github.com/shopspring/decimal" // Fixed-point money
)

// Routing keys on the events exchange.
const (
	TransactionCompleted = "transaction.completed"
	TransactionFailed    = "transaction.failed"
	TransactionRefunded  = "transaction.refunded"
	TransactionPending   = "transaction.pending"
	WalletStatusChanged  = "wallet.status_changed"
)

// TransactionEvent is published after a transaction row is committed.
type TransactionEvent struct {
	Reference         string           `json:"reference"`
	CorrelationID     string           `json:"correlationId,omitempty"`
	WalletID          uint             `json:"walletId"`
	Type              domain.TxType    `json:"type"`
	Direction         domain.Direction `json:"direction"`
	Status            domain.TxStatus  `json:"status"`
	Amount            decimal.Decimal  `json:"amount"`
	Fee               decimal.Decimal  `json:"fee"`
	Currency          string           `json:"currency"`
	BalanceAfter      decimal.Decimal  `json:"balanceAfter"`
	OriginalReference string           `json:"originalReference,omitempty"`
	FailureKind       string           `json:"failureKind,omitempty"`
	OccurredAt        time.Time        `json:"occurredAt"`
}

// NewTransactionEvent picks the routing key from the row status.
func NewTransactionEvent(t *domain.Transaction) (string, TransactionEvent) {
	key := TransactionCompleted
	switch t.Status {
	case domain.StatusFailed:
		key = TransactionFailed
	case domain.StatusRefunded:
		key = TransactionRefunded
	case domain.StatusPending:
		key = TransactionPending
	}
	occurred := t.CreatedAt
	if t.CompletedAt != nil {
		occurred = *t.CompletedAt
	}
	return key, TransactionEvent{
		Reference:         t.Reference,
		CorrelationID:     t.CorrelationID,
		WalletID:          t.WalletID,
		Type:              t.Type,
		Direction:         t.Direction,
		Status:            t.Status,
		Amount:            t.Amount,
		Fee:               t.Fee,
		Currency:          t.Currency,
		BalanceAfter:      t.BalanceAfter,
		OriginalReference: t.OriginalReference,
		FailureKind:       t.FailureKind,
		OccurredAt:        occurred,
	}
}

// WalletStatusEvent is published when an administrator changes a wallet's status.
type WalletStatusEvent struct {
	WalletID     uint                `json:"walletId"`
	WalletNumber string              `json:"walletNumber"`
	From         domain.WalletStatus `json:"from"`
	To           domain.WalletStatus `json:"to"`
	ChangedBy    uint                `json:"changedBy,omitempty"`
	OccurredAt   time.Time           `json:"occurredAt"`
}
