package engine

import (
	"wallet_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeePolicy holds percentage fees per debit type. Credits are never charged.
type FeePolicy struct {
	WithdrawalPercent decimal.Decimal
	TransferPercent   decimal.Decimal
}

// For returns the fee on amount for a transaction of type t, rounded to cents.
func (p FeePolicy) For(t domain.TxType, amount decimal.Decimal) decimal.Decimal {
	var pct decimal.Decimal
	switch t {
	case domain.TxWithdrawal:
		pct = p.WithdrawalPercent
	case domain.TxTransferOut:
		pct = p.TransferPercent
	default:
		return decimal.Zero
	}
	if !pct.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(pct).Div(hundred).Round(2)
}
