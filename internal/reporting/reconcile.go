package reporting

import (
	"context"
	"fmt"

	"wallet_ledger/internal/domain" // Domain models

	"github.com/shopspring/decimal" // Fixed-point money
	"gorm.io/gorm"                  // GORM ORM library
)

// Drift is a wallet whose stored balance disagrees with its ledger.
type Drift struct {
	WalletID      uint            `json:"walletId"`
	WalletNumber  string          `json:"walletNumber"`
	Balance       decimal.Decimal `json:"balance"`
	LedgerBalance decimal.Decimal `json:"ledgerBalance"`
}

type ledgerRow struct {
	WalletID     uint
	WalletNumber string
	Balance      decimal.Decimal
	Ledger       decimal.Decimal
}

// Reconcile recomputes every wallet's balance from its committed rows and
// returns the wallets that disagree.
func (f *Facade) Reconcile(ctx context.Context) ([]Drift, error) {
	var rows []ledgerRow
	err := f.snapshot(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`SELECT w.id AS wallet_id, w.wallet_number, w.balance,
			COALESCE(SUM(CASE
				WHEN t.direction = ? THEN t.amount
				WHEN t.direction = ? THEN -(t.amount + t.fee)
				ELSE 0 END), 0) AS ledger
			FROM wallets w
			LEFT JOIN transactions t ON t.wallet_id = w.id AND t.transaction_status IN ?
			GROUP BY w.id, w.wallet_number, w.balance
			ORDER BY w.id`,
			domain.DirectionCredit, domain.DirectionDebit,
			[]domain.TxStatus{domain.StatusCompleted, domain.StatusRefunded},
		).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	var drift []Drift
	for _, r := range rows {
		ledger := r.Ledger.Round(2)
		if !ledger.Equal(r.Balance.Round(2)) {
			drift = append(drift, Drift{
				WalletID:      r.WalletID,
				WalletNumber:  r.WalletNumber,
				Balance:       r.Balance,
				LedgerBalance: ledger,
			})
		}
	}
	return drift, nil
}
