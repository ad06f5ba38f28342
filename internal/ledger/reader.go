package ledger

import (
	"fmt"
	"time"

	"wallet_ledger/internal/domain" // Domain models

	"github.com/shopspring/decimal" // Fixed-point money
	"gorm.io/gorm"                  // GORM ORM library
)

// Reader runs committed-data aggregates. Inside a Unit it shares the unit's
// transaction and therefore sees the unit's own writes.
type Reader struct {
	db *gorm.DB
}

// SumCompleted totals the amount of COMPLETED rows of the given types created
// in [from, to). Fees are not included.
func (r *Reader) SumCompleted(walletID uint, types []domain.TxType, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.Model(&domain.Transaction{}).
		Select("SUM(amount)").
		Where("wallet_id = ? AND transaction_status = ?", walletID, domain.StatusCompleted).
		Where("transaction_type IN ?", types).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum transactions: %w", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}
