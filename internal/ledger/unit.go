package ledger

import (
	"errors"
	"fmt"
	"time"

	"wallet_ledger/internal/domain" // Domain models

	"github.com/shopspring/decimal" // Fixed-point money
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Row locking
)

// Unit is the view of the ledger inside one Atomic call. It must not be used
// after Atomic returns.
type Unit struct {
	tx         *gorm.DB
	now        time.Time
	wallets    map[uint]*domain.Wallet
	savepoints int
}

// Draft is a transaction about to be written.
type Draft struct {
	Reference            string
	CorrelationID        string
	Type                 domain.TxType
	Direction            domain.Direction // only needed for REFUND
	Amount               decimal.Decimal
	Fee                  decimal.Decimal
	CounterpartyWalletID *uint
	Description          string
	PaymentMethod        string
	PaymentMethodID      *uint
	ExternalRef          string
	PayoutDetails        string
	OriginalReference    string
	Fingerprint          string
	Override             bool // administrative override: the debit may take the balance below zero
}

func (d Draft) direction() domain.Direction {
	if d.Direction != "" {
		return d.Direction
	}
	return d.Type.Direction()
}

// Now is the timestamp every row written by this unit carries.
func (u *Unit) Now() time.Time { return u.now }

// Wallet returns the locked copy of a wallet taking part in the unit.
func (u *Unit) Wallet(id uint) (*domain.Wallet, error) {
	w, ok := u.wallets[id]
	if !ok {
		return nil, fmt.Errorf("wallet %d is not locked by this unit", id)
	}
	return w, nil
}

// Reader exposes committed-data queries on the unit's transaction.
func (u *Unit) Reader() *Reader { return &Reader{db: u.tx} }

// FindByReference returns the row with the given reference, or nil.
func (u *Unit) FindByReference(reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := u.tx.Where("transaction_ref = ?", reference).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &t, nil
}

// LockPaymentMethod loads a payment method and holds its row until the unit ends.
func (u *Unit) LockPaymentMethod(id uint) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := u.tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&pm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Validationf("payment method %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment method: %w", err)
	}
	return &pm, nil
}

// Append writes a completed transaction and applies its balance effect.
// The wallet must be ACTIVE and a debit may not overdraw unless the draft
// carries an override. Nothing is written when it fails.
func (u *Unit) Append(walletID uint, d Draft) (*domain.Transaction, error) {
	w, err := u.Wallet(walletID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(w); err != nil {
		return nil, err
	}
	row, err := u.newRow(w, d)
	if err != nil {
		return nil, err
	}
	if _, err := nextBalance(w.Balance, row, d.Override); err != nil {
		return nil, err
	}
	if err := u.insert(row); err != nil {
		return nil, err
	}
	if err := u.complete(w, row, d.Override); err != nil {
		return nil, err
	}
	return row, nil
}

// RecordPending writes a PENDING row with no balance effect.
func (u *Unit) RecordPending(walletID uint, d Draft) (*domain.Transaction, error) {
	w, err := u.Wallet(walletID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(w); err != nil {
		return nil, err
	}
	row, err := u.newRow(w, d)
	if err != nil {
		return nil, err
	}
	if err := u.insert(row); err != nil {
		return nil, err
	}
	return row, nil
}

// Complete moves a PENDING row to COMPLETED and applies its balance effect.
// A non-empty externalRef replaces the recorded gateway reference.
func (u *Unit) Complete(row *domain.Transaction, externalRef string) error {
	w, err := u.Wallet(row.WalletID)
	if err != nil {
		return err
	}
	if err := requireActive(w); err != nil {
		return err
	}
	if externalRef != "" {
		if err := u.guardedUpdate(row, map[string]any{"external_ref": externalRef}); err != nil {
			return err
		}
		row.ExternalRef = externalRef
	}
	return u.complete(w, row, false)
}

// Try runs fn under a savepoint. When fn fails its writes are undone, the
// locked wallets are re-read and the unit stays usable.
func (u *Unit) Try(fn func() error) error {
	name := fmt.Sprintf("sp_%d", u.savepoints)
	u.savepoints++
	if err := u.tx.SavePoint(name).Error; err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	ferr := fn()
	if ferr == nil {
		return nil
	}
	if err := u.tx.RollbackTo(name).Error; err != nil {
		return errors.Join(ferr, fmt.Errorf("rollback to savepoint: %w", err))
	}
	ids := make([]uint, 0, len(u.wallets))
	for id := range u.wallets {
		ids = append(ids, id)
	}
	var wallets []domain.Wallet
	if err := u.tx.Where("id IN ?", ids).Find(&wallets).Error; err != nil {
		return errors.Join(ferr, fmt.Errorf("reload wallets: %w", err))
	}
	for i := range wallets {
		*u.wallets[wallets[i].ID] = wallets[i]
	}
	return ferr
}

// RecordFailure writes a FAILED audit row for a rejected operation. The
// wallet balance is untouched.
func (u *Unit) RecordFailure(walletID uint, d Draft, cause error) (*domain.Transaction, error) {
	w, err := u.Wallet(walletID)
	if err != nil {
		return nil, err
	}
	row, err := u.newRow(w, d)
	if err != nil {
		return nil, err
	}
	row.Status = domain.StatusFailed
	row.FailureKind = string(domain.KindOf(cause))
	row.FailureReason = truncate(cause.Error(), 255)
	row.CompletedAt = &u.now
	if err := u.insert(row); err != nil {
		return nil, err
	}
	return row, nil
}

// Fail moves a PENDING row to FAILED, recording cause. No balance effect.
func (u *Unit) Fail(row *domain.Transaction, cause error) error {
	kind, reason := string(domain.KindOf(cause)), truncate(cause.Error(), 255)
	err := u.transition(row, domain.StatusFailed, map[string]any{
		"failure_kind":   kind,
		"failure_reason": reason,
		"completed_at":   u.now,
	})
	if err != nil {
		return err
	}
	row.FailureKind, row.FailureReason, row.CompletedAt = kind, reason, &u.now
	return nil
}

// MarkRefunded moves a COMPLETED row to REFUNDED. The compensating entry is
// written separately with Append.
func (u *Unit) MarkRefunded(row *domain.Transaction) error {
	return u.transition(row, domain.StatusRefunded, map[string]any{})
}

func (u *Unit) transition(row *domain.Transaction, next domain.TxStatus, updates map[string]any) error {
	if !row.Status.CanTransitionTo(next) {
		return domain.NewError(domain.KindInvalidStateTransition,
			"transaction %s cannot move from %s to %s", row.Reference, row.Status, next)
	}
	updates["transaction_status"] = next
	if err := u.guardedUpdate(row, updates); err != nil {
		return err
	}
	row.Status = next
	return nil
}

func (u *Unit) complete(w *domain.Wallet, row *domain.Transaction, override bool) error {
	if !row.Status.CanTransitionTo(domain.StatusCompleted) {
		return domain.NewError(domain.KindInvalidStateTransition,
			"transaction %s cannot move from %s to %s", row.Reference, row.Status, domain.StatusCompleted)
	}
	after, err := nextBalance(w.Balance, row, override)
	if err != nil {
		return err
	}
	before := w.Balance
	err = u.guardedUpdate(row, map[string]any{
		"transaction_status": domain.StatusCompleted,
		"balance_before":     before,
		"balance_after":      after,
		"completed_at":       u.now,
	})
	if err != nil {
		return err
	}
	err = u.tx.Model(&domain.Wallet{}).Where("id = ?", w.ID).
		Updates(map[string]any{"balance": after, "updated_at": u.now}).Error
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	w.Balance = after
	w.UpdatedAt = u.now
	row.Status = domain.StatusCompleted
	row.BalanceBefore = before
	row.BalanceAfter = after
	row.CompletedAt = &u.now
	return nil
}

// guardedUpdate only touches the row if nobody moved it since it was read.
func (u *Unit) guardedUpdate(row *domain.Transaction, updates map[string]any) error {
	res := u.tx.Model(&domain.Transaction{}).
		Where("id = ? AND transaction_status = ?", row.ID, row.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update transaction: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return domain.NewError(domain.KindInvalidStateTransition,
			"transaction %s changed concurrently", row.Reference)
	}
	return nil
}

func (u *Unit) newRow(w *domain.Wallet, d Draft) (*domain.Transaction, error) {
	if d.Reference == "" {
		return nil, domain.Validationf("reference is required")
	}
	if !d.Type.Valid() {
		return nil, domain.Validationf("unknown transaction type %q", d.Type)
	}
	dir := d.direction()
	if dir != domain.DirectionCredit && dir != domain.DirectionDebit {
		return nil, domain.Validationf("%s needs an explicit direction", d.Type)
	}
	if !d.Amount.IsPositive() {
		return nil, domain.Validationf("amount must be positive")
	}
	if d.Fee.IsNegative() {
		return nil, domain.Validationf("fee must not be negative")
	}
	if dir == domain.DirectionCredit && !d.Fee.IsZero() {
		return nil, domain.Validationf("fees only apply to debits")
	}
	return &domain.Transaction{
		Reference:            d.Reference,
		CorrelationID:        d.CorrelationID,
		WalletID:             w.ID,
		CounterpartyWalletID: d.CounterpartyWalletID,
		Type:                 d.Type,
		Direction:            dir,
		Status:               domain.StatusPending,
		Amount:               d.Amount,
		Fee:                  d.Fee,
		Currency:             w.Currency,
		BalanceBefore:        w.Balance,
		BalanceAfter:         w.Balance,
		Description:          truncate(d.Description, 255),
		PaymentMethod:        d.PaymentMethod,
		PaymentMethodID:      d.PaymentMethodID,
		ExternalRef:          d.ExternalRef,
		PayoutDetails:        d.PayoutDetails,
		OriginalReference:    d.OriginalReference,
		Fingerprint:          d.Fingerprint,
		CreatedAt:            u.now,
	}, nil
}

func (u *Unit) insert(row *domain.Transaction) error {
	if err := u.tx.Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func requireActive(w *domain.Wallet) error {
	if w.Status != domain.WalletActive {
		return domain.NewError(domain.KindWalletNotActive, "wallet %s is %s", w.WalletNumber, w.Status)
	}
	return nil
}

func nextBalance(balance decimal.Decimal, row *domain.Transaction, override bool) (decimal.Decimal, error) {
	if row.Direction == domain.DirectionCredit {
		return balance.Add(row.Amount), nil
	}
	required := row.Amount.Add(row.Fee)
	after := balance.Sub(required)
	if after.IsNegative() && !override {
		return decimal.Zero, domain.NewError(domain.KindInsufficientFunds,
			"insufficient balance: available %s, required %s", balance.StringFixed(2), required.StringFixed(2))
	}
	return after, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
