package engine

import (
	"context"
	"fmt"
	"strings"

	"wallet_ledger/internal/domain" // Domain models
	"wallet_ledger/internal/events" // Post-commit notifications
	"wallet_ledger/internal/ledger" // Ledger Store
	"wallet_ledger/internal/limits" // Limit Tracker

	"github.com/google/uuid"        // Generated references
	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logrus for structured logging
)

const (
	maxReferenceLen = 56 // leaves room for the RFD- and -IN derived references

	refundPrefix    = "RFD-" // refund rows
	creditLegSuffix = "-IN"  // transfer credit legs
)

var maxAmount = decimal.RequireFromString("9999999999999.99")

// Engine runs monetary operations against the ledger. Every operation is one
// atomic ledger unit and is idempotent on its reference.
type Engine struct {
	store  *ledger.Store
	limits *limits.Tracker
	fees   FeePolicy
	events events.Publisher
}

func New(store *ledger.Store, tracker *limits.Tracker, fees FeePolicy, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.Fallback{}
	}
	return &Engine{store: store, limits: tracker, fees: fees, events: publisher}
}

// outcome is what one operation produced.
type outcome struct {
	primary  *domain.Transaction
	written  []*domain.Transaction
	replayed bool
}

// execute runs apply in a unit keyed by draft.Reference.
//
// A reference that already exists short-circuits to the recorded result.
// When apply fails with a business rejection its writes are undone, a FAILED
// row is recorded against actingWallet and the rejection is returned after
// the unit commits.
func (e *Engine) execute(ctx context.Context, walletIDs []uint, actingWallet uint, draft ledger.Draft,
	apply func(u *ledger.Unit) ([]*domain.Transaction, error)) (*outcome, error) {
	var out *outcome
	var rejection error
	err := e.store.Atomic(ctx, walletIDs, func(u *ledger.Unit) error {
		out, rejection = nil, nil

		prior, err := u.FindByReference(draft.Reference)
		if err != nil {
			return err
		}
		if prior != nil {
			if prior.Fingerprint != draft.Fingerprint {
				return domain.NewError(domain.KindDuplicateReference,
					"reference %s was already used for a different operation", prior.Reference)
			}
			out, rejection = &outcome{primary: prior, replayed: true}, recordedRejection(prior)
			return nil
		}

		var rows []*domain.Transaction
		err = u.Try(func() error {
			var err error
			rows, err = apply(u)
			return err
		})
		if err == nil {
			out = &outcome{primary: rows[0], written: rows}
			return nil
		}
		if !domain.Recordable(err) {
			return err
		}
		failed, ferr := u.RecordFailure(actingWallet, draft, err)
		if ferr != nil {
			return ferr
		}
		out, rejection = &outcome{primary: failed, written: []*domain.Transaction{failed}}, err
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.announce(ctx, out.written)
	return out, rejection
}

// recordedRejection rebuilds the error a FAILED row was recorded with.
func recordedRejection(prior *domain.Transaction) error {
	if prior.Status == domain.StatusFailed {
		return &domain.Error{Kind: domain.ErrorKind(prior.FailureKind), Message: prior.FailureReason}
	}
	return nil
}

func (e *Engine) announce(ctx context.Context, rows []*domain.Transaction) {
	for _, row := range rows {
		key, ev := events.NewTransactionEvent(row)
		events.Emit(ctx, e.events, key, ev)
	}
}

// fingerprint identifies what a reference was used for, so a replay can be
// told apart from an accidental reuse.
func fingerprint(t domain.TxType, walletID uint, amount decimal.Decimal, counterparty uint) string {
	return fmt.Sprintf("%s|%d|%s|%d", t, walletID, amount.StringFixed(2), counterparty)
}

func newReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "TXN-" + strings.ToUpper(uuid.NewString()), nil
	}
	if len(ref) > maxReferenceLen {
		return "", domain.Validationf("reference must be at most %d characters", maxReferenceLen)
	}
	// Derived references are only ever written by the engine itself
	upper := strings.ToUpper(ref)
	if strings.HasPrefix(upper, refundPrefix) || strings.HasSuffix(upper, creditLegSuffix) {
		return "", domain.Validationf("references starting with %s or ending in %s are reserved", refundPrefix, creditLegSuffix)
	}
	return ref, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.Validationf("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.Validationf("amount must have at most two decimal places")
	}
	if amount.GreaterThan(maxAmount) {
		return domain.Validationf("amount is too large")
	}
	return nil
}

// debitChecks applies the pre-debit rules in order: status, balance, limits.
func (e *Engine) debitChecks(u *ledger.Unit, w *domain.Wallet, amount, fee decimal.Decimal, t domain.TxType) error {
	if w.Status != domain.WalletActive {
		return domain.NewError(domain.KindWalletNotActive, "wallet %s is %s", w.WalletNumber, w.Status)
	}
	required := amount.Add(fee)
	if w.Balance.LessThan(required) {
		return domain.NewError(domain.KindInsufficientFunds,
			"insufficient balance: available %s, required %s", w.Balance.StringFixed(2), required.StringFixed(2))
	}
	return e.limits.Check(u.Reader(), w, amount, t)
}

func logResult(op string, fields logrus.Fields, row *domain.Transaction, err error) {
	entry := logrus.WithFields(fields).WithField("operation", op)
	if row != nil {
		entry = entry.WithFields(logrus.Fields{"reference": row.Reference, "status": row.Status})
	}
	switch {
	case err == nil:
		entry.Info("transaction processed")
	case domain.KindOf(err) == domain.KindInternal:
		entry.WithError(err).Error("transaction error")
	default:
		entry.WithField("kind", domain.KindOf(err)).Warn("transaction rejected")
	}
}
