package engine

import (
	"context"
	"time"

	"wallet_ledger/internal/domain" // Domain models
	"wallet_ledger/internal/ledger" // Ledger Store

	"github.com/google/uuid"     // Correlation ids
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// RefundReference is the reference of the compensating entry for original.
func RefundReference(original string) string { return refundPrefix + original }

// Refund reverses a COMPLETED refundable transaction.
//
// A debit is refunded by crediting amount plus fee. A credit is refunded by
// debiting its amount under administrative override, so the balance may go
// negative. Refunding TRANSFER_OUT reverses both legs in the same unit. The
// originals move to REFUNDED. Repeating a refund returns the first one.
func (e *Engine) Refund(ctx context.Context, originalRef, reason string) ([]*domain.Transaction, error) {
	ctx = context.WithoutCancel(ctx)
	orig, err := e.store.GetTransaction(ctx, originalRef)
	if err != nil {
		return nil, err
	}
	ids := []uint{orig.WalletID}
	if orig.Type == domain.TxTransferOut && orig.CounterpartyWalletID != nil {
		ids = append(ids, *orig.CounterpartyWalletID)
	}

	var written []*domain.Transaction
	replayed := false
	err = e.store.Atomic(ctx, ids, func(u *ledger.Unit) error {
		written, replayed = nil, false

		prior, err := u.FindByReference(RefundReference(orig.Reference))
		if err != nil {
			return err
		}
		if prior != nil {
			if prior.Type != domain.TxRefund || prior.OriginalReference != orig.Reference {
				return domain.ErrDuplicateReference
			}
			written, replayed = []*domain.Transaction{prior}, true
			return nil
		}

		o, err := u.FindByReference(orig.Reference)
		if err != nil {
			return err
		}
		if !o.Type.Refundable() {
			return domain.NewError(domain.KindInvalidStateTransition, "%s transactions cannot be refunded", o.Type)
		}
		if !o.Status.CanTransitionTo(domain.StatusRefunded) {
			return domain.NewError(domain.KindInvalidStateTransition,
				"only COMPLETED transactions can be refunded, %s is %s", o.Reference, o.Status)
		}
		correlation := o.CorrelationID
		if correlation == "" {
			correlation = uuid.NewString()
		}

		row, err := e.compensate(u, o, correlation, reason)
		if err != nil {
			return err
		}
		written = append(written, row)

		if o.Type == domain.TxTransferOut {
			in, err := u.FindByReference(o.Reference + creditLegSuffix)
			if err != nil {
				return err
			}
			if in == nil {
				return domain.NewError(domain.KindInvalidStateTransition, "transfer %s has no credit leg", o.Reference)
			}
			row, err := e.compensate(u, in, correlation, reason)
			if err != nil {
				return err
			}
			written = append(written, row)
		}
		return nil
	})

	fields := logrus.Fields{"original": originalRef, "reason": reason, "replayed": replayed}
	if err != nil {
		logResult("refund", fields, nil, err)
		return nil, err
	}
	logResult("refund", fields, written[0], nil)
	if !replayed {
		e.announce(ctx, written)
		refunded := *orig
		refunded.Status = domain.StatusRefunded
		e.announce(ctx, []*domain.Transaction{&refunded})
	}
	return written, nil
}

// compensate writes the reversing entry for o and marks o REFUNDED.
func (e *Engine) compensate(u *ledger.Unit, o *domain.Transaction, correlation, reason string) (*domain.Transaction, error) {
	if !o.Status.CanTransitionTo(domain.StatusRefunded) {
		return nil, domain.NewError(domain.KindInvalidStateTransition,
			"only COMPLETED transactions can be refunded, %s is %s", o.Reference, o.Status)
	}
	description := "Refund of " + o.Reference
	if reason != "" {
		description += ": " + reason
	}
	draft := ledger.Draft{
		Reference:            RefundReference(o.Reference),
		CorrelationID:        correlation,
		Type:                 domain.TxRefund,
		Direction:            o.Direction.Opposite(),
		CounterpartyWalletID: o.CounterpartyWalletID,
		Description:          description,
		OriginalReference:    o.Reference,
	}
	if o.Direction == domain.DirectionDebit {
		draft.Amount = o.Amount.Add(o.Fee)
	} else {
		draft.Amount = o.Amount
		draft.Override = true
	}
	draft.Fingerprint = fingerprint(domain.TxRefund, o.WalletID, draft.Amount, 0)

	row, err := u.Append(o.WalletID, draft)
	if err != nil {
		return nil, err
	}
	if err := u.MarkRefunded(o); err != nil {
		return nil, err
	}
	return row, nil
}

// Settle resolves a deferred top-up. success completes it and applies the
// credit; otherwise it fails with no balance effect. Repeating a callback with
// the same outcome returns the settled row.
func (e *Engine) Settle(ctx context.Context, reference string, success bool, gatewayRef string) (*domain.Transaction, error) {
	ctx = context.WithoutCancel(ctx)
	t, err := e.store.GetTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t.Type != domain.TxTopUp {
		return nil, domain.Validationf("only top-ups can be settled, %s is %s", reference, t.Type)
	}

	var row *domain.Transaction
	changed := false
	err = e.store.Atomic(ctx, []uint{t.WalletID}, func(u *ledger.Unit) error {
		changed = false
		var err error
		if row, err = u.FindByReference(reference); err != nil {
			return err
		}
		switch {
		case row.Status == domain.StatusPending && success:
			changed = true
			return u.Complete(row, gatewayRef)
		case row.Status == domain.StatusPending:
			changed = true
			return u.Fail(row, domain.NewError(domain.KindSettlementDeclined, "payment gateway declined the top-up"))
		case row.Status == domain.StatusCompleted && success, row.Status == domain.StatusFailed && !success:
			return nil
		default:
			return domain.NewError(domain.KindInvalidStateTransition,
				"transaction %s is already %s", reference, row.Status)
		}
	})
	fields := logrus.Fields{"success": success, "gateway_ref": gatewayRef}
	if err != nil {
		logResult("settle", fields, t, err)
		return nil, err
	}
	logResult("settle", fields, row, nil)
	if changed {
		e.announce(ctx, []*domain.Transaction{row})
	}
	return row, nil
}

// ExpirePending fails deferred top-ups older than ttl. It returns how many it failed.
func (e *Engine) ExpirePending(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := e.store.Now().Add(-ttl)
	rows, err := e.store.PendingBefore(ctx, cutoff, 500)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range rows {
		var row *domain.Transaction
		err := e.store.Atomic(ctx, []uint{rows[i].WalletID}, func(u *ledger.Unit) error {
			var err error
			if row, err = u.FindByReference(rows[i].Reference); err != nil || row == nil {
				return err
			}
			if row.Status != domain.StatusPending {
				row = nil
				return nil
			}
			return u.Fail(row, domain.NewError(domain.KindSettlementExpired, "settlement not confirmed within %s", ttl))
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{"reference": rows[i].Reference, "error": err}).Error("failed to expire pending transaction")
			continue
		}
		if row != nil {
			expired++
			e.announce(ctx, []*domain.Transaction{row})
		}
	}
	return expired, nil
}
