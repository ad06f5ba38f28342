package engine

import (
	"context"

	"wallet_ledger/internal/domain" // Domain models
	"wallet_ledger/internal/ledger" // Ledger Store

	"github.com/google/uuid"        // Correlation ids
	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logrus for structured logging
)

// TopUpRequest adds external funds to a wallet.
type TopUpRequest struct {
	WalletNumber    string
	Amount          decimal.Decimal
	PaymentMethod   string
	PaymentMethodID *uint
	GatewayRef      string
	Description     string
	Reference       string
	DeferSettlement bool // record PENDING and wait for Settle
}

// TopUp credits a wallet. Inbound funds are never limited.
func (e *Engine) TopUp(ctx context.Context, req TopUpRequest) (*domain.Transaction, error) {
	ctx = context.WithoutCancel(ctx)
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.PaymentMethod == "" && req.PaymentMethodID == nil {
		return nil, domain.Validationf("paymentMethod is required")
	}
	ref, err := newReference(req.Reference)
	if err != nil {
		return nil, err
	}
	w, err := e.store.GetWallet(ctx, req.WalletNumber)
	if err != nil {
		return nil, err
	}

	draft := ledger.Draft{
		Reference:       ref,
		Type:            domain.TxTopUp,
		Amount:          req.Amount,
		Description:     req.Description,
		PaymentMethod:   req.PaymentMethod,
		PaymentMethodID: req.PaymentMethodID,
		ExternalRef:     req.GatewayRef,
		Fingerprint:     fingerprint(domain.TxTopUp, w.ID, req.Amount, 0),
	}
	out, err := e.execute(ctx, []uint{w.ID}, w.ID, draft, func(u *ledger.Unit) ([]*domain.Transaction, error) {
		if req.PaymentMethodID != nil {
			if _, err := ownedPaymentMethod(u, *req.PaymentMethodID, w.UserID); err != nil {
				return nil, err
			}
		}
		var row *domain.Transaction
		var err error
		if req.DeferSettlement {
			row, err = u.RecordPending(w.ID, draft)
		} else {
			row, err = u.Append(w.ID, draft)
		}
		if err != nil {
			return nil, err
		}
		return []*domain.Transaction{row}, nil
	})
	return finish("top_up", logrus.Fields{"wallet": w.WalletNumber, "amount": req.Amount.StringFixed(2)}, out, err)
}

// WithdrawRequest pays funds out of a wallet to an external destination.
type WithdrawRequest struct {
	WalletNumber string
	Amount       decimal.Decimal
	Payout       Payout
	Description  string
	Reference    string
}

// Withdraw debits amount plus the withdrawal fee after balance and limit checks.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (*domain.Transaction, error) {
	ctx = context.WithoutCancel(ctx)
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Payout == nil {
		return nil, domain.Validationf("payout destination is required")
	}
	if err := req.Payout.validate(); err != nil {
		return nil, err
	}
	ref, err := newReference(req.Reference)
	if err != nil {
		return nil, err
	}
	w, err := e.store.GetWallet(ctx, req.WalletNumber)
	if err != nil {
		return nil, err
	}

	fee := e.fees.For(domain.TxWithdrawal, req.Amount)
	draft := ledger.Draft{
		Reference:     ref,
		Type:          domain.TxWithdrawal,
		Amount:        req.Amount,
		Fee:           fee,
		Description:   req.Description,
		PaymentMethod: req.Payout.Method(),
		PayoutDetails: req.Payout.Describe(),
		Fingerprint:   fingerprint(domain.TxWithdrawal, w.ID, req.Amount, 0),
	}
	if card, ok := req.Payout.(CardPayout); ok {
		id := card.PaymentMethodID
		draft.PaymentMethodID = &id
	}
	out, err := e.execute(ctx, []uint{w.ID}, w.ID, draft, func(u *ledger.Unit) ([]*domain.Transaction, error) {
		wallet, err := u.Wallet(w.ID)
		if err != nil {
			return nil, err
		}
		if err := e.debitChecks(u, wallet, req.Amount, fee, domain.TxWithdrawal); err != nil {
			return nil, err
		}
		if draft.PaymentMethodID != nil {
			pm, err := ownedPaymentMethod(u, *draft.PaymentMethodID, w.UserID)
			if err != nil {
				return nil, err
			}
			if !pm.Type.IsCard() {
				return nil, domain.Validationf("payment method %d is not a card", pm.ID)
			}
		}
		row, err := u.Append(w.ID, draft)
		if err != nil {
			return nil, err
		}
		return []*domain.Transaction{row}, nil
	})
	return finish("withdraw", logrus.Fields{"wallet": w.WalletNumber, "amount": req.Amount.StringFixed(2)}, out, err)
}

// PaymentRequest pays a merchant from a wallet.
type PaymentRequest struct {
	WalletNumber string
	Amount       decimal.Decimal
	MerchantRef  string
	Description  string
	Reference    string
}

// Pay debits a merchant payment. Payments count toward limits and carry no fee.
func (e *Engine) Pay(ctx context.Context, req PaymentRequest) (*domain.Transaction, error) {
	ctx = context.WithoutCancel(ctx)
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.MerchantRef == "" {
		return nil, domain.Validationf("merchantRef is required")
	}
	ref, err := newReference(req.Reference)
	if err != nil {
		return nil, err
	}
	w, err := e.store.GetWallet(ctx, req.WalletNumber)
	if err != nil {
		return nil, err
	}

	draft := ledger.Draft{
		Reference:   ref,
		Type:        domain.TxPayment,
		Amount:      req.Amount,
		Description: req.Description,
		ExternalRef: req.MerchantRef,
		Fingerprint: fingerprint(domain.TxPayment, w.ID, req.Amount, 0),
	}
	out, err := e.execute(ctx, []uint{w.ID}, w.ID, draft, func(u *ledger.Unit) ([]*domain.Transaction, error) {
		wallet, err := u.Wallet(w.ID)
		if err != nil {
			return nil, err
		}
		if err := e.debitChecks(u, wallet, req.Amount, decimal.Zero, domain.TxPayment); err != nil {
			return nil, err
		}
		row, err := u.Append(w.ID, draft)
		if err != nil {
			return nil, err
		}
		return []*domain.Transaction{row}, nil
	})
	return finish("payment", logrus.Fields{"wallet": w.WalletNumber, "amount": req.Amount.StringFixed(2)}, out, err)
}

// TransferRequest moves funds between two wallets.
type TransferRequest struct {
	FromWalletID   uint
	ToWalletNumber string
	Amount         decimal.Decimal
	Description    string
	Reference      string
}

// TransferResult is the linked pair of legs.
type TransferResult struct {
	Debit  *domain.Transaction `json:"debit"`
	Credit *domain.Transaction `json:"credit,omitempty"`
}

// Transfer writes TRANSFER_OUT on the source and TRANSFER_IN on the
// destination in one unit. The IN leg's reference is the OUT reference plus "-IN".
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx = context.WithoutCancel(ctx)
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.ToWalletNumber == "" {
		return nil, domain.Validationf("toWalletNumber is required")
	}
	ref, err := newReference(req.Reference)
	if err != nil {
		return nil, err
	}
	src, err := e.store.GetWalletByID(ctx, req.FromWalletID)
	if err != nil {
		return nil, err
	}
	dst, err := e.store.GetWallet(ctx, req.ToWalletNumber)
	if err != nil {
		return nil, err
	}
	if src.ID == dst.ID {
		return nil, domain.Validationf("cannot transfer to the same wallet")
	}
	if src.Currency != dst.Currency {
		return nil, domain.Validationf("currency mismatch: %s to %s", src.Currency, dst.Currency)
	}

	fee := e.fees.For(domain.TxTransferOut, req.Amount)
	correlation := uuid.NewString()
	srcID, dstID := src.ID, dst.ID
	draft := ledger.Draft{
		Reference:            ref,
		CorrelationID:        correlation,
		Type:                 domain.TxTransferOut,
		Amount:               req.Amount,
		Fee:                  fee,
		CounterpartyWalletID: &dstID,
		Description:          req.Description,
		Fingerprint:          fingerprint(domain.TxTransferOut, src.ID, req.Amount, dst.ID),
	}
	out, err := e.execute(ctx, []uint{src.ID, dst.ID}, src.ID, draft, func(u *ledger.Unit) ([]*domain.Transaction, error) {
		source, err := u.Wallet(src.ID)
		if err != nil {
			return nil, err
		}
		dest, err := u.Wallet(dst.ID)
		if err != nil {
			return nil, err
		}
		if dest.Status != domain.WalletActive {
			return nil, domain.NewError(domain.KindWalletNotActive, "destination wallet %s is %s", dest.WalletNumber, dest.Status)
		}
		if err := e.debitChecks(u, source, req.Amount, fee, domain.TxTransferOut); err != nil {
			return nil, err
		}
		debit, err := u.Append(src.ID, draft)
		if err != nil {
			return nil, err
		}
		credit, err := u.Append(dst.ID, ledger.Draft{
			Reference:            ref + creditLegSuffix,
			CorrelationID:        correlation,
			Type:                 domain.TxTransferIn,
			Amount:               req.Amount,
			CounterpartyWalletID: &srcID,
			Description:          req.Description,
			Fingerprint:          fingerprint(domain.TxTransferIn, dst.ID, req.Amount, src.ID),
		})
		if err != nil {
			return nil, err
		}
		return []*domain.Transaction{debit, credit}, nil
	})

	fields := logrus.Fields{"from": src.WalletNumber, "to": dst.WalletNumber, "amount": req.Amount.StringFixed(2)}
	debit, err := finish("transfer", fields, out, err)
	if debit == nil {
		return nil, err
	}
	res := &TransferResult{Debit: debit}
	switch {
	case out != nil && len(out.written) == 2:
		res.Credit = out.written[1]
	case debit.Status.Committed():
		credit, cerr := e.store.GetTransaction(ctx, debit.Reference+creditLegSuffix)
		if cerr != nil {
			return nil, cerr
		}
		res.Credit = credit
	}
	return res, err
}

// finish logs the operation and unwraps the primary row.
func finish(op string, fields logrus.Fields, out *outcome, err error) (*domain.Transaction, error) {
	var row *domain.Transaction
	if out != nil {
		row = out.primary
		if out.replayed {
			fields["replayed"] = true
		}
	}
	logResult(op, fields, row, err)
	return row, err
}

func ownedPaymentMethod(u *ledger.Unit, id, userID uint) (*domain.PaymentMethod, error) {
	pm, err := u.LockPaymentMethod(id)
	if err != nil {
		return nil, err
	}
	if pm.UserID != userID {
		return nil, domain.Validationf("payment method %d not found", id)
	}
	if pm.Status != domain.PaymentMethodActive {
		return nil, domain.Validationf("payment method %d is %s", id, pm.Status)
	}
	return pm, nil
}
