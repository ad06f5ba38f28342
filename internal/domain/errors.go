package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, client visible classification of a failure.
type ErrorKind string

const (
	KindValidation             ErrorKind = "VALIDATION_ERROR"
	KindWalletNotFound         ErrorKind = "WALLET_NOT_FOUND"
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindWalletNotActive        ErrorKind = "WALLET_NOT_ACTIVE"
	KindInsufficientFunds      ErrorKind = "INSUFFICIENT_FUNDS"
	KindLimitExceeded          ErrorKind = "LIMIT_EXCEEDED"
	KindDuplicateReference     ErrorKind = "DUPLICATE_REFERENCE"
	KindInvalidStateTransition ErrorKind = "INVALID_STATE_TRANSITION"
	KindResourceInUse          ErrorKind = "RESOURCE_IN_USE"
	KindUnauthorized           ErrorKind = "UNAUTHORIZED"
	KindForbidden              ErrorKind = "FORBIDDEN"
	KindConflict               ErrorKind = "CONFLICT"
	KindInternal               ErrorKind = "INTERNAL_ERROR"

	// Only ever recorded on FAILED settlement rows.
	KindSettlementDeclined ErrorKind = "SETTLEMENT_DECLINED"
	KindSettlementExpired  ErrorKind = "SETTLEMENT_EXPIRED"
)

// Error carries a kind and a message safe to show to clients.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same kind, so sentinels work with errors.Is
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf is shorthand for a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return NewError(KindValidation, format, args...)
}

var (
	ErrWalletNotFound         = &Error{Kind: KindWalletNotFound, Message: "wallet not found"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrWalletNotActive        = &Error{Kind: KindWalletNotActive, Message: "wallet is not active"}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds, Message: "insufficient balance"}
	ErrLimitExceeded          = &Error{Kind: KindLimitExceeded, Message: "transaction limit exceeded"}
	ErrDuplicateReference     = &Error{Kind: KindDuplicateReference, Message: "reference already used for a different operation"}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition, Message: "invalid transaction state transition"}
	ErrResourceInUse          = &Error{Kind: KindResourceInUse, Message: "resource is referenced by pending transactions"}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden              = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict               = &Error{Kind: KindConflict, Message: "concurrent update conflict, please retry"}
)

// KindOf extracts the kind of err. Anything unclassified is internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Recordable reports whether a failure of this kind leaves a FAILED audit row.
func Recordable(err error) bool {
	switch KindOf(err) {
	case KindInsufficientFunds, KindLimitExceeded, KindWalletNotActive:
		return true
	}
	return false
}
