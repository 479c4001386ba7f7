package ledger

import "errors"

var (
	// ErrInvalidArgument is returned for caller errors: non-positive
	// quantities or amounts, or malformed symbols. Never retried.
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// ErrInsufficientBalance is returned when a withdrawal or purchase
	// exceeds the account's cash balance. The account is left unmodified.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInsufficientHoldings is returned when a sale exceeds the owned
	// quantity of a symbol. The account is left unmodified.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")

	// ErrCorruptData is returned when persisted data cannot be decoded
	// into a valid ledger state. Callers fall back to defaults instead
	// of propagating a raw parse failure.
	ErrCorruptData = errors.New("ledger: corrupt data")
)
