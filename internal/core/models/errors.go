package models

import "errors"

// Ledger error kinds. Callers match them with errors.Is.
var (
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrWalletNotActive         = errors.New("wallet is not active")
	ErrInvalidStatusTransition = errors.New("invalid wallet status transition")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrInvalidCurrency         = errors.New("invalid currency code")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidRefundTarget     = errors.New("transaction cannot be refunded")
	ErrConcurrencyConflict     = errors.New("concurrent modification detected")
	ErrDuplicateTransaction    = errors.New("duplicate transaction")
)
