package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCurrency is returned when a currency code is already registered.
	ErrDuplicateCurrency = errors.New("currency code already exists")
	// ErrInvalidRatio is returned for a ratio that is zero or negative.
	ErrInvalidRatio = errors.New("invalid currency ratio")
	// ErrCurrencyNotFound is returned for an unknown currency id or code.
	ErrCurrencyNotFound = errors.New("currency not found")
	// ErrInvalidCurrency is returned when a wallet references a currency the directory does not know.
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidCurrencyInput = errors.New("invalid currency code or name")

	// ErrWalletNotFound is returned for an unknown wallet id.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletAlreadyExists is returned when the owner already holds a wallet in the currency.
	ErrWalletAlreadyExists = errors.New("wallet already exists for user and currency")
	// ErrWalletUnavailable is returned when a wallet is suspended or absent in a transaction context.
	ErrWalletUnavailable = errors.New("wallet is not active")
	// ErrWalletOwnership is returned when wallets in one operation belong to different users.
	ErrWalletOwnership = errors.New("wallets do not belong to the same user")
	ErrInvalidTitle    = errors.New("wallet title too long")

	// ErrInsufficientBalance occurs when a decrease would drive the balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidTransactionAmount is returned for non-positive or over-precise amounts.
	ErrInvalidTransactionAmount = errors.New("invalid transaction amount")
	ErrSameWallet               = errors.New("source and destination wallet are the same")

	ErrInvalidID   = errors.New("invalid id")
	ErrUnknownEnum = errors.New("unknown enum value")

	// ErrRollbackFailed marks a unit of work whose rollback itself failed. State may be
	// partially applied and operators must be alerted.
	ErrRollbackFailed = errors.New("rollback failed")
)

// RollbackError carries both the failure that aborted a unit of work and the error
// returned while rolling it back.
type RollbackError struct {
	Err         error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v: %v (aborted by: %v)", ErrRollbackFailed, e.RollbackErr, e.Err)
}

// Unwrap lets errors.Is match ErrRollbackFailed as well as either underlying cause.
func (e *RollbackError) Unwrap() []error {
	return []error{ErrRollbackFailed, e.Err, e.RollbackErr}
}

var domainErrors = []error{
	ErrDuplicateCurrency,
	ErrInvalidRatio,
	ErrCurrencyNotFound,
	ErrInvalidCurrency,
	ErrInvalidCurrencyInput,
	ErrWalletNotFound,
	ErrWalletAlreadyExists,
	ErrWalletUnavailable,
	ErrWalletOwnership,
	ErrInvalidTitle,
	ErrInsufficientBalance,
	ErrInvalidTransactionAmount,
	ErrSameWallet,
	ErrInvalidID,
}

// IsDomainError reports whether err is an expected, caller-recoverable ledger condition.
// A rollback failure is never a domain error even when its cause is.
func IsDomainError(err error) bool {
	if err == nil || errors.Is(err, ErrRollbackFailed) {
		return false
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
