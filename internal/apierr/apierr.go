package apierr

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// From maps ledger errors onto HTTP errors. Unknown failures become a generic 500
// so storage details do not leak to clients.
func From(err error) *fiber.Error {
	switch {
	case errors.Is(err, ledger.ErrRollbackFailed):
		return fiber.NewError(http.StatusInternalServerError, "ledger rollback failed")
	case errors.Is(err, ledger.ErrInvalidID),
		errors.Is(err, ledger.ErrInvalidRatio),
		errors.Is(err, ledger.ErrInvalidTransactionAmount),
		errors.Is(err, ledger.ErrInvalidTitle),
		errors.Is(err, ledger.ErrInvalidCurrencyInput),
		errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrSameWallet):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrWalletUnavailable), errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrCurrencyNotFound), errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrDuplicateCurrency), errors.Is(err, ledger.ErrWalletAlreadyExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrWalletOwnership):
		return fiber.NewError(http.StatusForbidden, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}

// BadRequest wraps a body parsing failure.
func BadRequest(err error) *fiber.Error {
	return fiber.NewError(http.StatusBadRequest, err.Error())
}
