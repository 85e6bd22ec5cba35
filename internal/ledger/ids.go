package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// CurrencyID identifies a currency in the directory.
type CurrencyID struct{ uuid.UUID }

// WalletID identifies a wallet.
type WalletID struct{ uuid.UUID }

// UserID identifies the user owning wallets. It is supplied by the identity collaborator.
type UserID struct{ uuid.UUID }

// TransactionID identifies an immutable transaction record.
type TransactionID struct{ uuid.UUID }

func NewCurrencyID() CurrencyID       { return CurrencyID{uuid.New()} }
func NewWalletID() WalletID           { return WalletID{uuid.New()} }
func NewUserID() UserID               { return UserID{uuid.New()} }
func NewTransactionID() TransactionID { return TransactionID{uuid.New()} }

// ParseCurrencyID validates and wraps a textual currency id.
func ParseCurrencyID(s string) (CurrencyID, error) {
	u, err := parseID("currency", s)
	return CurrencyID{u}, err
}

// ParseWalletID validates and wraps a textual wallet id.
func ParseWalletID(s string) (WalletID, error) {
	u, err := parseID("wallet", s)
	return WalletID{u}, err
}

// ParseUserID validates and wraps a textual user id.
func ParseUserID(s string) (UserID, error) {
	u, err := parseID("user", s)
	return UserID{u}, err
}

// ParseTransactionID validates and wraps a textual transaction id.
func ParseTransactionID(s string) (TransactionID, error) {
	u, err := parseID("transaction", s)
	return TransactionID{u}, err
}

func parseID(entity, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%w: empty %s id", ErrInvalidID, entity)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s id %q", ErrInvalidID, entity, s)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: nil %s id", ErrInvalidID, entity)
	}
	return u, nil
}

// IsZero reports whether the id was never assigned.
func (id CurrencyID) IsZero() bool    { return id.UUID == uuid.Nil }
func (id WalletID) IsZero() bool      { return id.UUID == uuid.Nil }
func (id UserID) IsZero() bool        { return id.UUID == uuid.Nil }
func (id TransactionID) IsZero() bool { return id.UUID == uuid.Nil }
