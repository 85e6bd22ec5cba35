package ledger

import (
	"encoding/json"
	"fmt"
)

// TransactionKind is the direction of a balance mutation.
//
// Persisted encoding (stable):
//
//	Incremental = 0
//	Decremental = 1
type TransactionKind int16

const (
	KindIncremental TransactionKind = 0
	KindDecremental TransactionKind = 1
)

// TransactionType tells manual deposits/withdrawals apart from transfer legs.
//
// Persisted encoding (stable):
//
//	User  = 0
//	Funds = 1
type TransactionType int16

const (
	TypeUser  TransactionType = 0
	TypeFunds TransactionType = 1
)

// WalletStatus gates balance mutations.
//
// Persisted encoding (stable):
//
//	Active    = 0
//	Suspended = 1
type WalletStatus int16

const (
	WalletActive    WalletStatus = 0
	WalletSuspended WalletStatus = 1
)

func (k TransactionKind) String() string {
	switch k {
	case KindIncremental:
		return "Incremental"
	case KindDecremental:
		return "Decremental"
	default:
		return fmt.Sprintf("TransactionKind(%d)", int16(k))
	}
}

func (t TransactionType) String() string {
	switch t {
	case TypeUser:
		return "User"
	case TypeFunds:
		return "Funds"
	default:
		return fmt.Sprintf("TransactionType(%d)", int16(t))
	}
}

func (s WalletStatus) String() string {
	switch s {
	case WalletActive:
		return "Active"
	case WalletSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("WalletStatus(%d)", int16(s))
	}
}

// KindFromInt decodes a persisted transaction kind.
func KindFromInt(v int16) (TransactionKind, error) {
	k := TransactionKind(v)
	if k != KindIncremental && k != KindDecremental {
		return 0, fmt.Errorf("%w: transaction kind %d", ErrUnknownEnum, v)
	}
	return k, nil
}

// TypeFromInt decodes a persisted transaction type.
func TypeFromInt(v int16) (TransactionType, error) {
	t := TransactionType(v)
	if t != TypeUser && t != TypeFunds {
		return 0, fmt.Errorf("%w: transaction type %d", ErrUnknownEnum, v)
	}
	return t, nil
}

// StatusFromInt decodes a persisted wallet status.
func StatusFromInt(v int16) (WalletStatus, error) {
	s := WalletStatus(v)
	if s != WalletActive && s != WalletSuspended {
		return 0, fmt.Errorf("%w: wallet status %d", ErrUnknownEnum, v)
	}
	return s, nil
}

// MarshalJSON writes the numeric encoding so payloads stay stable across renames.
func (k TransactionKind) MarshalJSON() ([]byte, error) { return json.Marshal(int16(k)) }
func (t TransactionType) MarshalJSON() ([]byte, error) { return json.Marshal(int16(t)) }
func (s WalletStatus) MarshalJSON() ([]byte, error)    { return json.Marshal(int16(s)) }
