package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Projection is the read model of one history entry.
type Projection struct {
	ID          string                 `json:"id"`
	CreatedOn   time.Time              `json:"created_on_utc"`
	Description string                 `json:"description"`
	Type        ledger.TransactionType `json:"type"`
	TypeName    string                 `json:"type_name"`
	Kind        ledger.TransactionKind `json:"kind"`
	KindName    string                 `json:"kind_name"`
	Amount      decimal.Decimal        `json:"amount"`
}

// Recorder appends immutable transaction records and reads wallet history.
// Writes always join the caller's unit of work.
type Recorder struct {
	store  ledger.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder builds a transaction recorder.
func NewRecorder(store ledger.Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// RecordUserIncrease records a manual deposit.
func (r *Recorder) RecordUserIncrease(ctx context.Context, tx ledger.Tx, walletID ledger.WalletID, amount decimal.Decimal, description string) (ledger.Transaction, error) {
	return r.record(ctx, tx, walletID, amount, description, r.now(), ledger.KindIncremental, ledger.TypeUser)
}

// RecordUserDecrease records a manual withdrawal.
func (r *Recorder) RecordUserDecrease(ctx context.Context, tx ledger.Tx, walletID ledger.WalletID, amount decimal.Decimal, description string) (ledger.Transaction, error) {
	return r.record(ctx, tx, walletID, amount, description, r.now(), ledger.KindDecremental, ledger.TypeUser)
}

// RecordFundsLeg records one side of a transfer. Both legs of a transfer
// carry the same timestamp, supplied by the caller.
func (r *Recorder) RecordFundsLeg(ctx context.Context, tx ledger.Tx, walletID ledger.WalletID, amount decimal.Decimal, description string, at time.Time, kind ledger.TransactionKind) (ledger.Transaction, error) {
	return r.record(ctx, tx, walletID, amount, description, at, kind, ledger.TypeFunds)
}

func (r *Recorder) record(ctx context.Context, tx ledger.Tx, walletID ledger.WalletID, amount decimal.Decimal, description string, at time.Time, kind ledger.TransactionKind, typ ledger.TransactionType) (ledger.Transaction, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return ledger.Transaction{}, err
	}
	description = Truncate(description)

	t := ledger.Transaction{
		ID:           ledger.NewTransactionID(),
		WalletID:     walletID,
		Amount:       amount,
		Kind:         kind,
		Type:         typ,
		Description:  description,
		CreatedOnUTC: at.UTC(),
	}
	if err := tx.Transactions().Insert(ctx, t); err != nil {
		return ledger.Transaction{}, fmt.Errorf("record %s %s: %w", typ, kind, err)
	}
	return t, nil
}

// History returns the wallet's transactions, newest first.
func (r *Recorder) History(ctx context.Context, walletID ledger.WalletID) ([]Projection, error) {
	if _, err := r.store.Wallets().Get(ctx, walletID); err != nil {
		return nil, err
	}
	rows, err := r.store.Transactions().ListByWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	out := make([]Projection, 0, len(rows))
	for _, t := range rows {
		out = append(out, Project(t))
	}
	return out, nil
}

// Project maps a stored transaction to its read model.
func Project(t ledger.Transaction) Projection {
	return Projection{
		ID:          t.ID.String(),
		CreatedOn:   t.CreatedOnUTC,
		Description: t.Description,
		Type:        t.Type,
		TypeName:    t.Type.String(),
		Kind:        t.Kind,
		KindName:    t.Kind.String(),
		Amount:      t.Amount,
	}
}

// Truncate caps a description at MaxDescriptionLen runes.
func Truncate(description string) string {
	if utf8.RuneCountInString(description) <= ledger.MaxDescriptionLen {
		return description
	}
	runes := []rune(description)
	return string(runes[:ledger.MaxDescriptionLen])
}
