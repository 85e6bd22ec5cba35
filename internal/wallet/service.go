package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// CurrencyValidator reports whether a currency is known to the directory.
type CurrencyValidator interface {
	IsValid(ctx context.Context, id ledger.CurrencyID) (bool, error)
}

// Service owns wallet records and enforces the balance invariants.
type Service struct {
	store      ledger.Store
	currencies CurrencyValidator
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, currencies CurrencyValidator, logger *slog.Logger) *Service {
	return &Service{store: store, currencies: currencies, logger: logger, now: time.Now}
}

// Create opens an empty, active wallet for the owner in the given currency.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Wallet, error) {
	if input.OwnerID.IsZero() {
		return ledger.Wallet{}, fmt.Errorf("%w: owner id required", ledger.ErrInvalidID)
	}
	if err := validateTitle(input.Title); err != nil {
		return ledger.Wallet{}, err
	}

	ok, err := s.currencies.IsValid(ctx, input.CurrencyID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("currency %s: %w", input.CurrencyID, ledger.ErrInvalidCurrency)
	}

	w := ledger.Wallet{
		ID:           ledger.NewWalletID(),
		OwnerID:      input.OwnerID,
		Title:        input.Title,
		Balance:      decimal.Zero,
		CurrencyID:   input.CurrencyID,
		Status:       ledger.WalletActive,
		CreatedOnUTC: s.now().UTC(),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		owned, err := tx.Wallets().ListByOwner(ctx, input.OwnerID)
		if err != nil {
			return err
		}
		for _, existing := range owned {
			if existing.CurrencyID == input.CurrencyID {
				return fmt.Errorf("user %s currency %s: %w", input.OwnerID, input.CurrencyID, ledger.ErrWalletAlreadyExists)
			}
		}
		return tx.Wallets().Insert(ctx, w)
	})
	if err != nil {
		return ledger.Wallet{}, err
	}

	s.logger.Info("wallet created",
		slog.String("wallet_id", w.ID.String()),
		slog.String("owner_id", w.OwnerID.String()),
		slog.String("currency_id", w.CurrencyID.String()),
	)
	return w, nil
}

// Get retrieves a wallet.
func (s *Service) Get(ctx context.Context, id ledger.WalletID) (ledger.Wallet, error) {
	return s.store.Wallets().Get(ctx, id)
}

// GetOwned retrieves a wallet and checks that owner holds it.
func (s *Service) GetOwned(ctx context.Context, id ledger.WalletID, owner ledger.UserID) (ledger.Wallet, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if w.OwnerID != owner {
		return ledger.Wallet{}, fmt.Errorf("wallet %s: %w", id, ledger.ErrWalletOwnership)
	}
	return w, nil
}

// ListByOwner returns the owner's wallets, oldest first.
func (s *Service) ListByOwner(ctx context.Context, owner ledger.UserID) ([]ledger.Wallet, error) {
	return s.store.Wallets().ListByOwner(ctx, owner)
}

// Balance returns the committed balance of the wallet.
func (s *Service) Balance(ctx context.Context, id ledger.WalletID) (Balance, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, CurrencyID: w.CurrencyID, Amount: w.Balance, AsOf: s.now().UTC()}, nil
}

// Suspend blocks all balance mutations on the wallet.
func (s *Service) Suspend(ctx context.Context, id ledger.WalletID) error {
	return s.setStatus(ctx, id, ledger.WalletSuspended)
}

// Activate re-enables balance mutations on the wallet.
func (s *Service) Activate(ctx context.Context, id ledger.WalletID) error {
	return s.setStatus(ctx, id, ledger.WalletActive)
}

func (s *Service) setStatus(ctx context.Context, id ledger.WalletID, status ledger.WalletStatus) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Wallets().GetForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.Wallets().UpdateStatus(ctx, id, status)
	})
	if err != nil {
		return err
	}
	s.logger.Info("wallet status changed", slog.String("wallet_id", id.String()), slog.String("status", status.String()))
	return nil
}

// ChangeTitle renames the wallet. It does not touch the balance.
func (s *Service) ChangeTitle(ctx context.Context, id ledger.WalletID, title string) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	return s.store.Wallets().UpdateTitle(ctx, id, title)
}

// IsAvailable reports whether the wallet exists and is active. An unknown
// wallet is simply unavailable.
func (s *Service) IsAvailable(ctx context.Context, id ledger.WalletID) (bool, error) {
	w, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, ledger.ErrWalletNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return w.Available(), nil
}

// IsCommonlyOwned reports whether every wallet exists and all share one owner.
func (s *Service) IsCommonlyOwned(ctx context.Context, ids ...ledger.WalletID) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	wallets, err := s.store.Wallets().ListByIDs(ctx, ids)
	if err != nil {
		return false, err
	}
	return commonOwner(wallets, ids), nil
}

func commonOwner(wallets []ledger.Wallet, ids []ledger.WalletID) bool {
	found := make(map[ledger.WalletID]ledger.UserID, len(wallets))
	for _, w := range wallets {
		found[w.ID] = w.OwnerID
	}
	var owner ledger.UserID
	for i, id := range ids {
		o, ok := found[id]
		if !ok {
			return false
		}
		if i > 0 && o != owner {
			return false
		}
		owner = o
	}
	return true
}

// Lock takes row locks on the wallets in a fixed id order and returns them in
// the order requested. Transfers lock both sides up front so two opposite
// transfers cannot deadlock.
func (s *Service) Lock(ctx context.Context, tx ledger.Tx, ids ...ledger.WalletID) ([]ledger.Wallet, error) {
	order := slices.Clone(ids)
	slices.SortFunc(order, func(a, b ledger.WalletID) int { return bytes.Compare(a.UUID[:], b.UUID[:]) })
	order = slices.Compact(order)

	locked := make(map[ledger.WalletID]ledger.Wallet, len(order))
	for _, id := range order {
		w, err := tx.Wallets().GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}

	out := make([]ledger.Wallet, len(ids))
	for i, id := range ids {
		out[i] = locked[id]
	}
	return out, nil
}

// IncreaseBalance adds amount to the wallet inside tx. The wallet is re-read
// under a row lock immediately before the write.
func (s *Service) IncreaseBalance(ctx context.Context, tx ledger.Tx, id ledger.WalletID, amount decimal.Decimal) (ledger.Wallet, error) {
	return s.mutate(ctx, tx, id, amount, func(w ledger.Wallet) (decimal.Decimal, error) {
		return w.Balance.Add(amount), nil
	})
}

// DecreaseBalance subtracts amount from the wallet inside tx, refusing to go below zero.
func (s *Service) DecreaseBalance(ctx context.Context, tx ledger.Tx, id ledger.WalletID, amount decimal.Decimal) (ledger.Wallet, error) {
	return s.mutate(ctx, tx, id, amount, func(w ledger.Wallet) (decimal.Decimal, error) {
		next := w.Balance.Sub(amount)
		if next.IsNegative() {
			return decimal.Zero, fmt.Errorf("wallet %s balance %s, requested %s: %w", id, w.Balance, amount, ledger.ErrInsufficientBalance)
		}
		return next, nil
	})
}

func (s *Service) mutate(ctx context.Context, tx ledger.Tx, id ledger.WalletID, amount decimal.Decimal, apply func(ledger.Wallet) (decimal.Decimal, error)) (ledger.Wallet, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return ledger.Wallet{}, err
	}

	w, err := tx.Wallets().GetForUpdate(ctx, id)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return ledger.Wallet{}, fmt.Errorf("%w: %w", ledger.ErrWalletUnavailable, err)
	}
	if err != nil {
		return ledger.Wallet{}, err
	}
	if !w.Available() {
		return ledger.Wallet{}, fmt.Errorf("wallet %s is %s: %w", id, w.Status, ledger.ErrWalletUnavailable)
	}

	next, err := apply(w)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if err := ledger.ValidateBalance(next); err != nil {
		return ledger.Wallet{}, fmt.Errorf("wallet %s: %w", id, err)
	}
	if err := tx.Wallets().UpdateBalance(ctx, id, next); err != nil {
		return ledger.Wallet{}, err
	}
	w.Balance = next
	return w, nil
}

func validateTitle(title string) error {
	if utf8.RuneCountInString(title) > ledger.MaxWalletTitleLen {
		return fmt.Errorf("%w: max %d characters", ledger.ErrInvalidTitle, ledger.MaxWalletTitleLen)
	}
	return nil
}
