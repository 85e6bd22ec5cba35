package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s Store) (Currency, Wallet) {
	t.Helper()
	ctx := context.Background()
	c := Currency{ID: NewCurrencyID(), Code: "XAF", Name: "CFA franc", Ratio: decimal.RequireFromString("0.0016"), ModifiedOnUTC: time.Now().UTC()}
	require.NoError(t, s.Currencies().Insert(ctx, c))
	w := Wallet{ID: NewWalletID(), OwnerID: NewUserID(), Balance: decimal.Zero, CurrencyID: c.ID, Status: WalletActive, CreatedOnUTC: time.Now().UTC()}
	require.NoError(t, s.Wallets().Insert(ctx, w))
	return c, w
}

// decreaseBy locks the wallet, debits amount and records the debit.
func decreaseBy(id WalletID, amount decimal.Decimal) func(ctx context.Context, tx Tx) error {
	return func(ctx context.Context, tx Tx) error {
		cur, err := tx.Wallets().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next := cur.Balance.Sub(amount)
		if next.IsNegative() {
			return fmt.Errorf("wallet %s: %w", id, ErrInsufficientBalance)
		}
		if err := tx.Wallets().UpdateBalance(ctx, id, next); err != nil {
			return err
		}
		return tx.Transactions().Insert(ctx, Transaction{ID: NewTransactionID(), WalletID: id, Amount: amount, Kind: KindDecremental, Type: TypeUser, CreatedOnUTC: time.Now().UTC()})
	}
}

func TestInMemoryWithinTxCommitsAllOrNothing(t *testing.T) {
	s := NewInMemory(0)
	_, w := seed(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Wallets().UpdateBalance(ctx, w.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		if err := tx.Transactions().Insert(ctx, Transaction{ID: NewTransactionID(), WalletID: w.ID, Amount: decimal.NewFromInt(50), Kind: KindIncremental, Type: TypeUser}); err != nil {
			return err
		}
		got, err := tx.Wallets().Get(ctx, w.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.NewFromInt(50)), "staged write visible inside the unit")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Wallets().Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
	txs, err := s.Transactions().ListByWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestInMemoryRollbackFailure(t *testing.T) {
	s := NewInMemory(0)
	_, w := seed(t, s)
	cause := errors.New("insufficient")
	rbErr := errors.New("disk gone")
	FailNextRollback(s, rbErr)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_ = tx.Wallets().UpdateBalance(ctx, w.ID, decimal.NewFromInt(1))
		return cause
	})
	var rb *RollbackError
	require.ErrorAs(t, err, &rb)
	assert.ErrorIs(t, err, ErrRollbackFailed)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, rbErr)

	// the simulated failure fires once
	err = s.WithinTx(context.Background(), func(context.Context, Tx) error { return cause })
	assert.NotErrorIs(t, err, ErrRollbackFailed)
}

func TestInMemoryCancelledBeforeBegin(t *testing.T) {
	s := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(context.Context, Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestInMemoryCancellationNotObservedMidUnit(t *testing.T) {
	s := NewInMemory(0)
	_, w := seed(t, s)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(txCtx context.Context, tx Tx) error {
		cancel()
		if txCtx.Err() != nil {
			return txCtx.Err()
		}
		return tx.Wallets().UpdateBalance(txCtx, w.ID, decimal.NewFromInt(7))
	})
	require.NoError(t, err)

	got, err := s.Wallets().Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(7)))
}

func TestInMemoryUniquenessAndForeignKeys(t *testing.T) {
	s := NewInMemory(0)
	c, w := seed(t, s)
	ctx := context.Background()

	err := s.Currencies().Insert(ctx, Currency{ID: NewCurrencyID(), Code: c.Code, Name: "dup", Ratio: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrDuplicateCurrency)

	err = s.Wallets().Insert(ctx, Wallet{ID: NewWalletID(), OwnerID: w.OwnerID, CurrencyID: c.ID})
	require.ErrorIs(t, err, ErrWalletAlreadyExists)

	err = s.Wallets().Insert(ctx, Wallet{ID: NewWalletID(), OwnerID: NewUserID(), CurrencyID: NewCurrencyID()})
	require.ErrorIs(t, err, ErrInvalidCurrency)

	err = s.Transactions().Insert(ctx, Transaction{ID: NewTransactionID(), WalletID: NewWalletID(), Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrWalletNotFound)

	err = s.Wallets().UpdateBalance(ctx, w.ID, decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestInMemoryHistoryOrdering(t *testing.T) {
	s := NewInMemory(0)
	_, w := seed(t, s)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	insert := func(desc string, at time.Time) {
		require.NoError(t, s.Transactions().Insert(ctx, Transaction{ID: NewTransactionID(), WalletID: w.ID, Amount: decimal.NewFromInt(1), Description: desc, CreatedOnUTC: at}))
	}
	insert("a", base)
	insert("b", base.Add(time.Second))
	insert("c", base.Add(time.Second))
	insert("d", base.Add(-time.Second))

	txs, err := s.Transactions().ListByWallet(ctx, w.ID)
	require.NoError(t, err)
	var order []string
	for _, tr := range txs {
		order = append(order, tr.Description)
	}
	assert.Equal(t, []string{"c", "b", "a", "d"}, order)
}

func TestInMemoryConcurrentDecrementsSerialize(t *testing.T) {
	s := NewInMemory(0)
	_, w := seed(t, s)
	SeedBalance(s, w.ID, decimal.NewFromInt(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.WithinTx(ctx, decreaseBy(w.ID, decimal.NewFromInt(15)))
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrInsufficientBalance)
	}
	assert.Equal(t, 6, ok)

	got, err := s.Wallets().Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(10)))
}

func TestInMemoryPanicDiscardsStagedWrites(t *testing.T) {
	s := NewInMemory(0)
	_, w := seed(t, s)
	SeedBalance(s, w.ID, decimal.NewFromInt(100))
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := decreaseBy(w.ID, decimal.NewFromInt(10))(ctx, tx); err != nil {
				return err
			}
			panic("handler bug")
		})
	})

	// the store lock was released and nothing was applied
	require.NoError(t, s.WithinTx(ctx, decreaseBy(w.ID, decimal.NewFromInt(1))))
	got, err := s.Wallets().Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(99)))
}

func TestInMemoryUnitBoundedByTxTimeout(t *testing.T) {
	s := NewInMemory(2 * time.Second)
	before := time.Now()

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, before.Add(2*time.Second), deadline, time.Second)
		return nil
	}))
}
