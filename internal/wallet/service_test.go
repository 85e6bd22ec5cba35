package wallet

import (
    "context"
    "errors"
    "strings"
    "testing"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/congo-pay/walletledger/internal/ledger"
    "github.com/congo-pay/walletledger/internal/logging"
)

type stubCurrencies map[ledger.CurrencyID]bool

func (s stubCurrencies) IsValid(_ context.Context, id ledger.CurrencyID) (bool, error) {
    return s[id], nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) (*Service, *ledger.MemoryStore, ledger.CurrencyID) {
    t.Helper()
    store := ledger.NewInMemory(0)
    cur := ledger.Currency{ID: ledger.NewCurrencyID(), Code: "XAF", Name: "CFA franc", Ratio: dec("0.0016")}
    require.NoError(t, store.Currencies().Insert(context.Background(), cur))
    return NewService(store, stubCurrencies{cur.ID: true}, logging.Discard()), store, cur.ID
}

func TestServiceCreateAndBalance(t *testing.T) {
    svc, store, currencyID := newTestService(t)
    ctx := context.Background()
    owner := ledger.NewUserID()

    w, err := svc.Create(ctx, CreateInput{OwnerID: owner, CurrencyID: currencyID, Title: "daily"})
    require.NoError(t, err)
    assert.True(t, w.Balance.IsZero())
    assert.Equal(t, ledger.WalletActive, w.Status)

    fetched, err := svc.Get(ctx, w.ID)
    require.NoError(t, err)
    assert.Equal(t, owner, fetched.OwnerID)
    assert.Equal(t, "daily", fetched.Title)

    ledger.SeedBalance(store, w.ID, dec("2500"))
    balance, err := svc.Balance(ctx, w.ID)
    require.NoError(t, err)
    assert.True(t, balance.Amount.Equal(dec("2500")))
    assert.Equal(t, currencyID, balance.CurrencyID)
}

func TestCreateRejectsDuplicateAndUnknownCurrency(t *testing.T) {
    svc, _, currencyID := newTestService(t)
    ctx := context.Background()
    owner := ledger.NewUserID()

    _, err := svc.Create(ctx, CreateInput{OwnerID: owner, CurrencyID: currencyID})
    require.NoError(t, err)
    _, err = svc.Create(ctx, CreateInput{OwnerID: owner, CurrencyID: currencyID})
    require.ErrorIs(t, err, ledger.ErrWalletAlreadyExists)

    _, err = svc.Create(ctx, CreateInput{OwnerID: owner, CurrencyID: ledger.NewCurrencyID()})
    require.ErrorIs(t, err, ledger.ErrInvalidCurrency)

    _, err = svc.Create(ctx, CreateInput{OwnerID: ledger.NewUserID(), CurrencyID: currencyID, Title: strings.Repeat("x", ledger.MaxWalletTitleLen+1)})
    require.ErrorIs(t, err, ledger.ErrInvalidTitle)
}

func TestSuspendActivateAndAvailability(t *testing.T) {
    svc, _, currencyID := newTestService(t)
    ctx := context.Background()

    w, err := svc.Create(ctx, CreateInput{OwnerID: ledger.NewUserID(), CurrencyID: currencyID})
    require.NoError(t, err)

    ok, err := svc.IsAvailable(ctx, w.ID)
    require.NoError(t, err)
    assert.True(t, ok)

    require.NoError(t, svc.Suspend(ctx, w.ID))
    ok, err = svc.IsAvailable(ctx, w.ID)
    require.NoError(t, err)
    assert.False(t, ok)

    require.NoError(t, svc.Activate(ctx, w.ID))
    ok, err = svc.IsAvailable(ctx, w.ID)
    require.NoError(t, err)
    assert.True(t, ok)

    ok, err = svc.IsAvailable(ctx, ledger.NewWalletID())
    require.NoError(t, err)
    assert.False(t, ok)

    require.ErrorIs(t, svc.Suspend(ctx, ledger.NewWalletID()), ledger.ErrWalletNotFound)
}

func TestIsCommonlyOwned(t *testing.T) {
    svc, store, currencyID := newTestService(t)
    ctx := context.Background()
    other := ledger.Currency{ID: ledger.NewCurrencyID(), Code: "EUR", Name: "Euro", Ratio: dec("1.1")}
    require.NoError(t, store.Currencies().Insert(ctx, other))
    svc.currencies = stubCurrencies{currencyID: true, other.ID: true}

    alice := ledger.NewUserID()
    a1, err := svc.Create(ctx, CreateInput{OwnerID: alice, CurrencyID: currencyID})
    require.NoError(t, err)
    a2, err := svc.Create(ctx, CreateInput{OwnerID: alice, CurrencyID: other.ID})
    require.NoError(t, err)
    b1, err := svc.Create(ctx, CreateInput{OwnerID: ledger.NewUserID(), CurrencyID: currencyID})
    require.NoError(t, err)

    same, err := svc.IsCommonlyOwned(ctx, a1.ID, a2.ID)
    require.NoError(t, err)
    assert.True(t, same)

    same, err = svc.IsCommonlyOwned(ctx, a1.ID, b1.ID)
    require.NoError(t, err)
    assert.False(t, same)

    same, err = svc.IsCommonlyOwned(ctx, a1.ID, ledger.NewWalletID())
    require.NoError(t, err)
    assert.False(t, same)
}

func TestBalanceMutationsInsideUnitOfWork(t *testing.T) {
    svc, store, currencyID := newTestService(t)
    ctx := context.Background()
    w, err := svc.Create(ctx, CreateInput{OwnerID: ledger.NewUserID(), CurrencyID: currencyID})
    require.NoError(t, err)

    err = store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
        if _, err := svc.IncreaseBalance(ctx, tx, w.ID, dec("100")); err != nil {
            return err
        }
        got, err := svc.DecreaseBalance(ctx, tx, w.ID, dec("60"))
        if err != nil {
            return err
        }
        assert.True(t, got.Balance.Equal(dec("40")))
        return nil
    })
    require.NoError(t, err)

    err = store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
        _, err := svc.DecreaseBalance(ctx, tx, w.ID, dec("40.000001"))
        return err
    })
    require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

    b, err := svc.Balance(ctx, w.ID)
    require.NoError(t, err)
    assert.True(t, b.Amount.Equal(dec("40")))
}

func TestMutationOnUnavailableWallet(t *testing.T) {
    svc, store, currencyID := newTestService(t)
    ctx := context.Background()
    w, err := svc.Create(ctx, CreateInput{OwnerID: ledger.NewUserID(), CurrencyID: currencyID})
    require.NoError(t, err)
    require.NoError(t, svc.Suspend(ctx, w.ID))

    err = store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
        _, err := svc.IncreaseBalance(ctx, tx, w.ID, dec("1"))
        return err
    })
    require.ErrorIs(t, err, ledger.ErrWalletUnavailable)

    err = store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
        _, err := svc.IncreaseBalance(ctx, tx, ledger.NewWalletID(), dec("1"))
        return err
    })
    require.ErrorIs(t, err, ledger.ErrWalletUnavailable)
    require.True(t, errors.Is(err, ledger.ErrWalletNotFound))
}

func TestIncreaseRejectsBalanceBeyondStoreLimit(t *testing.T) {
    svc, store, currencyID := newTestService(t)
    ctx := context.Background()
    w, err := svc.Create(ctx, CreateInput{OwnerID: ledger.NewUserID(), CurrencyID: currencyID})
    require.NoError(t, err)
    ledger.SeedBalance(store, w.ID, dec("999999999999"))

    err = store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
        _, err := svc.IncreaseBalance(ctx, tx, w.ID, dec("1"))
        return err
    })
    require.ErrorIs(t, err, ledger.ErrInvalidTransactionAmount)

    b, err := svc.Balance(ctx, w.ID)
    require.NoError(t, err)
    assert.True(t, b.Amount.Equal(dec("999999999999")))
}

func TestChangeTitleAndOwnership(t *testing.T) {
    svc, _, currencyID := newTestService(t)
    ctx := context.Background()
    owner := ledger.NewUserID()
    w, err := svc.Create(ctx, CreateInput{OwnerID: owner, CurrencyID: currencyID})
    require.NoError(t, err)

    require.NoError(t, svc.ChangeTitle(ctx, w.ID, "travel"))
    got, err := svc.GetOwned(ctx, w.ID, owner)
    require.NoError(t, err)
    assert.Equal(t, "travel", got.Title)

    _, err = svc.GetOwned(ctx, w.ID, ledger.NewUserID())
    require.ErrorIs(t, err, ledger.ErrWalletOwnership)
}

func TestLockOrdersAndDeduplicates(t *testing.T) {
    svc, store, currencyID := newTestService(t)
    ctx := context.Background()
    w, err := svc.Create(ctx, CreateInput{OwnerID: ledger.NewUserID(), CurrencyID: currencyID})
    require.NoError(t, err)

    err = store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
        locked, err := svc.Lock(ctx, tx, w.ID, w.ID)
        if err != nil {
            return err
        }
        assert.Len(t, locked, 2)
        assert.Equal(t, w.ID, locked[1].ID)
        return nil
    })
    require.NoError(t, err)
}
