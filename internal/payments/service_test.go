package payments

import (
    "context"
    "encoding/json"
    "errors"
    "testing"
    "time"

    "github.com/shopspring/decimal"

    "github.com/congo-pay/walletledger/internal/currency"
    "github.com/congo-pay/walletledger/internal/ledger"
    "github.com/congo-pay/walletledger/internal/logging"
    "github.com/congo-pay/walletledger/internal/notification"
    "github.com/congo-pay/walletledger/internal/transaction"
    "github.com/congo-pay/walletledger/internal/wallet"
)

type testNotifier struct {
    sent []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
    n.sent = append(n.sent, msg)
    return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
    store      *ledger.MemoryStore
    currencies *currency.Service
    wallets    *wallet.Service
    recorder   *transaction.Recorder
    svc        *Service
    notifier   *testNotifier
    usd, eur   ledger.Currency
}

func newEnv(t *testing.T) env {
    t.Helper()
    ctx := context.Background()
    logger := logging.Discard()
    store := ledger.NewInMemory(0)
    currencies := currency.NewService(store, nil, logger)
    wallets := wallet.NewService(store, currencies, logger)
    recorder := transaction.NewRecorder(store, logger)
    notifier := &testNotifier{}

    usd, err := currencies.Create(ctx, currency.CreateInput{Code: "USD", Name: "US Dollar", Ratio: dec("1")})
    if err != nil {
        t.Fatalf("create USD: %v", err)
    }
    eur, err := currencies.Create(ctx, currency.CreateInput{Code: "EUR", Name: "Euro", Ratio: dec("0.9")})
    if err != nil {
        t.Fatalf("create EUR: %v", err)
    }
    return env{
        store:      store,
        currencies: currencies,
        wallets:    wallets,
        recorder:   recorder,
        svc:        NewService(store, wallets, recorder, notifier, nil, logger),
        notifier:   notifier,
        usd:        usd,
        eur:        eur,
    }
}

func (e env) wallet(t *testing.T, owner ledger.UserID, cur ledger.Currency, balance string) ledger.Wallet {
    t.Helper()
    w, err := e.wallets.Create(context.Background(), wallet.CreateInput{OwnerID: owner, CurrencyID: cur.ID})
    if err != nil {
        t.Fatalf("create wallet: %v", err)
    }
    ledger.SeedBalance(e.store, w.ID, dec(balance))
    return w
}

func (e env) balance(t *testing.T, id ledger.WalletID) decimal.Decimal {
    t.Helper()
    b, err := e.wallets.Balance(context.Background(), id)
    if err != nil {
        t.Fatalf("balance: %v", err)
    }
    return b.Amount
}

func (e env) history(t *testing.T, id ledger.WalletID) []transaction.Projection {
    t.Helper()
    h, err := e.recorder.History(context.Background(), id)
    if err != nil {
        t.Fatalf("history: %v", err)
    }
    return h
}

func TestTransferAcrossCurrencies(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    w1 := e.wallet(t, owner, e.usd, "100")
    w2 := e.wallet(t, owner, e.eur, "0")

    res, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("50"), Description: "savings", RequestorUserID: owner})
    if err != nil {
        t.Fatalf("transfer failed: %v", err)
    }
    if res.State != StateCommitted {
        t.Fatalf("expected Committed, got %s", res.State)
    }
    if !res.ConvertedAmount.Equal(dec("55.555556")) {
        t.Fatalf("unexpected converted amount %s", res.ConvertedAmount)
    }
    if got := e.balance(t, w1.ID); !got.Equal(dec("50")) {
        t.Fatalf("source balance %s, want 50", got)
    }
    if got := e.balance(t, w2.ID); !got.Equal(dec("55.555556")) {
        t.Fatalf("destination balance %s, want 55.555556", got)
    }

    src := e.history(t, w1.ID)
    dst := e.history(t, w2.ID)
    if len(src) != 1 || len(dst) != 1 {
        t.Fatalf("expected one leg per wallet, got %d and %d", len(src), len(dst))
    }
    if src[0].Kind != ledger.KindDecremental || dst[0].Kind != ledger.KindIncremental {
        t.Fatalf("unexpected leg kinds %s / %s", src[0].KindName, dst[0].KindName)
    }
    if src[0].Type != ledger.TypeFunds || dst[0].Type != ledger.TypeFunds {
        t.Fatalf("legs must be Funds transactions")
    }
    if !src[0].CreatedOn.Equal(dst[0].CreatedOn) {
        t.Fatalf("legs must share a timestamp: %s vs %s", src[0].CreatedOn, dst[0].CreatedOn)
    }
    if !src[0].Amount.Equal(dec("50")) || !dst[0].Amount.Equal(dec("55.555556")) {
        t.Fatalf("each leg holds its wallet's currency amount, got %s / %s", src[0].Amount, dst[0].Amount)
    }
    if src[0].Description != "Transfer to "+w2.ID.String()+": savings" {
        t.Fatalf("unexpected source description %q", src[0].Description)
    }

    if len(e.notifier.sent) != 1 || e.notifier.sent[0].Kind != notification.KindFundsTransfer {
        t.Fatalf("expected one transfer notification, got %+v", e.notifier.sent)
    }
}

func TestTransferInsufficientFundsWritesNothing(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    w1 := e.wallet(t, owner, e.usd, "10")
    w2 := e.wallet(t, owner, e.eur, "0")

    res, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("10.5")})
    if !errors.Is(err, ledger.ErrInsufficientBalance) {
        t.Fatalf("expected insufficient balance, got %v", err)
    }
    if res.State != StateAborted || res.AbortedIn != StateMutating {
        t.Fatalf("expected abort in Mutating, got %s/%s", res.State, res.AbortedIn)
    }
    if got := e.balance(t, w1.ID); !got.Equal(dec("10")) {
        t.Fatalf("source balance changed to %s", got)
    }
    if len(e.history(t, w1.ID)) != 0 || len(e.history(t, w2.ID)) != 0 {
        t.Fatalf("no transaction rows expected")
    }
    if len(e.notifier.sent) != 0 {
        t.Fatalf("no notification expected on abort")
    }
}

func TestTransferRejectsDifferentOwners(t *testing.T) {
    e := newEnv(t)
    w1 := e.wallet(t, ledger.NewUserID(), e.usd, "100")
    w2 := e.wallet(t, ledger.NewUserID(), e.usd, "0")

    res, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("1")})
    if !errors.Is(err, ledger.ErrWalletOwnership) {
        t.Fatalf("expected ownership error, got %v", err)
    }
    if res.AbortedIn != StateValidating {
        t.Fatalf("expected abort in Validating, got %s", res.AbortedIn)
    }
    if got := e.balance(t, w1.ID); !got.Equal(dec("100")) {
        t.Fatalf("source balance changed to %s", got)
    }
}

func TestTransferRequiresRequestorToOwnSource(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    w1 := e.wallet(t, owner, e.usd, "100")
    w2 := e.wallet(t, owner, e.eur, "0")

    _, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("1"), RequestorUserID: ledger.NewUserID()})
    if !errors.Is(err, ledger.ErrWalletOwnership) {
        t.Fatalf("expected ownership error, got %v", err)
    }
}

func TestTransferRejectsSuspendedWallet(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    w1 := e.wallet(t, owner, e.usd, "100")
    w2 := e.wallet(t, owner, e.eur, "0")
    if err := e.wallets.Suspend(context.Background(), w2.ID); err != nil {
        t.Fatalf("suspend: %v", err)
    }

    _, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("1")})
    if !errors.Is(err, ledger.ErrWalletUnavailable) {
        t.Fatalf("expected wallet unavailable, got %v", err)
    }
    if len(e.history(t, w1.ID)) != 0 {
        t.Fatalf("no transaction rows expected")
    }
}

func TestTransferRejectsBadInput(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    w1 := e.wallet(t, owner, e.usd, "100")

    if _, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w1.ID, Amount: dec("1")}); !errors.Is(err, ledger.ErrSameWallet) {
        t.Fatalf("expected same wallet error, got %v", err)
    }
    if _, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: ledger.NewWalletID(), Amount: dec("-1")}); !errors.Is(err, ledger.ErrInvalidTransactionAmount) {
        t.Fatalf("expected invalid amount, got %v", err)
    }
    if _, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: ledger.NewWalletID(), Amount: dec("1")}); !errors.Is(err, ledger.ErrWalletUnavailable) {
        t.Fatalf("expected unknown destination to be unavailable, got %v", err)
    }
}

func TestTransferRollbackFailureIsFatal(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    w1 := e.wallet(t, owner, e.usd, "1")
    w2 := e.wallet(t, owner, e.eur, "0")
    rbErr := errors.New("rollback: connection lost")
    ledger.FailNextRollback(e.store, rbErr)

    res, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("5")})
    if !errors.Is(err, ledger.ErrRollbackFailed) || !errors.Is(err, rbErr) {
        t.Fatalf("expected rollback failure, got %v", err)
    }
    if !errors.Is(err, ledger.ErrInsufficientBalance) {
        t.Fatalf("rollback error must keep its cause, got %v", err)
    }
    if ledger.IsDomainError(err) {
        t.Fatalf("rollback failure must not be treated as a domain error")
    }
    if res.State != StateAborted {
        t.Fatalf("expected Aborted, got %s", res.State)
    }
}

func TestTransferConservesValueInSameCurrency(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    usdc, err := e.currencies.Create(context.Background(), currency.CreateInput{Code: "USDC", Name: "Pegged dollar", Ratio: dec("1")})
    if err != nil {
        t.Fatalf("create USDC: %v", err)
    }
    w1 := e.wallet(t, owner, e.usd, "100")
    w2 := e.wallet(t, owner, usdc, "25")

    for _, amount := range []string{"10", "0.000001", "33.3"} {
        if _, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec(amount)}); err != nil {
            t.Fatalf("transfer %s: %v", amount, err)
        }
    }
    total := e.balance(t, w1.ID).Add(e.balance(t, w2.ID))
    if !total.Equal(dec("125")) {
        t.Fatalf("total changed to %s", total)
    }
}

func (e env) currency(t *testing.T, code, ratio string) ledger.Currency {
    t.Helper()
    c, err := e.currencies.Create(context.Background(), currency.CreateInput{Code: code, Name: code, Ratio: dec(ratio)})
    if err != nil {
        t.Fatalf("create %s: %v", code, err)
    }
    return c
}

func TestTransferRejectsAmountConvertingToZero(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    tiny := e.currency(t, "TINY", "0.000001")
    big := e.currency(t, "BIG", "1000")
    w1 := e.wallet(t, owner, tiny, "5")
    w2 := e.wallet(t, owner, big, "0")

    res, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("1")})
    if !errors.Is(err, ledger.ErrInvalidTransactionAmount) {
        t.Fatalf("expected invalid amount, got %v", err)
    }
    if res.State != StateAborted || res.AbortedIn != StateConverting {
        t.Fatalf("expected abort in Converting, got %s/%s", res.State, res.AbortedIn)
    }
    if got := e.balance(t, w1.ID); !got.Equal(dec("5")) {
        t.Fatalf("source balance changed to %s", got)
    }
    if len(e.history(t, w1.ID)) != 0 || len(e.history(t, w2.ID)) != 0 {
        t.Fatalf("no transaction rows expected")
    }
}

func TestTransferRejectsConvertedAmountBeyondStoreLimit(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    heavy := e.currency(t, "HEAVY", "999999")
    light := e.currency(t, "LIGHT", "0.000001")
    w1 := e.wallet(t, owner, heavy, "10")
    w2 := e.wallet(t, owner, light, "0")

    res, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: dec("2")})
    if !errors.Is(err, ledger.ErrInvalidTransactionAmount) {
        t.Fatalf("expected invalid amount, got %v", err)
    }
    if res.AbortedIn != StateConverting {
        t.Fatalf("expected abort in Converting, got %s", res.AbortedIn)
    }
    if got := e.balance(t, w2.ID); !got.IsZero() {
        t.Fatalf("destination credited %s", got)
    }
}

func TestTransferRejectsHugeExponentQuickly(t *testing.T) {
    e := newEnv(t)
    owner := ledger.NewUserID()
    w1 := e.wallet(t, owner, e.usd, "100")
    w2 := e.wallet(t, owner, e.eur, "0")

    var in struct {
        Amount decimal.Decimal `json:"amount"`
    }
    if err := json.Unmarshal([]byte(`{"amount":"1e80000000"}`), &in); err != nil {
        t.Fatalf("decode: %v", err)
    }
    start := time.Now()
    res, err := e.svc.Transfer(context.Background(), TransferInput{From: w1.ID, To: w2.ID, Amount: in.Amount})
    if !errors.Is(err, ledger.ErrInvalidTransactionAmount) {
        t.Fatalf("expected invalid amount, got %v", err)
    }
    if res.AbortedIn != StateValidating {
        t.Fatalf("expected abort in Validating, got %s", res.AbortedIn)
    }
    if elapsed := time.Since(start); elapsed > time.Second {
        t.Fatalf("validation took %s", elapsed)
    }
}
