package payments

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"

    "github.com/shopspring/decimal"

    "github.com/congo-pay/walletledger/internal/currency"
    "github.com/congo-pay/walletledger/internal/ledger"
    "github.com/congo-pay/walletledger/internal/metrics"
    "github.com/congo-pay/walletledger/internal/notification"
    "github.com/congo-pay/walletledger/internal/transaction"
    "github.com/congo-pay/walletledger/internal/wallet"
)

const opTransfer = "transfer"

// Service orchestrates wallet-to-wallet transfers, possibly across currencies.
type Service struct {
    store    ledger.Store
    wallets  *wallet.Service
    recorder *transaction.Recorder
    notifier notification.Notifier
    metrics  metrics.Recorder
    logger   *slog.Logger
    now      func() time.Time
}

// NewService constructs a payment service. A nil notifier or recorder falls back to a no-op.
func NewService(store ledger.Store, wallets *wallet.Service, recorder *transaction.Recorder, notifier notification.Notifier, rec metrics.Recorder, logger *slog.Logger) *Service {
    if notifier == nil {
        notifier = notification.NewLoggerNotifier(logger)
    }
    if rec == nil {
        rec = metrics.Noop{}
    }
    return &Service{
        store:    store,
        wallets:  wallets,
        recorder: recorder,
        notifier: notifier,
        metrics:  rec,
        logger:   logger,
        now:      time.Now,
    }
}

// TransferInput captures the data needed to move funds between wallets.
// Amount is expressed in the source wallet's currency.
type TransferInput struct {
    From            ledger.WalletID
    To              ledger.WalletID
    Amount          decimal.Decimal
    Description     string
    RequestorUserID ledger.UserID
}

// TransferResult describes where the state machine ended. AbortedIn is only
// meaningful when State is StateAborted.
type TransferResult struct {
    State           State
    AbortedIn       State
    SourceLeg       ledger.TransactionID
    DestinationLeg  ledger.TransactionID
    SourceBalance   decimal.Decimal
    DestBalance     decimal.Decimal
    ConvertedAmount decimal.Decimal
    SourceCurrency  string
    DestCurrency    string
    CompletedAt     time.Time
}

// Transfer debits Amount from the source wallet and credits the converted
// amount to the destination wallet. Both balance changes and both
// transaction legs commit together or not at all.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (res TransferResult, err error) {
    start := time.Now()
    state := StateValidating
    defer func() {
        if err != nil {
            res = TransferResult{State: StateAborted, AbortedIn: state}
            s.logAbort(ctx, input, state, err)
        }
        s.metrics.ObserveOperation(opTransfer, metrics.Outcome(err), time.Since(start))
    }()

    src, dst, err := s.validate(ctx, input)
    if err != nil {
        return TransferResult{}, err
    }

    err = s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
        state = StateConverting
        srcCur, err := tx.Currencies().Get(ctx, src.CurrencyID)
        if err != nil {
            return err
        }
        dstCur, err := tx.Currencies().Get(ctx, dst.CurrencyID)
        if err != nil {
            return err
        }
        converted := currency.Convert(srcCur, dstCur, input.Amount)
        if err := ledger.ValidateAmount(converted); err != nil {
            return fmt.Errorf("%s %s is %s %s: %w", input.Amount, srcCur.Code, converted, dstCur.Code, err)
        }

        state = StateMutating
        if _, err := s.wallets.Lock(ctx, tx, input.From, input.To); err != nil {
            return err
        }
        debited, err := s.wallets.DecreaseBalance(ctx, tx, input.From, input.Amount)
        if err != nil {
            return err
        }
        credited, err := s.wallets.IncreaseBalance(ctx, tx, input.To, converted)
        if err != nil {
            return err
        }

        state = StateRecording
        at := s.now().UTC()
        in, err := s.recorder.RecordFundsLeg(ctx, tx, input.To, converted, legDescription("Transfer from", input.From, input.Description), at, ledger.KindIncremental)
        if err != nil {
            return err
        }
        out, err := s.recorder.RecordFundsLeg(ctx, tx, input.From, input.Amount, legDescription("Transfer to", input.To, input.Description), at, ledger.KindDecremental)
        if err != nil {
            return err
        }

        res = TransferResult{
            SourceLeg:       out.ID,
            DestinationLeg:  in.ID,
            SourceBalance:   debited.Balance,
            DestBalance:     credited.Balance,
            ConvertedAmount: converted,
            SourceCurrency:  srcCur.Code,
            DestCurrency:    dstCur.Code,
            CompletedAt:     at,
        }
        return nil
    })
    if err != nil {
        return TransferResult{}, err
    }

    state = StateCommitted
    res.State = StateCommitted
    s.metrics.AddVolume(opTransfer, res.SourceCurrency, input.Amount)
    s.logger.InfoContext(ctx, "transfer committed",
        slog.String("from_wallet_id", input.From.String()),
        slog.String("to_wallet_id", input.To.String()),
        slog.String("amount", input.Amount.String()),
        slog.String("converted_amount", res.ConvertedAmount.String()),
        slog.String("source_leg", res.SourceLeg.String()),
        slog.String("destination_leg", res.DestinationLeg.String()),
    )

    if err := s.notifier.Send(ctx, notification.Message{
        Kind:        notification.KindFundsTransfer,
        Destination: dst.OwnerID.String(),
        Body:        fmt.Sprintf("Moved %s %s from wallet %s to wallet %s (%s %s)", input.Amount, res.SourceCurrency, input.From, input.To, res.ConvertedAmount, res.DestCurrency),
        OccurredAt:  res.CompletedAt,
    }); err != nil {
        s.logger.WarnContext(ctx, "transfer notification failed", slog.Any("error", err))
    }
    return res, nil
}

// validate runs the Validating state. Nothing is locked yet; availability is
// re-checked under lock while mutating.
func (s *Service) validate(ctx context.Context, input TransferInput) (src, dst ledger.Wallet, err error) {
    if err := ledger.ValidateAmount(input.Amount); err != nil {
        return src, dst, err
    }
    if input.From == input.To {
        return src, dst, fmt.Errorf("wallet %s: %w", input.From, ledger.ErrSameWallet)
    }
    for _, id := range []ledger.WalletID{input.From, input.To} {
        ok, err := s.wallets.IsAvailable(ctx, id)
        if err != nil {
            return src, dst, err
        }
        if !ok {
            return src, dst, fmt.Errorf("wallet %s: %w", id, ledger.ErrWalletUnavailable)
        }
    }
    same, err := s.wallets.IsCommonlyOwned(ctx, input.From, input.To)
    if err != nil {
        return src, dst, err
    }
    if !same {
        return src, dst, fmt.Errorf("wallets %s and %s: %w", input.From, input.To, ledger.ErrWalletOwnership)
    }

    if input.RequestorUserID.IsZero() {
        src, err = s.wallets.Get(ctx, input.From)
    } else {
        src, err = s.wallets.GetOwned(ctx, input.From, input.RequestorUserID)
    }
    if err != nil {
        return src, dst, err
    }
    dst, err = s.wallets.Get(ctx, input.To)
    return src, dst, err
}

func (s *Service) logAbort(ctx context.Context, input TransferInput, state State, err error) {
    attrs := []any{
        slog.String("from_wallet_id", input.From.String()),
        slog.String("to_wallet_id", input.To.String()),
        slog.String("aborted_in", state.String()),
        slog.Any("error", err),
    }
    switch {
    case errors.Is(err, ledger.ErrRollbackFailed):
        s.logger.ErrorContext(ctx, "FATAL: transfer rollback failed, ledger state must be reconciled", attrs...)
    case ledger.IsDomainError(err):
        s.logger.InfoContext(ctx, "transfer rejected", attrs...)
    default:
        s.logger.ErrorContext(ctx, "transfer aborted", attrs...)
    }
}

func legDescription(prefix string, counterpart ledger.WalletID, note string) string {
    d := prefix + " " + counterpart.String()
    if note = strings.TrimSpace(note); note != "" {
        d += ": " + note
    }
    return transaction.Truncate(d)
}
