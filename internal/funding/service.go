package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/metrics"
	"github.com/congo-pay/walletledger/internal/notification"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

const (
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
)

// CurrencyLookup resolves a currency for metric labels.
type CurrencyLookup interface {
	Get(ctx context.Context, id ledger.CurrencyID) (ledger.Currency, error)
}

// Service applies manual deposits and withdrawals: each one mutates the
// wallet balance and records a User transaction in a single unit of work.
type Service struct {
	store      ledger.Store
	wallets    *wallet.Service
	recorder   *transaction.Recorder
	currencies CurrencyLookup
	notifier   notification.Notifier
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// Option customises the service.
type Option func(*Service)

func WithNotifier(n notification.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithMetrics(m metrics.Recorder) Option       { return func(s *Service) { s.metrics = m } }

// NewService prepares a funding service.
func NewService(store ledger.Store, wallets *wallet.Service, recorder *transaction.Recorder, currencies CurrencyLookup, logger *slog.Logger, opts ...Option) (*Service, error) {
	if wallets == nil || recorder == nil {
		return nil, fmt.Errorf("wallet service and transaction recorder are required")
	}
	s := &Service{
		store:      store,
		wallets:    wallets,
		recorder:   recorder,
		currencies: currencies,
		notifier:   notification.NewLoggerNotifier(logger),
		metrics:    metrics.Noop{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MovementInput identifies the wallet and amount of a manual movement.
// When RequestorUserID is set it must own the wallet.
type MovementInput struct {
	WalletID        ledger.WalletID
	Amount          decimal.Decimal
	Description     string
	RequestorUserID ledger.UserID
}

// MovementResult represents the domain outcome of a deposit or withdrawal.
type MovementResult struct {
	Transaction   ledger.Transaction
	WalletBalance decimal.Decimal
	CompletedAt   time.Time
}

// Deposit increases the wallet balance and records an Incremental/User transaction.
func (s *Service) Deposit(ctx context.Context, input MovementInput) (MovementResult, error) {
	return s.move(ctx, opDeposit, input)
}

// Withdraw decreases the wallet balance and records a Decremental/User transaction.
func (s *Service) Withdraw(ctx context.Context, input MovementInput) (MovementResult, error) {
	return s.move(ctx, opWithdraw, input)
}

func (s *Service) move(ctx context.Context, op string, input MovementInput) (result MovementResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation(op, metrics.Outcome(err), time.Since(start))
	}()

	w, err := s.precheck(ctx, input)
	if err != nil {
		return MovementResult{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var (
			updated ledger.Wallet
			t       ledger.Transaction
			err     error
		)
		if op == opDeposit {
			if updated, err = s.wallets.IncreaseBalance(ctx, tx, input.WalletID, input.Amount); err != nil {
				return err
			}
			t, err = s.recorder.RecordUserIncrease(ctx, tx, input.WalletID, input.Amount, input.Description)
		} else {
			if updated, err = s.wallets.DecreaseBalance(ctx, tx, input.WalletID, input.Amount); err != nil {
				return err
			}
			t, err = s.recorder.RecordUserDecrease(ctx, tx, input.WalletID, input.Amount, input.Description)
		}
		if err != nil {
			return err
		}
		result = MovementResult{Transaction: t, WalletBalance: updated.Balance, CompletedAt: t.CreatedOnUTC}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, op, input.WalletID, err)
		return MovementResult{}, err
	}

	s.metrics.AddVolume(op, s.currencyCode(ctx, w.CurrencyID), input.Amount)
	s.logger.InfoContext(ctx, "wallet "+op+" applied",
		slog.String("wallet_id", input.WalletID.String()),
		slog.String("transaction_id", result.Transaction.ID.String()),
		slog.String("amount", input.Amount.String()),
		slog.String("balance", result.WalletBalance.String()),
	)
	s.notify(ctx, op, w, input.Amount)
	return result, nil
}

// precheck runs outside the unit of work; the ledger re-checks availability under lock.
func (s *Service) precheck(ctx context.Context, input MovementInput) (ledger.Wallet, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return ledger.Wallet{}, err
	}
	ok, err := s.wallets.IsAvailable(ctx, input.WalletID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("wallet %s: %w", input.WalletID, ledger.ErrWalletUnavailable)
	}
	if input.RequestorUserID.IsZero() {
		return s.wallets.Get(ctx, input.WalletID)
	}
	return s.wallets.GetOwned(ctx, input.WalletID, input.RequestorUserID)
}

func (s *Service) currencyCode(ctx context.Context, id ledger.CurrencyID) string {
	if s.currencies == nil {
		return id.String()
	}
	c, err := s.currencies.Get(ctx, id)
	if err != nil {
		return id.String()
	}
	return c.Code
}

func (s *Service) notify(ctx context.Context, op string, w ledger.Wallet, amount decimal.Decimal) {
	kind := notification.KindDeposit
	if op == opWithdraw {
		kind = notification.KindWithdrawal
	}
	msg := notification.Message{
		Kind:        kind,
		Destination: w.OwnerID.String(),
		Body:        fmt.Sprintf("%s of %s on wallet %s", op, amount, w.ID),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

func (s *Service) logFailure(ctx context.Context, op string, walletID ledger.WalletID, err error) {
	attrs := []any{slog.String("operation", op), slog.String("wallet_id", walletID.String()), slog.Any("error", err)}
	switch {
	case errors.Is(err, ledger.ErrRollbackFailed):
		s.logger.ErrorContext(ctx, "FATAL: rollback failed, ledger state must be reconciled", attrs...)
	case ledger.IsDomainError(err):
		s.logger.InfoContext(ctx, "wallet "+op+" rejected", attrs...)
	default:
		s.logger.ErrorContext(ctx, "wallet "+op+" failed", attrs...)
	}
}
