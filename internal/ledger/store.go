package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyRepository persists currencies.
type CurrencyRepository interface {
	Insert(ctx context.Context, c Currency) error
	Get(ctx context.Context, id CurrencyID) (Currency, error)
	GetByCode(ctx context.Context, code string) (Currency, error)
	UpdateRatio(ctx context.Context, id CurrencyID, ratio decimal.Decimal, modifiedOn time.Time) error
	List(ctx context.Context) ([]Currency, error)
}

// WalletRepository persists wallets. GetForUpdate locks the row until the
// enclosing unit of work ends; outside a unit of work it behaves like Get.
type WalletRepository interface {
	Insert(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id WalletID) (Wallet, error)
	GetForUpdate(ctx context.Context, id WalletID) (Wallet, error)
	ListByIDs(ctx context.Context, ids []WalletID) ([]Wallet, error)
	ListByOwner(ctx context.Context, owner UserID) ([]Wallet, error)
	UpdateStatus(ctx context.Context, id WalletID, status WalletStatus) error
	UpdateTitle(ctx context.Context, id WalletID, title string) error
	UpdateBalance(ctx context.Context, id WalletID, balance decimal.Decimal) error
}

// TransactionRepository is append-only. ListByWallet returns newest first.
type TransactionRepository interface {
	Insert(ctx context.Context, t Transaction) error
	ListByWallet(ctx context.Context, walletID WalletID) ([]Transaction, error)
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Currencies() CurrencyRepository
	Wallets() WalletRepository
	Transactions() TransactionRepository
}

// Store is the durable store. The embedded Tx runs every call in its own
// implicit unit of work; WithinTx groups several calls into one.
//
// WithinTx observes ctx cancellation only before it begins. The body and the
// commit run detached from the caller's cancellation, bounded by the store's
// transaction timeout. When fn fails the unit of work is rolled back and fn's
// error is returned; if the rollback itself fails a *RollbackError is returned.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

const defaultTxTimeout = 30 * time.Second

// detach strips caller cancellation from ctx and bounds it by timeout.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
