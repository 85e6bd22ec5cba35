package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryState struct {
	currencies   map[CurrencyID]Currency
	wallets      map[WalletID]Wallet
	transactions []Transaction
}

// MemoryStore is a Store kept in process memory. Units of work are fully
// serialized and writes are staged until commit, so it offers stronger
// isolation than the Postgres store. Useful for unit tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	state     memoryState
	txTimeout time.Duration

	// rollbackErr simulates a failing rollback; see FailNextRollback.
	rollbackErr error
}

// NewInMemory creates an empty in-memory store. txTimeout bounds each unit of
// work; zero or less uses the store default.
func NewInMemory(txTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			currencies: make(map[CurrencyID]Currency),
			wallets:    make(map[WalletID]Wallet),
		},
		txTimeout: txTimeout,
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.unit(ctx, fn, true)
}

// unit runs fn as one serialized unit of work. Only explicit units observe a
// simulated rollback failure; implicit single-call units never do.
func (s *MemoryStore) unit(ctx context.Context, fn func(ctx context.Context, tx Tx) error, explicit bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txCtx, cancel := detach(ctx, s.txTimeout)
	defer cancel()

	tx := newMemTx(&s.state)
	if err := fn(txCtx, tx); err != nil {
		if explicit && s.rollbackErr != nil {
			rbErr := s.rollbackErr
			s.rollbackErr = nil
			return &RollbackError{Err: err, RollbackErr: rbErr}
		}
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Currencies() CurrencyRepository     { return memAutoCurrencies{s} }
func (s *MemoryStore) Wallets() WalletRepository          { return memAutoWallets{s} }
func (s *MemoryStore) Transactions() TransactionRepository { return memAutoTransactions{s} }

// autocommit runs a single repository call in its own unit of work.
func autocommit[T any](ctx context.Context, s *MemoryStore, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var out T
	err := s.unit(ctx, func(ctx context.Context, tx Tx) error {
		v, err := fn(ctx, tx)
		out = v
		return err
	}, false)
	return out, err
}

func exec(ctx context.Context, s *MemoryStore, fn func(ctx context.Context, tx Tx) error) error {
	return s.unit(ctx, fn, false)
}

type memAutoCurrencies struct{ s *MemoryStore }

func (r memAutoCurrencies) Insert(ctx context.Context, c Currency) error {
	return exec(ctx, r.s, func(ctx context.Context, tx Tx) error { return tx.Currencies().Insert(ctx, c) })
}

func (r memAutoCurrencies) Get(ctx context.Context, id CurrencyID) (Currency, error) {
	return autocommit(ctx, r.s, func(ctx context.Context, tx Tx) (Currency, error) { return tx.Currencies().Get(ctx, id) })
}

func (r memAutoCurrencies) GetByCode(ctx context.Context, code string) (Currency, error) {
	return autocommit(ctx, r.s, func(ctx context.Context, tx Tx) (Currency, error) { return tx.Currencies().GetByCode(ctx, code) })
}

func (r memAutoCurrencies) UpdateRatio(ctx context.Context, id CurrencyID, ratio decimal.Decimal, at time.Time) error {
	return exec(ctx, r.s, func(ctx context.Context, tx Tx) error { return tx.Currencies().UpdateRatio(ctx, id, ratio, at) })
}

func (r memAutoCurrencies) List(ctx context.Context) ([]Currency, error) {
	return autocommit(ctx, r.s, func(ctx context.Context, tx Tx) ([]Currency, error) { return tx.Currencies().List(ctx) })
}

type memAutoWallets struct{ s *MemoryStore }

func (r memAutoWallets) Insert(ctx context.Context, w Wallet) error {
	return exec(ctx, r.s, func(ctx context.Context, tx Tx) error { return tx.Wallets().Insert(ctx, w) })
}

func (r memAutoWallets) Get(ctx context.Context, id WalletID) (Wallet, error) {
	return autocommit(ctx, r.s, func(ctx context.Context, tx Tx) (Wallet, error) { return tx.Wallets().Get(ctx, id) })
}

func (r memAutoWallets) GetForUpdate(ctx context.Context, id WalletID) (Wallet, error) {
	return r.Get(ctx, id)
}

func (r memAutoWallets) ListByIDs(ctx context.Context, ids []WalletID) ([]Wallet, error) {
	return autocommit(ctx, r.s, func(ctx context.Context, tx Tx) ([]Wallet, error) { return tx.Wallets().ListByIDs(ctx, ids) })
}

func (r memAutoWallets) ListByOwner(ctx context.Context, owner UserID) ([]Wallet, error) {
	return autocommit(ctx, r.s, func(ctx context.Context, tx Tx) ([]Wallet, error) { return tx.Wallets().ListByOwner(ctx, owner) })
}

func (r memAutoWallets) UpdateStatus(ctx context.Context, id WalletID, status WalletStatus) error {
	return exec(ctx, r.s, func(ctx context.Context, tx Tx) error { return tx.Wallets().UpdateStatus(ctx, id, status) })
}

func (r memAutoWallets) UpdateTitle(ctx context.Context, id WalletID, title string) error {
	return exec(ctx, r.s, func(ctx context.Context, tx Tx) error { return tx.Wallets().UpdateTitle(ctx, id, title) })
}

func (r memAutoWallets) UpdateBalance(ctx context.Context, id WalletID, balance decimal.Decimal) error {
	return exec(ctx, r.s, func(ctx context.Context, tx Tx) error { return tx.Wallets().UpdateBalance(ctx, id, balance) })
}

type memAutoTransactions struct{ s *MemoryStore }

func (r memAutoTransactions) Insert(ctx context.Context, t Transaction) error {
	return exec(ctx, r.s, func(ctx context.Context, tx Tx) error { return tx.Transactions().Insert(ctx, t) })
}

func (r memAutoTransactions) ListByWallet(ctx context.Context, id WalletID) ([]Transaction, error) {
	return autocommit(ctx, r.s, func(ctx context.Context, tx Tx) ([]Transaction, error) { return tx.Transactions().ListByWallet(ctx, id) })
}

// memTx stages writes over the committed state.
type memTx struct {
	base         *memoryState
	currencies   map[CurrencyID]Currency
	wallets      map[WalletID]Wallet
	transactions []Transaction
}

func newMemTx(base *memoryState) *memTx {
	return &memTx{
		base:       base,
		currencies: make(map[CurrencyID]Currency),
		wallets:    make(map[WalletID]Wallet),
	}
}

func (t *memTx) commit() {
	for id, c := range t.currencies {
		t.base.currencies[id] = c
	}
	for id, w := range t.wallets {
		t.base.wallets[id] = w
	}
	t.base.transactions = append(t.base.transactions, t.transactions...)
}

func (t *memTx) Currencies() CurrencyRepository      { return memCurrencies{t} }
func (t *memTx) Wallets() WalletRepository           { return memWallets{t} }
func (t *memTx) Transactions() TransactionRepository { return memTransactions{t} }

func (t *memTx) currency(id CurrencyID) (Currency, bool) {
	if c, ok := t.currencies[id]; ok {
		return c, true
	}
	c, ok := t.base.currencies[id]
	return c, ok
}

func (t *memTx) allCurrencies() []Currency {
	out := make([]Currency, 0, len(t.base.currencies)+len(t.currencies))
	for id, c := range t.base.currencies {
		if _, staged := t.currencies[id]; !staged {
			out = append(out, c)
		}
	}
	for _, c := range t.currencies {
		out = append(out, c)
	}
	return out
}

func (t *memTx) wallet(id WalletID) (Wallet, bool) {
	if w, ok := t.wallets[id]; ok {
		return w, true
	}
	w, ok := t.base.wallets[id]
	return w, ok
}

func (t *memTx) allWallets() []Wallet {
	out := make([]Wallet, 0, len(t.base.wallets)+len(t.wallets))
	for id, w := range t.base.wallets {
		if _, staged := t.wallets[id]; !staged {
			out = append(out, w)
		}
	}
	for _, w := range t.wallets {
		out = append(out, w)
	}
	return out
}

type memCurrencies struct{ t *memTx }

func (r memCurrencies) Insert(_ context.Context, c Currency) error {
	if _, exists := r.t.currency(c.ID); exists {
		return fmt.Errorf("insert currency %s: %w", c.ID, ErrDuplicateCurrency)
	}
	for _, existing := range r.t.allCurrencies() {
		if existing.Code == c.Code {
			return fmt.Errorf("insert currency %q: %w", c.Code, ErrDuplicateCurrency)
		}
	}
	r.t.currencies[c.ID] = c
	return nil
}

func (r memCurrencies) Get(_ context.Context, id CurrencyID) (Currency, error) {
	c, ok := r.t.currency(id)
	if !ok {
		return Currency{}, fmt.Errorf("currency %s: %w", id, ErrCurrencyNotFound)
	}
	return c, nil
}

func (r memCurrencies) GetByCode(_ context.Context, code string) (Currency, error) {
	for _, c := range r.t.allCurrencies() {
		if c.Code == code {
			return c, nil
		}
	}
	return Currency{}, fmt.Errorf("currency %q: %w", code, ErrCurrencyNotFound)
}

func (r memCurrencies) UpdateRatio(_ context.Context, id CurrencyID, ratio decimal.Decimal, at time.Time) error {
	c, ok := r.t.currency(id)
	if !ok {
		return fmt.Errorf("currency %s: %w", id, ErrCurrencyNotFound)
	}
	c.Ratio = ratio
	c.ModifiedOnUTC = at.UTC()
	r.t.currencies[id] = c
	return nil
}

func (r memCurrencies) List(context.Context) ([]Currency, error) {
	out := r.t.allCurrencies()
	slices.SortFunc(out, func(a, b Currency) int {
		switch {
		case a.Code < b.Code:
			return -1
		case a.Code > b.Code:
			return 1
		}
		return 0
	})
	return out, nil
}

type memWallets struct{ t *memTx }

func (r memWallets) Insert(_ context.Context, w Wallet) error {
	if _, ok := r.t.currency(w.CurrencyID); !ok {
		return fmt.Errorf("insert wallet: currency %s: %w", w.CurrencyID, ErrInvalidCurrency)
	}
	for _, existing := range r.t.allWallets() {
		if existing.ID == w.ID || (existing.OwnerID == w.OwnerID && existing.CurrencyID == w.CurrencyID) {
			return fmt.Errorf("insert wallet for user %s: %w", w.OwnerID, ErrWalletAlreadyExists)
		}
	}
	r.t.wallets[w.ID] = w
	return nil
}

func (r memWallets) Get(_ context.Context, id WalletID) (Wallet, error) {
	w, ok := r.t.wallet(id)
	if !ok {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrWalletNotFound)
	}
	return w, nil
}

// GetForUpdate needs no extra locking: the whole unit of work holds the store lock.
func (r memWallets) GetForUpdate(ctx context.Context, id WalletID) (Wallet, error) {
	return r.Get(ctx, id)
}

func (r memWallets) ListByIDs(_ context.Context, ids []WalletID) ([]Wallet, error) {
	out := make([]Wallet, 0, len(ids))
	seen := make(map[WalletID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if w, ok := r.t.wallet(id); ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r memWallets) ListByOwner(_ context.Context, owner UserID) ([]Wallet, error) {
	var out []Wallet
	for _, w := range r.t.allWallets() {
		if w.OwnerID == owner {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b Wallet) int { return a.CreatedOnUTC.Compare(b.CreatedOnUTC) })
	return out, nil
}

func (r memWallets) update(id WalletID, mutate func(*Wallet)) error {
	w, ok := r.t.wallet(id)
	if !ok {
		return fmt.Errorf("wallet %s: %w", id, ErrWalletNotFound)
	}
	mutate(&w)
	r.t.wallets[id] = w
	return nil
}

func (r memWallets) UpdateStatus(_ context.Context, id WalletID, status WalletStatus) error {
	return r.update(id, func(w *Wallet) { w.Status = status })
}

func (r memWallets) UpdateTitle(_ context.Context, id WalletID, title string) error {
	return r.update(id, func(w *Wallet) { w.Title = title })
}

func (r memWallets) UpdateBalance(_ context.Context, id WalletID, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("wallet %s: %w", id, ErrInsufficientBalance)
	}
	return r.update(id, func(w *Wallet) { w.Balance = balance })
}

type memTransactions struct{ t *memTx }

func (r memTransactions) Insert(_ context.Context, tr Transaction) error {
	if _, ok := r.t.wallet(tr.WalletID); !ok {
		return fmt.Errorf("insert transaction: wallet %s: %w", tr.WalletID, ErrWalletNotFound)
	}
	r.t.transactions = append(r.t.transactions, tr)
	return nil
}

func (r memTransactions) ListByWallet(_ context.Context, id WalletID) ([]Transaction, error) {
	var out []Transaction
	for _, list := range [][]Transaction{r.t.base.transactions, r.t.transactions} {
		for _, tr := range list {
			if tr.WalletID == id {
				out = append(out, tr)
			}
		}
	}
	// newest insert first, then a stable sort keeps that order among equal timestamps
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b Transaction) int { return b.CreatedOnUTC.Compare(a.CreatedOnUTC) })
	return out, nil
}
