package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNumericOverflow     = "22003"

	rollbackTimeout = 5 * time.Second
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists the ledger in PostgreSQL. Units of work run at read
// committed isolation and lock wallet rows with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db        *pgxpool.Pool
	txTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. txTimeout bounds each unit of work.
func NewPostgresStore(db *pgxpool.Pool, txTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, txTimeout: txTimeout}
}

func (s *PostgresStore) Currencies() CurrencyRepository     { return pgCurrencies{s.db} }
func (s *PostgresStore) Wallets() WalletRepository          { return pgWallets{s.db} }
func (s *PostgresStore) Transactions() TransactionRepository { return pgTransactions{s.db} }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

// WithinTx runs fn inside one database transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txCtx, cancel := detach(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = rollback(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(txCtx, pgTx{tx}); err != nil {
		if rbErr := rollback(ctx, tx); rbErr != nil {
			return &RollbackError{Err: err, RollbackErr: rbErr}
		}
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// rollback releases the transaction's connection even when ctx is already done.
func rollback(ctx context.Context, tx pgx.Tx) error {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

type pgTx struct{ q pgx.Tx }

func (t pgTx) Currencies() CurrencyRepository      { return pgCurrencies{t.q} }
func (t pgTx) Wallets() WalletRepository           { return pgWallets{t.q} }
func (t pgTx) Transactions() TransactionRepository { return pgTransactions{t.q} }

func constraintError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

type pgCurrencies struct{ q querier }

const currencyColumns = `id, code, name, ratio, modified_on_utc`

func scanCurrency(row pgx.Row) (Currency, error) {
	var (
		c          Currency
		id         uuid.UUID
		modifiedOn time.Time
	)
	if err := row.Scan(&id, &c.Code, &c.Name, &c.Ratio, &modifiedOn); err != nil {
		return Currency{}, err
	}
	c.ID = CurrencyID{id}
	c.ModifiedOnUTC = modifiedOn.UTC()
	return c, nil
}

func (r pgCurrencies) Insert(ctx context.Context, c Currency) error {
	_, err := r.q.Exec(ctx, `INSERT INTO currencies (id, code, name, ratio, modified_on_utc)
        VALUES ($1, $2, $3, $4, $5)`, c.ID.UUID, c.Code, c.Name, c.Ratio, c.ModifiedOnUTC.UTC())
	if pgErr, ok := constraintError(err); ok && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("insert currency %q: %w", c.Code, ErrDuplicateCurrency)
	}
	return err
}

func (r pgCurrencies) Get(ctx context.Context, id CurrencyID) (Currency, error) {
	c, err := scanCurrency(r.q.QueryRow(ctx, `SELECT `+currencyColumns+` FROM currencies WHERE id = $1`, id.UUID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Currency{}, fmt.Errorf("currency %s: %w", id, ErrCurrencyNotFound)
	}
	return c, err
}

func (r pgCurrencies) GetByCode(ctx context.Context, code string) (Currency, error) {
	c, err := scanCurrency(r.q.QueryRow(ctx, `SELECT `+currencyColumns+` FROM currencies WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Currency{}, fmt.Errorf("currency %q: %w", code, ErrCurrencyNotFound)
	}
	return c, err
}

func (r pgCurrencies) UpdateRatio(ctx context.Context, id CurrencyID, ratio decimal.Decimal, at time.Time) error {
	cmd, err := r.q.Exec(ctx, `UPDATE currencies SET ratio = $1, modified_on_utc = $2 WHERE id = $3`, ratio, at.UTC(), id.UUID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("currency %s: %w", id, ErrCurrencyNotFound)
	}
	return nil
}

func (r pgCurrencies) List(ctx context.Context) ([]Currency, error) {
	rows, err := r.q.Query(ctx, `SELECT `+currencyColumns+` FROM currencies ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type pgWallets struct{ q querier }

const walletColumns = `id, owner_id, title, balance, currency_id, status, created_on_utc`

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                       Wallet
		id, ownerID, currencyID uuid.UUID
		status                  int16
		createdOn               time.Time
	)
	if err := row.Scan(&id, &ownerID, &w.Title, &w.Balance, &currencyID, &status, &createdOn); err != nil {
		return Wallet{}, err
	}
	st, err := StatusFromInt(status)
	if err != nil {
		return Wallet{}, err
	}
	w.ID = WalletID{id}
	w.OwnerID = UserID{ownerID}
	w.CurrencyID = CurrencyID{currencyID}
	w.Status = st
	w.CreatedOnUTC = createdOn.UTC()
	return w, nil
}

func collectWallets(rows pgx.Rows) ([]Wallet, error) {
	defer rows.Close()
	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r pgWallets) Insert(ctx context.Context, w Wallet) error {
	_, err := r.q.Exec(ctx, `INSERT INTO wallets (id, owner_id, title, balance, currency_id, status, created_on_utc)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID.UUID, w.OwnerID.UUID, w.Title, w.Balance, w.CurrencyID.UUID, int16(w.Status), w.CreatedOnUTC.UTC())
	if pgErr, ok := constraintError(err); ok {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("insert wallet for user %s: %w", w.OwnerID, ErrWalletAlreadyExists)
		case pgForeignKeyViolation:
			return fmt.Errorf("insert wallet: currency %s: %w", w.CurrencyID, ErrInvalidCurrency)
		}
	}
	return err
}

func (r pgWallets) get(ctx context.Context, id WalletID, suffix string) (Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`+suffix, id.UUID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrWalletNotFound)
	}
	return w, err
}

func (r pgWallets) Get(ctx context.Context, id WalletID) (Wallet, error) {
	return r.get(ctx, id, "")
}

func (r pgWallets) GetForUpdate(ctx context.Context, id WalletID) (Wallet, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r pgWallets) ListByIDs(ctx context.Context, ids []WalletID) ([]Wallet, error) {
	raw := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		raw[i] = id.UUID
	}
	rows, err := r.q.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	return collectWallets(rows)
}

func (r pgWallets) ListByOwner(ctx context.Context, owner UserID) ([]Wallet, error) {
	rows, err := r.q.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY created_on_utc`, owner.UUID)
	if err != nil {
		return nil, err
	}
	return collectWallets(rows)
}

func (r pgWallets) update(ctx context.Context, id WalletID, sql string, arg any) error {
	cmd, err := r.q.Exec(ctx, sql, arg, id.UUID)
	if pgErr, ok := constraintError(err); ok {
		switch pgErr.Code {
		case pgCheckViolation:
			return fmt.Errorf("wallet %s: %w", id, ErrInsufficientBalance)
		case pgNumericOverflow:
			return fmt.Errorf("wallet %s: %w", id, ErrInvalidTransactionAmount)
		}
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s: %w", id, ErrWalletNotFound)
	}
	return nil
}

func (r pgWallets) UpdateStatus(ctx context.Context, id WalletID, status WalletStatus) error {
	return r.update(ctx, id, `UPDATE wallets SET status = $1 WHERE id = $2`, int16(status))
}

func (r pgWallets) UpdateTitle(ctx context.Context, id WalletID, title string) error {
	return r.update(ctx, id, `UPDATE wallets SET title = $1 WHERE id = $2`, title)
}

func (r pgWallets) UpdateBalance(ctx context.Context, id WalletID, balance decimal.Decimal) error {
	return r.update(ctx, id, `UPDATE wallets SET balance = $1 WHERE id = $2`, balance)
}

type pgTransactions struct{ q querier }

func (r pgTransactions) Insert(ctx context.Context, t Transaction) error {
	_, err := r.q.Exec(ctx, `INSERT INTO transactions (id, wallet_id, amount, kind, type, description, created_on_utc)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID.UUID, t.WalletID.UUID, t.Amount, int16(t.Kind), int16(t.Type), t.Description, t.CreatedOnUTC.UTC())
	if pgErr, ok := constraintError(err); ok {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("insert transaction: wallet %s: %w", t.WalletID, ErrWalletNotFound)
		case pgNumericOverflow:
			return fmt.Errorf("insert transaction: amount %s: %w", t.Amount, ErrInvalidTransactionAmount)
		}
	}
	return err
}

func (r pgTransactions) ListByWallet(ctx context.Context, walletID WalletID) ([]Transaction, error) {
	rows, err := r.q.Query(ctx, `SELECT id, wallet_id, amount, kind, type, description, created_on_utc
        FROM transactions WHERE wallet_id = $1
        ORDER BY created_on_utc DESC, seq DESC`, walletID.UUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			t            Transaction
			id, wid      uuid.UUID
			kind, txType int16
			createdOn    time.Time
		)
		if err := rows.Scan(&id, &wid, &t.Amount, &kind, &txType, &t.Description, &createdOn); err != nil {
			return nil, err
		}
		if t.Kind, err = KindFromInt(kind); err != nil {
			return nil, err
		}
		if t.Type, err = TypeFromInt(txType); err != nil {
			return nil, err
		}
		t.ID = TransactionID{id}
		t.WalletID = WalletID{wid}
		t.CreatedOnUTC = createdOn.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
