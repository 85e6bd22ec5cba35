package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id ledger.UserID) (User, error)
	UpdateTokenVersion(ctx context.Context, id ledger.UserID, version int) error
	TouchLogin(ctx context.Context, id ledger.UserID, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, password_hash, role, token_version, created_on_utc, last_login_utc`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (id, username, password_hash, role, token_version, created_on_utc)
        VALUES ($1, $2, $3, $4, $5, $6)`, user.ID.UUID, user.Username, user.PasswordHash, user.Role, user.TokenVersion, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("user %q: %w", user.Username, ErrUserExists)
	}
	return err
}

// FindByUsername fetches a user by login name.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id ledger.UserID) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.UUID))
}

// UpdateTokenVersion stores a new token version, revoking older tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id ledger.UserID, version int) error {
	return r.exec(ctx, `UPDATE users SET token_version = $1 WHERE id = $2`, version, id.UUID)
}

// TouchLogin records the time of the last successful login.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id ledger.UserID, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login_utc = $1 WHERE id = $2`, at.UTC(), id.UUID)
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		lastLogin *time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Username, &user.PasswordHash, &user.Role, &user.TokenVersion, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.ID = ledger.UserID{UUID: id}
	user.CreatedAt = createdAt.UTC()
	user.LastLogin = lastLogin
	return user, nil
}
