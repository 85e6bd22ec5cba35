package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Service is the currency directory: the authoritative code to ratio mapping.
type Service struct {
	store  ledger.Store
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a currency directory. cache may be nil.
func NewService(store ledger.Store, cache Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger, now: time.Now}
}

// CreateInput captures the data needed to register a currency.
type CreateInput struct {
	Code  string
	Name  string
	Ratio decimal.Decimal
}

// Create registers a currency. The code is checked for duplicates before the ratio.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Currency, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || utf8.RuneCountInString(code) > ledger.MaxCurrencyCodeLen {
		return ledger.Currency{}, fmt.Errorf("%w: code must be 1-%d characters", ledger.ErrInvalidCurrencyInput, ledger.MaxCurrencyCodeLen)
	}
	if name == "" || utf8.RuneCountInString(name) > ledger.MaxCurrencyNameLen {
		return ledger.Currency{}, fmt.Errorf("%w: name must be 1-%d characters", ledger.ErrInvalidCurrencyInput, ledger.MaxCurrencyNameLen)
	}

	cur := ledger.Currency{
		ID:            ledger.NewCurrencyID(),
		Code:          code,
		Name:          name,
		Ratio:         input.Ratio,
		ModifiedOnUTC: s.now().UTC(),
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.Currencies().GetByCode(ctx, code)
		switch {
		case err == nil:
			return fmt.Errorf("currency %q: %w", code, ledger.ErrDuplicateCurrency)
		case !errors.Is(err, ledger.ErrCurrencyNotFound):
			return err
		}
		if err := ledger.ValidateRatio(input.Ratio); err != nil {
			return err
		}
		return tx.Currencies().Insert(ctx, cur)
	})
	if err != nil {
		return ledger.Currency{}, err
	}

	s.logger.Info("currency created",
		slog.String("currency_id", cur.ID.String()),
		slog.String("code", cur.Code),
		slog.String("ratio", cur.Ratio.String()),
	)
	return cur, nil
}

// UpdateRatio replaces a currency ratio and stamps the change time. Once the
// change is committed the cached record is overwritten with it.
func (s *Service) UpdateRatio(ctx context.Context, id ledger.CurrencyID, ratio decimal.Decimal) (ledger.Currency, error) {
	if err := ledger.ValidateRatio(ratio); err != nil {
		return ledger.Currency{}, err
	}

	var updated ledger.Currency
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Currencies().UpdateRatio(ctx, id, ratio, s.now()); err != nil {
			return err
		}
		var err error
		updated, err = tx.Currencies().Get(ctx, id)
		return err
	})
	if err != nil {
		return ledger.Currency{}, err
	}

	s.publish(ctx, updated)
	s.logger.Info("currency ratio updated",
		slog.String("currency_id", id.String()),
		slog.String("ratio", ratio.String()),
	)
	return updated, nil
}

// IsValid reports whether the currency exists.
func (s *Service) IsValid(ctx context.Context, id ledger.CurrencyID) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ledger.ErrCurrencyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Get returns a currency, preferring the cache.
func (s *Service) Get(ctx context.Context, id ledger.CurrencyID) (ledger.Currency, error) {
	if s.cache != nil {
		cur, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("currency cache read failed", slog.String("currency_id", id.String()), slog.Any("error", err))
		} else if ok {
			return cur, nil
		}
	}

	cur, err := s.store.Currencies().Get(ctx, id)
	if err != nil {
		return ledger.Currency{}, err
	}

	if s.cache != nil {
		if err := s.cache.Add(ctx, cur); err != nil {
			s.logger.Warn("currency cache write failed", slog.String("currency_id", id.String()), slog.Any("error", err))
		}
	}
	return cur, nil
}

// GetByCode looks a currency up by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (ledger.Currency, error) {
	return s.store.Currencies().GetByCode(ctx, code)
}

// List returns all currencies ordered by code.
func (s *Service) List(ctx context.Context) ([]ledger.Currency, error) {
	return s.store.Currencies().List(ctx)
}

// publish overwrites the cached record so a reader that loaded the previous row
// cannot re-add it. If the write fails the entry is dropped instead.
func (s *Service) publish(ctx context.Context, cur ledger.Currency) {
	if s.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.cache.Set(ctx, cur); err == nil {
		return
	}
	if err := s.cache.Delete(ctx, cur.ID); err != nil {
		s.logger.Error("currency cache invalidation failed", slog.String("currency_id", cur.ID.String()), slog.Any("error", err))
	}
}

// Convert expresses amount, held in from, in units of to. Ratios are relative to
// one shared reference unit, so the result is amount * from.Ratio / to.Ratio
// rounded to ledger.Scale fractional digits.
func Convert(from, to ledger.Currency, amount decimal.Decimal) decimal.Decimal {
	if from.ID == to.ID {
		return amount
	}
	return amount.Mul(from.Ratio).Div(to.Ratio).Round(ledger.Scale)
}
