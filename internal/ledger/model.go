package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of fractional digits kept for balances, amounts and ratios.
	Scale = 6
	// MaxIntegerDigits matches the NUMERIC(18,6) columns.
	MaxIntegerDigits = 18 - Scale

	maxCoefficientBits = 128

	MaxCurrencyCodeLen = 10
	MaxCurrencyNameLen = 30
	MaxWalletTitleLen  = 30
	MaxDescriptionLen  = 500
)

// MaxValue is the exclusive upper bound for amounts, ratios and balances.
var MaxValue = decimal.New(1, MaxIntegerDigits)

// Currency is a unit of account with a ratio against the shared reference unit.
type Currency struct {
	ID            CurrencyID
	Code          string
	Name          string
	Ratio         decimal.Decimal
	ModifiedOnUTC time.Time
}

// Wallet holds the balance of one user in one currency.
type Wallet struct {
	ID           WalletID
	OwnerID      UserID
	Title        string
	Balance      decimal.Decimal
	CurrencyID   CurrencyID
	Status       WalletStatus
	CreatedOnUTC time.Time
}

// Available reports whether the wallet accepts balance mutations.
func (w Wallet) Available() bool {
	return w.Status == WalletActive
}

// Transaction is an immutable record of one balance mutation.
type Transaction struct {
	ID           TransactionID
	WalletID     WalletID
	Amount       decimal.Decimal
	Kind         TransactionKind
	Type         TransactionType
	Description  string
	CreatedOnUTC time.Time
}

// ValidateAmount rejects non-positive amounts, amounts finer than Scale and
// amounts at or above MaxValue.
func ValidateAmount(amount decimal.Decimal) error {
	if reason := checkBounded(amount); reason != "" {
		return fmt.Errorf("%w: %s", ErrInvalidTransactionAmount, reason)
	}
	return nil
}

// ValidateRatio rejects ratios that are not positive, are finer than Scale or
// are at or above MaxValue.
func ValidateRatio(ratio decimal.Decimal) error {
	if reason := checkBounded(ratio); reason != "" {
		return fmt.Errorf("%w: %s", ErrInvalidRatio, reason)
	}
	return nil
}

// ValidateBalance rejects balances the store cannot hold.
func ValidateBalance(balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("%w: balance %s", ErrInsufficientBalance, balance)
	}
	if !balance.LessThan(MaxValue) {
		return fmt.Errorf("%w: balance would reach %s", ErrInvalidTransactionAmount, balance)
	}
	return nil
}

// checkBounded looks at coefficient size and exponent before any Cmp, Round or
// String call: all three rescale, and rescaling 1e80000000 allocates a
// 10^80000000 integer. The reason never formats v.
func checkBounded(v decimal.Decimal) string {
	if v.Sign() <= 0 {
		return "must be positive"
	}
	if v.Coefficient().BitLen() > maxCoefficientBits {
		return "too many digits"
	}
	exp := int64(v.Exponent())
	if int64(v.NumDigits())+exp > MaxIntegerDigits {
		return fmt.Sprintf("must be below 1e%d", MaxIntegerDigits)
	}
	if exp < -Scale {
		// a 128-bit coefficient has fewer than 40 trailing zeros
		if exp < -(Scale+40) || !v.Equal(v.Round(Scale)) {
			return fmt.Sprintf("more than %d fractional digits", Scale)
		}
	}
	return ""
}
