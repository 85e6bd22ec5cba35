package wallet

import (
    "time"

    "github.com/shopspring/decimal"

    "github.com/congo-pay/walletledger/internal/ledger"
)

// Balance is a point-in-time view of a wallet's funds.
type Balance struct {
    WalletID   ledger.WalletID
    CurrencyID ledger.CurrencyID
    Amount     decimal.Decimal
    AsOf       time.Time
}

// CreateInput captures data required to open a wallet.
type CreateInput struct {
    OwnerID    ledger.UserID
    CurrencyID ledger.CurrencyID
    Title      string
}
