package funding

import "github.com/shopspring/decimal"

// MovementRequest captures a manual deposit or withdrawal.
type MovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// MovementResponse represents the API response for deposits and withdrawals.
type MovementResponse struct {
	TransactionID string          `json:"transaction_id"`
	WalletID      string          `json:"wallet_id"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	CompletedAt   string          `json:"completed_at"`
}
