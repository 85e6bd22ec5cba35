package identity

import (
    "time"

    "github.com/congo-pay/walletledger/internal/ledger"
)

const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// User is an account that owns wallets.
type User struct {
    ID           ledger.UserID
    Username     string
    PasswordHash []byte
    Role         string
    TokenVersion int
    CreatedAt    time.Time
    LastLogin    *time.Time
}

// Credentials request structure.
type Credentials struct {
    Username string
    Password string
}
