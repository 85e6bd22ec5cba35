package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites a wallet balance in the in-memory store
// without recording a transaction.
func SeedBalance(s Store, id WalletID, amount decimal.Decimal) {
    if mem, ok := s.(*MemoryStore); ok {
        mem.mu.Lock()
        defer mem.mu.Unlock()
        if w, exists := mem.state.wallets[id]; exists {
            w.Balance = amount
            mem.state.wallets[id] = w
        }
    }
}

// FailNextRollback is a test helper that makes the next aborted unit of work on the
// in-memory store report err as its rollback failure.
func FailNextRollback(s Store, err error) {
    if mem, ok := s.(*MemoryStore); ok {
        mem.mu.Lock()
        defer mem.mu.Unlock()
        mem.rollbackErr = err
    }
}
