package identity

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/congo-pay/walletledger/internal/ledger"
)

type memoryRepository struct {
    mu    sync.RWMutex
    users map[ledger.UserID]User
}

// NewMemoryRepository builds an in-memory user store for testing.
func NewMemoryRepository() Repository {
    return &memoryRepository{users: make(map[ledger.UserID]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    for _, existing := range r.users {
        if existing.Username == user.Username {
            return fmt.Errorf("user %q: %w", user.Username, ErrUserExists)
        }
    }
    r.users[user.ID] = user
    return nil
}

func (r *memoryRepository) FindByUsername(_ context.Context, username string) (User, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    for _, user := range r.users {
        if user.Username == username {
            return user, nil
        }
    }
    return User{}, ErrUserNotFound
}

func (r *memoryRepository) FindByID(_ context.Context, id ledger.UserID) (User, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    user, ok := r.users[id]
    if !ok {
        return User{}, ErrUserNotFound
    }
    return user, nil
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id ledger.UserID, version int) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    user, ok := r.users[id]
    if !ok {
        return ErrUserNotFound
    }
    user.TokenVersion = version
    r.users[id] = user
    return nil
}

func (r *memoryRepository) TouchLogin(_ context.Context, id ledger.UserID, at time.Time) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    user, ok := r.users[id]
    if !ok {
        return ErrUserNotFound
    }
    at = at.UTC()
    user.LastLogin = &at
    r.users[id] = user
    return nil
}
