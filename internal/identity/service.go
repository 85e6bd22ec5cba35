package identity

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"
    "unicode/utf8"

    "golang.org/x/crypto/bcrypt"

    "github.com/congo-pay/walletledger/internal/ledger"
)

const (
    minUsernameLen = 3
    maxUsernameLen = 50
    minPasswordLen = 8
)

var (
    ErrUserExists         = errors.New("user already exists")
    ErrUserNotFound       = errors.New("user not found")
    ErrInvalidCredentials = errors.New("invalid username or password")
    ErrWeakCredentials    = errors.New("username must be 3-50 characters and password at least 8")
)

// Service manages identity lifecycle.
type Service struct {
    repo          Repository
    adminUsername string
    logger        *slog.Logger
}

// NewService creates a new identity service. A user registering as adminUsername gets the admin role.
func NewService(repo Repository, adminUsername string, logger *slog.Logger) *Service {
    return &Service{repo: repo, adminUsername: adminUsername, logger: logger}
}

// Register creates a user and stores a bcrypt hash of the password.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
    username := strings.TrimSpace(creds.Username)
    n := utf8.RuneCountInString(username)
    if n < minUsernameLen || n > maxUsernameLen || len(creds.Password) < minPasswordLen {
        return User{}, ErrWeakCredentials
    }

    hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
    if err != nil {
        return User{}, fmt.Errorf("hash password: %w", err)
    }

    role := RoleUser
    if s.adminUsername != "" && username == s.adminUsername {
        role = RoleAdmin
    }

    user := User{
        ID:           ledger.NewUserID(),
        Username:     username,
        PasswordHash: hash,
        Role:         role,
        CreatedAt:    time.Now().UTC(),
    }

    if err := s.repo.Create(ctx, user); err != nil {
        return User{}, err
    }

    s.logger.Info("user registered", slog.String("user_id", user.ID.String()), slog.String("role", role))
    return user, nil
}

// Authenticate verifies credentials. Unknown users and wrong passwords are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
    user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(creds.Username))
    if errors.Is(err, ErrUserNotFound) {
        return User{}, ErrInvalidCredentials
    }
    if err != nil {
        return User{}, err
    }

    if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
        return User{}, ErrInvalidCredentials
    }

    now := time.Now().UTC()
    if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
        s.logger.Warn("record last login failed", slog.String("user_id", user.ID.String()), slog.Any("error", err))
    } else {
        user.LastLogin = &now
    }
    return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id ledger.UserID) (User, error) {
    return s.repo.FindByID(ctx, id)
}
