package auth

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/golang-jwt/jwt/v5"

    "github.com/congo-pay/walletledger/internal/identity"
    "github.com/congo-pay/walletledger/internal/ledger"
)

// ErrUnauthenticated covers every token that cannot be trusted: malformed,
// badly signed, expired or revoked by logout.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims are the JWT claims carried by an access token.
type Claims struct {
    jwt.RegisteredClaims
    Role         string `json:"role"`
    TokenVersion int    `json:"ver"`
}

// Principal is the verified caller behind a token.
type Principal struct {
    UserID ledger.UserID
    Role   string
}

// IsAdmin reports whether the caller may run directory and wallet administration.
func (p Principal) IsAdmin() bool { return p.Role == identity.RoleAdmin }

// Token is a signed access token.
type Token struct {
    AccessToken string
    ExpiresAt   time.Time
}

type Service struct {
    secret []byte
    ttl    time.Duration
    idRepo identity.Repository
    now    func() time.Time
}

func NewService(secret string, ttl time.Duration, idRepo identity.Repository) *Service {
    return &Service{secret: []byte(secret), ttl: ttl, idRepo: idRepo, now: time.Now}
}

// Issue signs an HS256 access token for the user.
func (s *Service) Issue(user identity.User) (Token, error) {
    now := s.now()
    exp := now.Add(s.ttl)
    claims := Claims{
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   user.ID.String(),
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
        Role:         user.Role,
        TokenVersion: user.TokenVersion,
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
    if err != nil {
        return Token{}, fmt.Errorf("sign token: %w", err)
    }
    return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify parses the token, checks signature and expiry, and rejects tokens
// whose version predates the user's last logout.
func (s *Service) Verify(ctx context.Context, raw string) (Principal, error) {
    var claims Claims
    _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
        return s.secret, nil
    },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
        jwt.WithIssuedAt(),
        jwt.WithTimeFunc(s.now),
    )
    if err != nil {
        return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
    }

    userID, err := ledger.ParseUserID(claims.Subject)
    if err != nil {
        return Principal{}, fmt.Errorf("%w: subject: %w", ErrUnauthenticated, err)
    }

    user, err := s.idRepo.FindByID(ctx, userID)
    if errors.Is(err, identity.ErrUserNotFound) {
        return Principal{}, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
    }
    if err != nil {
        return Principal{}, err
    }
    if user.TokenVersion != claims.TokenVersion {
        return Principal{}, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
    }
    return Principal{UserID: user.ID, Role: user.Role}, nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID ledger.UserID) error {
    user, err := s.idRepo.FindByID(ctx, userID)
    if err != nil {
        return err
    }
    return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}
