package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/auth"
	"github.com/congo-pay/walletledger/internal/ledger"
)

const (
	localUserID = "user_id"
	localRole   = "role"
)

// JWTAuth returns a middleware that validates JWT access tokens and checks token version.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])

		p, err := svc.Verify(c.UserContext(), tokenStr)
		if errors.Is(err, auth.ErrUnauthenticated) {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, "cannot verify token")
		}

		c.Locals(localUserID, p.UserID)
		c.Locals(localRole, p.Role)
		return c.Next()
	}
}

// CallerID returns the authenticated user set by JWTAuth.
func CallerID(c *fiber.Ctx) (ledger.UserID, error) {
	id, ok := c.Locals(localUserID).(ledger.UserID)
	if !ok || id.IsZero() {
		return ledger.UserID{}, fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	return id, nil
}

// RequireAdmin rejects callers without the admin role. It must run after JWTAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals(localRole).(string); role != "admin" {
			return fiber.NewError(http.StatusForbidden, "admin role required")
		}
		return c.Next()
	}
}
