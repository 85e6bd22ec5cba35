package auth

import (
    "errors"
    "net/http"

    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/walletledger/internal/identity"
    "github.com/congo-pay/walletledger/internal/ledger"
)

// Handler exposes auth endpoints for login/logout.
type Handler struct {
    ids *identity.Service
    svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
    return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
    Username string `json:"username"`
    Password string `json:"password"`
}

type loginResponse struct {
    UserID      string `json:"user_id"`
    AccessToken string `json:"access_token"`
    ExpiresIn   int64  `json:"expires_in"`
    Role        string `json:"role"`
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
    var req loginRequest
    if err := c.BodyParser(&req); err != nil {
        return fiber.NewError(http.StatusBadRequest, err.Error())
    }
    user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Username: req.Username, Password: req.Password})
    if errors.Is(err, identity.ErrInvalidCredentials) {
        return fiber.NewError(http.StatusUnauthorized, err.Error())
    }
    if err != nil {
        return fiber.NewError(http.StatusInternalServerError, "login failed")
    }
    token, err := h.svc.Issue(user)
    if err != nil {
        return fiber.NewError(http.StatusInternalServerError, err.Error())
    }
    return c.Status(http.StatusOK).JSON(loginResponse{
        UserID:      user.ID.String(),
        AccessToken: token.AccessToken,
        ExpiresIn:   int64(h.svc.ttl.Seconds()),
        Role:        user.Role,
    })
}

// Logout invalidates existing tokens of the caller by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
    userID, ok := c.Locals("user_id").(ledger.UserID)
    if !ok {
        return fiber.NewError(http.StatusUnauthorized, "missing identity")
    }
    if err := h.svc.Logout(c.UserContext(), userID); err != nil {
        return fiber.NewError(http.StatusInternalServerError, err.Error())
    }
    return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
