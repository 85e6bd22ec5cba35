package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Username: req.Username, Password: req.Password})
	switch {
	case errors.Is(err, ErrUserExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrWeakCredentials):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, "registration failed")
	}
	return c.Status(http.StatusCreated).JSON(userResponse{UserID: user.ID.String(), Username: user.Username, Role: user.Role})
}
