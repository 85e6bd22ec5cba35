package funding

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/apierr"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
)

// Handler exposes HTTP endpoints for manual deposits and withdrawals.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit credits a wallet owned by the caller.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.handle(c, h.service.Deposit)
}

// Withdraw debits a wallet owned by the caller.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.handle(c, h.service.Withdraw)
}

func (h *Handler) handle(c *fiber.Ctx, apply func(ctx context.Context, input MovementInput) (MovementResult, error)) error {
	caller, err := middleware.CallerID(c)
	if err != nil {
		return err
	}
	walletID, err := ledger.ParseWalletID(c.Params("walletId"))
	if err != nil {
		return apierr.From(err)
	}
	var req MovementRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}

	result, err := apply(c.UserContext(), MovementInput{
		WalletID:        walletID,
		Amount:          req.Amount,
		Description:     req.Description,
		RequestorUserID: caller,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result MovementResult) MovementResponse {
	return MovementResponse{
		TransactionID: result.Transaction.ID.String(),
		WalletID:      result.Transaction.WalletID.String(),
		Kind:          result.Transaction.Kind.String(),
		Amount:        result.Transaction.Amount,
		WalletBalance: result.WalletBalance,
		CompletedAt:   result.CompletedAt.Format(time.RFC3339Nano),
	}
}
