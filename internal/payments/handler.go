package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/apierr"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromWalletID string          `json:"from_wallet_id"`
	ToWalletID   string          `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
}

// Transfer moves funds between two wallets of the caller.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, err := middleware.CallerID(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	from, err := ledger.ParseWalletID(req.FromWalletID)
	if err != nil {
		return apierr.From(err)
	}
	to, err := ledger.ParseWalletID(req.ToWalletID)
	if err != nil {
		return apierr.From(err)
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		From:            from,
		To:              to,
		Amount:          req.Amount,
		Description:     req.Description,
		RequestorUserID: caller,
	})
	if err != nil {
		return apierr.From(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"state":               res.State,
		"source_leg_id":       res.SourceLeg.String(),
		"destination_leg_id":  res.DestinationLeg.String(),
		"amount":              req.Amount,
		"converted_amount":    res.ConvertedAmount,
		"source_balance":      res.SourceBalance,
		"destination_balance": res.DestBalance,
		"completed_at":        res.CompletedAt,
	})
}
