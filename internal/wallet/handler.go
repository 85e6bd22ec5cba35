package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/apierr"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	CurrencyID string `json:"currency_id"`
	Title      string `json:"title"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type walletResponse struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Title        string          `json:"title"`
	CurrencyID   string          `json:"currency_id"`
	Balance      decimal.Decimal `json:"balance"`
	Status       string          `json:"status"`
	CreatedOnUTC time.Time       `json:"created_on_utc"`
}

func toResponse(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:           w.ID.String(),
		OwnerID:      w.OwnerID.String(),
		Title:        w.Title,
		CurrencyID:   w.CurrencyID.String(),
		Balance:      w.Balance,
		Status:       w.Status.String(),
		CreatedOnUTC: w.CreatedOnUTC,
	}
}

// Create opens a wallet for the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	owner, err := middleware.CallerID(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	currencyID, err := ledger.ParseCurrencyID(req.CurrencyID)
	if err != nil {
		return apierr.From(err)
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{OwnerID: owner, CurrencyID: currencyID, Title: req.Title})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// ListMine returns the authenticated user's wallets.
func (h *Handler) ListMine(c *fiber.Ctx) error {
	owner, err := middleware.CallerID(c)
	if err != nil {
		return err
	}
	wallets, err := h.service.ListByOwner(c.UserContext(), owner)
	if err != nil {
		return apierr.From(err)
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toResponse(w))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Balance returns the wallet balance to its owner.
func (h *Handler) Balance(c *fiber.Ctx) error {
	w, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":   w.ID.String(),
		"currency_id": w.CurrencyID.String(),
		"balance":     w.Balance,
		"timestamp":   time.Now().UTC(),
	})
}

// ChangeTitle renames a wallet owned by the caller.
func (h *Handler) ChangeTitle(c *fiber.Ctx) error {
	w, err := h.owned(c)
	if err != nil {
		return err
	}
	var req titleRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	if err := h.service.ChangeTitle(c.UserContext(), w.ID, req.Title); err != nil {
		return apierr.From(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Suspend blocks a wallet. Admin only.
func (h *Handler) Suspend(c *fiber.Ctx) error {
	id, err := ledger.ParseWalletID(c.Params("walletId"))
	if err != nil {
		return apierr.From(err)
	}
	if err := h.service.Suspend(c.UserContext(), id); err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": id.String(), "status": ledger.WalletSuspended.String()})
}

// Activate re-enables a wallet. Admin only.
func (h *Handler) Activate(c *fiber.Ctx) error {
	id, err := ledger.ParseWalletID(c.Params("walletId"))
	if err != nil {
		return apierr.From(err)
	}
	if err := h.service.Activate(c.UserContext(), id); err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": id.String(), "status": ledger.WalletActive.String()})
}

func (h *Handler) owned(c *fiber.Ctx) (ledger.Wallet, error) {
	owner, err := middleware.CallerID(c)
	if err != nil {
		return ledger.Wallet{}, err
	}
	id, err := ledger.ParseWalletID(c.Params("walletId"))
	if err != nil {
		return ledger.Wallet{}, apierr.From(err)
	}
	w, err := h.service.GetOwned(c.UserContext(), id, owner)
	if err != nil {
		return ledger.Wallet{}, apierr.From(err)
	}
	return w, nil
}
