package currency

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/apierr"
	"github.com/congo-pay/walletledger/internal/ledger"
)

// Handler exposes currency directory endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a currency HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Ratio decimal.Decimal `json:"ratio"`
}

type ratioRequest struct {
	Ratio decimal.Decimal `json:"ratio"`
}

type currencyResponse struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Ratio         decimal.Decimal `json:"ratio"`
	ModifiedOnUTC time.Time       `json:"modified_on_utc"`
}

func toResponse(c ledger.Currency) currencyResponse {
	return currencyResponse{
		ID:            c.ID.String(),
		Code:          c.Code,
		Name:          c.Name,
		Ratio:         c.Ratio,
		ModifiedOnUTC: c.ModifiedOnUTC,
	}
}

// Create registers a new currency.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	cur, err := h.service.Create(c.UserContext(), CreateInput{Code: req.Code, Name: req.Name, Ratio: req.Ratio})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(cur))
}

// UpdateRatio changes the ratio of an existing currency.
func (h *Handler) UpdateRatio(c *fiber.Ctx) error {
	id, err := ledger.ParseCurrencyID(c.Params("currencyId"))
	if err != nil {
		return apierr.From(err)
	}
	var req ratioRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	cur, err := h.service.UpdateRatio(c.UserContext(), id, req.Ratio)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(cur))
}

// Get returns a single currency.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := ledger.ParseCurrencyID(c.Params("currencyId"))
	if err != nil {
		return apierr.From(err)
	}
	cur, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(cur))
}

// List returns every currency, ordered by code.
func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext())
	if err != nil {
		return apierr.From(err)
	}
	out := make([]currencyResponse, 0, len(list))
	for _, cur := range list {
		out = append(out, toResponse(cur))
	}
	return c.Status(http.StatusOK).JSON(out)
}
