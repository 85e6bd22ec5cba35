package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/walletledger/internal/currency"
)

// RegisterCurrencyRoutes wires the currency directory. Writes are admin only.
func RegisterCurrencyRoutes(r fiber.Router, h *currency.Handler, admin fiber.Handler) {
    r.Get("/currencies", h.List)
    r.Get("/currencies/:currencyId", h.Get)
    r.Post("/currencies", admin, h.Create)
    r.Put("/currencies/:currencyId/ratio", admin, h.UpdateRatio)
}
