package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/walletledger/internal/transaction"
    "github.com/congo-pay/walletledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, history *transaction.Handler, admin fiber.Handler) {
    r.Post("/wallets", h.Create)
    r.Get("/wallets", h.ListMine)
    r.Get("/wallets/:walletId/balance", h.Balance)
    r.Put("/wallets/:walletId/title", h.ChangeTitle)
    r.Get("/wallets/:walletId/transactions", history.History)
    r.Post("/wallets/:walletId/suspend", admin, h.Suspend)
    r.Post("/wallets/:walletId/activate", admin, h.Activate)
}
