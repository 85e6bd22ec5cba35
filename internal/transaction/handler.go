package transaction

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/apierr"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
)

// OwnershipChecker resolves a wallet for its owner.
type OwnershipChecker interface {
	GetOwned(ctx context.Context, id ledger.WalletID, owner ledger.UserID) (ledger.Wallet, error)
}

// Handler exposes wallet history.
type Handler struct {
	recorder *Recorder
	wallets  OwnershipChecker
}

// NewHandler constructs a history handler.
func NewHandler(recorder *Recorder, wallets OwnershipChecker) *Handler {
	return &Handler{recorder: recorder, wallets: wallets}
}

// History lists the caller's wallet transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	owner, err := middleware.CallerID(c)
	if err != nil {
		return err
	}
	id, err := ledger.ParseWalletID(c.Params("walletId"))
	if err != nil {
		return apierr.From(err)
	}
	if _, err := h.wallets.GetOwned(c.UserContext(), id, owner); err != nil {
		return apierr.From(err)
	}
	items, err := h.recorder.History(c.UserContext(), id)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": id.String(), "transactions": items})
}
