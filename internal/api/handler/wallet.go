// internal/api/handler/wallet.go
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"wallet-engine/internal/api/types"
	"wallet-engine/internal/service"
)

const maxPageSize = 100

// WalletHandler handles HTTP requests about the caller's own wallet.
type WalletHandler struct {
	responder
	service service.TransactionService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(svc service.TransactionService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		responder: responder{logger: logger},
		service:   svc,
	}
}

// GetWallet handles the get wallet request.
// GET /wallets/me
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), actorID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_id": wallet.ID,
		"balance":   wallet.Balance.StringFixed(2),
		"currency":  wallet.Currency,
		"is_active": wallet.IsActive,
	})
}

// GetTransactionHistory handles the get transaction history request.
// GET /wallets/me/transactions
func (h *WalletHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	// Parse query parameters for pagination
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10 // Default limit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0 // Default offset
	}

	transactions, total, err := h.service.GetTransactionHistory(r.Context(), actorID, limit, offset)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.NewPage(transactions, limit, offset, total))
}

// GetLimits reports usage of the caller's daily and monthly caps.
// GET /wallets/me/limits
func (h *WalletHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	usage, err := h.service.GetLimitUsage(r.Context(), actorID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, usage)
}
