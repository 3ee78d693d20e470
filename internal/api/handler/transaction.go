// internal/api/handler/transaction.go
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/service"
	"wallet-engine/internal/util"
)

// TransactionHandler handles money movement requests.
type TransactionHandler struct {
	responder
	service service.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(svc service.TransactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		responder: responder{logger: logger},
		service:   svc,
	}
}

// CreateTransactionRequest represents the request body for a new transaction.
// The idempotency key may also be sent as the Idempotency-Key header.
type CreateTransactionRequest struct {
	IdempotencyKey        string                 `json:"idempotency_key"`
	Type                  domain.TransactionType `json:"type"`
	DestinationIdentifier string                 `json:"destination_identifier"`
	Amount                decimal.Decimal        `json:"amount"`
	Pin                   string                 `json:"pin"`
	Description           string                 `json:"description"`
}

// Create executes a transaction for the authenticated actor.
// POST /transactions
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, fmt.Errorf("malformed request body: %w", util.ErrInvalidInput))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.service.Execute(r.Context(), service.TransactionRequest{
		IdempotencyKey:        req.IdempotencyKey,
		Type:                  domain.TransactionType(strings.ToUpper(string(req.Type))),
		ActorID:               actorID,
		DestinationIdentifier: strings.TrimSpace(req.DestinationIdentifier),
		Amount:                req.Amount,
		Pin:                   req.Pin,
		Description:           req.Description,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, res)
}

// QuoteCharge returns the fee the caller would pay.
// GET /transactions/charge?transaction_type=TRANSFER&amount=100
func (h *TransactionHandler) QuoteCharge(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		h.respondWithError(w, fmt.Errorf("amount: %w", util.ErrInvalidInput))
		return
	}
	txType := domain.TransactionType(strings.ToUpper(r.URL.Query().Get("transaction_type")))

	quote, err := h.service.QuoteCharge(r.Context(), actorID, txType, amount)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, quote)
}

// GetByReference returns one transaction the caller took part in.
// GET /transactions/{reference}
func (h *TransactionHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	t, err := h.service.GetTransaction(r.Context(), actorID, chi.URLParam(r, "reference"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, t)
}
