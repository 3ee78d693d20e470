// internal/api/handler/payment_request.go
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/service"
	"wallet-engine/internal/util"
)

// PaymentRequestBody is what a merchant sends to ask a customer for a payment.
type PaymentRequestBody struct {
	CustomerIdentifier string          `json:"customer_identifier"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description"`
}

// PaymentRequestResponse describes a request awaiting the customer's approval.
type PaymentRequestResponse struct {
	TransactionID int64                    `json:"transaction_id"`
	Reference     string                   `json:"reference"`
	Status        domain.TransactionStatus `json:"status"`
	Amount        decimal.Decimal          `json:"amount"`
	Currency      string                   `json:"currency"`
}

// ApprovePaymentBody carries the customer's credentials for an approval.
// The idempotency key may also be sent as the Idempotency-Key header.
type ApprovePaymentBody struct {
	IdempotencyKey string `json:"idempotency_key"`
	Pin            string `json:"pin"`
}

// RequestPayment records a pending payment from a customer to the calling merchant.
// POST /payment-requests
func (h *TransactionHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var body PaymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondWithError(w, fmt.Errorf("malformed request body: %w", util.ErrInvalidInput))
		return
	}

	pending, err := h.service.RequestPayment(r.Context(), service.PaymentRequest{
		MerchantID:         actorID,
		CustomerIdentifier: strings.TrimSpace(body.CustomerIdentifier),
		Amount:             body.Amount,
		Description:        body.Description,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, PaymentRequestResponse{
		TransactionID: pending.ID,
		Reference:     pending.Reference,
		Status:        pending.Status,
		Amount:        pending.Amount,
		Currency:      pending.Currency,
	})
}

// ApprovePayment pays a pending request addressed to the caller.
// POST /payment-requests/{reference}/approve
func (h *TransactionHandler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var body ApprovePaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondWithError(w, fmt.Errorf("malformed request body: %w", util.ErrInvalidInput))
		return
	}
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.service.ApprovePayment(r.Context(), service.PaymentApproval{
		IdempotencyKey: body.IdempotencyKey,
		ActorID:        actorID,
		Reference:      chi.URLParam(r, "reference"),
		Pin:            body.Pin,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, res)
}
