// internal/api/handler/response.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"wallet-engine/internal/api/middleware"
	"wallet-engine/internal/util"
)

// DefaultTimeout bounds every request, lock waits included.
const DefaultTimeout = 30 * time.Second

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status    string         `json:"status"`
	ErrorKind util.ErrorKind `json:"error_kind"`
	Message   string         `json:"message"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind util.ErrorKind) int {
	switch kind {
	case util.KindInvalidInput:
		return http.StatusBadRequest
	case util.KindUnauthorized:
		return http.StatusUnauthorized
	case util.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case util.KindInvalidPin, util.KindInactiveActor, util.KindLimitExceeded:
		return http.StatusForbidden
	case util.KindDestinationNotFound, util.KindNotFound:
		return http.StatusNotFound
	case util.KindLockTimeout:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type responder struct {
	logger *slog.Logger
}

// respondWithJSON sends payload as JSON.
func (h responder) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError sends the FAILED body for err. Internal details are logged, not returned.
func (h responder) respondWithError(w http.ResponseWriter, err error) {
	kind := util.KindOf(err)
	message := err.Error()
	switch kind {
	case util.KindInternal, util.KindReferenceCollision:
		h.logger.Error("Unhandled service error", "error", err)
		message = "Internal server error"
	case util.KindLockTimeout:
		w.Header().Set("Retry-After", "1")
	case util.KindNotFound:
		message = "Resource not found"
	}

	h.respondWithJSON(w, statusFor(kind), ErrorResponse{
		Status:    "FAILED",
		ErrorKind: kind,
		Message:   message,
	})
}

// actorID returns the authenticated caller or writes a 401.
func (h responder) actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.ActorID(r.Context())
	if !ok {
		h.respondWithError(w, util.ErrUnauthorized)
	}
	return id, ok
}
