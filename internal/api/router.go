// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wallet-engine/internal/api/handler"
	authmw "wallet-engine/internal/api/middleware"
)

// Handlers groups what the router serves.
type Handlers struct {
	Transactions *handler.TransactionHandler
	Wallets      *handler.WalletHandler
	Metrics      http.Handler // optional
}

// NewRouter sets up and returns a new HTTP router.
func NewRouter(h Handlers, jwtSecret []byte, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)                       // Add a request ID to the context
	r.Use(middleware.RealIP)                          // Use the real IP address
	r.Use(authmw.NewStructuredLogger(logger))         // Log HTTP requests
	r.Use(middleware.Recoverer)                       // Recover from panics and return 500
	r.Use(middleware.Timeout(handler.DefaultTimeout)) // Bound every request

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.Authenticate(jwtSecret))

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.Transactions.Create)
			r.Get("/charge", h.Transactions.QuoteCharge)
			r.Get("/{reference}", h.Transactions.GetByReference)
		})

		r.Route("/payment-requests", func(r chi.Router) {
			r.Post("/", h.Transactions.RequestPayment)
			r.Post("/{reference}/approve", h.Transactions.ApprovePayment)
		})

		r.Route("/wallets/me", func(r chi.Router) {
			r.Get("/", h.Wallets.GetWallet)
			r.Get("/transactions", h.Wallets.GetTransactionHistory)
			r.Get("/limits", h.Wallets.GetLimits)
		})
	})

	return r
}
