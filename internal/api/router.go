/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their handlers and applies middleware for
 * logging, recovery, CORS and authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and returns the service router.
func NewRouter(h *Handlers, jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Exchange rates are public reference data.
	r.Route("/exchange-rates", func(r chi.Router) {
		r.Get("/latest", h.LatestRatesHandler)
		r.Get("/historical/{date}", h.HistoricalRatesHandler)
		r.Get("/timeseries", h.TimeSeriesRatesHandler)
		r.Get("/convert", h.ConvertHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret))

		r.Post("/transactions", h.CreateTransferHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Get("/transactions/{id}", h.GetTransactionHandler)
		r.Get("/bank-accounts", h.ListAccountsHandler)
		r.Get("/bank-accounts/{id}", h.GetAccountHandler)
		r.Get("/bank-accounts/{id}/transactions", h.ListAccountTransactionsHandler)
	})

	return r
}
