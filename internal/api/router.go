/**
 * @description
 * This file sets up the HTTP router for the payout-service. Route paths and
 * the permissive CORS policy are fixed by the existing client application.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PayoutRoutes creates and returns the router for the payout service.
func PayoutRoutes(h *PayoutHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Idempotency-Key"},
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/check-user", h.CheckUserHandler)
	r.Post("/payout-history", h.PayoutHistoryHandler)
	r.Post("/create-contact", h.CreateContactHandler)
	r.Post("/create-fund-account", h.CreateFundAccountHandler)
	r.Post("/start-process", h.StartProcessHandler)
	r.Post("/create-payout", h.CreatePayoutHandler)
	r.Get("/adjust-amount", h.AdjustAmountHandler)
	r.Get("/exchange-rate", h.ExchangeRateHandler)
	r.Post("/start-payctf-process", h.StartPayctfHandler)

	return r
}
