package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. limiter may be nil to disable rate
// limiting; an empty adminKey disables the admin routes.
func SetupRoutes(handler *Handler, limiter *RedisRateLimiter, adminKey string) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverMiddleware, loggingMiddleware)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(limiter.Middleware)

	// Form 4 routes
	api.HandleFunc("/form4", handler.GetMarket).Methods("GET")
	api.HandleFunc("/form4/{ticker}", handler.GetCompany).Methods("GET")
	api.HandleFunc("/form4/{ticker}/summary", handler.GetSummary).Methods("GET")
	api.HandleFunc("/form4/{ticker}/history", handler.GetHistory).Methods("GET")
	api.HandleFunc("/lookup/{ticker}", handler.Lookup).Methods("GET")

	// Account routes
	api.HandleFunc("/auth/register", handler.Register).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(handler.requireAPIKey)
	authed.HandleFunc("/auth/me", handler.Me).Methods("GET")
	authed.HandleFunc("/auth/api-key", handler.RotateAPIKey).Methods("POST")
	authed.HandleFunc("/watchlist", handler.GetWatchlist).Methods("GET")
	authed.HandleFunc("/watchlist", handler.AddWatchlistItem).Methods("POST")
	authed.HandleFunc("/watchlist/activity", handler.GetWatchlistActivity).Methods("GET")
	authed.HandleFunc("/watchlist/{ticker}", handler.RemoveWatchlistItem).Methods("DELETE")
	authed.HandleFunc("/jobs", handler.CreateJob).Methods("POST")
	authed.HandleFunc("/jobs/{id}", handler.GetJob).Methods("GET")

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(requireAdminKey(adminKey))
	admin.HandleFunc("/cache/{key}/refresh", handler.RefreshCache).Methods("POST")

	return r
}
