package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/trogers1052/form4-tracker/internal/aggregate"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/service"
)

// Form4API answers insider activity queries
type Form4API interface {
	Company(ctx context.Context, q service.CompanyQuery) (*models.Form4Response, error)
	Summary(ctx context.Context, ticker string, days int) (*models.Form4Summary, error)
	Market(ctx context.Context, q service.MarketQuery) (*models.MarketForm4Response, error)
	History(ctx context.Context, ticker string, days, limit int) ([]models.TransactionRecord, error)
	Lookup(ctx context.Context, ticker string) (edgar.TickerInfo, error)
	InvalidateCache(ctx context.Context, subject string) error
}

// JobAPI creates and polls sync jobs
type JobAPI interface {
	Create(ctx context.Context, userID, ticker string, params models.SyncJobParams) (*models.SyncJob, error)
	Get(ctx context.Context, id string) (*models.SyncJob, error)
}

// WatchlistAPI manages watchlists
type WatchlistAPI interface {
	List(ctx context.Context, userID string) ([]*models.WatchlistItem, error)
	Add(ctx context.Context, userID, ticker string) (*models.WatchlistItem, error)
	Remove(ctx context.Context, userID, ticker string) error
	Activity(ctx context.Context, userID string, days int) (*models.WatchlistActivity, error)
}

// AuthAPI issues and verifies API keys
type AuthAPI interface {
	Register(ctx context.Context, email string) (*models.User, string, error)
	Authenticate(ctx context.Context, key string) (*models.User, error)
	RotateAPIKey(ctx context.Context, userID string) (string, error)
}

// HealthChecker is a dependency probed by the health endpoint
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f HealthCheckFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Services groups the dependencies of a Handler
type Services struct {
	Form4     Form4API
	Jobs      JobAPI
	Watchlist WatchlistAPI
	Auth      AuthAPI
	Checks    map[string]HealthChecker
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	form4     Form4API
	jobs      JobAPI
	watchlist WatchlistAPI
	auth      AuthAPI
	checks    map[string]HealthChecker
	now       func() time.Time
}

// NewHandler creates a new Handler
func NewHandler(s Services) *Handler {
	return &Handler{
		form4:     s.Form4,
		jobs:      s.Jobs,
		watchlist: s.Watchlist,
		auth:      s.Auth,
		checks:    s.Checks,
		now:       time.Now,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, checker := range h.checks {
		if err := checker.Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

// GetCompany handles GET /form4/{ticker}
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.CompanyQuery{Ticker: mux.Vars(r)["ticker"]}

	var err error
	if query.Count, err = queryInt(q, "count"); err != nil {
		respondError(w, err)
		return
	}
	if query.Days, err = queryInt(q, "days"); err != nil {
		respondError(w, err)
		return
	}
	if query.HidePlanned, err = queryBool(q, "hide_planned"); err != nil {
		respondError(w, err)
		return
	}
	if query.Refresh, err = queryBool(q, "refresh"); err != nil {
		respondError(w, err)
		return
	}
	if query.Range, err = queryDateRange(q, h.now()); err != nil {
		respondError(w, err)
		return
	}

	resp, err := h.form4.Company(r.Context(), query)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetSummary handles GET /form4/{ticker}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r.URL.Query(), "days")
	if err != nil {
		respondError(w, err)
		return
	}

	summary, err := h.form4.Summary(r.Context(), mux.Vars(r)["ticker"], days)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetHistory handles GET /form4/{ticker}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := queryInt(q, "days")
	if err != nil {
		respondError(w, err)
		return
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		respondError(w, err)
		return
	}

	records, err := h.form4.History(r.Context(), mux.Vars(r)["ticker"], days, limit)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":       mux.Vars(r)["ticker"],
		"transactions": records,
		"count":        len(records),
	})
}

// GetMarket handles GET /form4
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	query, err := parseMarketQuery(r.URL.Query(), h.now())
	if err != nil {
		respondError(w, err)
		return
	}

	resp, err := h.form4.Market(r.Context(), query)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Lookup handles GET /lookup/{ticker}
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	info, err := h.form4.Lookup(r.Context(), mux.Vars(r)["ticker"])
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

// RefreshCache handles POST /admin/cache/{key}/refresh
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := h.form4.InvalidateCache(r.Context(), key); err != nil {
		respondError(w, err)
		return
	}

	log.Printf("Cache for %s invalidated by admin request", key)
	respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "key": key})
}

func parseMarketQuery(q url.Values, now time.Time) (service.MarketQuery, error) {
	var query service.MarketQuery
	var err error
	if query.Count, err = queryInt(q, "count"); err != nil {
		return query, err
	}
	if query.Days, err = queryInt(q, "days"); err != nil {
		return query, err
	}
	if query.HidePlanned, err = queryBool(q, "hide_planned"); err != nil {
		return query, err
	}
	if query.Refresh, err = queryBool(q, "refresh"); err != nil {
		return query, err
	}
	if query.Range, err = queryDateRange(q, now); err != nil {
		return query, err
	}
	if query.MinAmount, err = queryAmount(q, "min_amount"); err != nil {
		return query, err
	}
	if query.MaxAmount, err = queryAmount(q, "max_amount"); err != nil {
		return query, err
	}
	if query.MinBuy, err = queryAmount(q, "min_buy"); err != nil {
		return query, err
	}
	if query.MinSell, err = queryAmount(q, "min_sell"); err != nil {
		return query, err
	}

	query.SortBy = aggregate.SortBy(first(q, "sort"))
	active, err := queryBool(q, "active")
	if err != nil {
		return query, err
	}
	if active {
		query.SortBy = aggregate.SortByNet
	}
	return query, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
