package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/trogers1052/form4-tracker/internal/database"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/service"
)

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, key, err := h.auth.Register(r.Context(), req.Email)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"user":    user,
		"api_key": key,
	})
}

// Me handles GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	respondJSON(w, http.StatusOK, user)
}

// RotateAPIKey handles POST /auth/api-key
func (h *Handler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	key, err := h.auth.RotateAPIKey(r.Context(), user.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"api_key": key})
}

// GetWatchlist handles GET /watchlist
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	items, err := h.watchlist.List(r.Context(), user.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, items)
}

// AddWatchlistItem handles POST /watchlist
func (h *Handler) AddWatchlistItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker string `json:"ticker"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		respondError(w, fmt.Errorf("%w: ticker is required", service.ErrInvalidInput))
		return
	}

	user, _ := UserFromContext(r.Context())
	item, err := h.watchlist.Add(r.Context(), user.ID, req.Ticker)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, item)
}

// RemoveWatchlistItem handles DELETE /watchlist/{ticker}
func (h *Handler) RemoveWatchlistItem(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if err := h.watchlist.Remove(r.Context(), user.ID, mux.Vars(r)["ticker"]); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetWatchlistActivity handles GET /watchlist/activity
func (h *Handler) GetWatchlistActivity(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r.URL.Query(), "days")
	if err != nil {
		respondError(w, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	activity, err := h.watchlist.Activity(r.Context(), user.ID, days)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, activity)
}

// CreateJob handles POST /jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker      string `json:"ticker"`
		Count       int    `json:"count"`
		Days        int    `json:"days"`
		HidePlanned bool   `json:"hide_planned"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		respondError(w, fmt.Errorf("%w: ticker is required", service.ErrInvalidInput))
		return
	}

	user, _ := UserFromContext(r.Context())
	job, err := h.jobs.Create(r.Context(), user.ID, req.Ticker, models.SyncJobParams{
		Count:       req.Count,
		Days:        req.Days,
		HidePlanned: req.HidePlanned,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": job.Status})
}

// GetJob handles GET /jobs/{id}. Users only see their own jobs.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	user, _ := UserFromContext(r.Context())
	if job.UserID != user.ID {
		respondError(w, fmt.Errorf("job %s: %w", id, database.ErrNotFound))
		return
	}

	respondJSON(w, http.StatusOK, job)
}
