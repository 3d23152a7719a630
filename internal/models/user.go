package models

import "time"

// User is an API account identified by an API key
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	APIKeyHash string    `json:"-"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WatchlistItem is a ticker followed by a user
type WatchlistItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Ticker      string    `json:"ticker"`
	CIK         string    `json:"cik,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// WatchlistActivity is the insider activity across a user's watchlist
type WatchlistActivity struct {
	Days        int                 `json:"days"`
	Companies   []AggregatedSummary `json:"companies"`
	Failed      []string            `json:"failed,omitempty"`
	LastUpdated time.Time           `json:"last_updated"`
}
