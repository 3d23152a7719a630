package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// AddWatchlistItem adds a ticker to a user's watchlist. Adding a ticker that is
// already present refreshes its company details.
func (db *DB) AddWatchlistItem(item *models.WatchlistItem) error {
	item.Ticker = strings.ToUpper(item.Ticker)
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	query := `
		INSERT INTO user_watchlists (id, user_id, ticker, cik, company_name, added_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, ticker) DO UPDATE SET
			cik = EXCLUDED.cik,
			company_name = EXCLUDED.company_name
		RETURNING id, added_at
	`
	err := db.conn.QueryRow(query,
		item.ID, item.UserID, item.Ticker, nullString(item.CIK), nullString(item.CompanyName),
	).Scan(&item.ID, &item.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to add watchlist item: %w", err)
	}
	return nil
}

// GetWatchlist retrieves a user's watchlist ordered by ticker
func (db *DB) GetWatchlist(userID string) ([]*models.WatchlistItem, error) {
	query := `
		SELECT id, user_id, ticker, cik, company_name, added_at
		FROM user_watchlists
		WHERE user_id = $1
		ORDER BY ticker
	`
	rows, err := db.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var items []*models.WatchlistItem
	for rows.Next() {
		var item models.WatchlistItem
		var cik, companyName sql.NullString
		if err := rows.Scan(&item.ID, &item.UserID, &item.Ticker, &cik, &companyName, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		item.CIK = cik.String
		item.CompanyName = companyName.String
		items = append(items, &item)
	}
	return items, rows.Err()
}

// RemoveWatchlistItem removes a ticker from a user's watchlist
func (db *DB) RemoveWatchlistItem(userID, ticker string) error {
	query := `DELETE FROM user_watchlists WHERE user_id = $1 AND ticker = $2`
	result, err := db.conn.Exec(query, userID, strings.ToUpper(ticker))
	if err != nil {
		return fmt.Errorf("failed to remove watchlist item: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("watchlist item %s: %w", ticker, ErrNotFound)
	}
	return nil
}
