package database

import (
	"database/sql"
	"fmt"

	"github.com/trogers1052/form4-tracker/internal/models"
)

// CreateTransactions inserts records, skipping any (accession_number, line)
// pair that is already stored. It returns the number of rows inserted.
func (db *DB) CreateTransactions(records []models.TransactionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO form4_transactions (
			accession_number, line, ticker, company_name, owner_name, role,
			transaction_type, is_planned, planned_reason, shares, price, amount,
			transaction_date, filing_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (accession_number, line) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		r.Normalize()
		result, err := stmt.Exec(
			r.AccessionNumber, r.Line, r.Ticker, nullString(r.CompanyName), r.OwnerName, nullString(r.Role),
			string(r.TransactionType), r.IsPlanned, nullString(r.PlannedReason), r.Shares, r.Price, r.Amount,
			r.TransactionDate, r.FilingDate,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s/%d: %w", r.AccessionNumber, r.Line, err)
		}
		rowsAffected, _ := result.RowsAffected()
		inserted += int(rowsAffected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// TransactionExists checks if a line of a filing is already stored
func (db *DB) TransactionExists(accession string, line int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM form4_transactions WHERE accession_number = $1 AND line = $2)`
	var exists bool
	if err := db.conn.QueryRow(query, accession, line).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// GetTransactionsByTicker retrieves stored transactions for a ticker, newest first
func (db *DB) GetTransactionsByTicker(ticker string, since models.Date, limit int) ([]models.TransactionRecord, error) {
	query := `
		SELECT accession_number, line, ticker, company_name, owner_name, role,
		       transaction_type, is_planned, planned_reason, shares, price, amount,
		       transaction_date, filing_date
		FROM form4_transactions
		WHERE ticker = $1 AND ($2::date IS NULL OR transaction_date >= $2)
		ORDER BY transaction_date DESC, accession_number DESC, line ASC
		LIMIT $3
	`
	rows, err := db.conn.Query(query, ticker, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var r models.TransactionRecord
		var companyName, role, plannedReason sql.NullString
		var txType string
		if err := rows.Scan(
			&r.AccessionNumber, &r.Line, &r.Ticker, &companyName, &r.OwnerName, &role,
			&txType, &r.IsPlanned, &plannedReason, &r.Shares, &r.Price, &r.Amount,
			&r.TransactionDate, &r.FilingDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		r.CompanyName = companyName.String
		r.Role = role.String
		r.PlannedReason = plannedReason.String
		r.TransactionType = models.TransactionType(txType)
		r.Normalize()
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountTransactionsByTicker returns how many lines are stored for a ticker
func (db *DB) CountTransactionsByTicker(ticker string) (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM form4_transactions WHERE ticker = $1`, ticker).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
