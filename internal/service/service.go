// Package service holds the use cases behind the REST API and the CLI:
// company and market insider activity, async sync jobs, watchlists and API
// key accounts.
package service

import (
	"context"
	"errors"

	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

var (
	// ErrInvalidInput is returned for request values that fail validation
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidAPIKey is returned when an API key matches no active user
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrNoHistory is returned when no transaction repository is configured
	ErrNoHistory = errors.New("transaction history is not available")
)

// TransactionSource serves a subject's transactions through the sync engine
type TransactionSource interface {
	GetTransactions(ctx context.Context, req syncer.Request) (*syncer.Result, error)
	Refresh(ctx context.Context, req syncer.Request) (*syncer.Result, error)
}

// TickerLookup resolves tickers against the SEC issuer directory
type TickerLookup interface {
	LookupTicker(ctx context.Context, ticker string) (edgar.TickerInfo, error)
}

// CacheInvalidator drops cached snapshots
type CacheInvalidator interface {
	Delete(ctx context.Context, key string) error
}

// TransactionRepository persists transactions collected by sync jobs
type TransactionRepository interface {
	CreateTransactions(records []models.TransactionRecord) (int, error)
	GetTransactionsByTicker(ticker string, since models.Date, limit int) ([]models.TransactionRecord, error)
}

// JobRepository persists sync jobs
type JobRepository interface {
	CreateJob(j *models.SyncJob) error
	GetJob(id string) (*models.SyncJob, error)
	MarkJobProcessing(id string) (bool, error)
	UpdateJobProgress(id string, progress int, message string) error
	CompleteJob(id string, result models.SyncJobResult, message string) error
	FailJob(id string, errMsg string) error
}

// WatchlistRepository persists user watchlists
type WatchlistRepository interface {
	AddWatchlistItem(item *models.WatchlistItem) error
	GetWatchlist(userID string) ([]*models.WatchlistItem, error)
	RemoveWatchlistItem(userID, ticker string) error
}

// UserRepository persists API accounts
type UserRepository interface {
	CreateUser(u *models.User) error
	GetUserByID(id string) (*models.User, error)
	GetUserByAPIKeyHash(hash string) (*models.User, error)
	UpdateUserAPIKeyHash(id, hash string) error
}

// EventPublisher announces queued jobs and finished syncs
type EventPublisher interface {
	PublishJobQueued(ctx context.Context, job *models.SyncJob) error
	PublishSyncCompleted(ctx context.Context, jobID, subject string, result models.SyncJobResult) error
}
