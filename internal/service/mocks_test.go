package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/form4-tracker/internal/database"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

// MockEngine implements TransactionSource with canned results per subject
type MockEngine struct {
	mu      sync.Mutex
	results map[string]*syncer.Result
	errs    map[string]error

	// Track method calls for verification
	Requests     []syncer.Request
	RefreshCalls int
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		results: make(map[string]*syncer.Result),
		errs:    make(map[string]error),
	}
}

func (m *MockEngine) SetResult(subject string, mode string, records ...models.TransactionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[subject] = &syncer.Result{Transactions: records, Mode: mode, NewCount: len(records)}
}

func (m *MockEngine) SetError(subject string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[subject] = err
}

func (m *MockEngine) GetTransactions(_ context.Context, req syncer.Request) (*syncer.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if err, ok := m.errs[req.Subject]; ok {
		return nil, err
	}
	if r, ok := m.results[req.Subject]; ok {
		copied := *r
		copied.Transactions = append([]models.TransactionRecord(nil), r.Transactions...)
		return &copied, nil
	}
	return &syncer.Result{Mode: syncer.ModeFull}, nil
}

func (m *MockEngine) Refresh(ctx context.Context, req syncer.Request) (*syncer.Result, error) {
	m.mu.Lock()
	m.RefreshCalls++
	m.mu.Unlock()
	req.Force = true
	return m.GetTransactions(ctx, req)
}

func (m *MockEngine) LastRequest() syncer.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Requests[len(m.Requests)-1]
}

// MockLookup implements TickerLookup over a fixed directory
type MockLookup struct {
	tickers map[string]edgar.TickerInfo
}

func NewMockLookup() *MockLookup {
	return &MockLookup{tickers: map[string]edgar.TickerInfo{
		"AAPL": {Ticker: "AAPL", CIK: "0000320193", Title: "Apple Inc."},
		"MSFT": {Ticker: "MSFT", CIK: "0000789019", Title: "MICROSOFT CORP"},
		"NVDA": {Ticker: "NVDA", CIK: "0001045810", Title: "NVIDIA CORP"},
	}}
}

func (m *MockLookup) LookupTicker(_ context.Context, ticker string) (edgar.TickerInfo, error) {
	info, ok := m.tickers[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return edgar.TickerInfo{}, fmt.Errorf("%s: %w", ticker, edgar.ErrUnknownTicker)
	}
	return info, nil
}

// MockRepository implements every repository interface in memory
type MockRepository struct {
	mu           sync.Mutex
	jobs         map[string]*models.SyncJob
	transactions map[string]models.TransactionRecord
	watchlists   map[string]map[string]*models.WatchlistItem
	users        map[string]*models.User

	failCreateTransactions error
	failGetJob             error

	// Track method calls for verification
	CreateJobCalls          int
	MarkProcessingCalls     int
	CompleteJobCalls        int
	FailJobCalls            int
	CreateTransactionsCalls int
	LastSince               models.Date
	LastLimit               int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		jobs:         make(map[string]*models.SyncJob),
		transactions: make(map[string]models.TransactionRecord),
		watchlists:   make(map[string]map[string]*models.WatchlistItem),
		users:        make(map[string]*models.User),
	}
}

func (m *MockRepository) CreateJob(j *models.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateJobCalls++
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.CreatedAt = time.Now()
	copied := *j
	m.jobs[j.ID] = &copied
	return nil
}

func (m *MockRepository) GetJob(id string) (*models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGetJob != nil {
		return nil, m.failGetJob
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	copied := *j
	return &copied, nil
}

func (m *MockRepository) MarkJobProcessing(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkProcessingCalls++
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusQueued {
		return false, nil
	}
	j.Status = models.JobStatusProcessing
	j.Progress = 10
	return true, nil
}

func (m *MockRepository) UpdateJobProgress(id string, progress int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Progress = progress
		j.Message = message
	}
	return nil
}

func (m *MockRepository) CompleteJob(id string, result models.SyncJobResult, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteJobCalls++
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	j.Status = models.JobStatusComplete
	j.Progress = 100
	j.Message = message
	j.Result = []byte(fmt.Sprintf(`{"transactions":%d,"new_transactions":%d,"stored":%d,"mode":%q}`,
		result.Transactions, result.NewTransactions, result.Stored, result.Mode))
	return nil
}

func (m *MockRepository) FailJob(id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailJobCalls++
	if j, ok := m.jobs[id]; ok {
		j.Status = models.JobStatusFailed
		j.Error = errMsg
	}
	return nil
}

func (m *MockRepository) CreateTransactions(records []models.TransactionRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateTransactionsCalls++
	if m.failCreateTransactions != nil {
		return 0, m.failCreateTransactions
	}
	inserted := 0
	for _, r := range records {
		key := fmt.Sprintf("%s#%d", r.AccessionNumber, r.Line)
		if _, exists := m.transactions[key]; exists {
			continue
		}
		m.transactions[key] = r
		inserted++
	}
	return inserted, nil
}

func (m *MockRepository) GetTransactionsByTicker(ticker string, since models.Date, limit int) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastSince = since
	m.LastLimit = limit
	var out []models.TransactionRecord
	for _, r := range m.transactions {
		if r.Ticker == ticker && (since.IsZero() || !r.TransactionDate.Before(since)) {
			out = append(out, r)
		}
	}
	models.SortTransactions(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) AddWatchlistItem(item *models.WatchlistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchlists[item.UserID] == nil {
		m.watchlists[item.UserID] = make(map[string]*models.WatchlistItem)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.AddedAt = time.Now()
	copied := *item
	m.watchlists[item.UserID][item.Ticker] = &copied
	return nil
}

func (m *MockRepository) GetWatchlist(userID string) ([]*models.WatchlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*models.WatchlistItem
	for _, item := range m.watchlists[userID] {
		copied := *item
		items = append(items, &copied)
	}
	sortItems(items)
	return items, nil
}

func (m *MockRepository) RemoveWatchlistItem(userID, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watchlists[userID][ticker]; !ok {
		return fmt.Errorf("watchlist item %s: %w", ticker, database.ErrNotFound)
	}
	delete(m.watchlists[userID], ticker)
	return nil
}

func (m *MockRepository) CreateUser(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user %s: %w", u.Email, database.ErrDuplicate)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *MockRepository) GetUserByID(id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", database.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (m *MockRepository) GetUserByAPIKeyHash(hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.APIKeyHash == hash && u.IsActive {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user: %w", database.ErrNotFound)
}

func (m *MockRepository) UpdateUserAPIKeyHash(id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, database.ErrNotFound)
	}
	u.APIKeyHash = hash
	return nil
}

func (m *MockRepository) Job(id string) *models.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *m.jobs[id]
	return &copied
}

func sortItems(items []*models.WatchlistItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Ticker < items[j-1].Ticker; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// MockPublisher implements EventPublisher
type MockPublisher struct {
	mu        sync.Mutex
	queueErr  error
	Queued    []string
	Completed []models.SyncJobResult
}

func (m *MockPublisher) PublishJobQueued(_ context.Context, job *models.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueErr != nil {
		return m.queueErr
	}
	m.Queued = append(m.Queued, job.ID)
	return nil
}

func (m *MockPublisher) PublishSyncCompleted(_ context.Context, _ string, _ string, result models.SyncJobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, result)
	return nil
}

// MockInvalidator implements CacheInvalidator
type MockInvalidator struct {
	Deleted []string
}

func (m *MockInvalidator) Delete(_ context.Context, key string) error {
	m.Deleted = append(m.Deleted, key)
	return nil
}

// Helper function to create a transaction for testing
func createTestTransaction(accession string, line int, ticker, owner string, txType models.TransactionType, shares, price int64, date models.Date) models.TransactionRecord {
	r := models.NewTransactionRecord(accession, txType, decimal.NewFromInt(shares), decimal.NewFromInt(price))
	r.Line = line
	r.Ticker = ticker
	r.CompanyName = ticker + " Inc."
	r.OwnerName = owner
	r.Role = "Director"
	r.TransactionDate = date
	r.FilingDate = date.AddDays(2)
	return r
}
