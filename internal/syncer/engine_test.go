package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/form4-tracker/internal/cache"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// MockSource implements Source for testing
type MockSource struct {
	mu       sync.Mutex
	refs     []models.FilingRef
	filings  map[string][]models.TransactionRecord
	parseErr map[string]error
	listErr  error
	delay    time.Duration

	// Track method calls for verification
	ListCalls   int
	LastWindow  models.FilingWindow
	ParseCalls  int32
	inFlight    int32
	MaxInFlight int32
}

func NewMockSource() *MockSource {
	return &MockSource{
		filings:  make(map[string][]models.TransactionRecord),
		parseErr: make(map[string]error),
	}
}

// AddFiling registers a filing, newest first in listing order
func (m *MockSource) AddFiling(accession string, filed models.Date, records ...models.TransactionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = append([]models.FilingRef{{AccessionNumber: accession, FilingDate: filed}}, m.refs...)
	for i := range records {
		records[i].AccessionNumber = accession
		records[i].Line = i + 1
		records[i].FilingDate = filed
	}
	m.filings[accession] = records
}

func (m *MockSource) ListRecentFilingRefs(_ context.Context, _ string, window models.FilingWindow) ([]models.FilingRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	m.LastWindow = window
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.FilingRef
	for _, ref := range m.refs {
		if !window.Since.IsZero() && ref.FilingDate.Before(window.Since) {
			continue
		}
		out = append(out, ref)
		if window.Limit > 0 && len(out) >= window.Limit {
			break
		}
	}
	return out, nil
}

func (m *MockSource) ParseFiling(ctx context.Context, ref models.FilingRef) ([]models.TransactionRecord, error) {
	atomic.AddInt32(&m.ParseCalls, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&m.MaxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&m.MaxInFlight, peak, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.parseErr[ref.AccessionNumber]; err != nil {
		return nil, err
	}
	recs := m.filings[ref.AccessionNumber]
	out := make([]models.TransactionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func tx(owner string, txType models.TransactionType, date models.Date, planned bool) models.TransactionRecord {
	r := models.NewTransactionRecord("", txType, decimal.NewFromInt(100), decimal.NewFromInt(10))
	r.Ticker = "ACME"
	r.CompanyName = "Acme Corp"
	r.OwnerName = owner
	r.Role = "Director"
	r.TransactionDate = date
	r.IsPlanned = planned
	return r
}

type testEnv struct {
	source *MockSource
	store  *cache.Store
	engine *Engine
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		source: NewMockSource(),
		now:    time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	env.store = cache.NewStore(cache.NewMemoryBackend(), cache.WithClock(func() time.Time { return env.now }))
	env.engine = NewEngine(env.source, env.store, Config{Workers: 3, Buffer: 10, DefaultTarget: 30})
	env.engine.today = func() models.Date { return models.DateOf(env.now) }
	return env
}

func (e *testEnv) day(offset int) models.Date {
	return models.DateOf(e.now).AddDays(offset)
}

func TestGetTransactionsFullSync(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cache runs a full fetch and saves", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		env.source.AddFiling("F-2", env.day(-1), tx("Bob", models.TransactionTypeSell, env.day(-2), false))

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "acme", WindowDays: 30})
		require.NoError(t, err)
		assert.Equal(t, ModeFull, res.Mode)
		require.Len(t, res.Transactions, 2)
		assert.Equal(t, "Bob", res.Transactions[0].OwnerName, "newest first")
		assert.Equal(t, env.day(-30), env.source.LastWindow.Since)
		assert.Equal(t, 90, env.source.LastWindow.Limit)

		entry, err := env.store.Load(ctx, "ACME")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, 30, entry.SyncWindowDays)
		assert.Len(t, entry.Transactions, 2)
	})

	t.Run("second call is served from cache", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))

		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)
		calls := env.source.ListCalls

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)
		assert.Equal(t, ModeCache, res.Mode)
		assert.Equal(t, calls, env.source.ListCalls, "no network on a fresh cache hit")
		assert.Len(t, res.Transactions, 1)
	})

	t.Run("window mismatch forces a full fetch", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))

		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 90})
		require.NoError(t, err)
		assert.Equal(t, ModeFull, res.Mode)
	})

	t.Run("buffer floor applies to small targets", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 2})
		require.NoError(t, err)
		assert.Equal(t, 10, env.source.LastWindow.Limit)
		assert.True(t, env.source.LastWindow.Since.IsZero(), "no window means no lower bound")
	})

	t.Run("failed filings are skipped", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		env.source.AddFiling("F-2", env.day(-2), tx("Bob", models.TransactionTypeBuy, env.day(-2), false))
		env.source.parseErr["F-2"] = errors.New("malformed xml")

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.FailedFilings)
		require.Len(t, res.Transactions, 1)
		assert.Equal(t, "Alice", res.Transactions[0].OwnerName)
	})

	t.Run("transactions outside the window are not served", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3),
			tx("Alice", models.TransactionTypeBuy, env.day(-45), false),
			tx("Alice", models.TransactionTypeBuy, env.day(-4), false),
		)

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		for _, r := range res.Transactions {
			assert.False(t, r.TransactionDate.Before(env.day(-30)))
		}
	})
}

func TestGetTransactionsInsiderTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("served insiders never exceed target", func(t *testing.T) {
		env := newTestEnv(t)
		env.engine.cfg.Workers = 1
		for i := 0; i < 8; i++ {
			env.source.AddFiling(fmt.Sprintf("F-%d", i), env.day(-10+i),
				tx(fmt.Sprintf("Insider %d", i), models.TransactionTypeBuy, env.day(-10+i), false))
		}

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 3})
		require.NoError(t, err)

		insiders := map[string]bool{}
		for _, r := range res.Transactions {
			insiders[r.InsiderKey()] = true
		}
		assert.LessOrEqual(t, len(insiders), 3)
		assert.Equal(t, "Insider 7", res.Transactions[0].OwnerName)
	})

	t.Run("fetch stops early once target insiders are seen", func(t *testing.T) {
		env := newTestEnv(t)
		env.engine.cfg.Workers = 1
		env.engine.cfg.Buffer = 50
		for i := 0; i < 40; i++ {
			env.source.AddFiling(fmt.Sprintf("F-%02d", i), env.day(-40+i),
				tx("Same Insider", models.TransactionTypeBuy, env.day(-40+i), false),
				tx(fmt.Sprintf("Other %d", i), models.TransactionTypeSell, env.day(-40+i), false),
			)
		}

		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 4})
		require.NoError(t, err)
		assert.Less(t, int(atomic.LoadInt32(&env.source.ParseCalls)), 40)
	})

	t.Run("planned-only insiders do not count toward the target when hidden", func(t *testing.T) {
		env := newTestEnv(t)
		env.engine.cfg.Workers = 1
		env.source.AddFiling("F-1", env.day(-5), tx("Real Buyer", models.TransactionTypeBuy, env.day(-5), false))
		for i := 0; i < 5; i++ {
			env.source.AddFiling(fmt.Sprintf("P-%d", i), env.day(-1),
				tx(fmt.Sprintf("Planned %d", i), models.TransactionTypeSell, env.day(-1), true))
		}

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 1, HidePlanned: true})
		require.NoError(t, err)
		require.Len(t, res.Transactions, 1)
		assert.Equal(t, "Real Buyer", res.Transactions[0].OwnerName)
		assert.False(t, res.Transactions[0].IsPlanned)
	})

	t.Run("cache built for a smaller target is rebuilt for a larger one", func(t *testing.T) {
		env := newTestEnv(t)
		env.engine.cfg.Workers = 1
		for i := 0; i < 10; i++ {
			env.source.AddFiling(fmt.Sprintf("F-%d", i), env.day(-10+i),
				tx(fmt.Sprintf("Insider %d", i), models.TransactionTypeBuy, env.day(-10+i), false))
		}

		small, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 2})
		require.NoError(t, err)
		assert.Len(t, small.Transactions, 2)

		entry, err := env.store.Load(ctx, "ACME")
		require.NoError(t, err)
		assert.Equal(t, 2, entry.Target)

		large, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 10})
		require.NoError(t, err)
		assert.Equal(t, ModeFull, large.Mode)
		assert.Len(t, large.Transactions, 10)

		again, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 5})
		require.NoError(t, err)
		assert.Equal(t, ModeCache, again.Mode, "a larger build serves smaller targets")
		assert.Len(t, again.Transactions, 5)
	})

	t.Run("all insiders skips the early stop and the insider cap", func(t *testing.T) {
		env := newTestEnv(t)
		env.engine.cfg.Workers = 1
		for i := 0; i < 6; i++ {
			env.source.AddFiling(fmt.Sprintf("F-%d", i), env.day(-10+i),
				tx(fmt.Sprintf("Insider %d", i), models.TransactionTypeBuy, env.day(-10+i), false))
		}

		res, err := env.engine.GetTransactions(ctx, Request{Subject: models.MarketSubject, Target: 1, AllInsiders: true})
		require.NoError(t, err)
		assert.Len(t, res.Transactions, 6)
		assert.Equal(t, int32(6), atomic.LoadInt32(&env.source.ParseCalls))

		cached, err := env.engine.GetTransactions(ctx, Request{Subject: models.MarketSubject, Target: 1, AllInsiders: true})
		require.NoError(t, err)
		assert.Equal(t, ModeCache, cached.Mode)
		assert.Len(t, cached.Transactions, 6)
	})

	t.Run("worker pool respects its bound", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.delay = 5 * time.Millisecond
		for i := 0; i < 12; i++ {
			env.source.AddFiling(fmt.Sprintf("F-%d", i), env.day(-1),
				tx(fmt.Sprintf("Insider %d", i), models.TransactionTypeBuy, env.day(-1), false))
		}

		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", Target: 100})
		require.NoError(t, err)
		assert.LessOrEqual(t, atomic.LoadInt32(&env.source.MaxInFlight), int32(3))
	})
}

func TestGetTransactionsDelta(t *testing.T) {
	ctx := context.Background()

	t.Run("stale but lenient-valid cache fetches only new filings", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)

		env.now = env.now.Add(48 * time.Hour)
		env.source.AddFiling("F-2", env.day(0), tx("Bob", models.TransactionTypeSell, env.day(0), false))
		before := atomic.LoadInt32(&env.source.ParseCalls)

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)
		assert.Equal(t, ModeDelta, res.Mode)
		assert.Equal(t, 1, res.NewCount)
		assert.Len(t, res.Transactions, 2)
		assert.Equal(t, int32(1), atomic.LoadInt32(&env.source.ParseCalls)-before, "known accessions are not re-parsed")
		assert.Equal(t, env.day(-5), env.source.LastWindow.Since, "since is the newest cached filing date")
	})

	t.Run("delta with nothing new refreshes the timestamp", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)

		env.now = env.now.Add(30 * time.Hour)
		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)
		assert.Equal(t, ModeDelta, res.Mode)
		assert.Equal(t, 0, res.NewCount)

		entry, err := env.store.Load(ctx, "ACME")
		require.NoError(t, err)
		assert.True(t, entry.CacheTimestamp.Equal(env.now.UTC()))
	})

	t.Run("delta listing failure serves cached data", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)

		env.now = env.now.Add(30 * time.Hour)
		env.source.listErr = errors.New("edgar down")
		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)
		assert.Equal(t, ModeStale, res.Mode)
		assert.Len(t, res.Transactions, 1)
	})

	t.Run("cache older than the lenient threshold is rebuilt", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)

		env.now = env.now.Add(8 * 24 * time.Hour)
		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME", WindowDays: 30})
		require.NoError(t, err)
		assert.Equal(t, ModeFull, res.Mode)
	})
}

func TestGetTransactionsFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("listing failure without cache is ErrSyncFailed", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.listErr = errors.New("connection reset")

		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSyncFailed)
	})

	t.Run("listing failure with expired cache serves stale", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME"})
		require.NoError(t, err)

		env.now = env.now.Add(10 * 24 * time.Hour)
		env.source.listErr = errors.New("connection reset")
		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME"})
		require.NoError(t, err)
		assert.Equal(t, ModeStale, res.Mode)
		assert.Len(t, res.Transactions, 1)
	})

	t.Run("all filings failing returns empty and does not save", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		env.source.parseErr["F-1"] = errors.New("bad xml")

		res, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME"})
		require.NoError(t, err)
		assert.Empty(t, res.Transactions)
		assert.Equal(t, 1, res.FailedFilings)

		entry, err := env.store.Load(ctx, "ACME")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("refresh bypasses a fresh cache", func(t *testing.T) {
		env := newTestEnv(t)
		env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))
		_, err := env.engine.GetTransactions(ctx, Request{Subject: "ACME"})
		require.NoError(t, err)

		env.source.AddFiling("F-2", env.day(-1), tx("Bob", models.TransactionTypeBuy, env.day(-1), false))
		res, err := env.engine.Refresh(ctx, Request{Subject: "ACME"})
		require.NoError(t, err)
		assert.Equal(t, ModeFull, res.Mode)
		assert.Len(t, res.Transactions, 2)
	})
}

func TestGetTransactionsConcurrentSubjects(t *testing.T) {
	env := newTestEnv(t)
	env.source.delay = 2 * time.Millisecond
	env.source.AddFiling("F-1", env.day(-3), tx("Alice", models.TransactionTypeBuy, env.day(-4), false))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.GetTransactions(context.Background(), Request{Subject: "ACME", WindowDays: 30})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	env.source.mu.Lock()
	defer env.source.mu.Unlock()
	assert.Equal(t, 1, env.source.ListCalls, "concurrent requests for one subject sync once")
}
