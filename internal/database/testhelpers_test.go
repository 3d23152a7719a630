package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// tables lists every migrated table, children before parents
var tables = []string{
	"cache_entries",
	"sync_jobs",
	"form4_transactions",
	"user_watchlists",
	"users",
}

// TestDB is a migrated Postgres running in a throwaway container
type TestDB struct {
	*DB
	container testcontainers.Container
}

// SetupTestDB starts Postgres, connects and applies db/migrations
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("form4_test"),
		tcpostgres.WithUsername("form4"),
		tcpostgres.WithPassword("form4"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := New(connStr)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	testDB := &TestDB{DB: db, container: pgContainer}
	if err := testDB.DB.RunMigrations(migrationsDir()); err != nil {
		testDB.Cleanup(t)
		t.Fatalf("failed to run migrations: %v", err)
	}
	return testDB
}

// migrationsDir resolves db/migrations relative to this file
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations")
}

// Cleanup closes the pool and terminates the container
func (tdb *TestDB) Cleanup(t *testing.T) {
	t.Helper()

	if tdb.DB != nil {
		tdb.DB.Close()
	}
	if tdb.container != nil {
		if err := tdb.container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}
}

// TruncateAll empties every table between subtests
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()

	for _, table := range tables {
		if _, err := tdb.conn.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}

// GetRawConn exposes the pool for schema assertions
func (tdb *TestDB) GetRawConn() *sql.DB {
	return tdb.conn
}

// CreateTestUser inserts an active user with a unique key hash
func (tdb *TestDB) CreateTestUser(t *testing.T, email string) *models.User {
	t.Helper()

	u := &models.User{Email: email, APIKeyHash: uuid.NewString(), IsActive: true}
	if err := tdb.CreateUser(u); err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return u
}
