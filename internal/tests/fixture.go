// Package tests provides store fixtures, seed builders and HTTP helpers shared by package tests.
package tests

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raidmeter/encounters/internal/database"
	"github.com/raidmeter/encounters/internal/encounter"
	"github.com/raidmeter/encounters/internal/httphelper"
	"github.com/raidmeter/encounters/internal/metrics"
	"github.com/raidmeter/encounters/pkg/log"
)

type Fixture struct {
	Database    database.Database
	Repository  encounter.Repository
	Maintenance *encounter.Maintenance
	Encounters  encounter.Encounters
}

// NewFixture opens a migrated store inside a per-test temporary directory. The store is closed when
// the test finishes.
func NewFixture(t *testing.T) Fixture {
	t.Helper()

	store := NewStore(t, database.Opts{AutoMigrate: true})
	repository := encounter.NewRepository(store)
	maintenance := encounter.NewMaintenance(repository, 4, time.Millisecond, metrics.Metrics{})

	return Fixture{
		Database:    store,
		Repository:  repository,
		Maintenance: maintenance,
		Encounters:  encounter.NewEncounters(repository, maintenance, metrics.Metrics{}),
	}
}

// NewStore connects a store in a temporary directory using opts. Dir is always replaced.
func NewStore(t *testing.T, opts database.Opts) database.Database {
	t.Helper()

	opts.Dir = t.TempDir()
	store := database.New(opts)

	if errConnect := store.Connect(t.Context()); errConnect != nil {
		t.Fatalf("Failed to open store: %v", errConnect)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func (f Fixture) CreateRouter() *gin.Engine {
	router, err := httphelper.CreateRouter(httphelper.RouterOpts{LogLevel: log.Error, Mode: gin.TestMode})
	if err != nil {
		panic(err)
	}

	encounter.NewEncountersHandler(router, f.Encounters)

	return router
}

// Save stores enc and returns it with the assigned id.
func (f Fixture) Save(t *testing.T, enc encounter.Encounter) encounter.Encounter {
	t.Helper()

	if err := f.Repository.Save(t.Context(), &enc); err != nil {
		t.Fatalf("Failed to save encounter: %v", err)
	}

	return enc
}

// Exec runs raw SQL against the store, used to stage rows the repository would never write.
func (f Fixture) Exec(ctx context.Context, query string, args ...any) int64 {
	affected, err := f.Database.Exec(ctx, nil, query, args...)
	if err != nil {
		panic(err)
	}

	return affected
}

// QueryInt64 returns the single integer produced by query.
func (f Fixture) QueryInt64(ctx context.Context, query string, args ...any) int64 {
	var value int64

	errTx := f.Database.WrapTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query, args...).Scan(&value)
	})
	if errTx != nil {
		panic(errTx)
	}

	return value
}
