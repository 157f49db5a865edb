package history

import (
	"database/sql"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrel0/omnidex/internal/favicon"
	"github.com/petrel0/omnidex/internal/storage"
)

// newTestStore creates a migrated in-memory store, returning the raw handle
// too for tests that reach into rows directly.
func newTestStore(t *testing.T) (*storage.SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run())

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, db
}

// newTestIndex wires an Index over a fresh store and favicon cache.
// visitWorth <= 0 selects the default.
func newTestIndex(t *testing.T, visitWorth time.Duration) (*Index, *storage.SQLiteStore, *sql.DB) {
	t.Helper()
	store, db := newTestStore(t)
	icons := favicon.NewCache(store, 0, discardLogger())
	return NewIndex(store, icons, visitWorth, discardLogger()), store, db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testIcon builds a tiny icon with a red corner pixel for visits that
// carry one.
func testIcon(key int64) *favicon.Icon {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return &favicon.Icon{Image: img, Key: key}
}
