package storage

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationRunner_FreshDB(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	err := runner.Run()
	require.NoError(t, err)

	expectedTables := []string{
		"favicon",
		"autocomplete_page",
		"autocomplete_page_fts",
		"schema_migrations",
	}
	for _, table := range expectedTables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrationRunner_IndexesCreated(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	expectedIndexes := []string{
		"idx_page_url_hash",
		"idx_page_last_visited",
		"idx_page_frecency",
		"idx_page_favicon",
		"idx_favicon_url_hash",
	}
	for _, idx := range expectedIndexes {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
		assert.Equal(t, idx, name)
	}
}

func TestMigrationRunner_TriggersCreated(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	expectedTriggers := []string{
		"page_fts_insert",
		"page_fts_delete",
		"page_fts_update",
	}
	for _, trig := range expectedTriggers {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='trigger' AND name=?", trig,
		).Scan(&name)
		require.NoError(t, err, "trigger %s should exist", trig)
		assert.Equal(t, trig, name)
	}
}

func TestMigrationRunner_Idempotent(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	// Run migrations twice
	require.NoError(t, runner.Run())
	require.NoError(t, runner.Run())

	// Should still have exactly 1 migration recorded
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "should have exactly 1 migration recorded after double-run")
}

func TestMigrationRunner_SchemaMigrationsTracking(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	var version int
	var name string
	err := db.QueryRow("SELECT version, name FROM schema_migrations WHERE version = 1").Scan(&version, &name)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, "initial_schema", name)
}

func TestMigrationRunner_ForeignKeyEnforcement(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	// A page pointing at a favicon that does not exist should be rejected
	_, err := db.Exec(`
		INSERT INTO autocomplete_page (url, url_hash, schemeless_url, title, favicon_id, last_visited, visit_count, frecency)
		VALUES ('https://example.com', 1, 'example.com', 'Test', 999, 100, 1, 100)
	`)
	assert.Error(t, err, "favicon_id must reference an existing favicon row")
}

func TestMigrationRunner_FaviconDeleteSetsNull(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	res, err := db.Exec(
		"INSERT INTO favicon (url, url_hash, data_key, data) VALUES ('https://example.com/favicon.ico', 7, 42, X'89504e47')",
	)
	require.NoError(t, err)
	faviconID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO autocomplete_page (url, url_hash, schemeless_url, title, favicon_id, last_visited, visit_count, frecency)
		VALUES ('https://example.com', 1, 'example.com', 'Example', ?, 100, 1, 100)
	`, faviconID)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM favicon WHERE id = ?", faviconID)
	require.NoError(t, err)

	var got sql.NullInt64
	err = db.QueryRow("SELECT favicon_id FROM autocomplete_page WHERE url = 'https://example.com'").Scan(&got)
	require.NoError(t, err)
	assert.False(t, got.Valid, "favicon_id should become NULL when its favicon row goes away")
}

func TestMigrationRunner_FTSFollowsPageWrites(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	matches := func(match string) int {
		var n int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM autocomplete_page_fts WHERE autocomplete_page_fts MATCH ?", match,
		).Scan(&n)
		require.NoError(t, err)
		return n
	}

	_, err := db.Exec(`
		INSERT INTO autocomplete_page (url, url_hash, schemeless_url, title, last_visited, visit_count, frecency)
		VALUES ('https://golang.org/doc', 1, 'golang.org/doc', 'Documentation', 100, 1, 100)
	`)
	require.NoError(t, err)
	assert.Equal(t, 1, matches(`"documentation"`), "insert trigger should index new rows")

	_, err = db.Exec("UPDATE autocomplete_page SET title = 'Reference' WHERE url = 'https://golang.org/doc'")
	require.NoError(t, err)
	assert.Equal(t, 0, matches(`"documentation"`), "update trigger should drop old tokens")
	assert.Equal(t, 1, matches(`"reference"`), "update trigger should index new tokens")

	_, err = db.Exec("DELETE FROM autocomplete_page WHERE url = 'https://golang.org/doc'")
	require.NoError(t, err)
	assert.Equal(t, 0, matches(`"reference"`), "delete trigger should unindex removed rows")
}

func TestMigrationRunner_PageTableColumns(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	// Insert a full page row to verify all columns
	_, err := db.Exec(`
		INSERT INTO autocomplete_page (url, url_hash, schemeless_url, title, last_visited, visit_count, frecency)
		VALUES ('https://example.com/page', -123, 'example.com/page', 'Test Page', 1700000000, 3, 1700259200)
	`)
	require.NoError(t, err)

	var url, schemeless, title string
	var urlHash, lastVisited, visitCount, frecency int64
	err = db.QueryRow(
		"SELECT url, url_hash, schemeless_url, title, last_visited, visit_count, frecency FROM autocomplete_page WHERE url = 'https://example.com/page'",
	).Scan(&url, &urlHash, &schemeless, &title, &lastVisited, &visitCount, &frecency)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", url)
	assert.Equal(t, int64(-123), urlHash)
	assert.Equal(t, "example.com/page", schemeless)
	assert.Equal(t, "Test Page", title)
	assert.Equal(t, int64(1700000000), lastVisited)
	assert.Equal(t, int64(3), visitCount)
	assert.Equal(t, int64(1700259200), frecency)
}
