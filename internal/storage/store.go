package storage

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store defines the persistence operations the visit index, favicon cache,
// and expirer are built on.
type Store interface {
	UpdateVisit(ctx context.Context, v Visit) (bool, error)
	InsertVisit(ctx context.Context, v Visit) error
	GetPage(ctx context.Context, url string) (*Page, error)
	SearchPages(ctx context.Context, match string, limit int) ([]SuggestionRow, error)
	RecentPages(ctx context.Context, limit int) ([]Page, error)
	TopPages(ctx context.Context, limit int) ([]Page, error)
	DeletePage(ctx context.Context, url string) (bool, error)
	PruneExpired(ctx context.Context, olderThan time.Time) (int64, error)
	PruneOrphanFavicons(ctx context.Context) (int64, error)
	GetFavicon(ctx context.Context, url string) (*Favicon, error)
	GetFaviconData(ctx context.Context, url string) ([]byte, error)
	InsertFavicon(ctx context.Context, url string, dataKey int64, data []byte) (int64, error)
	UpdateFaviconData(ctx context.Context, id, dataKey int64, data []byte) error
	PurgeAll(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements for the per-visit and per-keystroke paths.
	updateVisit    *sql.Stmt
	insertVisit    *sql.Stmt
	getPage        *sql.Stmt
	getFavicon     *sql.Stmt
	getFaviconData *sql.Stmt
}

// Open opens (creating if needed) the database file at path, runs pending
// migrations, and returns a ready store together with the underlying
// handle. The caller closes both. journalMode is the SQLite journal_mode
// to apply; empty means WAL. Pragmas ride the DSN so every connection the
// pool hands out carries them.
func Open(path, journalMode string) (*SQLiteStore, *sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	if journalMode == "" {
		journalMode = "wal"
	}
	dsn := path +
		"?_pragma=foreign_keys(ON)" +
		"&_pragma=journal_mode(" + journalMode + ")" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers at the pool, matching the
	// single-writer discipline the visit upsert assumes.
	db.SetMaxOpenConns(1)

	if err := NewMigrationRunner(db).Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return store, db, nil
}

// NewSQLiteStore creates a SQLiteStore from an already-opened and migrated
// database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

const selectPage = `
	SELECT id, url, url_hash, schemeless_url, title, favicon_id,
	       last_visited, visit_count, frecency
	FROM autocomplete_page
`

func (s *SQLiteStore) prepareStatements() error {
	var err error

	// The right-hand visit_count in the frecency expression reads the
	// pre-update value, so the stored score is now + new_count * worth.
	s.updateVisit, err = s.db.Prepare(`
		UPDATE autocomplete_page SET
			schemeless_url = ?,
			title = ?,
			favicon_id = ?,
			last_visited = ?,
			visit_count = visit_count + 1,
			frecency = ? + (visit_count + 1) * ?
		WHERE url_hash = ? AND url = ?
	`)
	if err != nil {
		return err
	}

	s.insertVisit, err = s.db.Prepare(`
		INSERT INTO autocomplete_page
			(url, url_hash, schemeless_url, title, favicon_id, last_visited, visit_count, frecency)
		VALUES (?, ?, ?, ?, ?, ?, 1, ? + ?)
	`)
	if err != nil {
		return err
	}

	s.getPage, err = s.db.Prepare(selectPage + ` WHERE url_hash = ? AND url = ?`)
	if err != nil {
		return err
	}

	s.getFavicon, err = s.db.Prepare(`
		SELECT id, url, url_hash, data_key FROM favicon WHERE url_hash = ? AND url = ?
	`)
	if err != nil {
		return err
	}

	s.getFaviconData, err = s.db.Prepare(`
		SELECT data FROM favicon WHERE url_hash = ? AND url = ?
	`)
	if err != nil {
		return err
	}

	return nil
}

// hashURL fingerprints a URL for indexed lookups. FNV-1a is cheap and
// stable across runs; collisions are tolerated because every lookup also
// compares the full URL.
func hashURL(url string) int64 {
	h := fnv.New64a()
	h.Write([]byte(url))
	return int64(h.Sum64())
}

// nullID adapts an optional favicon id to its nullable column.
func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// UpdateVisit folds one navigation into the existing row for v.URL and
// reports whether a row matched. A false return means no row existed and
// the caller should insert instead.
func (s *SQLiteStore) UpdateVisit(ctx context.Context, v Visit) (bool, error) {
	res, err := s.updateVisit.ExecContext(ctx,
		v.SchemelessURL, v.Title, nullID(v.FaviconID),
		v.VisitedAt, v.VisitedAt, v.Worth,
		hashURL(v.URL), v.URL,
	)
	if err != nil {
		return false, fmt.Errorf("update visit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertVisit creates the first record for v.URL with a visit count of one.
func (s *SQLiteStore) InsertVisit(ctx context.Context, v Visit) error {
	_, err := s.insertVisit.ExecContext(ctx,
		v.URL, hashURL(v.URL), v.SchemelessURL, v.Title, nullID(v.FaviconID),
		v.VisitedAt, v.VisitedAt, v.Worth,
	)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// GetPage retrieves the record for url, or nil when none is stored.
func (s *SQLiteStore) GetPage(ctx context.Context, url string) (*Page, error) {
	var p Page
	var faviconID sql.NullInt64

	err := s.getPage.QueryRowContext(ctx, hashURL(url), url).Scan(
		&p.ID, &p.URL, &p.URLHash, &p.SchemelessURL, &p.Title,
		&faviconID, &p.LastVisited, &p.VisitCount, &p.Frecency,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}

	if faviconID.Valid {
		p.FaviconID = &faviconID.Int64
	}

	return &p, nil
}

// SearchPages runs an FTS5 match over the page index, highest frecency
// first, joined to the favicon table for each hit's icon URL. The match
// expression must already be valid FTS5 syntax.
func (s *SQLiteStore) SearchPages(ctx context.Context, match string, limit int) ([]SuggestionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.url, p.title, COALESCE(f.url, '')
		FROM autocomplete_page_fts
		JOIN autocomplete_page p ON p.id = autocomplete_page_fts.rowid
		LEFT JOIN favicon f ON f.id = p.favicon_id
		WHERE autocomplete_page_fts MATCH ?
		ORDER BY p.frecency DESC
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	var hits []SuggestionRow
	for rows.Next() {
		var r SuggestionRow
		if err := rows.Scan(&r.URL, &r.Title, &r.FaviconURL); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		hits = append(hits, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if hits == nil {
		hits = []SuggestionRow{}
	}
	return hits, nil
}

// RecentPages lists pages by most recent visit.
func (s *SQLiteStore) RecentPages(ctx context.Context, limit int) ([]Page, error) {
	return s.scanPages(ctx, selectPage+` ORDER BY last_visited DESC LIMIT ?`, limit)
}

// TopPages lists pages by highest frecency.
func (s *SQLiteStore) TopPages(ctx context.Context, limit int) ([]Page, error) {
	return s.scanPages(ctx, selectPage+` ORDER BY frecency DESC LIMIT ?`, limit)
}

// scanPages executes a page query and scans results into Page slices.
func (s *SQLiteStore) scanPages(ctx context.Context, query string, args ...interface{}) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var faviconID sql.NullInt64
		if err := rows.Scan(
			&p.ID, &p.URL, &p.URLHash, &p.SchemelessURL, &p.Title,
			&faviconID, &p.LastVisited, &p.VisitCount, &p.Frecency,
		); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if faviconID.Valid {
			p.FaviconID = &faviconID.Int64
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if pages == nil {
		pages = []Page{}
	}
	return pages, nil
}

// DeletePage removes the record for url and reports whether a row existed.
func (s *SQLiteStore) DeletePage(ctx context.Context, url string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM autocomplete_page WHERE url_hash = ? AND url = ?",
		hashURL(url), url,
	)
	if err != nil {
		return false, fmt.Errorf("delete page: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PruneExpired deletes pages last visited before olderThan.
func (s *SQLiteStore) PruneExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM autocomplete_page WHERE last_visited < ?", olderThan.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune pages: %w", err)
	}
	return res.RowsAffected()
}

// PruneOrphanFavicons deletes favicons that no remaining page references.
func (s *SQLiteStore) PruneOrphanFavicons(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM favicon WHERE id NOT IN (
			SELECT favicon_id FROM autocomplete_page WHERE favicon_id IS NOT NULL
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prune favicons: %w", err)
	}
	return res.RowsAffected()
}

// GetFavicon looks up the favicon row for url, nil when none is stored.
func (s *SQLiteStore) GetFavicon(ctx context.Context, url string) (*Favicon, error) {
	var f Favicon
	err := s.getFavicon.QueryRowContext(ctx, hashURL(url), url).Scan(
		&f.ID, &f.URL, &f.URLHash, &f.DataKey,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get favicon: %w", err)
	}
	return &f, nil
}

// GetFaviconData returns the encoded icon bytes for url, nil when none is
// stored.
func (s *SQLiteStore) GetFaviconData(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := s.getFaviconData.QueryRowContext(ctx, hashURL(url), url).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get favicon data: %w", err)
	}
	return data, nil
}

// InsertFavicon stores a new favicon and returns its generated id.
func (s *SQLiteStore) InsertFavicon(ctx context.Context, url string, dataKey int64, data []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO favicon (url, url_hash, data_key, data) VALUES (?, ?, ?, ?)",
		url, hashURL(url), dataKey, data,
	)
	if err != nil {
		return 0, fmt.Errorf("insert favicon: %w", err)
	}
	return res.LastInsertId()
}

// UpdateFaviconData replaces the stored bytes and identity tag for id.
func (s *SQLiteStore) UpdateFaviconData(ctx context.Context, id, dataKey int64, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE favicon SET data_key = ?, data = ? WHERE id = ?",
		dataKey, data, id,
	)
	if err != nil {
		return fmt.Errorf("update favicon data: %w", err)
	}
	return nil
}

// PurgeAll deletes every page and favicon. The FTS index follows through
// its triggers.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	stmts := []string{
		"DELETE FROM autocomplete_page",
		"DELETE FROM favicon",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge (%s): %w", stmt, err)
		}
	}
	return nil
}

// GetStats returns aggregate statistics about the index.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM autocomplete_page").Scan(&stats.TotalPages)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM favicon").Scan(&stats.TotalFavicons)
	if err != nil {
		return nil, fmt.Errorf("count favicons: %w", err)
	}

	// Oldest and newest (handle empty DB)
	if stats.TotalPages > 0 {
		var oldest, newest int64
		err = s.db.QueryRowContext(ctx,
			"SELECT MIN(last_visited), MAX(last_visited) FROM autocomplete_page",
		).Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("visit time range: %w", err)
		}
		stats.OldestVisit = time.Unix(oldest, 0)
		stats.NewestVisit = time.Unix(newest, 0)
	}

	return stats, nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.updateVisit, s.insertVisit, s.getPage,
		s.getFavicon, s.getFaviconData,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
