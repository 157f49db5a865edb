package storage

import "database/sql"

// migrateV001 creates the initial schema: the favicon and page tables, their
// indexes, the FTS5 search index, and the triggers that keep the search
// index in sync. Every statement uses IF NOT EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS favicon (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			url      TEXT NOT NULL,
			url_hash INTEGER NOT NULL,
			data_key INTEGER NOT NULL,
			data     BLOB NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS autocomplete_page (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			url            TEXT NOT NULL,
			url_hash       INTEGER NOT NULL,
			schemeless_url TEXT NOT NULL DEFAULT '',
			title          TEXT NOT NULL DEFAULT '',
			favicon_id     INTEGER REFERENCES favicon(id) ON DELETE SET NULL,
			last_visited   INTEGER NOT NULL,
			visit_count    INTEGER NOT NULL DEFAULT 1,
			frecency       INTEGER NOT NULL
		)`,

		// ── Indexes ─────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_page_url_hash     ON autocomplete_page(url_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_page_last_visited ON autocomplete_page(last_visited)`,
		`CREATE INDEX IF NOT EXISTS idx_page_frecency     ON autocomplete_page(frecency)`,
		`CREATE INDEX IF NOT EXISTS idx_page_favicon      ON autocomplete_page(favicon_id)`,
		`CREATE INDEX IF NOT EXISTS idx_favicon_url_hash  ON favicon(url_hash)`,

		// ── Search index ────────────────────────────────────────
		// External-content FTS5 table over autocomplete_page. The triggers
		// below are the only writers; queries join back on rowid.

		`CREATE VIRTUAL TABLE IF NOT EXISTS autocomplete_page_fts USING fts5(
			url,
			schemeless_url,
			title,
			content='autocomplete_page',
			content_rowid='id',
			tokenize='unicode61'
		)`,

		`CREATE TRIGGER IF NOT EXISTS page_fts_insert AFTER INSERT ON autocomplete_page BEGIN
			INSERT INTO autocomplete_page_fts(rowid, url, schemeless_url, title)
			VALUES (new.id, new.url, new.schemeless_url, new.title);
		END`,

		`CREATE TRIGGER IF NOT EXISTS page_fts_delete AFTER DELETE ON autocomplete_page BEGIN
			INSERT INTO autocomplete_page_fts(autocomplete_page_fts, rowid, url, schemeless_url, title)
			VALUES ('delete', old.id, old.url, old.schemeless_url, old.title);
		END`,

		`CREATE TRIGGER IF NOT EXISTS page_fts_update AFTER UPDATE ON autocomplete_page BEGIN
			INSERT INTO autocomplete_page_fts(autocomplete_page_fts, rowid, url, schemeless_url, title)
			VALUES ('delete', old.id, old.url, old.schemeless_url, old.title);
			INSERT INTO autocomplete_page_fts(rowid, url, schemeless_url, title)
			VALUES (new.id, new.url, new.schemeless_url, new.title);
		END`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
