// Package omnidex maintains a browser shell's visit history and favicon
// store and serves frecency-ranked address-bar suggestions from it.
//
// The shell records navigations with MarkVisit and queries candidates
// with AutocompleteSuggest as the user types; a background expirer evicts
// pages that fall out of the retention window, along with favicons nothing
// references anymore. Everything persists to a single SQLite file.
package omnidex

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/petrel0/omnidex/config"
	"github.com/petrel0/omnidex/internal/favicon"
	"github.com/petrel0/omnidex/internal/history"
	"github.com/petrel0/omnidex/internal/storage"
)

// defaultListLimit caps listing calls that pass no explicit limit.
const defaultListLimit = 50

// Icon is a decoded favicon handed in by the shell, together with the
// identity tag the shell assigned to it. The tag changes whenever the
// icon's pixels change and is the cheap staleness signal for the stored
// copy.
type Icon struct {
	Image image.Image
	Key   int64
}

// Suggestion is one address-bar autocomplete candidate. Icon is nil when
// the page has no usable favicon.
type Suggestion struct {
	URL   string
	Title string
	Icon  image.Image
}

// Page is one visited-URL record.
type Page struct {
	URL           string
	SchemelessURL string
	Title         string
	LastVisited   time.Time
	VisitCount    int64
	Frecency      int64
}

// Stats aggregates counts over the stored history.
type Stats struct {
	Pages       int64
	Favicons    int64
	OldestVisit time.Time
	NewestVisit time.Time
}

// Service bundles the visit index, favicon cache, and expirer over one
// database. It is the embedding shell's single entry point; no separate
// process or command surface exists.
type Service struct {
	index   *history.Index
	icons   *favicon.Cache
	expirer *history.Expirer
	store   *storage.SQLiteStore
	db      *sql.DB
}

// Open opens the database named by cfg, migrates it, wires the index and
// favicon cache over it, and starts the background expirer. A nil cfg
// uses defaults; a nil logger falls back to slog.Default. Close releases
// everything Open acquired.
func Open(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}

	store, db, err := storage.Open(path, cfg.Storage.JournalMode)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	icons := favicon.NewCache(store, cfg.Icons.MemoryCacheEntries, logger)
	index := history.NewIndex(store, icons,
		time.Duration(cfg.Ranking.VisitWorthSeconds)*time.Second, logger)
	expirer := history.NewExpirer(store,
		time.Duration(cfg.Retention.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Retention.Days)*24*time.Hour,
		logger)
	expirer.Start()

	return &Service{
		index:   index,
		icons:   icons,
		expirer: expirer,
		store:   store,
		db:      db,
	}, nil
}

// Close stops the expirer and closes the store. The Service must not be
// used afterwards.
func (s *Service) Close() error {
	s.expirer.Stop()
	s.store.Close()
	return s.db.Close()
}

// MarkVisit records a navigation to url. Title, faviconURL, and icon come
// from the loaded page; the favicon pair may be absent. Calls for the
// same URL are expected to be serialized by the caller.
func (s *Service) MarkVisit(ctx context.Context, url, title, faviconURL string, icon *Icon) error {
	var fi *favicon.Icon
	if icon != nil {
		fi = &favicon.Icon{Image: icon.Image, Key: icon.Key}
	}
	return s.index.MarkVisit(ctx, url, title, faviconURL, fi)
}

// AutocompleteSuggest returns up to limit visited pages matching text,
// most frecent first. It fails open: on any storage problem the shell
// simply sees no suggestions.
func (s *Service) AutocompleteSuggest(ctx context.Context, text string, limit int) []Suggestion {
	hits := s.index.AutocompleteSuggest(ctx, text, limit)
	if len(hits) == 0 {
		return nil
	}
	suggestions := make([]Suggestion, len(hits))
	for i, h := range hits {
		suggestions[i] = Suggestion{URL: h.URL, Title: h.Title, Icon: h.Icon}
	}
	return suggestions
}

// Favicon returns the decoded icon cached for url, or nil when none is
// known.
func (s *Service) Favicon(ctx context.Context, url string) (image.Image, error) {
	return s.icons.Fetch(ctx, url)
}

// Recent lists pages by most recent visit, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	records, err := s.store.RecentPages(ctx, limit)
	if err != nil {
		return nil, err
	}
	return pagesFromRecords(records), nil
}

// TopPages lists the highest-ranked pages overall, the zero-input
// counterpart of AutocompleteSuggest.
func (s *Service) TopPages(ctx context.Context, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	records, err := s.store.TopPages(ctx, limit)
	if err != nil {
		return nil, err
	}
	return pagesFromRecords(records), nil
}

// Forget deletes the record for url and reports whether one existed. A
// favicon only that page referenced is collected by the next expirer
// sweep.
func (s *Service) Forget(ctx context.Context, url string) (bool, error) {
	return s.store.DeletePage(ctx, url)
}

// ClearHistory deletes every page and favicon and drops the decoded-icon
// cache.
func (s *Service) ClearHistory(ctx context.Context) error {
	if err := s.store.PurgeAll(ctx); err != nil {
		return err
	}
	s.icons.Reset()
	return nil
}

// Stats returns aggregate counts over the stored history.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Pages:       st.TotalPages,
		Favicons:    st.TotalFavicons,
		OldestVisit: st.OldestVisit,
		NewestVisit: st.NewestVisit,
	}, nil
}

// Prune runs one expiration sweep immediately, outside the background
// schedule.
func (s *Service) Prune(ctx context.Context) {
	s.expirer.Sweep(ctx)
}

func pagesFromRecords(records []storage.Page) []Page {
	pages := make([]Page, len(records))
	for i, r := range records {
		pages[i] = Page{
			URL:           r.URL,
			SchemelessURL: r.SchemelessURL,
			Title:         r.Title,
			LastVisited:   time.Unix(r.LastVisited, 0),
			VisitCount:    r.VisitCount,
			Frecency:      r.Frecency,
		}
	}
	return pages
}
