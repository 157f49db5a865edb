package history

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/petrel0/omnidex/internal/favicon"
	"github.com/petrel0/omnidex/internal/storage"
)

// ErrNoScheme is returned by MarkVisit for URLs without a scheme
// separator; such strings cannot identify a visited page.
var ErrNoScheme = errors.New("url has no scheme separator")

const schemeSep = "://"

// DefaultVisitWorth is how much simulated recency one visit adds to a
// page's frecency score. With the default, a page visited ten times ranks
// as if it were last seen ten days more recently than its timestamp says.
const DefaultVisitWorth = 24 * time.Hour

// Suggestion is one address-bar autocomplete candidate. Icon is nil when
// the page has no usable favicon.
type Suggestion struct {
	URL   string
	Title string
	Icon  image.Image
}

// Index records page visits and answers ranked autocomplete queries over
// them. Frecency, the ranking score, is the last-visit time in epoch
// seconds plus visitWorth seconds per recorded visit, so a single numeric
// comparison orders by recency and frequency at once.
type Index struct {
	store      storage.Store
	icons      *favicon.Cache
	visitWorth int64 // seconds per visit
	logger     *slog.Logger
}

// NewIndex creates an Index over store, resolving icons through icons.
// visitWorth <= 0 selects DefaultVisitWorth; a nil logger falls back to
// slog.Default.
func NewIndex(store storage.Store, icons *favicon.Cache, visitWorth time.Duration, logger *slog.Logger) *Index {
	if visitWorth <= 0 {
		visitWorth = DefaultVisitWorth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:      store,
		icons:      icons,
		visitWorth: int64(visitWorth / time.Second),
		logger:     logger,
	}
}

// MarkVisit records a navigation to url. Title, faviconURL, and icon come
// from the page as the shell observed it; the favicon pair may be absent.
// Calls for the same URL are expected to be serialized by the caller: two
// concurrent first visits can each insert a row, and later visits then
// update only one of them.
func (ix *Index) MarkVisit(ctx context.Context, url, title, faviconURL string, icon *favicon.Icon) error {
	sep := strings.Index(url, schemeSep)
	if sep < 0 {
		return fmt.Errorf("%w: %q", ErrNoScheme, url)
	}

	faviconID, err := ix.icons.Upsert(ctx, faviconURL, icon)
	if err != nil {
		// A visit without its icon is still worth recording.
		ix.logger.Warn("favicon upsert failed", "url", faviconURL, "error", err)
		faviconID = nil
	}

	visit := storage.Visit{
		URL:           url,
		SchemelessURL: url[sep+len(schemeSep):],
		Title:         title,
		FaviconID:     faviconID,
		VisitedAt:     time.Now().Unix(),
		Worth:         ix.visitWorth,
	}

	updated, err := ix.store.UpdateVisit(ctx, visit)
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	if updated {
		return nil
	}

	if err := ix.store.InsertVisit(ctx, visit); err != nil {
		return fmt.Errorf("record first visit: %w", err)
	}
	return nil
}

// AutocompleteSuggest returns up to limit pages matching text, most
// frecent first. Blank input returns nothing without a storage round
// trip, and failures degrade to an empty result so a storage hiccup never
// breaks typing in the address bar.
func (ix *Index) AutocompleteSuggest(ctx context.Context, text string, limit int) []Suggestion {
	match := ftsMatchQuery(text)
	if match == "" || limit <= 0 {
		return nil
	}

	rows, err := ix.store.SearchPages(ctx, match, limit)
	if err != nil {
		ix.logger.Warn("autocomplete search failed", "error", err)
		return nil
	}

	suggestions := make([]Suggestion, 0, len(rows))
	for _, r := range rows {
		sg := Suggestion{URL: r.URL, Title: r.Title}
		if r.FaviconURL != "" {
			icon, err := ix.icons.Fetch(ctx, r.FaviconURL)
			if err != nil {
				ix.logger.Debug("favicon fetch failed", "url", r.FaviconURL, "error", err)
			} else {
				sg.Icon = icon
			}
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions
}

// ftsMatchQuery converts raw address-bar input into an FTS5 match
// expression: every whitespace-separated token becomes a quoted prefix
// term, ANDed by juxtaposition. Embedded quotes are doubled so user input
// cannot break the query syntax. Blank input yields the empty string.
func ftsMatchQuery(input string) string {
	words := strings.Fields(input)
	if len(words) == 0 {
		return ""
	}
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, `"`+strings.ReplaceAll(w, `"`, `""`)+`"*`)
	}
	return strings.Join(parts, " ")
}
