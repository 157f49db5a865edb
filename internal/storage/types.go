package storage

import "time"

// Page is one row of autocomplete_page: a distinct visited URL together
// with the ranking fields the address bar orders by.
type Page struct {
	ID            int64
	URL           string
	URLHash       int64
	SchemelessURL string
	Title         string
	FaviconID     *int64
	LastVisited   int64 // epoch seconds
	VisitCount    int64
	Frecency      int64
}

// Visit carries the values one navigation writes into autocomplete_page.
// Worth is the number of seconds of simulated recency a single visit adds
// to the frecency score.
type Visit struct {
	URL           string
	SchemelessURL string
	Title         string
	FaviconID     *int64
	VisitedAt     int64 // epoch seconds
	Worth         int64
}

// SuggestionRow is one autocomplete search hit. FaviconURL is the URL of
// the referenced favicon, empty when the page has none.
type SuggestionRow struct {
	URL        string
	Title      string
	FaviconURL string
}

// Favicon is one row of the favicon table without the encoded bytes.
// DataKey is the identity tag the shell assigned to the source icon; a
// mismatch against a fresh tag means the stored bytes are stale.
type Favicon struct {
	ID      int64
	URL     string
	URLHash int64
	DataKey int64
}

// Stats holds aggregate counts over the index.
type Stats struct {
	TotalPages    int64
	TotalFavicons int64
	OldestVisit   time.Time
	NewestVisit   time.Time
}
