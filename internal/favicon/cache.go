package favicon

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/petrel0/omnidex/internal/storage"
)

// Icon is a decoded favicon together with the identity tag its producer
// assigned. Key changes whenever the underlying image changes, which lets
// the cache detect staleness without comparing pixels.
type Icon struct {
	Image image.Image
	Key   int64
}

// Cache deduplicates favicons by source URL in storage and keeps decoded
// icons in memory so suggestion rendering does not hit the database for
// every row. Decoded icons live until Reset or process exit.
type Cache struct {
	store  storage.Store
	mem    *iconCache
	logger *slog.Logger
}

// NewCache creates a Cache over store. maxEntries bounds the decoded-icon
// memory cache; zero or negative means unbounded. A nil logger falls back
// to slog.Default.
func NewCache(store storage.Store, maxEntries int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		mem:    newIconCache(maxEntries),
		logger: logger,
	}
}

// Upsert stores or refreshes the favicon for url and returns the row id to
// reference from page records. A nil id with nil error means there is
// nothing to reference: no URL, no icon, or both. When a stored favicon
// exists with a different identity tag, the bytes are re-encoded and
// replaced in place; that refresh is best effort and a failure keeps the
// stale bytes serving rather than failing the visit.
func (c *Cache) Upsert(ctx context.Context, url string, icon *Icon) (*int64, error) {
	if url == "" || icon == nil || icon.Image == nil {
		return nil, nil
	}

	rec, err := c.store.GetFavicon(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("favicon lookup: %w", err)
	}

	if rec != nil {
		if rec.DataKey != icon.Key {
			data, err := encodePNG(icon.Image)
			if err != nil {
				c.logger.Warn("favicon refresh skipped", "url", url, "error", err)
				return &rec.ID, nil
			}
			if err := c.store.UpdateFaviconData(ctx, rec.ID, icon.Key, data); err != nil {
				c.logger.Warn("favicon refresh failed", "url", url, "error", err)
			}
		}
		return &rec.ID, nil
	}

	data, err := encodePNG(icon.Image)
	if err != nil {
		return nil, fmt.Errorf("encode favicon: %w", err)
	}
	id, err := c.store.InsertFavicon(ctx, url, icon.Key, data)
	if err != nil {
		return nil, fmt.Errorf("insert favicon: %w", err)
	}

	c.logger.Debug("favicon stored", "url", url, "id", id)
	return &id, nil
}

// Fetch returns the decoded favicon stored for url, or nil when none is
// known. Decoded icons are served from memory after the first lookup.
func (c *Cache) Fetch(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		return nil, nil
	}

	if img, ok := c.mem.get(url); ok {
		return img, nil
	}

	data, err := c.store.GetFaviconData(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("favicon data: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	img, err := decodePNG(data)
	if err != nil {
		return nil, fmt.Errorf("decode favicon %q: %w", url, err)
	}

	c.mem.set(url, img)
	return img, nil
}

// Reset drops every decoded icon from the memory cache. Stored favicons
// are unaffected.
func (c *Cache) Reset() {
	c.mem.reset()
}
