// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"context"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
)

const (
	defaultTorrentInfoTTL = 5 * time.Minute
	defaultListingTTL     = time.Minute

	// listingKey is the singleton key for the whole-library listing entry.
	listingKey = "all"
)

// torrentFetcher is the slice of Client the cache reads through.
type torrentFetcher interface {
	GetTorrentInfo(ctx context.Context, torrentID string) (*Torrent, error)
	GetAllTorrents(ctx context.Context) ([]Torrent, error)
}

// Cache is a read-through TTL cache over a client's torrent detail and
// library listing calls. There is no eviction beyond TTL expiry and no
// capacity bound; entries linger until next requested after expiry. It is
// constructed by the composition root and injected, never a package-level
// singleton.
type Cache struct {
	client  torrentFetcher
	info    *ttlcache.Cache[string, *Torrent]
	listing *ttlcache.Cache[string, []Torrent]
}

// NewCache wraps the client with a per-torrent detail cache and a
// single-entry listing cache. Non-positive TTLs fall back to the defaults
// (5m detail, 1m listing).
func NewCache(client torrentFetcher, infoTTL, listingTTL time.Duration) *Cache {
	if infoTTL <= 0 {
		infoTTL = defaultTorrentInfoTTL
	}
	if listingTTL <= 0 {
		listingTTL = defaultListingTTL
	}

	return &Cache{
		client:  client,
		info:    ttlcache.New(ttlcache.Options[string, *Torrent]{}.SetDefaultTTL(infoTTL)),
		listing: ttlcache.New(ttlcache.Options[string, []Torrent]{}.SetDefaultTTL(listingTTL)),
	}
}

// TorrentInfo returns the cached detail for a torrent, calling through when
// no live entry exists.
func (c *Cache) TorrentInfo(ctx context.Context, torrentID string) (*Torrent, error) {
	if cached, ok := c.info.Get(torrentID); ok {
		return cached, nil
	}

	torrent, err := c.client.GetTorrentInfo(ctx, torrentID)
	if err != nil {
		return nil, err
	}

	c.info.Set(torrentID, torrent, ttlcache.DefaultTTL)
	return torrent, nil
}

// AllTorrents returns the cached full library listing, calling through when
// the singleton entry has expired.
func (c *Cache) AllTorrents(ctx context.Context) ([]Torrent, error) {
	if cached, ok := c.listing.Get(listingKey); ok {
		return cached, nil
	}

	torrents, err := c.client.GetAllTorrents(ctx)
	if err != nil {
		return nil, err
	}

	c.listing.Set(listingKey, torrents, ttlcache.DefaultTTL)
	log.Debug().Int("count", len(torrents)).Msg("Refreshed torrent listing cache")
	return torrents, nil
}

// InvalidateTorrent drops the detail entry for a torrent, forcing the next
// read through to the backend. Used after deletions and selection changes.
func (c *Cache) InvalidateTorrent(torrentID string) {
	c.info.Delete(torrentID)
	c.listing.Delete(listingKey)
}

// Clear resets both caches. Used by test fixtures to avoid cross-test
// leakage.
func (c *Cache) Clear() {
	for _, key := range c.info.GetKeys() {
		c.info.Delete(key)
	}
	c.listing.Delete(listingKey)
}

// Close stops the caches' background janitors.
func (c *Cache) Close() {
	c.info.Close()
	c.listing.Close()
}
