// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cachecheck

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/debrr/internal/debrid"
	"github.com/autobrr/debrr/internal/services/indexer"
)

// Result is the outcome of one instant-availability lookup.
type Result struct {
	InfoHash      string
	IsFullyCached bool
	CachedBytes   int64
}

// CheckedResult is a search result annotated with its cache state and the
// magnet URI reconstructed from its info-hash.
type CheckedResult struct {
	indexer.SearchResult
	Magnet        string
	IsFullyCached bool
}

type availabilityClient interface {
	InstantAvailability(ctx context.Context, hash string) ([]debrid.Variant, error)
}

type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]indexer.SearchResult, time.Duration)
}

// Service checks whether torrents are instantly available on the debrid
// backend. Lookups never fail upward; any error reads as not cached.
type Service struct {
	indexer searcher
	debrid  availabilityClient
}

func NewService(indexer searcher, debrid availabilityClient) *Service {
	return &Service{
		indexer: indexer,
		debrid:  debrid,
	}
}

// Check sums the candidate file sizes across every cached variant of the
// hash and compares the total against the expected size. Overlapping
// variants over-count on purpose; the comparison errs toward cached.
func (s *Service) Check(ctx context.Context, infoHash string, expectedSize int64) Result {
	result := Result{InfoHash: strings.ToLower(infoHash)}

	variants, err := s.debrid.InstantAvailability(ctx, infoHash)
	if err != nil {
		log.Warn().Err(err).Str("hash", result.InfoHash).Msg("Instant-availability lookup failed, treating as not cached")
		return result
	}
	if len(variants) == 0 {
		return result
	}

	for _, variant := range variants {
		for _, file := range variant {
			result.CachedBytes += file.Filesize
		}
	}
	result.IsFullyCached = result.CachedBytes >= expectedSize

	log.Debug().
		Str("hash", result.InfoHash).
		Int64("cached_bytes", result.CachedBytes).
		Int64("expected_bytes", expectedSize).
		Bool("fully_cached", result.IsFullyCached).
		Msg("Instant-availability check")

	return result
}

// SearchAndCheck runs a search and annotates each usable result with its
// cache state. Results without an info-hash or byte size, and duplicate
// hashes within one call, are skipped. Returns the annotated results plus
// the check and search wall times.
func (s *Service) SearchAndCheck(ctx context.Context, query string, limit int) ([]CheckedResult, time.Duration, time.Duration) {
	searchResults, searchElapsed := s.indexer.Search(ctx, query, limit)

	checkStart := time.Now()
	checked := make([]CheckedResult, 0, len(searchResults))
	seen := make(map[string]struct{}, len(searchResults))

	var skippedNoHash, skippedNoSize, skippedDup int
	for _, sr := range searchResults {
		if ctx.Err() != nil {
			break
		}

		hash := strings.ToLower(sr.InfoHash)
		switch {
		case hash == "":
			skippedNoHash++
			continue
		case sr.Size <= 0:
			skippedNoSize++
			continue
		}
		if _, dup := seen[hash]; dup {
			skippedDup++
			continue
		}
		seen[hash] = struct{}{}

		check := s.Check(ctx, hash, sr.Size)
		checked = append(checked, CheckedResult{
			SearchResult:  sr,
			Magnet:        "magnet:?xt=urn:btih:" + hash,
			IsFullyCached: check.IsFullyCached,
		})
	}
	checkElapsed := time.Since(checkStart)

	log.Info().
		Str("query", query).
		Int("checked", len(checked)).
		Int("skipped_no_hash", skippedNoHash).
		Int("skipped_no_size", skippedNoSize).
		Int("skipped_duplicate", skippedDup).
		Dur("search_elapsed", searchElapsed).
		Dur("check_elapsed", checkElapsed).
		Msg("Search and cache check complete")

	return checked, checkElapsed, searchElapsed
}
