// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cachecheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/debrr/internal/debrid"
	"github.com/autobrr/debrr/internal/services/indexer"
)

type fakeAvailability struct {
	variants map[string][]debrid.Variant
	err      error
	calls    []string
}

func (f *fakeAvailability) InstantAvailability(_ context.Context, hash string) ([]debrid.Variant, error) {
	f.calls = append(f.calls, hash)
	if f.err != nil {
		return nil, f.err
	}
	return f.variants[hash], nil
}

type fakeSearcher struct {
	results []indexer.SearchResult
}

func (f *fakeSearcher) Search(context.Context, string, int) ([]indexer.SearchResult, time.Duration) {
	return f.results, 10 * time.Millisecond
}

func variant(sizes ...int64) debrid.Variant {
	v := make(debrid.Variant, len(sizes))
	for i, size := range sizes {
		v[string(rune('1'+i))] = debrid.CachedFile{Filename: "f", Filesize: size}
	}
	return v
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name         string
		variants     []debrid.Variant
		err          error
		expectedSize int64
		wantCached   bool
		wantBytes    int64
	}{
		{
			name:         "sum exceeds expected",
			variants:     []debrid.Variant{variant(600), variant(500)},
			expectedSize: 1000,
			wantCached:   true,
			wantBytes:    1100,
		},
		{
			name:         "sum equals expected",
			variants:     []debrid.Variant{variant(400, 600)},
			expectedSize: 1000,
			wantCached:   true,
			wantBytes:    1000,
		},
		{
			name:         "sum below expected",
			variants:     []debrid.Variant{variant(999)},
			expectedSize: 1000,
			wantCached:   false,
			wantBytes:    999,
		},
		{
			name:         "no variants",
			variants:     nil,
			expectedSize: 0,
			wantCached:   false,
		},
		{
			name:         "lookup failure reads as uncached",
			err:          errors.New("boom"),
			expectedSize: 1,
			wantCached:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avail := &fakeAvailability{
				variants: map[string][]debrid.Variant{"abc123": tt.variants},
				err:      tt.err,
			}
			svc := NewService(&fakeSearcher{}, avail)

			result := svc.Check(context.Background(), "ABC123", tt.expectedSize)

			assert.Equal(t, "abc123", result.InfoHash)
			assert.Equal(t, tt.wantCached, result.IsFullyCached)
			assert.Equal(t, tt.wantBytes, result.CachedBytes)
		})
	}
}

func TestSearchAndCheckSkipsUnusableResults(t *testing.T) {
	hashA := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	search := &fakeSearcher{results: []indexer.SearchResult{
		{Title: "cached", InfoHash: hashA, Size: 100},
		{Title: "no hash", Size: 100},
		{Title: "no size", InfoHash: hashB},
		{Title: "duplicate", InfoHash: hashA, Size: 100},
		{Title: "uncached", InfoHash: hashB, Size: 500},
	}}
	avail := &fakeAvailability{variants: map[string][]debrid.Variant{
		hashA: {variant(150)},
		hashB: {variant(10)},
	}}
	svc := NewService(search, avail)

	checked, checkElapsed, searchElapsed := svc.SearchAndCheck(context.Background(), "anything", 0)

	require.Len(t, checked, 2)
	assert.Equal(t, "cached", checked[0].Title)
	assert.Equal(t, "magnet:?xt=urn:btih:"+hashA, checked[0].Magnet)
	assert.True(t, checked[0].IsFullyCached)
	assert.Equal(t, "uncached", checked[1].Title)
	assert.False(t, checked[1].IsFullyCached)

	assert.Equal(t, []string{hashA, hashB}, avail.calls, "each unique hash checked exactly once")
	assert.Equal(t, 10*time.Millisecond, searchElapsed)
	assert.GreaterOrEqual(t, checkElapsed, time.Duration(0))
}
