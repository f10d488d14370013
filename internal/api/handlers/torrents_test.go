// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/debrr/internal/debrid"
)

type fakeTorrentStore struct {
	torrents    []debrid.Torrent
	listErr     error
	infoErr     error
	deleteErr   map[string]error
	invalidated []string
	deleted     []string
}

func (f *fakeTorrentStore) TorrentInfo(ctx context.Context, torrentID string) (*debrid.Torrent, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	for i := range f.torrents {
		if f.torrents[i].ID == torrentID {
			return &f.torrents[i], nil
		}
	}
	return nil, &debrid.Error{Op: "torrent info", StatusCode: http.StatusNotFound}
}

func (f *fakeTorrentStore) AllTorrents(ctx context.Context) ([]debrid.Torrent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.torrents, nil
}

func (f *fakeTorrentStore) InvalidateTorrent(torrentID string) {
	f.invalidated = append(f.invalidated, torrentID)
}

func (f *fakeTorrentStore) DeleteTorrent(ctx context.Context, torrentID string) error {
	if err := f.deleteErr[torrentID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, torrentID)
	return nil
}

func newTorrentsRouter(f *fakeTorrentStore) *chi.Mux {
	r := chi.NewRouter()
	NewTorrentsHandler(f, f).Routes(r)
	return r
}

func TestTorrentsList(t *testing.T) {
	f := &fakeTorrentStore{
		torrents: []debrid.Torrent{
			{ID: "rd1", Filename: "Movie.One.mkv"},
			{ID: "rd2", Filename: "Movie.Two.mkv"},
		},
	}
	router := newTorrentsRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Torrents []struct {
			ID          string `json:"id"`
			Filename    string `json:"filename"`
			DisplayName string `json:"display_name"`
		} `json:"torrents"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Torrents, 2)
	assert.Equal(t, "rd1", body.Torrents[0].ID)
	assert.Equal(t, "Movie.One.mkv", body.Torrents[0].Filename)
	assert.Equal(t, "Movie One.mkv", body.Torrents[0].DisplayName)
}

func TestTorrentsDetailIncludesDisplayName(t *testing.T) {
	f := &fakeTorrentStore{
		torrents: []debrid.Torrent{{ID: "rd1", Filename: "Show.S01E01.1080p.mkv"}},
	}
	router := newTorrentsRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/rd1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Show.S01E01.1080p.mkv", body["filename"])
	assert.Equal(t, "Show S01E01 1080p.mkv", body["display_name"])
}

func TestTorrentsDetailNotFound(t *testing.T) {
	router := newTorrentsRouter(&fakeTorrentStore{})

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTorrentsDelete(t *testing.T) {
	f := &fakeTorrentStore{
		torrents: []debrid.Torrent{{ID: "rd1"}},
	}
	router := newTorrentsRouter(f)

	req := httptest.NewRequest(http.MethodDelete, "/rd1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"rd1"}, f.deleted)
	assert.Equal(t, []string{"rd1"}, f.invalidated)
}

func TestTorrentsBulkDelete(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		deleteErr       map[string]error
		expectedStatus  int
		expectedDeleted []any
		expectedFailed  []any
	}{
		{
			name:            "all_succeed",
			body:            `{"ids":["a","b"]}`,
			expectedStatus:  http.StatusOK,
			expectedDeleted: []any{"a", "b"},
			expectedFailed:  []any{},
		},
		{
			name:            "partial_failure",
			body:            `{"ids":["a","b"]}`,
			deleteErr:       map[string]error{"b": &debrid.Error{Op: "delete torrent", StatusCode: http.StatusBadGateway}},
			expectedStatus:  http.StatusOK,
			expectedDeleted: []any{"a"},
			expectedFailed:  []any{"b"},
		},
		{
			name:            "all_fail",
			body:            `{"ids":["a"]}`,
			deleteErr:       map[string]error{"a": &debrid.Error{Op: "delete torrent", StatusCode: http.StatusBadGateway}},
			expectedStatus:  http.StatusBadGateway,
			expectedDeleted: []any{},
			expectedFailed:  []any{"a"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeTorrentStore{deleteErr: tt.deleteErr}
			router := newTorrentsRouter(f)

			req := httptest.NewRequest(http.MethodPost, "/delete", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.expectedStatus, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.ElementsMatch(t, tt.expectedDeleted, body["deleted"])
			assert.ElementsMatch(t, tt.expectedFailed, body["failed"])
		})
	}
}

func TestTorrentsBulkDeleteRejectsEmptyList(t *testing.T) {
	router := newTorrentsRouter(&fakeTorrentStore{})

	req := httptest.NewRequest(http.MethodPost, "/delete", strings.NewReader(`{"ids":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
