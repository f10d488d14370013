// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/debrr/internal/debrid"
	"github.com/autobrr/debrr/internal/pkg/mediafile"
)

type torrentReader interface {
	TorrentInfo(ctx context.Context, torrentID string) (*debrid.Torrent, error)
	AllTorrents(ctx context.Context) ([]debrid.Torrent, error)
	InvalidateTorrent(torrentID string)
}

type torrentDeleter interface {
	DeleteTorrent(ctx context.Context, torrentID string) error
}

// TorrentsHandler serves the account's torrent library. Reads go through
// the TTL cache; deletions hit the backend and invalidate the cache entry.
type TorrentsHandler struct {
	cache  torrentReader
	client torrentDeleter
}

func NewTorrentsHandler(cache torrentReader, client torrentDeleter) *TorrentsHandler {
	return &TorrentsHandler{
		cache:  cache,
		client: client,
	}
}

// torrentView decorates a library torrent with a display name: the raw
// filename with its dots swapped for spaces, extension kept as is.
type torrentView struct {
	debrid.Torrent
	DisplayName string `json:"display_name"`
}

func newTorrentView(t debrid.Torrent) torrentView {
	return torrentView{
		Torrent:     t,
		DisplayName: mediafile.SimplifyName(t.Filename),
	}
}

func (h *TorrentsHandler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/delete", h.handleBulkDelete)
	r.Get("/{torrentID}", h.handleDetail)
	r.Delete("/{torrentID}", h.handleDelete)
}

func (h *TorrentsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	torrents, err := h.cache.AllTorrents(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list torrents")
		RespondError(w, http.StatusBadGateway, "Failed to list torrents")
		return
	}

	views := make([]torrentView, 0, len(torrents))
	for _, t := range torrents {
		views = append(views, newTorrentView(t))
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"torrents": views,
		"count":    len(views),
	})
}

func (h *TorrentsHandler) handleDetail(w http.ResponseWriter, r *http.Request) {
	torrentID := chi.URLParam(r, "torrentID")

	torrent, err := h.cache.TorrentInfo(r.Context(), torrentID)
	if err != nil {
		respondUpstreamError(w, err, "Failed to fetch torrent")
		return
	}

	RespondJSON(w, http.StatusOK, newTorrentView(*torrent))
}

func (h *TorrentsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	torrentID := chi.URLParam(r, "torrentID")

	if err := h.client.DeleteTorrent(r.Context(), torrentID); err != nil {
		respondUpstreamError(w, err, "Failed to delete torrent")
		return
	}
	h.cache.InvalidateTorrent(torrentID)

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": torrentID})
}

func (h *TorrentsHandler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		RespondError(w, http.StatusBadRequest, "No torrent ids provided")
		return
	}

	deleted := make([]string, 0, len(req.IDs))
	failed := make([]string, 0)
	for _, id := range req.IDs {
		if err := h.client.DeleteTorrent(r.Context(), id); err != nil {
			log.Warn().Err(err).Str("torrent_id", id).Msg("Failed to delete torrent")
			failed = append(failed, id)
			continue
		}
		h.cache.InvalidateTorrent(id)
		deleted = append(deleted, id)
	}

	status := http.StatusOK
	if len(deleted) == 0 {
		status = http.StatusBadGateway
	}
	RespondJSON(w, status, map[string]any{
		"deleted": deleted,
		"failed":  failed,
	})
}

// respondUpstreamError maps a backend error onto the closest HTTP status,
// passing 404s through so a missing torrent does not read as a gateway
// failure.
func respondUpstreamError(w http.ResponseWriter, err error, message string) {
	var debridErr *debrid.Error
	if errors.As(err, &debridErr) && debridErr.StatusCode == http.StatusNotFound {
		RespondError(w, http.StatusNotFound, "Torrent not found")
		return
	}

	log.Error().Err(err).Msg(message)
	RespondError(w, http.StatusBadGateway, message)
}
