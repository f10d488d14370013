// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/debrr/internal/services/resolver"
)

const defaultSearchLimit = 10

type linkResolver interface {
	Resolve(ctx context.Context, query string, limit int) resolver.Result
	ResolveStream(ctx context.Context, query string, limit int) (string, <-chan resolver.Event)
	Registry() *resolver.Registry
}

// SearchHandler exposes the resolve pipeline: a blocking call, a Server-Sent
// Events stream, and cancellation of running streams.
type SearchHandler struct {
	resolver linkResolver
}

func NewSearchHandler(resolver linkResolver) *SearchHandler {
	return &SearchHandler{resolver: resolver}
}

func (h *SearchHandler) Routes(r chi.Router) {
	r.Post("/", h.handleSearch)
	r.Get("/stream", h.handleStream)
	r.Post("/{searchID}/cancel", h.handleCancel)
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		RespondError(w, http.StatusBadRequest, "Query is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	result := h.resolver.Resolve(r.Context(), query, limit)
	RespondJSON(w, http.StatusOK, result)
}

func (h *SearchHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		RespondError(w, http.StatusBadRequest, "Query is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	searchID, events := h.resolver.ResolveStream(r.Context(), query, limit)

	// The first frame hands the client its cancellation handle.
	writeSSE(w, map[string]string{"type": "search_id", "search_id": searchID})
	flusher.Flush()

	for event := range events {
		writeSSE(w, event)
		flusher.Flush()
	}
}

func (h *SearchHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "searchID")

	if !h.resolver.Registry().Cancel(searchID) {
		RespondError(w, http.StatusNotFound, "No active search with that id")
		return
	}

	log.Info().Str("search_id", searchID).Msg("Search cancellation requested")
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "cancelled",
		"search_id": searchID,
	})
}

func writeSSE(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode stream event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
