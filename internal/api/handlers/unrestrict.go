// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type linkUnrestrictor interface {
	UnrestrictLink(ctx context.Context, link string) (string, error)
}

type UnrestrictHandler struct {
	client linkUnrestrictor
}

func NewUnrestrictHandler(client linkUnrestrictor) *UnrestrictHandler {
	return &UnrestrictHandler{client: client}
}

func (h *UnrestrictHandler) Routes(r chi.Router) {
	r.Post("/", h.handleUnrestrict)
}

func (h *UnrestrictHandler) handleUnrestrict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Link string `json:"link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	link := strings.TrimSpace(req.Link)
	if link == "" {
		RespondError(w, http.StatusBadRequest, "Link is required")
		return
	}

	download, err := h.client.UnrestrictLink(r.Context(), link)
	if err != nil {
		log.Error().Err(err).Msg("Failed to unrestrict link")
		RespondError(w, http.StatusBadGateway, "Failed to unrestrict link")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"link":     link,
		"download": download,
	})
}
