// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/debrr/internal/debrid"
)

type accountFetcher interface {
	GetAccountInfo(ctx context.Context) (*debrid.AccountInfo, error)
}

type AccountHandler struct {
	client accountFetcher
}

func NewAccountHandler(client accountFetcher) *AccountHandler {
	return &AccountHandler{client: client}
}

func (h *AccountHandler) Routes(r chi.Router) {
	r.Get("/", h.handleGet)
}

func (h *AccountHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.client.GetAccountInfo(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch account info")
		RespondError(w, http.StatusBadGateway, "Failed to fetch account info")
		return
	}

	RespondJSON(w, http.StatusOK, info)
}
