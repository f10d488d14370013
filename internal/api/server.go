// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/debrr/internal/api/handlers"
	"github.com/autobrr/debrr/internal/config"
	"github.com/autobrr/debrr/internal/debrid"
	"github.com/autobrr/debrr/internal/services/resolver"
)

type Server struct {
	server *http.Server
	logger zerolog.Logger
	config *config.AppConfig

	debridClient *debrid.Client
	torrentCache *debrid.Cache
	resolver     *resolver.Service
}

type Dependencies struct {
	Config       *config.AppConfig
	DebridClient *debrid.Client
	TorrentCache *debrid.Cache
	Resolver     *resolver.Service
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			// Streaming searches can outlive ordinary requests; no write
			// deadline, the client's disconnect ends the stream.
			WriteTimeout: 0,
			IdleTimeout:  180 * time.Second,
		},
		logger:       log.Logger.With().Str("module", "api").Logger(),
		config:       deps.Config,
		debridClient: deps.DebridClient,
		torrentCache: deps.TorrentCache,
		resolver:     deps.Resolver,
	}
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msgf("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}
	clickableURL := fmt.Sprintf("http://%s%s", host, s.config.Config.BaseURL)

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Msgf("Starting API server - Open: %s", clickableURL)

	s.server.Handler = s.Handler()

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// HTTP compression - handles gzip, brotli, zstd, deflate automatically.
	// SSE frames stay below MinSize and pass through uncompressed.
	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
		Debug:            false,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler()
	searchHandler := handlers.NewSearchHandler(s.resolver)
	accountHandler := handlers.NewAccountHandler(s.debridClient)
	torrentsHandler := handlers.NewTorrentsHandler(s.torrentCache, s.debridClient)
	unrestrictHandler := handlers.NewUnrestrictHandler(s.debridClient)

	routes := func(r chi.Router) {
		r.Route("/health", healthHandler.Routes)
		r.Route("/api", func(r chi.Router) {
			r.Route("/search", searchHandler.Routes)
			r.Route("/account", accountHandler.Routes)
			r.Route("/torrents", torrentsHandler.Routes)
			r.Route("/unrestrict", unrestrictHandler.Routes)
		})
	}

	if baseURL := s.config.Config.BaseURL; baseURL != "" && baseURL != "/" {
		r.Route(strings.TrimRight(baseURL, "/"), routes)
	} else {
		routes(r)
	}

	return r
}
