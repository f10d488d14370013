// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/debrr/internal/api"
	"github.com/autobrr/debrr/internal/buildinfo"
	"github.com/autobrr/debrr/internal/config"
	"github.com/autobrr/debrr/internal/debrid"
	"github.com/autobrr/debrr/internal/metrics"
	"github.com/autobrr/debrr/internal/services/cachecheck"
	"github.com/autobrr/debrr/internal/services/indexer"
	"github.com/autobrr/debrr/internal/services/resolver"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "debrr",
		Short: "Resolve media queries to direct download links",
		Long: `debrr - Search a Jackett aggregate indexer, check Real-Debrid
availability and turn media queries into unrestricted download links.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/debrr/ or %APPDATA%\\debrr\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, logPath)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of debrr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/debrr/config.toml
- Windows: %APPDATA%\debrr\config.toml

You can specify either a directory path or a direct file path:
- Directory: debrr generate-config --config-dir /path/to/config/
- File: debrr generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	logPath   string
}

func NewApplication(configDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() {
	// Initialize configuration
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.logPath != "" {
		os.Setenv("DEBRR__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting debrr")

	if cfg.Config.DebridAPIKey == "" {
		log.Fatal().Msg("No debrid API key configured, set debridApiKey in config.toml or DEBRR__DEBRID_API_KEY")
	}
	if cfg.Config.JackettAPIKey == "" {
		log.Warn().Msg("No Jackett API key configured, searches will likely be rejected")
	}

	collector := metrics.NewCollector()

	debridClient := debrid.NewClient(debrid.Config{
		APIKey:         cfg.Config.DebridAPIKey,
		BaseURL:        cfg.Config.DebridURL,
		RequestDelay:   time.Duration(cfg.Config.DebridRequestDelayMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.Config.DebridTimeout) * time.Second,
		ConnectTimeout: time.Duration(cfg.Config.DebridConnectTimeout) * time.Second,
		UserAgent:      buildinfo.UserAgent,
		Metrics:        collector,
	})

	torrentCache := debrid.NewCache(debridClient,
		time.Duration(cfg.Config.TorrentCacheTTL)*time.Second,
		time.Duration(cfg.Config.ListingCacheTTL)*time.Second,
	)
	defer torrentCache.Close()

	indexerClient := indexer.NewClient(indexer.Config{
		BaseURL: cfg.Config.JackettURL,
		APIKey:  cfg.Config.JackettAPIKey,
		Metrics: collector,
	})

	checkService := cachecheck.NewService(indexerClient, debridClient)

	resolverService := resolver.NewService(resolver.Config{
		Search:            checkService,
		Client:            debridClient,
		Library:           torrentCache,
		Metrics:           collector,
		UnrestrictWorkers: cfg.Config.UnrestrictWorkers,
	})

	// Start server in goroutine
	httpServer := api.NewServer(&api.Dependencies{
		Config:       cfg,
		DebridClient: debridClient,
		TorrentCache: torrentCache,
		Resolver:     resolverService,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	var metricsServer *metrics.Server
	if cfg.Config.MetricsEnabled {
		metricsServer = metrics.NewServer(collector, cfg.Config.MetricsHost, cfg.Config.MetricsPort)

		go func() {
			errorChannel <- metricsServer.ListenAndServe()
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("got error during metrics server shutdown")
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")

		os.Exit(1)
	}

	os.Exit(0)
}
