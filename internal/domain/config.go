// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the unmarshal target for the viper-backed configuration file.
type Config struct {
	Version string

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	MetricsEnabled bool   `mapstructure:"metricsEnabled"`
	MetricsHost    string `mapstructure:"metricsHost"`
	MetricsPort    int    `mapstructure:"metricsPort"`

	JackettURL    string `mapstructure:"jackettUrl"`
	JackettAPIKey string `mapstructure:"jackettApiKey"`

	DebridURL            string `mapstructure:"debridUrl"`
	DebridAPIKey         string `mapstructure:"debridApiKey"`
	DebridRequestDelayMs int    `mapstructure:"debridRequestDelayMs"`
	DebridTimeout        int    `mapstructure:"debridTimeout"`
	DebridConnectTimeout int    `mapstructure:"debridConnectTimeout"`

	TorrentCacheTTL   int `mapstructure:"torrentCacheTTL"`
	ListingCacheTTL   int `mapstructure:"listingCacheTTL"`
	UnrestrictWorkers int `mapstructure:"unrestrictWorkers"`
}
