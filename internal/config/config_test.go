// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{
			name:           "toml_file_extension",
			input:          "/path/to/custom.toml",
			expectedSuffix: "custom.toml",
		},
		{
			name:           "TOML_file_extension_uppercase",
			input:          "/path/to/CONFIG.TOML",
			expectedSuffix: "CONFIG.TOML",
		},
		{
			name:           "directory_path",
			input:          "/path/to/config",
			expectedSuffix: "config.toml",
		},
		{
			name:           "existing_file_without_toml",
			input:          "/path/to/configfile",
			setupFile:      true,
			fileIsDir:      false,
			expectedSuffix: "configfile",
		},
		{
			name:           "existing_directory",
			input:          "/path/to/configdir",
			setupFile:      true,
			fileIsDir:      true,
			expectedSuffix: "config.toml",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath := filepath.Join(tmpDir, filepath.Base(tt.input))

			if tt.setupFile {
				if tt.fileIsDir {
					err := os.MkdirAll(inputPath, 0o755)
					require.NoError(t, err)
				} else {
					err := os.WriteFile(inputPath, []byte("test"), 0o644)
					require.NoError(t, err)
				}
			}

			c := &AppConfig{}
			result := c.resolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestNewLoadsConfigFromFileOrDirectory(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (inputPath string, expectedHost string, expectedPort int)
	}{
		{
			name: "config_file_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, int) {
				configPath := filepath.Join(tmpDir, "myconfig.toml")
				content := "host = \"localhost\"\nport = 8080\ndebridApiKey = \"test-key\"\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "localhost", 8080
			},
		},
		{
			name: "config_directory_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, int) {
				configDir := filepath.Join(tmpDir, "configdir")
				require.NoError(t, os.MkdirAll(configDir, 0o755))
				content := "host = \"0.0.0.0\"\nport = 9090\ndebridApiKey = \"dir-key\"\n"
				require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
				return configDir, "0.0.0.0", 9090
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath, expectedHost, expectedPort := tt.prepare(t, tmpDir)

			cfg, err := New(inputPath)
			require.NoError(t, err)

			assert.Equal(t, expectedHost, cfg.Config.Host)
			assert.Equal(t, expectedPort, cfg.Config.Port)
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("debridApiKey = \"k\"\n"), 0o644))

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, 7475, cfg.Config.Port)
	assert.Equal(t, "/", cfg.Config.BaseURL)
	assert.Equal(t, "http://localhost:9117", cfg.Config.JackettURL)
	assert.Equal(t, 200, cfg.Config.DebridRequestDelayMs)
	assert.Equal(t, 15, cfg.Config.DebridTimeout)
	assert.Equal(t, 300, cfg.Config.TorrentCacheTTL)
	assert.Equal(t, 60, cfg.Config.ListingCacheTTL)
	assert.Equal(t, 3, cfg.Config.UnrestrictWorkers)
}

func TestNewCreatesDefaultConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	cfg, err := New(configPath)
	require.NoError(t, err)

	require.FileExists(t, configPath)
	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "jackettUrl")
	assert.Contains(t, string(content), "debridApiKey")
	assert.Equal(t, 7475, cfg.Config.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(envPrefix+"PORT", "9191")
	t.Setenv(envPrefix+"DEBRID_API_KEY", "env-key")
	t.Setenv(envPrefix+"UNRESTRICT_WORKERS", "5")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("port = 8080\n"), 0o644))

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Config.Port)
	assert.Equal(t, "env-key", cfg.Config.DebridAPIKey)
	assert.Equal(t, 5, cfg.Config.UnrestrictWorkers)
}

func TestDebridAPIKeyFromFile(t *testing.T) {
	tests := []struct {
		name          string
		envValue      string
		fileValue     string
		expectedValue string
	}{
		{
			name:          "file_env_var_only",
			fileValue:     "key-from-file",
			expectedValue: "key-from-file",
		},
		{
			name:          "plain_env_var_only",
			envValue:      "key-not-from-file",
			expectedValue: "key-not-from-file",
		},
		{
			name:          "file_wins_over_plain",
			envValue:      "key-not-from-file",
			fileValue:     "key-from-file",
			expectedValue: "key-from-file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			envVar := envPrefix + "DEBRID_API_KEY"

			if tt.envValue != "" {
				t.Setenv(envVar, tt.envValue)
			}
			if tt.fileValue != "" {
				keyPath := filepath.Join(t.TempDir(), "key-file.txt")
				require.NoError(t, os.WriteFile(keyPath, []byte(tt.fileValue+"\n"), 0o644))
				t.Setenv(envVar+"_FILE", keyPath)
			}

			configPath := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(configPath, []byte("port = 8080\n"), 0o644))

			cfg, err := New(configPath)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, cfg.Config.DebridAPIKey)
		})
	}
}
