// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package mediafile recognizes playable video files and formats byte sizes
// for display.
package mediafile

import (
	"path"
	"strings"

	"github.com/dustin/go-humanize"
)

// videoExtensions covers the container formats the debrid backends serve as
// streamable payloads. Lowercase, with leading dot.
var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".wmv":  {},
	".flv":  {},
	".webm": {},
	".m4v":  {},
	".mpg":  {},
	".mpeg": {},
	".ts":   {},
	".m2ts": {},
	".vob":  {},
	".ogv":  {},
	".3gp":  {},
	".divx": {},
}

// IsVideo reports whether the file name (or path) carries a known video
// container extension.
func IsVideo(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	_, ok := videoExtensions[ext]
	return ok
}

// FormatSize renders a byte count as a human-readable IEC size, e.g. "1.4 GiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// SimplifyName replaces the dot separators common in release names with
// spaces, preserving the file extension.
func SimplifyName(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	simplified := strings.ReplaceAll(base, ".", " ")
	return simplified + ext
}
