// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mediafile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVideo(t *testing.T) {
	tests := []struct {
		name string
		file string
		want bool
	}{
		{name: "mkv", file: "Test.Movie.1080p.mkv", want: true},
		{name: "mp4 uppercase extension", file: "CLIP.MP4", want: true},
		{name: "nested path", file: "/Season 1/episode.01.avi", want: true},
		{name: "nfo metadata", file: "release.nfo", want: false},
		{name: "text file", file: "readme.txt", want: false},
		{name: "sample srt", file: "subs/movie.en.srt", want: false},
		{name: "no extension", file: "VIDEO_TS", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVideo(tt.file))
		})
	}
}

func TestSimplifyName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "release name", in: "Test.Movie.2023.1080p.mkv", want: "Test Movie 2023 1080p.mkv"},
		{name: "no dots", in: "movie.mkv", want: "movie.mkv"},
		{name: "no extension", in: "Test.Movie", want: "Test.Movie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SimplifyName(tt.in))
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "1.0 GiB", FormatSize(1<<30))
	assert.Equal(t, "0 B", FormatSize(-1))
}
