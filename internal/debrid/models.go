// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"encoding/json"
	"fmt"
	"time"
)

// Torrent status values reported by the backend.
const (
	StatusQueued       = "queued"
	StatusDownloading  = "downloading"
	StatusWaitingFiles = "waiting_files_selection"
	StatusDownloaded   = "downloaded"
	StatusError        = "error"
	StatusMagnetError  = "magnet_error"
	StatusVirus        = "virus"
	StatusDead         = "dead"
)

// IsDeadStatus reports whether the status is terminal and unrecoverable.
// Torrents in these states will never reach "downloaded".
func IsDeadStatus(status string) bool {
	switch status {
	case StatusError, StatusMagnetError, StatusVirus, StatusDead:
		return true
	default:
		return false
	}
}

// AccountInfo describes the authenticated debrid account.
type AccountInfo struct {
	ID                  int64  `json:"id"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	Type                string `json:"type"`
	Premium             int64  `json:"premium"`
	Expiration          string `json:"expiration"`
	FormattedExpiration string `json:"formatted_expiration,omitempty"`
}

// TorrentFile is an immutable file snapshot within a torrent. Selected is 1
// when the file is part of the active selection. The backend re-reports the
// full list after selection changes; entries are never patched in place.
type TorrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// Torrent is the backend's record for an acquired torrent. Links is
// index-aligned with the subset of Files whose Selected flag is set.
type Torrent struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Hash     string        `json:"hash"`
	Bytes    int64         `json:"bytes"`
	Progress float64       `json:"progress"`
	Status   string        `json:"status"`
	Added    string        `json:"added"`
	Ended    string        `json:"ended,omitempty"`
	Seeders  int           `json:"seeders,omitempty"`
	Speed    int64         `json:"speed,omitempty"`
	Files    []TorrentFile `json:"files"`
	Links    []string      `json:"links"`
}

// CachedFile is one candidate file inside a cached variant.
type CachedFile struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// Variant is one file-selection bundle the backend reports as cached for a
// given info-hash, keyed by file id.
type Variant map[string]CachedFile

// availabilityEntry tolerates the backend's two encodings for an info-hash
// entry: an object carrying an "rd" variant list when cached, or an empty
// array when not.
type availabilityEntry struct {
	RD []Variant `json:"rd"`
}

func (e *availabilityEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		e.RD = nil
		return nil
	}
	type plain availabilityEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = availabilityEntry(p)
	return nil
}

type addMagnetResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type unrestrictResponse struct {
	Download string `json:"download"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// Error is the single failure kind surfaced by the client. Transport
// failures, non-2xx responses and malformed payloads are all normalized into
// it so callers can treat acquisition failures uniformly.
type Error struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("debrid: %s returned status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("debrid: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("debrid: %s returned status %d", e.Op, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	_, ok := target.(*Error)
	return ok
}

// IsRateLimited returns true when the backend answered with HTTP 429.
func (e *Error) IsRateLimited() bool {
	return e.StatusCode == 429
}

// Expiration layouts the backend has been observed to use.
var expirationLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
}

func formatExpiration(raw string) string {
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("January 2, 2006, 15:04:05 UTC")
		}
	}
	return raw
}
