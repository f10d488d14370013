// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

// DownloadFile is one playable file of a resolved torrent. The JSON field
// names are part of the wire contract with existing consumers.
type DownloadFile struct {
	FileName     string `json:"File Name"`
	FileSize     string `json:"File Size"`
	DownloadLink string `json:"Download Link"`
}

// DownloadLinkResult is the externally visible unit of output, one per
// torrent that yielded at least one playable file.
type DownloadLinkResult struct {
	TorrentName string         `json:"Torrent Name"`
	Categories  []string       `json:"Categories"`
	Files       []DownloadFile `json:"Files"`
}

// StageTiming reports the wall time of one pipeline stage in seconds.
type StageTiming struct {
	Script string  `json:"script"`
	Time   float64 `json:"time"`
}

// Result is the blocking form's response.
type Result struct {
	Data   []DownloadLinkResult `json:"data"`
	Timers []StageTiming        `json:"timers"`
}

type EventType string

const (
	EventProgress  EventType = "progress"
	EventResult    EventType = "result"
	EventDone      EventType = "done"
	EventCancelled EventType = "cancelled"
	EventError     EventType = "error"
)

// Event is one frame of the streaming form. Which fields are populated
// depends on Type: progress carries Stage/Detail and, past the initial
// search, Total/Current; result carries Torrent; done carries Total (the
// emitted result count) and Elapsed; error carries Message. Total, Current
// and Elapsed are pointers so a present zero still serializes: consumers
// rely on "total": 0 / "current": 0 appearing on the frames that carry them.
type Event struct {
	Type    EventType           `json:"type"`
	Stage   string              `json:"stage,omitempty"`
	Detail  string              `json:"detail,omitempty"`
	Total   *int                `json:"total,omitempty"`
	Current *int                `json:"current,omitempty"`
	Torrent *DownloadLinkResult `json:"torrent,omitempty"`
	Elapsed *float64            `json:"elapsed,omitempty"`
	Message string              `json:"message,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}
