// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/debrr/internal/debrid"
	"github.com/autobrr/debrr/internal/metrics"
	"github.com/autobrr/debrr/internal/pkg/mediafile"
	"github.com/autobrr/debrr/internal/services/cachecheck"
)

const (
	defaultPollAttempts = 3
	defaultPollInterval = time.Second

	progressNameLimit = 60
)

// Stage names in the timers payload, part of the wire contract.
const (
	stageSearch     = "Jackett Search"
	stageCacheCheck = "RD Cache Check"
	stageDownload   = "RD Download Links"
)

type debridClient interface {
	AddMagnet(ctx context.Context, magnet string) (string, error)
	SelectFiles(ctx context.Context, torrentID, files string) error
	GetTorrentInfo(ctx context.Context, torrentID string) (*debrid.Torrent, error)
	UnrestrictLink(ctx context.Context, link string) (string, error)
	DeleteTorrent(ctx context.Context, torrentID string) error
}

type libraryLister interface {
	AllTorrents(ctx context.Context) ([]debrid.Torrent, error)
}

type searchChecker interface {
	SearchAndCheck(ctx context.Context, query string, limit int) ([]cachecheck.CheckedResult, time.Duration, time.Duration)
}

// Service turns a media query into downloadable URLs: search, cache check,
// acquire-or-reuse on the debrid backend, poll to completion, unrestrict.
// One Service handles concurrent runs; per-run state lives on the stack.
type Service struct {
	search   searchChecker
	client   debridClient
	library  libraryLister
	registry *Registry
	metrics  *metrics.Collector

	unrestrictWorkers int
	pollAttempts      int
	pollInterval      time.Duration
}

type Config struct {
	Search            searchChecker
	Client            debridClient
	Library           libraryLister
	Registry          *Registry
	Metrics           *metrics.Collector
	UnrestrictWorkers int
}

func NewService(cfg Config) *Service {
	workers := cfg.UnrestrictWorkers
	if workers <= 0 {
		workers = debrid.DefaultUnrestrictWorkers
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Service{
		search:            cfg.Search,
		client:            cfg.Client,
		library:           cfg.Library,
		registry:          registry,
		metrics:           cfg.Metrics,
		unrestrictWorkers: workers,
		pollAttempts:      defaultPollAttempts,
		pollInterval:      defaultPollInterval,
	}
}

// Registry exposes the cancellation registry shared with the API layer.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Resolve runs the full pipeline and returns every resolved torrent plus
// per-stage wall times. Torrents that fail along the way are skipped, never
// fatal; an unreachable indexer simply yields an empty data list.
func (s *Service) Resolve(ctx context.Context, query string, limit int) Result {
	start := time.Now()

	checked, checkElapsed, searchElapsed := s.search.SearchAndCheck(ctx, query, limit)
	run := s.newRun(ctx)

	data := make([]DownloadLinkResult, 0, len(checked))
	for _, candidate := range checked {
		if ctx.Err() != nil {
			break
		}
		if run.alreadyProcessed(candidate) {
			continue
		}
		if result, ok := s.processTorrent(ctx, run, candidate); ok {
			data = append(data, *result)
		}
	}

	elapsed := time.Since(start)
	s.recordRun("completed", elapsed)

	log.Info().
		Str("query", query).
		Int("results", len(data)).
		Dur("elapsed", elapsed).
		Msg("Resolve complete")

	return Result{
		Data: data,
		Timers: []StageTiming{
			{Script: stageSearch, Time: searchElapsed.Seconds()},
			{Script: stageCacheCheck, Time: checkElapsed.Seconds()},
			{Script: stageDownload, Time: elapsed.Seconds()},
		},
	}
}

// ResolveStream starts the pipeline on its own goroutine and returns the
// run's search id plus the event channel. The channel is unbuffered, closed
// when the run ends, and must be drained by exactly one reader; the context
// going away also terminates the run.
func (s *Service) ResolveStream(ctx context.Context, query string, limit int) (string, <-chan Event) {
	searchID, flag := s.registry.Register()
	events := make(chan Event)

	go s.runStream(ctx, searchID, flag, query, limit, events)

	return searchID, events
}

func (s *Service) runStream(ctx context.Context, searchID string, flag *CancelFlag, query string, limit int, events chan<- Event) {
	defer close(events)
	defer s.registry.Remove(searchID)

	start := time.Now()

	emit := func(event Event) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(Event{
		Type:   EventProgress,
		Stage:  "Searching",
		Detail: fmt.Sprintf("Querying the indexer for '%s'...", query),
	}) {
		return
	}

	checked, _, _ := s.search.SearchAndCheck(ctx, query, limit)
	total := len(checked)

	if !emit(Event{
		Type:    EventProgress,
		Stage:   "Checking Duplicates",
		Detail:  "Fetching your existing torrents to prevent duplicates...",
		Total:   ptr(total),
		Current: ptr(0),
	}) {
		return
	}

	run := s.newRun(ctx)

	if !emit(Event{
		Type:    EventProgress,
		Stage:   "Processing",
		Detail:  fmt.Sprintf("Found %d cached torrents. Processing...", total),
		Total:   ptr(total),
		Current: ptr(0),
	}) {
		return
	}

	resultCount := 0
	for idx, candidate := range checked {
		if flag.Cancelled() {
			emit(Event{Type: EventCancelled})
			s.recordRun("cancelled", time.Since(start))
			log.Info().Str("search_id", searchID).Msg("Resolve stream cancelled")
			return
		}
		if ctx.Err() != nil {
			s.recordRun("abandoned", time.Since(start))
			return
		}

		if run.alreadyProcessed(candidate) {
			continue
		}

		if !emit(Event{
			Type:    EventProgress,
			Stage:   "Processing",
			Detail:  fmt.Sprintf("Processing: %s...", truncateName(displayName(candidate))),
			Total:   ptr(total),
			Current: ptr(idx + 1),
		}) {
			return
		}

		if result, ok := s.processTorrent(ctx, run, candidate); ok {
			resultCount++
			if !emit(Event{Type: EventResult, Torrent: result}) {
				return
			}
		}
	}

	elapsed := time.Since(start)
	s.recordRun("completed", elapsed)
	emit(Event{
		Type:    EventDone,
		Total:   ptr(resultCount),
		Elapsed: ptr(math.Round(elapsed.Seconds()*100) / 100),
	})
}

// run holds the per-orchestration state: the dedup set and the existing
// library snapshot, updated in-memory as torrents are acquired so later
// duplicates in the same result set reuse them.
type run struct {
	processed map[string]struct{}
	existing  map[string]string
}

func (s *Service) newRun(ctx context.Context) *run {
	return &run{
		processed: make(map[string]struct{}),
		existing:  s.existingHashes(ctx),
	}
}

// alreadyProcessed reports whether the candidate should be skipped, marking
// its hash as processed otherwise.
func (r *run) alreadyProcessed(candidate cachecheck.CheckedResult) bool {
	hash := strings.ToLower(candidate.InfoHash)
	if candidate.Magnet == "" || hash == "" {
		return true
	}
	if _, dup := r.processed[hash]; dup {
		return true
	}
	r.processed[hash] = struct{}{}
	return false
}

// existingHashes snapshots the caller's library as hash → torrent id. A
// listing failure degrades to an empty map; duplicates are then re-added
// rather than reused, which the backend tolerates.
func (s *Service) existingHashes(ctx context.Context) map[string]string {
	torrents, err := s.library.AllTorrents(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch existing torrents for duplicate check")
		return make(map[string]string)
	}

	hashes := make(map[string]string, len(torrents))
	for _, t := range torrents {
		if t.Hash == "" || t.ID == "" {
			continue
		}
		hashes[strings.ToLower(t.Hash)] = t.ID
	}
	return hashes
}

// processTorrent runs one candidate through acquire-or-reuse, file
// selection, completion wait, and unrestriction. Failures skip the torrent;
// newly added torrents that fail are best-effort deleted.
func (s *Service) processTorrent(ctx context.Context, run *run, candidate cachecheck.CheckedResult) (*DownloadLinkResult, bool) {
	name := displayName(candidate)
	hash := strings.ToLower(candidate.InfoHash)

	isNew := false
	torrentID, found := run.existing[hash]
	if found {
		log.Debug().Str("torrent_id", torrentID).Str("name", name).Msg("Reusing existing torrent")
	} else {
		id, err := s.client.AddMagnet(ctx, candidate.Magnet)
		if err != nil || id == "" {
			log.Warn().Err(err).Str("name", name).Msg("Failed to add magnet")
			return nil, false
		}
		torrentID = id
		isNew = true
		run.existing[hash] = id
	}

	info, err := s.client.GetTorrentInfo(ctx, torrentID)
	if err != nil {
		log.Warn().Err(err).Str("torrent_id", torrentID).Msg("Failed to fetch torrent detail")
		return nil, false
	}

	if isNew || info.Status == debrid.StatusWaitingFiles {
		if err := s.client.SelectFiles(ctx, torrentID, videoFileSelection(info.Files)); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Failed to select files")
			if isNew {
				s.tryDelete(ctx, torrentID)
			}
			return nil, false
		}

		if info, err = s.client.GetTorrentInfo(ctx, torrentID); err != nil {
			log.Warn().Err(err).Str("torrent_id", torrentID).Msg("Failed to re-fetch torrent detail")
			return nil, false
		}
	}

	info, ok := s.awaitCompletion(ctx, info, torrentID, isNew, name)
	if !ok {
		return nil, false
	}

	files := s.unrestrictedFiles(ctx, info)
	log.Debug().Str("name", name).Int("video_files", len(files)).Msg("Torrent processed")
	if len(files) == 0 {
		return nil, false
	}

	return &DownloadLinkResult{
		TorrentName: name,
		Categories:  candidate.Categories,
		Files:       files,
	}, true
}

// awaitCompletion polls torrent detail until downloaded, a dead status, or
// the attempts run out. Dead and never-completing torrents are treated as a
// stale cache-check result: best-effort deleted when newly added, skipped.
func (s *Service) awaitCompletion(ctx context.Context, info *debrid.Torrent, torrentID string, isNew bool, name string) (*debrid.Torrent, bool) {
	for attempt := 0; ; attempt++ {
		if debrid.IsDeadStatus(info.Status) {
			log.Warn().Str("name", name).Str("status", info.Status).Msg("Torrent is dead, skipping")
			if isNew {
				s.tryDelete(ctx, torrentID)
			}
			return nil, false
		}
		if info.Status == debrid.StatusDownloaded {
			return info, true
		}
		if attempt >= s.pollAttempts {
			log.Warn().Str("name", name).Str("status", info.Status).Msg("Torrent never completed, stale cache-check result")
			if isNew {
				s.tryDelete(ctx, torrentID)
			}
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(s.pollInterval):
		}

		next, err := s.client.GetTorrentInfo(ctx, torrentID)
		if err != nil {
			log.Warn().Err(err).Str("torrent_id", torrentID).Msg("Failed to poll torrent detail")
			return nil, false
		}
		info = next
	}
}

// unrestrictedFiles pairs the selected files with their batch-unrestricted
// links and keeps the video files.
func (s *Service) unrestrictedFiles(ctx context.Context, info *debrid.Torrent) []DownloadFile {
	selected := make([]debrid.TorrentFile, 0, len(info.Files))
	for _, f := range info.Files {
		if f.Selected == 1 {
			selected = append(selected, f)
		}
	}

	links := debrid.UnrestrictAll(ctx, s.client, info.Links, s.unrestrictWorkers)

	files := make([]DownloadFile, 0, len(selected))
	for i, f := range selected {
		if i >= len(links) {
			break
		}
		fileName := strings.TrimPrefix(f.Path, "/")
		if !mediafile.IsVideo(fileName) {
			continue
		}
		files = append(files, DownloadFile{
			FileName:     fileName,
			FileSize:     mediafile.FormatSize(f.Bytes),
			DownloadLink: links[i],
		})
	}
	return files
}

func (s *Service) tryDelete(ctx context.Context, torrentID string) {
	if err := s.client.DeleteTorrent(ctx, torrentID); err != nil {
		log.Warn().Err(err).Str("torrent_id", torrentID).Msg("Failed to clean up torrent")
		return
	}
	log.Debug().Str("torrent_id", torrentID).Msg("Cleaned up failed torrent entry")
}

func (s *Service) recordRun(state string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordResolve(state, elapsed)
	}
}

// videoFileSelection returns the comma-joined ids of the video files, or
// "all" when none are recognized.
func videoFileSelection(files []debrid.TorrentFile) string {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		if mediafile.IsVideo(strings.TrimPrefix(f.Path, "/")) {
			ids = append(ids, strconv.Itoa(f.ID))
		}
	}
	if len(ids) == 0 {
		return "all"
	}
	return strings.Join(ids, ",")
}

func displayName(candidate cachecheck.CheckedResult) string {
	if candidate.DisplayTitle != "" {
		return candidate.DisplayTitle
	}
	if candidate.Title != "" {
		return candidate.Title
	}
	return "Unknown Title"
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) > progressNameLimit {
		return string(runes[:progressNameLimit])
	}
	return name
}
