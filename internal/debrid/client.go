// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package debrid implements the acquisition client for a Real-Debrid
// compatible backend: magnet acquisition, file selection, library listing,
// link unrestriction and instant-availability lookups. Every call is paced by
// a per-client rate limiter; failures are normalized into *Error.
package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/autobrr/debrr/internal/metrics"
)

const (
	defaultBaseURL      = "https://api.real-debrid.com/rest/1.0"
	defaultRequestDelay = 200 * time.Millisecond
	defaultTimeout      = 15 * time.Second
	defaultConnTimeout  = 5 * time.Second

	// listPageSize is the page size used when walking the full library.
	listPageSize = 100

	// maxRetryAfter caps how long a 429 Retry-After header can stall a call.
	maxRetryAfter = 30 * time.Second

	// maxErrorBodyBytes bounds how much of an error response body is read
	// for diagnostics.
	maxErrorBodyBytes = 4 << 10
)

// Config carries the client construction parameters.
type Config struct {
	APIKey         string
	BaseURL        string
	RequestDelay   time.Duration
	Timeout        time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
	Metrics        *metrics.Collector
}

// Client talks to the debrid backend. One pooled http.Client and one rate
// limiter per instance; pacing is not coordinated across instances.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Collector
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = defaultRequestDelay
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	connTimeout := cfg.ConnectTimeout
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connTimeout}).DialContext,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		metrics: cfg.Metrics,
	}
}

// GetAccountInfo fetches the authenticated account and annotates a formatted
// expiration date for display.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if _, err := c.do(ctx, http.MethodGet, "/user", nil, nil, &info); err != nil {
		return nil, err
	}

	if info.Expiration != "" {
		info.FormattedExpiration = formatExpiration(info.Expiration)
	} else {
		info.FormattedExpiration = "N/A"
	}

	return &info, nil
}

// AddMagnet submits a magnet URI and returns the backend-assigned torrent id.
func (c *Client) AddMagnet(ctx context.Context, magnet string) (string, error) {
	form := url.Values{"magnet": {magnet}}

	var resp addMagnetResponse
	if _, err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", nil, form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &Error{Op: "addMagnet", Err: fmt.Errorf("response carried no torrent id")}
	}

	log.Debug().Str("torrentID", resp.ID).Msg("Added magnet to debrid backend")
	return resp.ID, nil
}

// SelectFiles activates a file selection on the torrent. Files is a
// comma-separated id list, or "all" to select everything.
func (c *Client) SelectFiles(ctx context.Context, torrentID, files string) error {
	form := url.Values{"files": {files}}

	_, err := c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(torrentID), nil, form, nil)
	return err
}

// GetTorrentInfo fetches the current record for a torrent, including its file
// list and restricted links.
func (c *Client) GetTorrentInfo(ctx context.Context, torrentID string) (*Torrent, error) {
	var torrent Torrent
	if _, err := c.do(ctx, http.MethodGet, "/torrents/info/"+url.PathEscape(torrentID), nil, nil, &torrent); err != nil {
		return nil, err
	}
	return &torrent, nil
}

// GetAllTorrents walks the paginated torrent listing until the backend
// reports an empty page.
func (c *Client) GetAllTorrents(ctx context.Context) ([]Torrent, error) {
	var all []Torrent

	for page := 1; ; page++ {
		query := url.Values{
			"page":  {strconv.Itoa(page)},
			"limit": {strconv.Itoa(listPageSize)},
		}

		var torrents []Torrent
		status, err := c.do(ctx, http.MethodGet, "/torrents", query, nil, &torrents)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNoContent || len(torrents) == 0 {
			break
		}

		all = append(all, torrents...)
	}

	log.Debug().Int("count", len(all)).Msg("Fetched full torrent listing")
	return all, nil
}

// UnrestrictLink converts a restricted backend link into a directly
// downloadable URL.
func (c *Client) UnrestrictLink(ctx context.Context, link string) (string, error) {
	form := url.Values{"link": {link}}

	var resp unrestrictResponse
	if _, err := c.do(ctx, http.MethodPost, "/unrestrict/link", nil, form, &resp); err != nil {
		return "", err
	}
	if resp.Download == "" {
		return "", &Error{Op: "unrestrict", Err: fmt.Errorf("response carried no download url")}
	}

	return resp.Download, nil
}

// DeleteTorrent removes a torrent from the account's library.
func (c *Client) DeleteTorrent(ctx context.Context, torrentID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/torrents/delete/"+url.PathEscape(torrentID), nil, nil, nil)
	return err
}

// InstantAvailability returns the cached variants the backend holds for an
// info-hash. A hash with no entry yields an empty slice, not an error.
func (c *Client) InstantAvailability(ctx context.Context, infohash string) ([]Variant, error) {
	hash := strings.ToLower(strings.TrimSpace(infohash))

	var resp map[string]availabilityEntry
	if _, err := c.do(ctx, http.MethodGet, "/torrents/instantAvailability/"+url.PathEscape(hash), nil, nil, &resp); err != nil {
		return nil, err
	}

	entry, ok := resp[hash]
	if !ok {
		return nil, nil
	}
	return entry.RD, nil
}

// do executes one paced request. A form body is sent URL-encoded; out, when
// non-nil, receives the decoded JSON response. The HTTP status is returned so
// callers can distinguish 204 pages.
func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, out any) (int, error) {
	op := method + " " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &Error{Op: op, Err: err}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, &Error{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	c.record(err)
	if err != nil {
		return 0, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.sleepRetryAfter(ctx, resp.Header.Get("Retry-After"))
		return resp.StatusCode, &Error{Op: op, StatusCode: resp.StatusCode, Retryable: true}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return resp.StatusCode, &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &Error{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(data) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	return resp.StatusCode, nil
}

// sleepRetryAfter honors a 429 Retry-After header, bounded by maxRetryAfter,
// before the retryable error is surfaced to the caller.
func (c *Client) sleepRetryAfter(ctx context.Context, header string) {
	wait := time.Second
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	}
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}

	log.Warn().Dur("wait", wait).Msg("Debrid backend rate limited request, backing off")

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (c *Client) record(err error) {
	if c.metrics != nil {
		c.metrics.RecordUpstream("debrid", err)
	}
}
