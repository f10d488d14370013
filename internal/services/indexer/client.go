// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/avast/retry-go"
	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/debrr/internal/metrics"
)

const (
	maxTorrentDownloadBytes int64 = 16 << 20 // 16 MiB safety limit for torrent blobs

	searchAttempts    = 5
	fetchAttempts     = 2
	defaultRetryDelay = 2 * time.Second
)

// btihPattern matches the urn:btih info-hash inside a magnet link.
var btihPattern = regexp.MustCompile(`urn:btih:([A-Fa-f0-9]{32,40})`)

// Config holds the Torznab aggregator connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Metrics *metrics.Collector
}

// Client queries a Jackett aggregate Torznab endpoint and resolves each
// result to an info-hash. The zero limit means the endpoint's default.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retryDelay time.Duration
	metrics    *metrics.Collector
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirects are handled manually so a hop to a magnet: URI can be
			// read instead of failing the request.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		retryDelay: defaultRetryDelay,
		metrics:    cfg.Metrics,
	}
}

// Search runs a Torznab query and returns every result that could be
// resolved to an info-hash, plus the elapsed wall time. Failures degrade to
// an empty slice; the caller always gets a usable (possibly empty) list.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, time.Duration) {
	start := time.Now()

	feed, err := c.fetchFeed(ctx, query, limit)
	c.record(err)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Torznab search failed")
		return []SearchResult{}, time.Since(start)
	}

	results := make([]SearchResult, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if ctx.Err() != nil {
			break
		}

		if strings.Contains(item.Link, "1337x") {
			log.Debug().Str("title", item.Title).Msg("Skipping result with unusable download link")
			continue
		}

		hash, ok := c.resolveInfoHash(ctx, item)
		if !ok {
			log.Debug().Str("title", item.Title).Msg("Skipping result without resolvable info-hash")
			continue
		}

		results = append(results, SearchResult{
			Title:        item.Title,
			DisplayTitle: displayTitle(item.Title),
			Seeders:      attrInt(item, "seeders"),
			Leechers:     attrInt(item, "peers"),
			Categories:   itemCategories(item),
			InfoHash:     strings.ToLower(hash),
			Size:         item.Size,
		})
	}

	elapsed := time.Since(start)
	log.Info().
		Str("query", query).
		Int("results", len(results)).
		Dur("elapsed", elapsed).
		Msg("Torznab search complete")

	return results, elapsed
}

// fetchFeed performs the aggregate query with retries. Anti-bot challenge
// pages and transient transport errors are retried on a fixed delay.
func (c *Client) fetchFeed(ctx context.Context, query string, limit int) (*rssFeed, error) {
	endpoint, err := url.Parse(c.baseURL + "/api/v2.0/indexers/all/results/torznab/api")
	if err != nil {
		return nil, fmt.Errorf("parse torznab endpoint: %w", err)
	}

	params := endpoint.Query()
	params.Set("t", "search")
	params.Set("q", query)
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	endpoint.RawQuery = params.Encode()

	var feed rssFeed
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("torznab request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentDownloadBytes))
			if err != nil {
				return fmt.Errorf("read torznab response: %w", err)
			}

			if isChallengeResponse(resp, body) {
				log.Warn().Int("status", resp.StatusCode).Msg("Torznab endpoint returned an anti-bot challenge, retrying")
				return fmt.Errorf("torznab endpoint returned a challenge page (status %d)", resp.StatusCode)
			}
			if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
				return fmt.Errorf("torznab returned status %d", resp.StatusCode)
			}

			feed = rssFeed{}
			if err := xml.Unmarshal(body, &feed); err != nil {
				return fmt.Errorf("decode torznab feed: %w", err)
			}
			return nil
		},
		retry.Attempts(searchAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	return &feed, nil
}

// resolveInfoHash resolves an item's info-hash: the explicit torznab attr
// first, then the magnet link, then by downloading the torrent file and
// hashing its info dictionary.
func (c *Client) resolveInfoHash(ctx context.Context, item rssItem) (string, bool) {
	if hash := strings.TrimSpace(item.attr("infohash")); hash != "" {
		return hash, true
	}

	if strings.HasPrefix(item.Link, "magnet:") {
		if m := btihPattern.FindStringSubmatch(item.Link); m != nil {
			return m[1], true
		}
		return "", false
	}

	if item.Link == "" {
		return "", false
	}

	var hash string
	err := retry.Do(
		func() error {
			var err error
			hash, err = c.fetchInfoHash(ctx, item.Link)
			return err
		},
		retry.Attempts(fetchAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Debug().Err(err).Str("title", item.Title).Msg("Torrent file fetch failed")
		return "", false
	}
	return hash, true
}

// fetchInfoHash downloads a torrent file and hashes its info dictionary.
// One redirect hop is followed manually; a redirect to a magnet: URI is
// resolved from the URI itself instead of being fetched.
func (c *Client) fetchInfoHash(ctx context.Context, link string) (string, error) {
	resp, err := c.get(ctx, link)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return "", fmt.Errorf("redirect from %s carried no location", link)
		}
		if strings.HasPrefix(location, "magnet:") {
			if m := btihPattern.FindStringSubmatch(location); m != nil {
				return m[1], nil
			}
			return "", fmt.Errorf("magnet redirect carried no info-hash")
		}
		if resp, err = c.get(ctx, location); err != nil {
			return "", err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("torrent download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentDownloadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read torrent body: %w", err)
	}
	if int64(len(data)) > maxTorrentDownloadBytes {
		return "", fmt.Errorf("torrent download exceeded %d bytes limit", maxTorrentDownloadBytes)
	}

	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse torrent file: %w", err)
	}
	return mi.HashInfoBytes().HexString(), nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build torrent request: %w", err)
	}
	req.Header.Set("Accept", "application/x-bittorrent, application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("torrent download failed: %w", err)
	}
	return resp, nil
}

func (c *Client) record(err error) {
	if c.metrics != nil {
		c.metrics.RecordUpstream("indexer", err)
	}
}

// isChallengeResponse detects Cloudflare-style anti-bot interstitials that
// come back with a success-shaped HTML body instead of a feed.
func isChallengeResponse(resp *http.Response, body []byte) bool {
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(resp.Header.Get("Server"))
		if strings.Contains(server, "cloudflare") {
			return true
		}
	}
	snippet := strings.ToLower(string(body[:min(len(body), 2048)]))
	return strings.Contains(snippet, "just a moment") || strings.Contains(snippet, "cf-challenge")
}

// itemCategories maps the item's numeric Torznab categories to names,
// preserving feed order and skipping ids without a known name.
func itemCategories(item rssItem) []string {
	values := item.attrAll("category")
	names := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		name, ok := CategoryName(id)
		if !ok {
			log.Debug().Int("category", id).Msg("Unknown torznab category id")
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func attrInt(item rssItem, name string) int {
	v, err := strconv.Atoi(item.attr(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// displayTitle derives a human-friendly title from the release name. Scene
// names that fail to parse fall back to the raw title.
func displayTitle(raw string) string {
	r := rls.ParseString(raw)
	if r.Title == "" {
		return raw
	}
	if r.Year > 0 {
		return fmt.Sprintf("%s (%d)", r.Title, r.Year)
	}
	return r.Title
}
