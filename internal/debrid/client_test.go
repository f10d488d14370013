// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:       "token",
		BaseURL:      baseURL,
		RequestDelay: time.Millisecond,
		Timeout:      5 * time.Second,
	})
}

func TestGetAccountInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"username":"tester","email":"t@example.com","premium":86400,"expiration":"2026-12-31T23:59:59.000Z"}`)
	}))
	defer server.Close()

	info, err := newTestClient(server.URL).GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tester", info.Username)
	assert.NotEqual(t, "N/A", info.FormattedExpiration)
	assert.Contains(t, info.FormattedExpiration, "2026")
}

func TestAddMagnetSendsFormBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/torrents/addMagnet", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "magnet:?xt=urn:btih:abc", r.PostForm.Get("magnet"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"TORRENT1","uri":"/torrents/info/TORRENT1"}`)
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	require.NoError(t, err)
	assert.Equal(t, "TORRENT1", id)
}

func TestAddMagnetMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	require.Error(t, err)
	var debridErr *Error
	assert.ErrorAs(t, err, &debridErr)
}

func TestSelectFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/torrents/selectFiles/TORRENT1", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1,3", r.PostForm.Get("files"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestClient(server.URL).SelectFiles(context.Background(), "TORRENT1", "1,3")
	assert.NoError(t, err)
}

func TestGetAllTorrentsPaginates(t *testing.T) {
	var pages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		assert.Equal(t, "/torrents", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `[{"id":"a","hash":"h1","status":"downloaded"},{"id":"b","hash":"h2","status":"downloaded"}]`)
		case "2":
			fmt.Fprint(w, `[{"id":"c","hash":"h3","status":"queued"}]`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	torrents, err := newTestClient(server.URL).GetAllTorrents(context.Background())
	require.NoError(t, err)
	require.Len(t, torrents, 3)
	assert.Equal(t, "c", torrents[2].ID)
	assert.EqualValues(t, 3, pages.Load())
}

func TestRateLimitedRequestIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	start := time.Now()
	_, err := newTestClient(server.URL).GetTorrentInfo(context.Background(), "x")
	require.Error(t, err)

	var debridErr *Error
	require.ErrorAs(t, err, &debridErr)
	assert.True(t, debridErr.Retryable)
	assert.True(t, debridErr.IsRateLimited())
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "Retry-After honored before surfacing")
}

func TestErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"bad_token"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetTorrentInfo(context.Background(), "x")
	require.Error(t, err)

	var debridErr *Error
	require.ErrorAs(t, err, &debridErr)
	assert.Equal(t, http.StatusBadRequest, debridErr.StatusCode)
	assert.False(t, debridErr.Retryable)
	assert.Contains(t, debridErr.Error(), "bad_token")
}

func TestUnrestrictLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/unrestrict/link", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://rd.example/d/abc", r.PostForm.Get("link"))
		fmt.Fprint(w, `{"id":"u1","download":"https://direct.example/file.mkv"}`)
	}))
	defer server.Close()

	direct, err := newTestClient(server.URL).UnrestrictLink(context.Background(), "https://rd.example/d/abc")
	require.NoError(t, err)
	assert.Equal(t, "https://direct.example/file.mkv", direct)
}

func TestDeleteTorrent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/torrents/delete/TORRENT1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	assert.NoError(t, newTestClient(server.URL).DeleteTorrent(context.Background(), "TORRENT1"))
}

func TestInstantAvailability(t *testing.T) {
	hash := "aabbccddeeff00112233445566778899aabbccdd"

	tests := []struct {
		name         string
		body         string
		wantVariants int
	}{
		{
			name:         "cached with two variants",
			body:         fmt.Sprintf(`{"%s":{"rd":[{"1":{"filename":"a.mkv","filesize":100}},{"1":{"filename":"a.mkv","filesize":100},"2":{"filename":"b.mkv","filesize":200}}]}}`, hash),
			wantVariants: 2,
		},
		{
			name:         "uncached hash returns empty array entry",
			body:         fmt.Sprintf(`{"%s":[]}`, hash),
			wantVariants: 0,
		},
		{
			name:         "hash absent from response",
			body:         `{}`,
			wantVariants: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/torrents/instantAvailability/"+hash, r.URL.Path)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			variants, err := newTestClient(server.URL).InstantAvailability(context.Background(), hash)
			require.NoError(t, err)
			assert.Len(t, variants, tt.wantVariants)
		})
	}
}

func TestRequestPacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:       "token",
		BaseURL:      server.URL,
		RequestDelay: 50 * time.Millisecond,
	})

	start := time.Now()
	for range 3 {
		require.NoError(t, client.DeleteTorrent(context.Background(), "x"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "calls paced by the limiter")
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient("http://127.0.0.1:0").GetAccountInfo(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
