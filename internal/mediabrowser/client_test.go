// SPDX-License-Identifier: MIT

package mediabrowser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlaybackInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Items/item-1/PlaybackInfo", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"PlaySessionId": "sess-1",
			"MediaSources": []map[string]any{{
				"Id":                 "src-1",
				"Container":          "mkv",
				"SupportsDirectPlay": true,
				"TranscodingUrl":     "/videos/item-1/master.m3u8",
				"MediaStreams": []map[string]any{
					{"Index": 0, "Type": "Video", "Codec": "h264"},
					{
						"Index":        3,
						"Type":         "Subtitle",
						"Codec":        "srt",
						"Language":     "eng",
						"DisplayTitle": "English (SRT)",
						"IsExternal":   true,
						"DeliveryUrl":  "/Videos/item-1/src-1/Subtitles/3/Stream.srt",
					},
				},
			}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	info, err := c.GetPlaybackInfo(context.Background(), "item-1")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", info.PlaySessionID)
	require.Len(t, info.MediaSources, 1)
	assert.Equal(t, "mkv", info.MediaSources[0].Container)
	assert.True(t, info.MediaSources[0].SupportsDirectPlay)
	assert.Equal(t, "/videos/item-1/master.m3u8", info.MediaSources[0].TranscodingURL)

	require.Len(t, info.MediaSources[0].MediaStreams, 2)
	sub := info.MediaSources[0].MediaStreams[1]
	assert.Equal(t, StreamTypeSubtitle, sub.Type)
	assert.True(t, sub.IsExternal)
	assert.Equal(t, "/Videos/item-1/src-1/Subtitles/3/Stream.srt", sub.DeliveryURL)
}

func TestGetItemUsesUserScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Users/user-7/Items/item-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Id":           "item-1",
			"Name":         "Some Movie",
			"RunTimeTicks": int64(36_000_000_000),
			"UserData": map[string]any{
				"PlaybackPositionTicks": int64(900_000_000),
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	c.SetUserID("user-7")

	item, err := c.GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Some Movie", item.Name)
	assert.Equal(t, int64(3_600_000), MillisecondsFromTicks(item.RuntimeTicks))

	pos, err := c.ResumePositionMS(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), pos)
}

func TestReportProgressSendsTicks(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var progressBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/Sessions/Playing/Progress" {
			_ = json.NewDecoder(r.Body).Decode(&progressBody)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	c.SetUserID("user-7")

	err := c.ReportProgress(context.Background(), ProgressReport{
		ItemID:     "item-1",
		SessionID:  "sess-1",
		PositionMS: 90_000,
		IsWatched:  true,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/Sessions/Playing/Progress", "/Users/user-7/PlayedItems/item-1"}, paths)
	assert.Equal(t, float64(900_000_000), progressBody["PositionTicks"])
	assert.Equal(t, "sess-1", progressBody["PlaySessionId"])
}

func TestReportProgressUnwatchedSkipsMarkPlayed(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	require.NoError(t, c.ReportProgress(context.Background(), ProgressReport{
		ItemID: "item-1", SessionID: "sess-1", PositionMS: 5000,
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/Sessions/Playing/Progress"}, paths)
}

func TestAuthenticateByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Users/AuthenticateByName", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["Username"])
		assert.Equal(t, "secret", body["Pw"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"AccessToken": "tok-123",
			"User":        map[string]any{"Id": "user-7"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	result, err := c.AuthenticateByName(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", result.AccessToken)
	assert.Equal(t, "user-7", result.User.ID)
}

func TestErrorClassificationFromStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrServer},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadRequest, ErrValidation},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := New(srv.URL, srv.Client())
		_, err := c.GetPlaybackInfo(context.Background(), "item-1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, tc.status, apiErr.Status)
		srv.Close()
	}
}

func TestCancellationIsPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, srv.Client())
	_, err := c.GetPlaybackInfo(ctx, "item-1")
	assert.ErrorIs(t, err, ErrCancelled)
}
