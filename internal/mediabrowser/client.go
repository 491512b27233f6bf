// SPDX-License-Identifier: MIT

// Package mediabrowser implements the typed client for MediaBrowser-compatible
// (Jellyfin/Emby API family) servers: playback-info queries, progress reports
// and authentication.
package mediabrowser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/castbridge/castbridge/internal/log"
)

// Client issues typed calls against one server. All requests flow through the
// http.Client handed in at construction, which is expected to carry the auth
// and cache-policy transport chain.
type Client struct {
	base   string
	userID string
	http   *http.Client
	logger zerolog.Logger
}

// New builds a client for the server at base. The trailing slash is
// normalised away so path joining stays predictable.
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   httpClient,
		logger: log.WithComponent("mediabrowser"),
	}
}

// BaseURL returns the normalised server base URL.
func (c *Client) BaseURL() string { return c.base }

// SetUserID pins the authenticated user for user-scoped endpoints.
func (c *Client) SetUserID(id string) { c.userID = id }

// GetPlaybackInfo resolves the playable media sources for an item.
func (c *Client) GetPlaybackInfo(ctx context.Context, itemID string) (*PlaybackInfo, error) {
	var info PlaybackInfo
	path := "/Items/" + url.PathEscape(itemID) + "/PlaybackInfo"
	if err := c.getJSON(ctx, "GetPlaybackInfo", path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetItem fetches item metadata (chapters, runtime, user data).
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	path := "/Users/" + url.PathEscape(c.userID) + "/Items/" + url.PathEscape(itemID)
	if err := c.getJSON(ctx, "GetItem", path, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ResumePositionMS returns the server-side resume point for an item in
// milliseconds, or 0 when the server has none.
func (c *Client) ResumePositionMS(ctx context.Context, itemID string) (int64, error) {
	item, err := c.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return MillisecondsFromTicks(item.UserData.PlaybackPositionTicks), nil
}

// ReportProgress pushes the current playback position. Failures are returned
// for the caller to log; the next periodic tick supersedes a lost report.
func (c *Client) ReportProgress(ctx context.Context, report ProgressReport) error {
	body := map[string]any{
		"ItemId":        report.ItemID,
		"PlaySessionId": report.SessionID,
		"PositionTicks": TicksFromMilliseconds(report.PositionMS),
	}
	if err := c.postJSON(ctx, "ReportProgress", "/Sessions/Playing/Progress", body, nil); err != nil {
		return err
	}
	if report.IsWatched {
		path := "/Users/" + url.PathEscape(c.userID) + "/PlayedItems/" + url.PathEscape(report.ItemID)
		return c.postJSON(ctx, "MarkPlayed", path, nil, nil)
	}
	return nil
}

// ReportStopped tells the server playback ended at the given position.
func (c *Client) ReportStopped(ctx context.Context, report ProgressReport) error {
	body := map[string]any{
		"ItemId":        report.ItemID,
		"PlaySessionId": report.SessionID,
		"PositionTicks": TicksFromMilliseconds(report.PositionMS),
	}
	return c.postJSON(ctx, "ReportStopped", "/Sessions/Playing/Stopped", body, nil)
}

// AuthenticateByName performs the credential exchange. This endpoint is the
// one place the auth transport must not trigger refresh or 401 retries.
func (c *Client) AuthenticateByName(ctx context.Context, username, password string) (*AuthResult, error) {
	body := map[string]any{
		"Username": username,
		"Pw":       password,
	}
	var result AuthResult
	if err := c.postJSON(ctx, "AuthenticateByName", "/Users/AuthenticateByName", body, &result); err != nil {
		return nil, err
	}
	c.logger.Info().Str("token", log.RedactToken(result.AccessToken)).Msg("authenticated")
	return &result, nil
}

// --- request plumbing ---

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &APIError{Sentinel: ErrUnknown, Operation: op, Err: err}
	}
	return c.do(op, req, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &APIError{Sentinel: ErrUnknown, Operation: op, Err: err}
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, reader)
	if err != nil {
		return &APIError{Sentinel: ErrUnknown, Operation: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return &APIError{Sentinel: classifyTransport(err), Operation: op, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return &APIError{Sentinel: classifyStatus(res.StatusCode), Operation: op, Status: res.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrUnknown, Operation: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
