// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/castbridge/castbridge/internal/log"
	"github.com/castbridge/castbridge/internal/metrics"
)

// TokenSource is the credential owner consulted by the transport. The
// transport only reads and triggers refreshes; it never stores tokens itself.
type TokenSource interface {
	Token() string
	IsAuthenticated() bool
	IsExpired() bool
	ShouldRefresh() bool
	Refresh(ctx context.Context) error
}

// Transport attaches MediaBrowser credentials to outbound requests,
// proactively refreshes near-expiry tokens, and retries 401 responses with a
// bounded backoff schedule. It is a synchronous pipeline stage: refresh
// blocks the request until it completes, and concurrent refreshes are
// coalesced by the TokenSource.
type Transport struct {
	next    http.RoundTripper
	tokens  TokenSource
	id      Identity
	backoff []time.Duration
	sleep   func(time.Duration)
	logger  zerolog.Logger
}

// NewTransport builds the auth pipeline stage. backoff names the per-attempt
// delay schedule for 401 retries; its length caps the retry count.
func NewTransport(next http.RoundTripper, tokens TokenSource, id Identity, backoff []time.Duration) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if len(backoff) == 0 {
		backoff = []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond}
	}
	return &Transport{
		next:    next,
		tokens:  tokens,
		id:      id,
		backoff: backoff,
		sleep:   time.Sleep,
		logger:  log.WithComponent("auth"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isAuthEndpoint(req.URL.Path) {
		// The credential exchange itself: attach the identity header (no
		// token requirement) and never refresh or retry here.
		out := req.Clone(req.Context())
		out.Header.Set(authorizationHeader, BuildHeader(t.id, t.tokens.Token()))
		return t.next.RoundTrip(out)
	}

	// Proactive refresh when the token has already lapsed or is about to.
	// Failures are logged, not thrown: the request proceeds and the server's
	// verdict is surfaced as an ordinary HTTP error.
	if t.tokens.IsAuthenticated() && (t.tokens.IsExpired() || t.tokens.ShouldRefresh()) {
		if err := t.tokens.Refresh(req.Context()); err != nil {
			t.logger.Warn().Err(err).Msg("proactive token refresh failed")
		}
	}

	res, err := t.next.RoundTrip(t.withCredentials(req))
	if err != nil {
		return nil, err
	}

	for attempt := 1; res.StatusCode == http.StatusUnauthorized && attempt <= len(t.backoff); attempt++ {
		if req.GetBody == nil && req.Body != nil {
			// Consumed, non-replayable body: the 401 must propagate.
			break
		}

		if delay := t.backoff[attempt-1]; delay > 0 {
			t.sleep(delay)
		}

		if refreshErr := t.tokens.Refresh(req.Context()); refreshErr != nil {
			t.logger.Warn().Err(refreshErr).Int("attempt", attempt).Msg("re-authentication failed, not retrying")
			break
		}

		drainAndClose(res)
		metrics.RecordAuthRetry()
		t.logger.Debug().Int("attempt", attempt).Str("path", req.URL.Path).Msg("retrying after 401")

		res, err = t.next.RoundTrip(t.withCredentials(req))
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// withCredentials clones req with the current auth headers attached. The
// clone rewinds the body via GetBody so a retry replays the full request.
func (t *Transport) withCredentials(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if req.GetBody != nil && req.Body != nil {
		if body, err := req.GetBody(); err == nil {
			out.Body = body
		}
	}
	token := t.tokens.Token()
	out.Header.Set(authorizationHeader, BuildHeader(t.id, token))
	if token != "" {
		out.Header.Set(tokenHeader, token)
	}
	return out
}

func isAuthEndpoint(path string) bool {
	return strings.Contains(path, "/AuthenticateByName") || strings.Contains(path, "/AuthenticateWithQuickConnect")
}

// drainAndClose consumes what is left of a discarded response body before
// closing it, so the underlying connection stays reusable for the retry.
func drainAndClose(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	_ = res.Body.Close()
}
