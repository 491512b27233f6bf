// SPDX-License-Identifier: MIT

package mediabrowser

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/castbridge/castbridge/internal/log"
	"github.com/castbridge/castbridge/internal/metrics"
)

// Session owns the auth credential for one server: the current access token,
// its expiry, and the refresh path. The auth transport reads from it and
// triggers refreshes; it never mutates the credential directly.
type Session struct {
	username         string
	password         string
	tokenTTL         time.Duration
	refreshThreshold time.Duration

	mu     sync.Mutex
	client *Client
	token  string
	expiry time.Time

	group singleflight.Group
}

// NewSession builds a session for the given user. tokenTTL of zero means
// tokens never expire locally and proactive refresh is disabled.
func NewSession(username, password string, tokenTTL, refreshThreshold time.Duration) *Session {
	return &Session{
		username:         username,
		password:         password,
		tokenTTL:         tokenTTL,
		refreshThreshold: refreshThreshold,
	}
}

// Bind attaches the API client used for the authenticate call. Required
// before the first refresh; split from the constructor because the client's
// transport chain needs the session first.
func (s *Session) Bind(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
}

// Token returns the current access token, empty when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken seeds the credential, e.g. from persisted state. A zero expiry
// disables expiry tracking for the token.
func (s *Session) SetToken(token string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiry = expiry
}

// IsAuthenticated reports whether a token is held.
func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// IsExpired reports whether the held token is past its expiry.
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && !s.expiry.IsZero() && time.Now().After(s.expiry)
}

// ShouldRefresh reports whether the token is inside the proactive-refresh
// window before expiry.
func (s *Session) ShouldRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || s.expiry.IsZero() || s.refreshThreshold <= 0 {
		return false
	}
	return time.Until(s.expiry) < s.refreshThreshold
}

// Refresh re-authenticates against the server. Concurrent callers are
// coalesced into a single in-flight exchange; every waiter observes the same
// outcome.
func (s *Session) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client == nil {
			return nil, errors.New("mediabrowser: session not bound to a client")
		}

		result, err := client.AuthenticateByName(ctx, s.username, s.password)
		if err != nil {
			metrics.RecordTokenRefresh(false)
			return nil, err
		}

		s.mu.Lock()
		s.token = result.AccessToken
		if s.tokenTTL > 0 {
			s.expiry = time.Now().Add(s.tokenTTL)
		} else {
			s.expiry = time.Time{}
		}
		s.mu.Unlock()

		client.SetUserID(result.User.ID)
		metrics.RecordTokenRefresh(true)
		logger := log.WithComponent("session")
		logger.Debug().
			Str("token", log.RedactToken(result.AccessToken)).
			Msg("token refreshed")
		return nil, nil
	})
	return err
}
