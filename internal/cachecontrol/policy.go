// SPDX-License-Identifier: MIT

// Package cachecontrol assigns cache directives per request class and adapts
// them to the current connectivity state, so previously fetched metadata
// stays available offline and immutable artwork is cached long-term.
package cachecontrol

import (
	"net/http"
	"strings"

	"github.com/castbridge/castbridge/internal/metrics"
)

// Request classes recognised by the policy.
const (
	classWrite   = "write"
	classAuth    = "auth"
	classImage   = "image"
	classGeneric = "generic"
)

// Cache directives. Artwork is immutable per tag, so a month-long public
// lifetime is safe; offline reads accept staleness up to seven days.
const (
	directiveNoStore      = "no-store"
	directiveOffline      = "only-if-cached, max-stale=604800"
	directiveShortFresh   = "max-age=60"
	directiveImageDefault = "public, max-age=2592000"
)

// OnlineChecker reports whether the server is currently reachable.
type OnlineChecker interface {
	Online() bool
}

// Transport is the cache-policy pipeline stage. It decorates requests on the
// way out and fills in missing response directives on the way back.
type Transport struct {
	next   http.RoundTripper
	online OnlineChecker
}

// NewTransport builds the cache policy stage. A nil checker means always
// online.
func NewTransport(next http.RoundTripper, online OnlineChecker) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{next: next, online: online}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	class := classify(req)
	metrics.RecordCacheClass(class)

	out := req.Clone(req.Context())
	switch class {
	case classWrite, classAuth:
		out.Header.Set("Cache-Control", directiveNoStore)
	case classGeneric:
		if !t.isOnline() {
			out.Header.Set("Cache-Control", directiveOffline)
		}
	}

	res, err := t.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	switch class {
	case classWrite, classAuth:
		res.Header.Set("Cache-Control", directiveNoStore)
	case classImage:
		if res.Header.Get("Cache-Control") == "" {
			res.Header.Set("Cache-Control", directiveImageDefault)
		}
	case classGeneric:
		if t.isOnline() && res.Header.Get("Cache-Control") == "" {
			res.Header.Set("Cache-Control", directiveShortFresh)
		}
	}
	return res, nil
}

func (t *Transport) isOnline() bool {
	return t.online == nil || t.online.Online()
}

func classify(req *http.Request) string {
	switch {
	case req.Method != http.MethodGet:
		return classWrite
	case isAuthPath(req.URL.Path):
		return classAuth
	case strings.Contains(req.URL.Path, "/Images/"):
		return classImage
	default:
		return classGeneric
	}
}

func isAuthPath(path string) bool {
	return strings.Contains(path, "/AuthenticateByName") || strings.Contains(path, "/AuthenticateWithQuickConnect")
}
