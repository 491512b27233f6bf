// SPDX-License-Identifier: MIT

// Package auth implements the request-pipeline authentication transport:
// header attachment, proactive token refresh and bounded 401 retries.
package auth

import (
	"fmt"
	"strings"
)

// Header names used by MediaBrowser-compatible servers.
const (
	authorizationHeader = "Authorization"
	tokenHeader         = "X-MediaBrowser-Token"
)

// Identity supplies the client identification fields for the auth header.
type Identity interface {
	ClientName() string
	DeviceName() string
	DeviceID() string
	ClientVersion() string
}

// BuildHeader renders the MediaBrowser authorization header value. The token
// field is omitted entirely when empty (the authenticate endpoint is called
// before any token exists).
func BuildHeader(id Identity, token string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `MediaBrowser Client=%q, Device=%q, DeviceId=%q, Version=%q`,
		id.ClientName(), sanitize(id.DeviceName()), id.DeviceID(), id.ClientVersion())
	if token != "" {
		fmt.Fprintf(&b, `, Token=%q`, token)
	}
	return b.String()
}

// sanitize strips characters that would break the quoted header grammar.
func sanitize(v string) string {
	v = strings.ReplaceAll(v, `"`, "")
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.TrimSpace(v)
}
