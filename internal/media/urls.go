// SPDX-License-Identifier: MIT

package media

import "net/url"

// WithAPIKey adds the api_key query parameter used by sinks that cannot send
// auth headers. An existing api_key is never duplicated or replaced.
func WithAPIKey(rawURL, token string) string {
	if token == "" || rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get("api_key") != "" {
		return rawURL
	}
	q.Set("api_key", token)
	u.RawQuery = q.Encode()
	return u.String()
}
