// SPDX-License-Identifier: MIT

package log

import "testing"

func TestRedactToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "***"},
		{"12345678", "***"},
		{"abcdef0123456789", "abcdef..."},
	}
	for _, tc := range cases {
		if got := RedactToken(tc.in); got != tc.want {
			t.Errorf("RedactToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWithComponent(t *testing.T) {
	l := WithComponent("test")
	// Must return a usable logger without panicking before Configure.
	l.Debug().Msg("component logger ok")
}
