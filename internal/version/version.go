// SPDX-License-Identifier: MIT

package version

var (
	// Version is the current application version.
	// Populated by the build system via ldflags; the fallback tracks releases.
	Version = "v0.4.1"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// ClientName is the client identifier sent in MediaBrowser auth headers.
const ClientName = "castbridge"
