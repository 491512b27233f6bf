// SPDX-License-Identifier: MIT

package mediabrowser

// Server tick resolution: one tick is 100ns, so 10,000 ticks per millisecond.
const ticksPerMillisecond = 10_000

// MillisecondsFromTicks converts server ticks to milliseconds.
func MillisecondsFromTicks(ticks int64) int64 { return ticks / ticksPerMillisecond }

// TicksFromMilliseconds converts milliseconds to server ticks.
func TicksFromMilliseconds(ms int64) int64 { return ms * ticksPerMillisecond }

// PlaybackInfo is the server's answer to a playback-info query.
type PlaybackInfo struct {
	MediaSources  []MediaSource `json:"MediaSources"`
	PlaySessionID string        `json:"PlaySessionId"`
}

// MediaSource describes one playable rendition of an item.
type MediaSource struct {
	ID                   string        `json:"Id"`
	Container            string        `json:"Container"`
	SupportsDirectPlay   bool          `json:"SupportsDirectPlay"`
	SupportsDirectStream bool          `json:"SupportsDirectStream"`
	TranscodingURL       string        `json:"TranscodingUrl"`
	MediaStreams         []MediaStream `json:"MediaStreams"`
}

// Media stream types reported by the server.
const (
	StreamTypeAudio    = "Audio"
	StreamTypeVideo    = "Video"
	StreamTypeSubtitle = "Subtitle"
)

// MediaStream describes one elementary stream inside a media source. Only
// external subtitle streams carry a delivery URL.
type MediaStream struct {
	Index        int    `json:"Index"`
	Type         string `json:"Type"`
	Codec        string `json:"Codec"`
	Language     string `json:"Language"`
	DisplayTitle string `json:"DisplayTitle"`
	IsExternal   bool   `json:"IsExternal"`
	IsForced     bool   `json:"IsForced"`
	DeliveryURL  string `json:"DeliveryUrl"`
}

// Item is the subset of item metadata the playback path needs.
type Item struct {
	ID           string    `json:"Id"`
	Name         string    `json:"Name"`
	Overview     string    `json:"Overview"`
	RuntimeTicks int64     `json:"RunTimeTicks"`
	Chapters     []Chapter `json:"Chapters"`
	UserData     UserData  `json:"UserData"`
}

// Chapter is a named position marker inside an item.
type Chapter struct {
	Name               string `json:"Name"`
	StartPositionTicks int64  `json:"StartPositionTicks"`
}

// UserData carries per-user playback state reported by the server.
type UserData struct {
	PlaybackPositionTicks int64 `json:"PlaybackPositionTicks"`
	Played                bool  `json:"Played"`
}

// ProgressReport is one progress push to the server.
type ProgressReport struct {
	ItemID     string
	SessionID  string
	PositionMS int64
	DurationMS int64
	IsWatched  bool
}

// AuthResult is the outcome of an authenticate-by-name call.
type AuthResult struct {
	AccessToken string `json:"AccessToken"`
	User        struct {
		ID string `json:"Id"`
	} `json:"User"`
}
