// SPDX-License-Identifier: MIT

package media

import (
	"net/url"
	"path"
	"strings"
)

// MimeAuto tells the player to sniff the container itself. Unknown containers
// map here instead of failing.
const MimeAuto = ""

// Subtitle MIME types.
const (
	MimeSubtitleVTT  = "text/vtt"
	MimeSubtitleSRT  = "application/x-subrip"
	MimeSubtitleSSA  = "text/x-ssa"
	MimeSubtitleTTML = "application/ttml+xml"
)

var containerMimeTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"ts":   "video/mp2t",
	"m2ts": "video/mp2t",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
	"flv":  "video/x-flv",
	"3gp":  "video/3gpp",
	"m3u8": "application/x-mpegURL",
	"mpd":  "application/dash+xml",
	"mp3":  "audio/mpeg",
	"aac":  "audio/aac",
	"m4a":  "audio/mp4",
	"flac": "audio/flac",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"wav":  "audio/wav",
}

var subtitleMimeTypes = map[string]string{
	"vtt":  MimeSubtitleVTT,
	"srt":  MimeSubtitleSRT,
	"ssa":  MimeSubtitleSSA,
	"ass":  MimeSubtitleSSA,
	"ttml": MimeSubtitleTTML,
}

// MimeTypeFromContainer maps a server-reported container name to a playback
// MIME type. Unknown containers yield MimeAuto.
func MimeTypeFromContainer(container string) string {
	if mime, ok := containerMimeTypes[normalizeExt(container)]; ok {
		return mime
	}
	return MimeAuto
}

// InferMimeType derives the playback MIME type from a stream URL's file
// extension. Unknown extensions yield MimeAuto.
func InferMimeType(streamURL string) string {
	return MimeTypeFromContainer(extOf(streamURL))
}

// SubtitleMimeType maps a subtitle URL to its MIME type, defaulting to
// WebVTT for unknown extensions.
func SubtitleMimeType(subtitleURL string) string {
	if mime, ok := subtitleMimeTypes[extOf(subtitleURL)]; ok {
		return mime
	}
	return MimeSubtitleVTT
}

func extOf(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return normalizeExt(path.Ext(p))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
