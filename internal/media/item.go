// SPDX-License-Identifier: MIT

// Package media maps server-described media sources and side-loaded subtitle
// specs into playable stream descriptors. Everything here is pure: no I/O,
// no mutable state.
package media

// StreamDescriptor is the playable description of one item, built once per
// playback start and immutable afterwards.
type StreamDescriptor struct {
	URI             string
	MimeType        string
	Title           string
	SubtitleTracks  []SubtitleSpec
	StartPositionMS int64
}

// SubtitleSpec describes one side-loaded subtitle track.
type SubtitleSpec struct {
	URL      string
	MimeType string
	Language string
	Label    string
	IsForced bool
}

// SubtitleFromURL builds a SubtitleSpec with the MIME type inferred from the
// URL's extension (WebVTT fallback).
func SubtitleFromURL(rawURL, language, label string, forced bool) SubtitleSpec {
	return SubtitleSpec{
		URL:      rawURL,
		MimeType: SubtitleMimeType(rawURL),
		Language: language,
		Label:    label,
		IsForced: forced,
	}
}

// Build assembles a StreamDescriptor. mimeHint, when non-empty, wins over
// extension inference; subtitles keep their given order.
func Build(streamURL, title string, subtitles []SubtitleSpec, mimeHint string, startPositionMS int64) StreamDescriptor {
	mime := mimeHint
	if mime == "" {
		mime = InferMimeType(streamURL)
	}
	if startPositionMS < 0 {
		startPositionMS = 0
	}
	tracks := make([]SubtitleSpec, len(subtitles))
	copy(tracks, subtitles)
	return StreamDescriptor{
		URI:             streamURL,
		MimeType:        mime,
		Title:           title,
		SubtitleTracks:  tracks,
		StartPositionMS: startPositionMS,
	}
}
