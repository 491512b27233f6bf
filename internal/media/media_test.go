// SPDX-License-Identifier: MIT

package media

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSubtitleMimeInference(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"http://srv/foo.srt", MimeSubtitleSRT},
		{"http://srv/foo.vtt", MimeSubtitleVTT},
		{"http://srv/foo.ass", MimeSubtitleSSA},
		{"http://srv/foo.ssa", MimeSubtitleSSA},
		{"http://srv/foo.ttml", MimeSubtitleTTML},
		{"http://srv/foo.xyz", MimeSubtitleVTT}, // unknown falls back to WebVTT
		{"http://srv/foo.SRT?api_key=x", MimeSubtitleSRT},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SubtitleMimeType(tc.url), tc.url)
	}
}

func TestSubtitleFromURL(t *testing.T) {
	spec := SubtitleFromURL("http://srv/sub.srt", "en", "English", false)
	assert.Equal(t, MimeSubtitleSRT, spec.MimeType)
	assert.Equal(t, "en", spec.Language)
}

func TestContainerMimeTypes(t *testing.T) {
	assert.Equal(t, "video/x-matroska", MimeTypeFromContainer("mkv"))
	assert.Equal(t, "video/mp4", MimeTypeFromContainer("MP4"))
	assert.Equal(t, "application/x-mpegURL", MimeTypeFromContainer(".m3u8"))
	assert.Equal(t, MimeAuto, MimeTypeFromContainer("weirdbox"))
}

func TestBuild(t *testing.T) {
	subs := []SubtitleSpec{SubtitleFromURL("http://srv/a.vtt", "en", "", false)}
	got := Build("http://srv/stream.mkv", "Movie", subs, "", 1500)

	want := StreamDescriptor{
		URI:             "http://srv/stream.mkv",
		MimeType:        "video/x-matroska",
		Title:           "Movie",
		SubtitleTracks:  subs,
		StartPositionMS: 1500,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildHintWinsAndClampsPosition(t *testing.T) {
	got := Build("http://srv/stream.bin", "x", nil, "video/mp4", -10)
	assert.Equal(t, "video/mp4", got.MimeType)
	assert.Equal(t, int64(0), got.StartPositionMS)
}

func TestSkipSegmentsFromChapters(t *testing.T) {
	chapters := []Chapter{
		{Name: "Opening", StartMS: 0},
		{Name: "Chapter 1", StartMS: 90_000},
		{Name: "Chapter 2", StartMS: 1_200_000},
		{Name: "End Credits", StartMS: 2_500_000},
	}
	seg := SkipSegmentsFromChapters(chapters, 2_600_000)

	assert.True(t, seg.HasIntro())
	assert.Equal(t, int64(0), seg.IntroStartMS)
	assert.Equal(t, int64(90_000), seg.IntroEndMS)
	assert.True(t, seg.HasOutro())
	assert.Equal(t, int64(2_500_000), seg.OutroStartMS)
	assert.Equal(t, int64(2_600_000), seg.OutroEndMS)
}

func TestWithAPIKey(t *testing.T) {
	assert.Equal(t, "http://srv/stream?api_key=tok", WithAPIKey("http://srv/stream", "tok"))
	assert.Equal(t, "http://srv/stream?a=1&api_key=tok", WithAPIKey("http://srv/stream?a=1", "tok"))

	// Never duplicated, never replaced.
	assert.Equal(t, "http://srv/stream?api_key=old", WithAPIKey("http://srv/stream?api_key=old", "tok"))
	// No token, no change.
	assert.Equal(t, "http://srv/stream", WithAPIKey("http://srv/stream", ""))
}

func TestSkipSegmentsAbsentWithoutMarkers(t *testing.T) {
	chapters := []Chapter{
		{Name: "Chapter 1", StartMS: 0},
		{Name: "Chapter 2", StartMS: 60_000},
	}
	seg := SkipSegmentsFromChapters(chapters, 120_000)
	assert.False(t, seg.HasIntro())
	assert.False(t, seg.HasOutro())
}
