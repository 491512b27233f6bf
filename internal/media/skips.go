// SPDX-License-Identifier: MIT

package media

import "strings"

// SkipSegment marks intro/outro ranges eligible for a skip affordance, in
// milliseconds. Zero-valued fields mean the range is absent.
type SkipSegment struct {
	IntroStartMS int64
	IntroEndMS   int64
	OutroStartMS int64
	OutroEndMS   int64
}

// HasIntro reports whether an intro range was found.
func (s SkipSegment) HasIntro() bool { return s.IntroEndMS > s.IntroStartMS }

// HasOutro reports whether an outro range was found.
func (s SkipSegment) HasOutro() bool { return s.OutroEndMS > s.OutroStartMS }

// Chapter is the minimal chapter shape skip derivation needs.
type Chapter struct {
	Name    string
	StartMS int64
}

var (
	introMarkers = []string{"intro", "opening"}
	outroMarkers = []string{"credits", "outro", "ending"}
)

// SkipSegmentsFromChapters derives skip ranges from chapter naming
// heuristics. The intro ends where the following chapter begins; the outro
// runs to the end of the item. Chapters are expected in start order.
func SkipSegmentsFromChapters(chapters []Chapter, durationMS int64) SkipSegment {
	var seg SkipSegment
	for i, ch := range chapters {
		name := strings.ToLower(ch.Name)
		switch {
		case !seg.HasIntro() && matchesAny(name, introMarkers):
			seg.IntroStartMS = ch.StartMS
			if i+1 < len(chapters) {
				seg.IntroEndMS = chapters[i+1].StartMS
			} else {
				seg.IntroEndMS = durationMS
			}
		case !seg.HasOutro() && matchesAny(name, outroMarkers):
			seg.OutroStartMS = ch.StartMS
			seg.OutroEndMS = durationMS
		}
	}
	return seg
}

func matchesAny(name string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
