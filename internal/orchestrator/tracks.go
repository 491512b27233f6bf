// SPDX-License-Identifier: MIT

package orchestrator

import (
	"golang.org/x/text/language"

	"github.com/castbridge/castbridge/internal/player"
)

// applyTrackDefaults selects the preferred audio track and disables subtitle
// rendering. Runs at most once per loaded item so later manual track choices
// are never overridden.
func (o *Orchestrator) applyTrackDefaults(p player.Player) {
	o.mu.Lock()
	if o.trackDefaultsApplied {
		o.mu.Unlock()
		return
	}
	o.trackDefaultsApplied = true
	o.mu.Unlock()

	if id, ok := preferredAudioTrack(p.Tracks(), o.opts.PreferredAudioLanguage); ok {
		p.SelectTrack(id)
	}
	p.DisableTextTracks()
}

// preferredAudioTrack returns the first audio track whose language matches
// the preference. Matching is base-language aware ("en" matches "en-US").
func preferredAudioTrack(tracks []player.Track, preferred string) (string, bool) {
	want, err := language.Parse(preferred)
	if err != nil {
		return "", false
	}
	wantBase, _ := want.Base()

	for _, tr := range tracks {
		if tr.Type != player.TrackAudio {
			continue
		}
		if tr.Selected {
			// The engine already picked a matching default.
			if sameBase(tr.Language, wantBase) {
				return "", false
			}
			continue
		}
		if sameBase(tr.Language, wantBase) {
			return tr.ID, true
		}
	}
	return "", false
}

func sameBase(lang string, want language.Base) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	return base == want
}
