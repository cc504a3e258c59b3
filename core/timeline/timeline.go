// Package timeline computes the playback timeline of a project: how long each
// sequence lasts, where it starts, and when its narration is heard.
// All times are in milliseconds from the start of the project.
package timeline

import (
	"github.com/volatiletech/null/v8"

	"github.com/parlemonde/clap-sub002/core/project"
)

// DefaultVolume is used when a sound has no volume (or a zero volume) set.
const DefaultVolume = 100

// Sound is a narration placed on the project timeline.
type Sound struct {
	SequenceID int    `json:"sequenceId"`
	URL        string `json:"soundUrl"`
	Volume     int    `json:"volume"`
	// BeginTime is when the sound becomes audible.
	BeginTime int `json:"beginTime"`
	// DeltaBeginTime is the part of the audio file skipped before BeginTime.
	DeltaBeginTime int `json:"deltaBeginTime"`
	// MaxDuration caps how long the sound plays; it never exceeds the sequence.
	MaxDuration int `json:"maxDuration"`
}

// IsAvailable reports whether the sequence contributes to the timeline:
// it has a title card, or at least one plan with a description or an image.
func IsAvailable(seq project.Sequence) bool {
	if seq.Title != nil {
		return true
	}
	for _, pl := range seq.Plans {
		if pl.Description != "" || pl.ImageURL != "" {
			return true
		}
	}
	return false
}

// SequenceDuration returns the title duration plus the duration of every plan,
// or 0 when the sequence is not available.
func SequenceDuration(seq project.Sequence) int {
	if !IsAvailable(seq) {
		return 0
	}
	return rawDuration(seq)
}

func rawDuration(seq project.Sequence) int {
	var d int
	if seq.Title != nil {
		d += seq.Title.Duration
	}
	for _, pl := range seq.Plans {
		d += pl.Duration
	}
	return d
}

// ProjectDuration is the sum of the sequence durations; sequences play back to back.
func ProjectDuration(seqs []project.Sequence) int {
	var d int
	for _, seq := range seqs {
		d += SequenceDuration(seq)
	}
	return d
}

// Volume returns the volume to play a sound at.
func Volume(v null.Int) int {
	if !v.Valid || v.Int == 0 {
		return DefaultVolume
	}
	return v.Int
}

// Sounds places the narration of every available sequence on the timeline.
//
// A negative voice-off begin time is a pre-roll: the sound starts with its
// sequence and the first |offset| ms of the file are skipped. A positive one
// delays the sound inside the sequence and shortens how long it may play.
// Events come out in sequence order with non-decreasing begin times.
func Sounds(seqs []project.Sequence) []Sound {
	sounds := make([]Sound, 0)
	var time int
	for _, seq := range seqs {
		dur := SequenceDuration(seq)
		if dur == 0 {
			continue
		}
		if seq.SoundURL != "" {
			snd := Sound{
				SequenceID: seq.ID,
				URL:        seq.SoundURL,
				Volume:     Volume(seq.SoundVolume),
			}
			offset := seq.VoiceOffBeginTime.Int // zero when null
			if offset < 0 {
				snd.BeginTime = time
				snd.DeltaBeginTime = -offset
				snd.MaxDuration = max(0, dur)
			} else {
				// a delay past the sequence end starts, silent, where the next sequence begins
				snd.BeginTime = time + min(offset, dur)
				snd.MaxDuration = max(0, dur-offset)
			}
			sounds = append(sounds, snd)
		}
		time += dur
	}
	return sounds
}
