package timeline

import (
	"github.com/parlemonde/clap-sub002/core/project"
)

type (
	// Span is where an available sequence sits on the project timeline.
	Span struct {
		SequenceID int `json:"sequenceId"`
		Index      int `json:"index"` // position in the project
		Begin      int `json:"begin"`
		End        int `json:"end"`
		Duration   int `json:"duration"`
	}

	FrameKind string

	// Frame is what the player shows at a given time.
	Frame struct {
		Kind       FrameKind      `json:"kind"`
		SequenceID int            `json:"sequenceId,omitempty"`
		PlanID     int            `json:"planId,omitempty"`
		Title      *project.Title `json:"title,omitempty"`
		ImageURL   string         `json:"imageUrl,omitempty"`
		Begin      int            `json:"begin"`
		End        int            `json:"end"`
	}

	// ActiveSound is a sound being heard, with the read position inside its file.
	ActiveSound struct {
		Sound
		Position int `json:"position"`
	}

	Music struct {
		URL       string `json:"soundUrl"`
		Volume    int    `json:"volume"`
		BeginTime int    `json:"beginTime"`
	}

	// Timeline is the whole computed playback of a project.
	Timeline struct {
		Duration          int     `json:"duration"`
		FormattedDuration string  `json:"formattedDuration"`
		Spans             []Span  `json:"spans"`
		Sounds            []Sound `json:"sounds"`
		Music             *Music  `json:"music,omitempty"`
	}
)

const (
	FrameEmpty FrameKind = "empty"
	FrameTitle FrameKind = "title"
	FrameImage FrameKind = "image"
)

// Build computes the timeline of the project.
func Build(p project.Project) Timeline {
	seqs := p.Data.Sequences
	dur := ProjectDuration(seqs)
	tl := Timeline{
		Duration:          dur,
		FormattedDuration: FormatDuration(dur),
		Spans:             Spans(seqs),
		Sounds:            Sounds(seqs),
	}
	if p.Data.SoundURL != "" {
		tl.Music = &Music{
			URL:       p.Data.SoundURL,
			Volume:    Volume(p.Data.SoundVolume),
			BeginTime: p.Data.SoundBeginTime,
		}
	}
	return tl
}

// Spans returns the position of every available sequence.
func Spans(seqs []project.Sequence) []Span {
	spans := make([]Span, 0, len(seqs))
	var time int
	for i, seq := range seqs {
		dur := SequenceDuration(seq)
		if dur == 0 {
			continue
		}
		spans = append(spans, Span{
			SequenceID: seq.ID,
			Index:      i,
			Begin:      time,
			End:        time + dur,
			Duration:   dur,
		})
		time += dur
	}
	return spans
}

// PlanStarts returns the start of each plan, relative to the start of the sequence.
// The first plan starts after the title card.
func PlanStarts(seq project.Sequence) []int {
	starts := make([]int, 0, len(seq.Plans))
	var time int
	if seq.Title != nil {
		time = seq.Title.Duration
	}
	for _, pl := range seq.Plans {
		starts = append(starts, time)
		time += pl.Duration
	}
	return starts
}

// FrameAt returns the frame displayed at time t.
// A plan without an image, or a time outside the project, gives an empty frame.
func FrameAt(seqs []project.Sequence, t int) Frame {
	if t < 0 {
		return Frame{Kind: FrameEmpty}
	}
	var time int
	for _, seq := range seqs {
		if !IsAvailable(seq) {
			continue
		}
		if seq.Title != nil {
			if time+seq.Title.Duration > t {
				title := *seq.Title
				return Frame{
					Kind:       FrameTitle,
					SequenceID: seq.ID,
					Title:      &title,
					Begin:      time,
					End:        time + seq.Title.Duration,
				}
			}
			time += seq.Title.Duration
		}
		for _, pl := range seq.Plans {
			if time+pl.Duration > t {
				fr := Frame{
					Kind:       FrameEmpty,
					SequenceID: seq.ID,
					PlanID:     pl.ID,
					Begin:      time,
					End:        time + pl.Duration,
				}
				if pl.ImageURL != "" {
					fr.Kind = FrameImage
					fr.ImageURL = pl.ImageURL
				}
				return fr
			}
			time += pl.Duration
		}
	}
	return Frame{Kind: FrameEmpty}
}

// ActiveSounds returns the sounds audible at time t.
func ActiveSounds(sounds []Sound, t int) []ActiveSound {
	active := make([]ActiveSound, 0)
	for _, snd := range sounds {
		if t >= snd.BeginTime && t-snd.BeginTime < snd.MaxDuration {
			active = append(active, ActiveSound{
				Sound:    snd,
				Position: t - snd.BeginTime + snd.DeltaBeginTime,
			})
		}
	}
	return active
}

// MusicPosition returns the read position of the project music at time t,
// and whether it is audible yet.
func MusicPosition(beginTime, t int) (int, bool) {
	if t < beginTime {
		return 0, false
	}
	return t - beginTime, true
}
