package timeline

import (
	"errors"

	"github.com/parlemonde/clap-sub002/core/project"
)

// MinItemDuration is the shortest a title or plan may become through timeline edits.
const MinItemDuration = 1000

var ErrNoBoundary = errors.New("no plan boundary at this index")

// ShiftPlanBoundary moves the start of plan `index` by delta ms.
// The previous plan, or the title card for the first plan, absorbs the opposite change.
// The shift is clamped so both sides keep at least MinItemDuration.
func ShiftPlanBoundary(seq project.Sequence, index, delta int) (project.Sequence, error) {
	if index < 0 || index >= len(seq.Plans) || (index == 0 && seq.Title == nil) {
		return seq, ErrNoBoundary
	}
	starts := PlanStarts(seq)
	x := starts[index]

	minTime := MinItemDuration
	if index > 0 {
		minTime = starts[index-1] + MinItemDuration
	}
	maxTime := rawDuration(seq) - MinItemDuration
	if index+1 < len(starts) {
		maxTime = starts[index+1] - MinItemDuration
	}
	if maxTime < minTime {
		// items already shorter than the minimum: nothing can move
		return seq, nil
	}
	delta = max(minTime-x, min(maxTime-x, delta))

	out := seq.Clone()
	out.Plans[index].Duration -= delta
	if index == 0 {
		out.Title.Duration += delta
	} else {
		out.Plans[index-1].Duration += delta
	}
	return out, nil
}

// AddTime lengthens the sequence up to the next whole second, or by one second
// when it already ends on one.
func AddTime(seq project.Sequence) project.Sequence {
	d := rawDuration(seq)
	delta := MinItemDuration
	if d%1000 != 0 {
		delta = 1000 - d%1000
	}
	return updateLastDuration(seq, delta)
}

// RemoveTime shortens the sequence: down to one second into its last plan when
// that is less than a second away, else to the previous whole second, else by one second.
// The last item never drops below MinItemDuration.
func RemoveTime(seq project.Sequence) project.Sequence {
	d := rawDuration(seq)
	var lastStart int
	if starts := PlanStarts(seq); len(starts) > 0 {
		lastStart = starts[len(starts)-1]
	}
	if d <= lastStart+MinItemDuration {
		return seq
	}
	var delta int
	switch {
	case lastStart+MinItemDuration-d > -1000:
		delta = lastStart + MinItemDuration - d
	case d%1000 != 0:
		delta = -(d % 1000)
	default:
		delta = -1000
	}
	return updateLastDuration(seq, delta)
}

// updateLastDuration applies delta to the last plan, or to the title when there are no plans.
func updateLastDuration(seq project.Sequence, delta int) project.Sequence {
	out := seq.Clone()
	if n := len(out.Plans); n > 0 {
		out.Plans[n-1].Duration += delta
	} else if out.Title != nil {
		out.Title.Duration += delta
	}
	return out
}
