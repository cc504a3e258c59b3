package timeline

import (
	"fmt"
	"math"
)

// FrameRate of exported montages.
const FrameRate = 25

// FormatDuration formats ms as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// Frames converts ms to a number of frames at FrameRate.
func Frames(ms int) int {
	return int(math.Round(float64(ms) * FrameRate / 1000))
}
