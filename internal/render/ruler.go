package render

import (
	"fmt"
	"math"

	"storyreel/internal/viewport"
)

type Tick struct {
	X       float64 `json:"x"`
	Seconds float64 `json:"seconds"`
	Major   bool    `json:"major"`
	Label   string  `json:"label,omitempty"`
}

var tickSteps = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30, 60, 120, 300, 600, 1800, 3600}

// TickStep picks the smallest ladder step whose major ticks sit at least
// minMajorPx apart, and how many minor subdivisions fit between them.
func TickStep(pxPerSecond, minMajorPx float64) (step float64, minorPerMajor int) {
	step = tickSteps[len(tickSteps)-1]
	for _, s := range tickSteps {
		if s*pxPerSecond >= minMajorPx {
			step = s
			break
		}
	}
	for _, n := range []int{5, 4, 2} {
		if step*pxPerSecond/float64(n) >= 8 {
			return step, n
		}
	}
	return step, 1
}

// Ticks lists ruler ticks inside the window. Positions come from integer
// indices so long timelines do not accumulate float drift.
func Ticks(w viewport.Window, pxPerSecond, minMajorPx float64) []Tick {
	if pxPerSecond <= 0 || w.EndSeconds <= w.StartSeconds {
		return []Tick{}
	}
	step, n := TickStep(pxPerSecond, minMajorPx)
	minor := step / float64(n)

	first := int64(math.Ceil(w.StartSeconds/minor - 1e-9))
	last := int64(math.Floor(w.EndSeconds/minor + 1e-9))
	ticks := make([]Tick, 0, last-first+1)
	for i := first; i <= last; i++ {
		t := float64(i) * minor
		tick := Tick{
			X:       viewport.TimeToPixel(t, pxPerSecond, 0),
			Seconds: t,
			Major:   i%int64(n) == 0,
		}
		if tick.Major {
			tick.Label = Timecode(t, step < 1)
		}
		ticks = append(ticks, tick)
	}
	return ticks
}

// Timecode formats seconds as m:ss, or m:ss.s when fractional is set.
func Timecode(seconds float64, fractional bool) string {
	if seconds < 0 {
		seconds = 0
	}
	if fractional {
		tenths := int64(math.Round(seconds * 10))
		return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
	}
	s := int64(math.Round(seconds))
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
