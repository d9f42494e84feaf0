package playback

import (
	"time"

	"storyreel/internal/timeline"
)

// VisualSurface is the single video element the engine drives. Play may
// return without error and still not be playing; the engine checks Playing.
type VisualSurface interface {
	Load(src string)
	Play() error
	Pause()
	Seek(seconds float64)
	Position() float64
	Playing() bool
	Unmute()
}

// AudioSurface is one audio element bound to one audio clip.
type AudioSurface interface {
	Play() error
	Pause()
	Seek(seconds float64)
	Position() float64
	Playing() bool
}

type AudioBinding struct {
	Clip    timeline.AudioClip
	Surface AudioSurface
}

type Options struct {
	// RetryDelays[i] is the wait before autoplay attempt i.
	RetryDelays     []time.Duration
	PlaceholderTick time.Duration
	DriftThreshold  float64
	AdvanceGuard    time.Duration
	BufferingRetry  time.Duration
}

func DefaultOptions() Options {
	return Options{
		RetryDelays: []time.Duration{
			0,
			200 * time.Millisecond,
			400 * time.Millisecond,
			700 * time.Millisecond,
			1100 * time.Millisecond,
		},
		PlaceholderTick: 100 * time.Millisecond,
		DriftThreshold:  0.25,
		AdvanceGuard:    300 * time.Millisecond,
		BufferingRetry:  1500 * time.Millisecond,
	}
}
