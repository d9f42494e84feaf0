package interact

import (
	"testing"

	"github.com/rs/zerolog"
	"storyreel/internal/timeline"
)

func vref(id string) timeline.Ref { return timeline.Ref{Type: timeline.KindVideo, ID: id} }
func aref(id string) timeline.Ref { return timeline.Ref{Type: timeline.KindAudio, ID: id} }

func newTestEngine(t *testing.T, clips ...timeline.VideoClip) *Engine {
	t.Helper()
	m := timeline.NewModel()
	for _, c := range clips {
		m.AddVideoClip(c)
	}
	return NewEngine(m, DefaultOptions(), zerolog.Nop())
}

func startOfVideo(t *testing.T, e *Engine, id string) float64 {
	t.Helper()
	c, ok := e.Model().VideoClip(id)
	if !ok {
		t.Fatalf("clip %q missing", id)
	}
	return c.Start
}

func assertNoOverlap(t *testing.T, m *timeline.Model) {
	t.Helper()
	clips := m.VideoClips()
	for i := range clips {
		for j := i + 1; j < len(clips); j++ {
			a, b := clips[i], clips[j]
			if a.VisibleStart() < b.VisibleEnd()-1e-9 && b.VisibleStart() < a.VisibleEnd()-1e-9 {
				t.Fatalf("expected no overlap, got %+v and %+v", a, b)
			}
		}
	}
}
