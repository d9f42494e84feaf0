package interact

import (
	"math"
	"testing"

	"storyreel/internal/timeline"
)

func TestDrag_ClampedAgainstLeftNeighbour(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 0, Duration: 5},
		timeline.VideoClip{ID: "b", Start: 5, Duration: 4},
	)

	s, ok := e.BeginDrag(vref("b"), Pointer{X: 300, Y: 10}, nil, false)
	if !ok {
		t.Fatalf("expected drag to begin")
	}
	s.Move(Pointer{X: 200, Y: 10}) // -2s at 50px/s
	s.End()

	if got := startOfVideo(t, e, "b"); got != 5 {
		t.Fatalf("expected b to stay at 5, got=%v", got)
	}
	assertNoOverlap(t, e.Model())
}

func TestDrag_SnapsToMarker(t *testing.T) {
	e := newTestEngine(t, timeline.VideoClip{ID: "a", Start: 0, Duration: 2})
	e.Model().AddMarker(3.0)

	s, _ := e.BeginDrag(vref("a"), Pointer{X: 10, Y: 10}, nil, false)
	s.Move(Pointer{X: 10 + 2.95*50, Y: 10})
	s.End()

	if got := startOfVideo(t, e, "a"); got != 3.0 {
		t.Fatalf("expected snap to 3.0, got=%v", got)
	}
}

func TestDrag_SnapNeverRelaxesOverlap(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 0, Duration: 2},
		timeline.VideoClip{ID: "b", Start: 4, Duration: 2},
	)
	// Marker sits where a's end would overlap b by a hair.
	e.Model().AddMarker(4.05)

	s, _ := e.BeginDrag(vref("a"), Pointer{X: 0, Y: 0}, nil, false)
	s.Move(Pointer{X: 2.0 * 50, Y: 0})
	s.End()

	got := startOfVideo(t, e, "a")
	if got > 2.0+1e-9 {
		t.Fatalf("expected a to stop at or before 2.0, got=%v", got)
	}
	assertNoOverlap(t, e.Model())
}

func TestDrag_ZeroDeltaIsIdempotent(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 0.03, Duration: 2},
		timeline.VideoClip{ID: "b", Start: 2.05, Duration: 2},
	)
	rev := e.Model().Revision()

	s, _ := e.BeginDrag(vref("b"), Pointer{X: 120, Y: 5}, nil, false)
	s.Move(Pointer{X: 120, Y: 5})
	s.End()

	if startOfVideo(t, e, "a") != 0.03 || startOfVideo(t, e, "b") != 2.05 {
		t.Fatalf("expected starts unchanged, got a=%v b=%v", startOfVideo(t, e, "a"), startOfVideo(t, e, "b"))
	}
	if e.Model().Revision() != rev {
		t.Fatalf("expected no model writes, revision moved %d -> %d", rev, e.Model().Revision())
	}
}

func TestDrag_GroupMovesRigidly(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 1, Duration: 2},
		timeline.VideoClip{ID: "b", Start: 4, Duration: 1},
		timeline.VideoClip{ID: "c", Start: 20, Duration: 2},
	)
	e.Click(vref("a"), false)
	e.Click(vref("b"), true)

	s, _ := e.BeginDrag(vref("a"), Pointer{X: 50, Y: 0}, nil, false)
	s.Move(Pointer{X: 50 + 3.3*50, Y: 0})
	s.End()

	a, b := startOfVideo(t, e, "a"), startOfVideo(t, e, "b")
	if math.Abs((b-a)-3) > 1e-9 {
		t.Fatalf("expected relative offset 3 preserved, got a=%v b=%v", a, b)
	}
	if math.Abs(a-4.3) > 1e-9 {
		t.Fatalf("expected a at 4.3, got=%v", a)
	}
	if startOfVideo(t, e, "c") != 20 {
		t.Fatalf("expected unselected c untouched")
	}
}

func TestDrag_BlockStopsAtRightNeighbour(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 0, Duration: 2},
		timeline.VideoClip{ID: "b", Start: 6, Duration: 2},
	)

	s, _ := e.BeginDrag(vref("a"), Pointer{X: 0, Y: 0}, nil, false)
	s.Move(Pointer{X: 10 * 50, Y: 0})
	s.End()

	if got := startOfVideo(t, e, "a"); got != 4 {
		t.Fatalf("expected a blocked at 4, got=%v", got)
	}
	if got := startOfVideo(t, e, "b"); got != 6 {
		t.Fatalf("expected b unmoved, got=%v", got)
	}
}

func TestDrag_PushMovesRightNeighbours(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 0, Duration: 2},
		timeline.VideoClip{ID: "b", Start: 3, Duration: 2},
		timeline.VideoClip{ID: "c", Start: 5, Duration: 1},
	)
	e.SetPolicy(OverlapPush)

	s, _ := e.BeginDrag(vref("a"), Pointer{X: 0, Y: 0}, nil, false)
	s.Move(Pointer{X: 2.5 * 50, Y: 0})

	if got := startOfVideo(t, e, "b"); math.Abs(got-4.5) > 1e-9 {
		t.Fatalf("expected b pushed to 4.5, got=%v", got)
	}
	if got := startOfVideo(t, e, "c"); math.Abs(got-6.5) > 1e-9 {
		t.Fatalf("expected c pushed to 6.5, got=%v", got)
	}

	// Moving back releases the pushed clips to their original spots.
	s.Move(Pointer{X: 0.5 * 50, Y: 0})
	s.End()
	if startOfVideo(t, e, "b") != 3 || startOfVideo(t, e, "c") != 5 {
		t.Fatalf("expected b and c restored, got b=%v c=%v", startOfVideo(t, e, "b"), startOfVideo(t, e, "c"))
	}
	assertNoOverlap(t, e.Model())
}

func TestDrag_NeverBeforeZero(t *testing.T) {
	e := newTestEngine(t, timeline.VideoClip{ID: "a", Start: 1, Duration: 3, TrimStart: 0.5})

	s, _ := e.BeginDrag(vref("a"), Pointer{X: 100, Y: 0}, nil, false)
	s.Move(Pointer{X: -900, Y: 0})
	s.End()

	c, _ := e.Model().VideoClip("a")
	if c.VisibleStart() != 0 {
		t.Fatalf("expected visible start clamped to 0, got=%v", c.VisibleStart())
	}
}

func TestDrag_NonFinitePointerIgnored(t *testing.T) {
	e := newTestEngine(t, timeline.VideoClip{ID: "a", Start: 1, Duration: 3})
	s, _ := e.BeginDrag(vref("a"), Pointer{X: 50, Y: 0}, nil, false)
	s.Move(Pointer{X: math.NaN(), Y: 0})
	s.Move(Pointer{X: math.Inf(1), Y: 0})
	s.End()
	if got := startOfVideo(t, e, "a"); got != 1 {
		t.Fatalf("expected start unchanged, got=%v", got)
	}
}

func TestDrag_ZeroZoomNeverWrites(t *testing.T) {
	e := newTestEngine(t, timeline.VideoClip{ID: "a", Start: 1, Duration: 3})
	e.opts.PxPerSecond = 0
	s, _ := e.BeginDrag(vref("a"), Pointer{X: 50, Y: 0}, nil, false)
	s.Move(Pointer{X: 80, Y: 0})
	s.End()
	if got := startOfVideo(t, e, "a"); got != 1 {
		t.Fatalf("expected start unchanged, got=%v", got)
	}
}

func TestDrag_ClickWithoutMovementReplacesSelection(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 0, Duration: 1},
		timeline.VideoClip{ID: "b", Start: 2, Duration: 1},
	)
	e.Click(vref("a"), false)
	e.Click(vref("b"), true)

	s, _ := e.BeginDrag(vref("b"), Pointer{X: 110, Y: 5}, nil, false)
	s.Move(Pointer{X: 111, Y: 5})
	s.End()

	refs := e.Selection().Refs()
	if len(refs) != 1 || refs[0] != vref("b") {
		t.Fatalf("expected selection [b], got=%v", refs)
	}
}

func TestDrag_NewSessionClosesPrevious(t *testing.T) {
	e := newTestEngine(t,
		timeline.VideoClip{ID: "a", Start: 0, Duration: 1},
		timeline.VideoClip{ID: "b", Start: 5, Duration: 1},
	)
	first, _ := e.BeginDrag(vref("a"), Pointer{}, nil, false)
	second, _ := e.BeginDrag(vref("b"), Pointer{X: 250}, nil, false)

	first.Move(Pointer{X: 100})
	if got := startOfVideo(t, e, "a"); got != 0 {
		t.Fatalf("expected closed session to ignore moves, got a=%v", got)
	}
	second.End()
	if e.Interacting() {
		t.Fatalf("expected no active session")
	}
}
