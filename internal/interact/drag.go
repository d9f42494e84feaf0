package interact

import (
	"math"
	"sort"

	"storyreel/internal/timeline"
)

const (
	eps = 1e-9
	// clickSlopPx is how far the pointer may wander before a press counts as a drag.
	clickSlopPx = 3
)

type mover struct {
	ref   timeline.Ref
	start float64
	vs    float64
	ve    float64
}

type dragMode int

const (
	dragInTrack dragMode = iota
	dragOut
)

// DragSession moves every selected clip of the pressed clip's kind by one
// shared delta. It is created by Engine.BeginDrag and finished by End or Cancel.
type DragSession struct {
	e        *Engine
	pressed  timeline.Ref
	additive bool
	wasSel   bool
	origin   Pointer
	lane     *Rect

	movers   []mover
	pushable []mover
	anchors  []float64
	minDelta float64
	maxDelta float64
	groupVS  float64
	groupVE  float64

	mode    dragMode
	dragged bool
	delta   float64
	closed  bool
}

// BeginDrag opens a drag on ref. lane, when non-nil, is the bounding box of the
// originating lane; leaving it turns the gesture into a drag-out.
func (e *Engine) BeginDrag(ref timeline.Ref, at Pointer, lane *Rect, additive bool) (*DragSession, bool) {
	if _, ok := e.model.Clip(ref); !ok || !isFinitePointer(at) {
		return nil, false
	}

	s := &DragSession{
		e:        e,
		pressed:  ref,
		additive: additive,
		wasSel:   e.selection.Contains(ref),
		origin:   at,
		lane:     lane,
	}
	if !s.wasSel {
		if !additive {
			e.selection.Clear()
		}
		e.selection.Add(ref)
	}
	s.capture()
	e.begin(s)

	e.logger.Debug().
		Str("id", ref.ID).
		Str("kind", string(ref.Type)).
		Int("group", len(s.movers)).
		Float64("min_delta", s.minDelta).
		Float64("max_delta", s.maxDelta).
		Msg("drag started")
	return s, true
}

// capture records the pre-gesture geometry and derives the admissible delta range.
func (s *DragSession) capture() {
	kind := s.pressed.Type
	sel := s.e.selection
	var others []mover
	for _, c := range s.e.model.Clips(kind) {
		m := mover{ref: c.Ref(), start: startOf(c), vs: c.VisibleStart(), ve: c.VisibleEnd()}
		if sel.Contains(m.ref) {
			s.movers = append(s.movers, m)
		} else {
			others = append(others, m)
		}
	}

	s.groupVS, s.groupVE = math.Inf(1), math.Inf(-1)
	s.minDelta, s.maxDelta = math.Inf(-1), math.Inf(1)
	for _, m := range s.movers {
		s.groupVS = math.Min(s.groupVS, m.vs)
		s.groupVE = math.Max(s.groupVE, m.ve)
		// Visible content may not move before zero.
		s.minDelta = math.Max(s.minDelta, -m.vs)
	}

	push := s.e.opts.Policy == OverlapPush
	for _, u := range others {
		if push && u.vs >= s.groupVE-eps {
			s.pushable = append(s.pushable, u)
			continue
		}
		for _, m := range s.movers {
			switch {
			case u.ve <= m.vs+eps:
				s.minDelta = math.Max(s.minDelta, u.ve-m.vs)
			case u.vs >= m.ve-eps:
				s.maxDelta = math.Min(s.maxDelta, u.vs-m.ve)
			}
			// Pairs that already overlap cannot be resolved by direction and are left alone.
		}
	}
	sort.Slice(s.pushable, func(i, j int) bool { return s.pushable[i].vs < s.pushable[j].vs })

	s.anchors = append(s.anchors, 0)
	s.anchors = append(s.anchors, s.e.model.Markers()...)
	for _, k := range []timeline.Kind{timeline.KindVideo, timeline.KindAudio} {
		for _, c := range s.e.model.Clips(k) {
			if sel.Contains(c.Ref()) || (push && k == kind && c.VisibleStart() >= s.groupVE-eps) {
				continue
			}
			s.anchors = append(s.anchors, c.VisibleStart(), c.VisibleEnd())
		}
	}
}

// Delta is the offset currently applied to the group, in seconds.
func (s *DragSession) Delta() float64 { return s.delta }

// DraggingOut reports whether the gesture has switched to drag-out.
func (s *DragSession) DraggingOut() bool { return s.mode == dragOut }

func (s *DragSession) Move(p Pointer) {
	if s.closed || s.mode == dragOut || !isFinitePointer(p) {
		return
	}
	dx, dy := p.X-s.origin.X, p.Y-s.origin.Y
	if math.Abs(dx) > clickSlopPx || math.Abs(dy) > clickSlopPx {
		s.dragged = true
	}

	if math.Abs(dy) >= s.e.opts.DragOutPx || (s.lane != nil && !s.lane.Contains(p)) {
		s.extract()
		return
	}
	if s.minDelta > s.maxDelta+eps {
		return
	}

	if dx == 0 {
		s.apply(0)
		return
	}
	raw := dx / s.e.opts.PxPerSecond
	if isBad(raw) {
		return
	}
	d := math.Min(math.Max(raw, s.minDelta), s.maxDelta)
	d = s.snap(d)
	s.apply(d)
}

// snap moves d so that the group start or end lands on the nearest anchor
// within the pixel threshold, provided the result stays admissible.
func (s *DragSession) snap(d float64) float64 {
	threshold := s.e.opts.SnapPx / s.e.opts.PxPerSecond
	if threshold <= 0 || isBad(threshold) {
		return d
	}
	best, bestDist := d, math.Inf(1)
	for _, a := range s.anchors {
		for _, edge0 := range [2]float64{s.groupVS, s.groupVE} {
			dist := math.Abs(a - (edge0 + d))
			if dist > threshold+eps || dist >= bestDist {
				continue
			}
			cand := a - edge0
			if cand < s.minDelta-eps || cand > s.maxDelta+eps {
				continue
			}
			best, bestDist = cand, dist
		}
	}
	return best
}

func (s *DragSession) apply(d float64) {
	s.delta = d
	for _, m := range s.movers {
		s.e.setStart(m.ref, m.start+d)
	}
	if len(s.pushable) == 0 {
		return
	}
	occupied := s.groupVE + d
	for _, u := range s.pushable {
		shift := 0.0
		if u.vs < occupied-eps {
			shift = occupied - u.vs
		}
		s.e.setStart(u.ref, u.start+shift)
		occupied = math.Max(occupied, u.ve+shift)
	}
}

func (s *DragSession) revert() {
	s.delta = 0
	for _, m := range s.movers {
		s.e.setStart(m.ref, m.start)
	}
	for _, u := range s.pushable {
		s.e.setStart(u.ref, u.start)
	}
}

// extract reverts the in-track move and hands the selection to the drop target.
// The session stays in drag-out mode until it ends.
func (s *DragSession) extract() {
	s.revert()
	s.mode = dragOut
	payloads := s.e.payloads()
	s.e.logger.Debug().Int("clips", len(payloads)).Msg("drag-out started")
	if s.e.target != nil && len(payloads) > 0 {
		s.e.target.DragOut(payloads)
	}
}

// End finishes the gesture. A press that never became a drag acts as a click.
func (s *DragSession) End() {
	if s.closed {
		return
	}
	if !s.dragged && s.mode == dragInTrack {
		s.revert()
		switch {
		case !s.additive:
			s.e.selection.Click(s.pressed, false)
		case s.wasSel:
			s.e.selection.Remove(s.pressed)
		}
	}
	s.Close()
}

// Cancel restores every moved clip and closes the session.
func (s *DragSession) Cancel() {
	if s.closed {
		return
	}
	s.revert()
	s.Close()
}

// Close releases the session without touching the model. Safe to call twice.
func (s *DragSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.e.release(s)
}

func startOf(c timeline.Clip) float64 {
	switch v := c.(type) {
	case timeline.VideoClip:
		return v.Start
	case timeline.AudioClip:
		return v.Start
	}
	return 0
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func isFinitePointer(p Pointer) bool {
	return !isBad(p.X) && !isBad(p.Y)
}
