package interact

import (
	"math"

	"storyreel/internal/timeline"
)

// Edge selects which trim handle a TrimSession drags.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

// SeekFunc receives the visible edge under the cursor while trimming.
type SeekFunc func(seconds float64)

// TrimSession moves one edge of a video clip's visible span.
type TrimSession struct {
	e      *Engine
	clip   timeline.VideoClip
	edge   Edge
	origin Pointer
	seek   SeekFunc

	// leftEnd and rightStart are the nearest neighbours' visible edges.
	leftEnd    float64
	rightStart float64
	closed     bool
}

func (e *Engine) BeginTrim(ref timeline.Ref, edge Edge, at Pointer, seek SeekFunc) (*TrimSession, error) {
	if ref.Type != timeline.KindVideo {
		return nil, ErrNotTrimmable
	}
	c, ok := e.model.VideoClip(ref.ID)
	if !ok {
		return nil, timeline.ErrClipNotFound
	}

	s := &TrimSession{
		e:          e,
		clip:       c,
		edge:       edge,
		origin:     at,
		seek:       seek,
		leftEnd:    math.Inf(-1),
		rightStart: math.Inf(1),
	}
	vs, ve := c.VisibleStart(), c.VisibleEnd()
	for _, o := range e.model.VideoClips() {
		if o.ID == c.ID {
			continue
		}
		if oe := o.VisibleEnd(); oe <= vs+eps && oe > s.leftEnd {
			s.leftEnd = oe
		}
		if os := o.VisibleStart(); os >= ve-eps && os < s.rightStart {
			s.rightStart = os
		}
	}

	e.selection.Click(ref, false)
	e.begin(s)
	e.logger.Debug().Str("id", c.ID).Str("edge", string(edge)).Msg("trim started")
	return s, nil
}

// Bounds returns the admissible range for the handle's trim value. An empty
// range (lo > hi) means the gesture cannot move.
func (s *TrimSession) Bounds() (lo, hi float64) {
	c := s.clip
	minVis := s.e.opts.MinVisible
	switch s.edge {
	case EdgeStart:
		lo = math.Max(0, -c.Start)
		if !math.IsInf(s.leftEnd, -1) {
			lo = math.Max(lo, s.leftEnd-c.Start)
		}
		hi = c.Duration - c.TrimEnd - minVis
	case EdgeEnd:
		lo = 0
		if !math.IsInf(s.rightStart, 1) {
			lo = math.Max(lo, c.Start+c.Duration-s.rightStart)
		}
		hi = c.Duration - c.TrimStart - minVis
	}
	return lo, hi
}

func (s *TrimSession) Move(p Pointer) {
	if s.closed || !isFinitePointer(p) {
		return
	}
	dt := (p.X - s.origin.X) / s.e.opts.PxPerSecond
	if isBad(dt) {
		return
	}
	lo, hi := s.Bounds()
	if isBad(lo) || isBad(hi) || lo > hi+eps {
		return
	}

	c := s.clip
	switch s.edge {
	case EdgeStart:
		v := math.Min(math.Max(c.TrimStart+dt, lo), hi)
		s.e.setTrim(c.ID, timeline.VideoPatch{TrimStart: timeline.Float(v)})
		if s.seek != nil {
			s.seek(c.Start + v)
		}
	case EdgeEnd:
		v := math.Min(math.Max(c.TrimEnd-dt, lo), hi)
		s.e.setTrim(c.ID, timeline.VideoPatch{TrimEnd: timeline.Float(v)})
		if s.seek != nil {
			s.seek(c.Start + c.Duration - v)
		}
	}
}

func (s *TrimSession) End() {
	s.Close()
}

// Cancel restores the pre-gesture trim values.
func (s *TrimSession) Cancel() {
	if s.closed {
		return
	}
	s.e.setTrim(s.clip.ID, timeline.VideoPatch{
		TrimStart: timeline.Float(s.clip.TrimStart),
		TrimEnd:   timeline.Float(s.clip.TrimEnd),
	})
	s.Close()
}

func (s *TrimSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.e.release(s)
}

// setTrim writes a trim patch only if the result keeps the trim invariant.
func (e *Engine) setTrim(id string, patch timeline.VideoPatch) {
	c, ok := e.model.VideoClip(id)
	if !ok {
		return
	}
	next := c
	if patch.TrimStart != nil {
		next.TrimStart = *patch.TrimStart
	}
	if patch.TrimEnd != nil {
		next.TrimEnd = *patch.TrimEnd
	}
	if isBad(next.TrimStart) || isBad(next.TrimEnd) {
		return
	}
	if next.TrimStart < 0 || next.TrimEnd < 0 || next.TrimStart+next.TrimEnd+e.opts.MinVisible > next.Duration+eps {
		return
	}
	if next == c {
		return
	}
	if err := e.model.UpdateVideoClip(id, patch); err != nil {
		e.logger.Debug().Err(err).Str("id", id).Msg("trim update skipped")
	}
}
