package render

import "storyreel/internal/timeline"

type Zone string

const (
	ZoneNone      Zone = "none"
	ZoneBody      Zone = "body"
	ZoneTrimStart Zone = "trim-start"
	ZoneTrimEnd   Zone = "trim-end"
)

// DefaultHandlePx is the width of the trim-handle hot zone at each clip edge.
const DefaultHandlePx = 8.0

// HoverZone classifies x against a clip box. Only video clips have trim handles.
func HoverZone(box ClipBox, x, marginPx float64) Zone {
	if x < box.X || x > box.X+box.W {
		return ZoneNone
	}
	if box.Ref.Type != timeline.KindVideo {
		return ZoneBody
	}
	// Narrow clips keep a grabbable body in the middle third.
	m := marginPx
	if 3*m > box.W {
		m = box.W / 3
	}
	switch {
	case x <= box.X+m:
		return ZoneTrimStart
	case x >= box.X+box.W-m:
		return ZoneTrimEnd
	}
	return ZoneBody
}

func Cursor(z Zone) string {
	switch z {
	case ZoneTrimStart, ZoneTrimEnd:
		return "ew-resize"
	case ZoneBody:
		return "grab"
	}
	return "default"
}

// HitTest returns the topmost clip box on lane under x.
func (f Frame) HitTest(lane int, x float64) (ClipBox, bool) {
	for i := len(f.Clips) - 1; i >= 0; i-- {
		b := f.Clips[i]
		if b.Lane == lane && x >= b.X && x <= b.X+b.W {
			return b, true
		}
	}
	return ClipBox{}, false
}

type Hover struct {
	Ref    timeline.Ref `json:"ref"`
	Zone   Zone         `json:"zone"`
	Cursor string       `json:"cursor"`
}

// HoverTracker remembers the last hover so callers only act on changes.
// It never touches the model.
type HoverTracker struct {
	MarginPx float64
	current  Hover
}

func (h *HoverTracker) Update(f Frame, lane int, x float64) (Hover, bool) {
	margin := h.MarginPx
	if margin <= 0 {
		margin = DefaultHandlePx
	}
	next := Hover{Zone: ZoneNone}
	if box, ok := f.HitTest(lane, x); ok {
		next = Hover{Ref: box.Ref, Zone: HoverZone(box, x, margin)}
	}
	next.Cursor = Cursor(next.Zone)
	changed := next != h.current
	h.current = next
	return next, changed
}

func (h *HoverTracker) Current() Hover { return h.current }
