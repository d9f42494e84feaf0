// Package interact implements the pointer and keyboard gestures that edit a
// timeline: group drag with overlap resolution and snapping, edge trimming,
// multi-selection, drag-out extraction, keyboard delete and sidebar drops.
//
// Gestures are short-lived session objects. Beginning a gesture closes any
// session still open, so a lost pointer-up never leaves a gesture running.
package interact

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"storyreel/internal/timeline"
)

var (
	ErrNoSelection       = errors.New("no clips selected")
	ErrDeleteDeclined    = errors.New("delete not confirmed")
	ErrNotTrimmable      = errors.New("only video clips can be trimmed")
	ErrInvalidDragSource = errors.New("invalid drag source")
)

// OverlapPolicy decides what a group drag does when it reaches an unselected
// clip on its right.
type OverlapPolicy string

const (
	// OverlapBlock stops the group at the neighbour's visible edge.
	OverlapBlock OverlapPolicy = "block"
	// OverlapPush moves right-hand neighbours forward to make room.
	OverlapPush OverlapPolicy = "push"
)

func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case "", OverlapBlock:
		return OverlapBlock, nil
	case OverlapPush:
		return OverlapPush, nil
	}
	return "", fmt.Errorf("unknown overlap policy %q", s)
}

type Options struct {
	PxPerSecond         float64
	SnapPx              float64
	DragOutPx           float64
	MinVisible          float64
	DefaultClipDuration float64
	Policy              OverlapPolicy
}

func DefaultOptions() Options {
	return Options{
		PxPerSecond:         50,
		SnapPx:              8,
		DragOutPx:           22,
		MinVisible:          timeline.MinVisible,
		DefaultClipDuration: 5,
		Policy:              OverlapBlock,
	}
}

// Pointer is a position in lane content coordinates (scroll already applied).
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) Contains(p Pointer) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// DropTarget receives clips extracted by a drag-out gesture.
type DropTarget interface {
	DragOut(payloads []DragPayload)
}

type DropTargetFunc func(payloads []DragPayload)

func (f DropTargetFunc) DragOut(payloads []DragPayload) { f(payloads) }

// Confirmer is asked before destructive edits.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

type session interface {
	Close()
}

// Engine applies gestures to one model. It is not safe for concurrent use;
// the owning editor session serialises calls.
type Engine struct {
	model     *timeline.Model
	selection *Selection
	opts      Options
	logger    zerolog.Logger

	target  DropTarget
	confirm Confirmer
	active  session
}

func NewEngine(model *timeline.Model, opts Options, logger zerolog.Logger) *Engine {
	def := DefaultOptions()
	if opts.PxPerSecond <= 0 {
		opts.PxPerSecond = def.PxPerSecond
	}
	if opts.SnapPx < 0 {
		opts.SnapPx = 0
	}
	if opts.DragOutPx <= 0 {
		opts.DragOutPx = def.DragOutPx
	}
	if opts.MinVisible <= 0 {
		opts.MinVisible = def.MinVisible
	}
	if opts.DefaultClipDuration <= 0 {
		opts.DefaultClipDuration = def.DefaultClipDuration
	}
	if opts.Policy == "" {
		opts.Policy = OverlapBlock
	}
	return &Engine{
		model:     model,
		selection: NewSelection(),
		opts:      opts,
		logger:    logger.With().Str("component", "interact").Logger(),
	}
}

func (e *Engine) Model() *timeline.Model { return e.model }

func (e *Engine) Selection() *Selection { return e.selection }

func (e *Engine) Options() Options { return e.opts }

// Zoom returns the current pixels-per-second applied to every track.
func (e *Engine) Zoom() float64 { return e.opts.PxPerSecond }

// SetZoom ignores non-positive or non-finite values.
func (e *Engine) SetZoom(pxPerSecond float64) {
	if pxPerSecond > 0 && !isBad(pxPerSecond) {
		e.opts.PxPerSecond = pxPerSecond
	}
}

func (e *Engine) SetPolicy(p OverlapPolicy) {
	e.opts.Policy = p
}

func (e *Engine) SetDropTarget(t DropTarget) { e.target = t }

func (e *Engine) SetConfirmer(c Confirmer) { e.confirm = c }

// Interacting reports whether a gesture session is open.
func (e *Engine) Interacting() bool { return e.active != nil }

// CancelActive aborts any open gesture, restoring its pre-gesture state.
func (e *Engine) CancelActive() {
	switch s := e.active.(type) {
	case *DragSession:
		s.Cancel()
	case *TrimSession:
		s.Cancel()
	}
}

// ResetScope clears the selection, as happens when the edited scope changes.
func (e *Engine) ResetScope() {
	e.CancelActive()
	e.selection.Clear()
}

func (e *Engine) begin(s session) {
	if e.active != nil {
		e.active.Close()
	}
	e.active = s
}

func (e *Engine) release(s session) {
	if e.active == s {
		e.active = nil
	}
}

// Click applies plain or additive selection to ref.
func (e *Engine) Click(ref timeline.Ref, additive bool) {
	if _, ok := e.model.Clip(ref); !ok {
		return
	}
	e.selection.Click(ref, additive)
}

func (e *Engine) setStart(ref timeline.Ref, start float64) {
	if isBad(start) {
		return
	}
	var err error
	switch ref.Type {
	case timeline.KindVideo:
		c, ok := e.model.VideoClip(ref.ID)
		if !ok || c.Start == start {
			return
		}
		err = e.model.UpdateVideoClip(ref.ID, timeline.VideoPatch{Start: timeline.Float(start)})
	case timeline.KindAudio:
		c, ok := e.model.AudioClip(ref.ID)
		if !ok || c.Start == start {
			return
		}
		err = e.model.UpdateAudioClip(ref.ID, timeline.AudioPatch{Start: timeline.Float(start)})
	}
	if err != nil {
		e.logger.Debug().Err(err).Str("id", ref.ID).Msg("start update skipped")
	}
}
