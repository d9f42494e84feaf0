package interact

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"storyreel/internal/media"
	"storyreel/internal/timeline"
)

// DragSource is the payload the asset sidebar attaches to a draggable asset.
type DragSource struct {
	Kind            timeline.Kind `json:"kind"`
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Src             string        `json:"src"`
	DurationSeconds *float64      `json:"durationSeconds,omitempty"`
}

// ParseDragSource decodes a sidebar payload. A missing kind is inferred from
// the source URL.
func ParseDragSource(data []byte) (DragSource, error) {
	var src DragSource
	if err := json.Unmarshal(data, &src); err != nil {
		return DragSource{}, fmt.Errorf("%w: %v", ErrInvalidDragSource, err)
	}
	if src.Kind == "" {
		if k, ok := media.KindFromSrc(src.Src); ok {
			src.Kind = k
		}
	}
	if !src.Kind.Valid() {
		return DragSource{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidDragSource, src.Kind)
	}
	if src.ID == "" {
		return DragSource{}, fmt.Errorf("%w: missing id", ErrInvalidDragSource)
	}
	return src, nil
}

// Drop creates a clip for src at the time under atPx. The clip lands in the
// first free slot at or after that time and becomes the selection.
func (e *Engine) Drop(src DragSource, atPx float64) (timeline.Ref, error) {
	if !src.Kind.Valid() {
		return timeline.Ref{}, ErrInvalidDragSource
	}
	at := atPx / e.opts.PxPerSecond
	if isBad(at) {
		at = 0
	}
	at = math.Max(0, at)

	dur := e.opts.DefaultClipDuration
	if src.DurationSeconds != nil && *src.DurationSeconds > 0 && !isBad(*src.DurationSeconds) {
		dur = *src.DurationSeconds
	}
	start := e.freeSlot(src.Kind, at, dur)

	id := uuid.NewString()
	switch src.Kind {
	case timeline.KindVideo:
		e.model.AddVideoClip(timeline.VideoClip{
			ID:       id,
			SourceID: src.ID,
			Title:    src.Name,
			Start:    start,
			Duration: dur,
			MediaSrc: src.Src,
		})
	case timeline.KindAudio:
		e.model.AddAudioClip(timeline.AudioClip{
			ID:            id,
			SourceAssetID: src.ID,
			Name:          src.Name,
			Start:         start,
			Duration:      dur,
			MediaSrc:      src.Src,
		})
	}

	ref := timeline.Ref{Type: src.Kind, ID: id}
	e.selection.Click(ref, false)
	e.logger.Info().
		Str("id", id).
		Str("kind", string(src.Kind)).
		Str("source", src.ID).
		Float64("start", start).
		Float64("duration", dur).
		Msg("clip dropped")
	return ref, nil
}

func (e *Engine) freeSlot(kind timeline.Kind, at, dur float64) float64 {
	clips := e.model.Clips(kind)
	sort.Slice(clips, func(i, j int) bool { return clips[i].VisibleStart() < clips[j].VisibleStart() })
	cand := at
	for _, c := range clips {
		if c.VisibleEnd() <= cand+eps {
			continue
		}
		if c.VisibleStart() >= cand+dur-eps {
			break
		}
		cand = c.VisibleEnd()
	}
	return cand
}
