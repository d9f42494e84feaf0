package interact

import "storyreel/internal/timeline"

// DragPayload describes one clip handed to an external drop target.
type DragPayload struct {
	Type            timeline.Kind `json:"type"`
	ID              string        `json:"id"`
	SegmentID       string        `json:"segmentId,omitempty"`
	Title           string        `json:"title"`
	Src             string        `json:"src,omitempty"`
	DurationSeconds float64       `json:"durationSeconds"`
	TrimStart       *float64      `json:"trimStart,omitempty"`
	TrimEnd         *float64      `json:"trimEnd,omitempty"`
}

func payloadFor(c timeline.Clip) DragPayload {
	switch v := c.(type) {
	case timeline.VideoClip:
		return DragPayload{
			Type:            timeline.KindVideo,
			ID:              v.ID,
			SegmentID:       v.SourceID,
			Title:           v.Title,
			Src:             v.MediaSrc,
			DurationSeconds: v.VisibleDuration(),
			TrimStart:       timeline.Float(v.TrimStart),
			TrimEnd:         timeline.Float(v.TrimEnd),
		}
	case timeline.AudioClip:
		return DragPayload{
			Type:            timeline.KindAudio,
			ID:              v.ID,
			Title:           v.Name,
			Src:             v.MediaSrc,
			DurationSeconds: v.Duration,
		}
	}
	return DragPayload{}
}

// payloads describes every selected clip in selection order.
func (e *Engine) payloads() []DragPayload {
	var out []DragPayload
	for _, ref := range e.selection.Refs() {
		if c, ok := e.model.Clip(ref); ok {
			out = append(out, payloadFor(c))
		}
	}
	return out
}
