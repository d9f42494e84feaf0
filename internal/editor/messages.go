package editor

import (
	"encoding/json"

	"storyreel/internal/interact"
	"storyreel/internal/playback"
	"storyreel/internal/render"
)

// Message is a server-to-host notification on the control channel.
type Message struct {
	Type      string                 `json:"type"`
	Seconds   *float64               `json:"seconds,omitempty"`
	State     playback.State         `json:"state,omitempty"`
	Key       string                 `json:"key,omitempty"`
	From      string                 `json:"from,omitempty"`
	To        string                 `json:"to,omitempty"`
	Buffering *bool                  `json:"buffering,omitempty"`
	Target    string                 `json:"target,omitempty"`
	Command   string                 `json:"command,omitempty"`
	Src       string                 `json:"src,omitempty"`
	Position  *float64               `json:"position,omitempty"`
	Frame     *render.Frame          `json:"frame,omitempty"`
	Payloads  []interact.DragPayload `json:"payloads,omitempty"`
	Cursor    string                 `json:"cursor,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

const (
	MsgElapsed    = "elapsed"
	MsgState      = "state"
	MsgBuffering  = "buffering"
	MsgManualPlay = "manual_play"
	MsgAdvanced   = "advanced"
	MsgSurface    = "surface"
	MsgFrame      = "frame"
	MsgDragOut    = "dragout"
	MsgHover      = "hover"
	MsgConfirm    = "confirm"
	MsgError      = "error"
)

// Inbound is a host-to-server message on the control channel.
type Inbound struct {
	Type string `json:"type"`

	// playback
	Seconds *float64 `json:"seconds,omitempty"`
	Key     string   `json:"key,omitempty"`

	// pointer and keyboard
	Lane     int            `json:"lane"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Additive bool           `json:"additive,omitempty"`
	LaneRect *interact.Rect `json:"laneRect,omitempty"`
	Focus    string         `json:"focus,omitempty"`
	Confirm  bool           `json:"confirm,omitempty"`

	// viewport
	ScrollPx    *float64 `json:"scrollPx,omitempty"`
	WidthPx     *float64 `json:"widthPx,omitempty"`
	PxPerSecond *float64 `json:"pxPerSecond,omitempty"`
	AnchorPx    *float64 `json:"anchorPx,omitempty"`

	// drop
	Source json.RawMessage `json:"source,omitempty"`

	// surface reports
	Target   string  `json:"target,omitempty"`
	Event    string  `json:"event,omitempty"`
	Position float64 `json:"position,omitempty"`
}

// Lane values used by pointer messages besides the track lanes.
const LaneRuler = -1

func seconds(v float64) *float64 { return &v }
