package storage

import (
	"encoding/json"
	"time"
)

type Timeline struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Asset caches probed metadata for a media source so drops without a
// duration can be filled in.
type Asset struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	Src        string    `json:"src"`
	Duration   *float64  `json:"durationSeconds,omitempty"`
	Width      *int      `json:"width,omitempty"`
	Height     *int      `json:"height,omitempty"`
	VideoCodec *string   `json:"videoCodec,omitempty"`
	AudioCodec *string   `json:"audioCodec,omitempty"`
	CreatedAt  time.Time `json:"-"`
}

type PlaybackState struct {
	TimelineID string    `json:"timelineId"`
	Position   float64   `json:"positionSeconds"`
	Duration   float64   `json:"durationSeconds"`
	Progress   float64   `json:"progress"` // 0.0 - 1.0
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TimelineSummary combines a timeline with its saved playhead.
type TimelineSummary struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	PlaybackState *PlaybackState `json:"playbackState,omitempty"`
}
