package api

import (
	"encoding/json"

	"storyreel/internal/storage"
	"storyreel/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateTimelineRequest struct {
	Name  string          `json:"name"`
	State *timeline.State `json:"state,omitempty"`
}

type TimelineResponse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	State timeline.State `json:"state"`
}

type TimelineListResponse struct {
	Items []storage.TimelineSummary `json:"items"`
}

type DropRequest struct {
	Source json.RawMessage `json:"source"`
	X      float64         `json:"x"`
}

type DropResponse struct {
	Ref timeline.Ref `json:"ref"`
}

type DeleteClipsRequest struct {
	Refs    []timeline.Ref `json:"refs"`
	Confirm bool           `json:"confirm"`
}

type MarkerRequest struct {
	Seconds float64 `json:"seconds"`
}

type MarkersResponse struct {
	Markers []float64 `json:"markers"`
}

// Playback DTOs

type SeekRequest struct {
	Position float64 `json:"positionSeconds"`
}
