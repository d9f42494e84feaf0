package timeline

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// State is the persisted form of a timeline. It holds no derived fields.
type State struct {
	VideoClips []VideoClip `json:"videoClips"`
	AudioClips []AudioClip `json:"audioClips"`
	Markers    []float64   `json:"markers,omitempty"`
}

// Load replaces the whole model with s.
func (m *Model) Load(s State) {
	m.video = append([]VideoClip(nil), s.VideoClips...)
	m.audio = append([]AudioClip(nil), s.AudioClips...)
	m.markers = normalizeMarkers(s.Markers)
	m.rev++
}

// normalizeMarkers sorts and dedupes markers and drops non-finite ones.
func normalizeMarkers(in []float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	n := 0
	for _, v := range out {
		if n > 0 && math.Abs(out[n-1]-v) < epsilon {
			continue
		}
		out[n] = v
		n++
	}
	if n == 0 {
		return nil
	}
	return out[:n]
}

// State snapshots the model. Clip slices are never nil so they encode as [].
func (m *Model) State() State {
	s := State{
		VideoClips: append([]VideoClip{}, m.video...),
		AudioClips: append([]AudioClip{}, m.audio...),
	}
	if len(m.markers) > 0 {
		s.Markers = append([]float64(nil), m.markers...)
	}
	return s
}

func ParseState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decoding timeline state: %w", err)
	}
	if s.VideoClips == nil {
		s.VideoClips = []VideoClip{}
	}
	if s.AudioClips == nil {
		s.AudioClips = []AudioClip{}
	}
	return s, nil
}

func (s State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding timeline state: %w", err)
	}
	return data, nil
}
