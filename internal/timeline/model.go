package timeline

import (
	"errors"
	"math"
	"sort"
)

const (
	// MinVisible is the shortest visible span a trimmed video clip may keep.
	MinVisible = 0.1
	// MinWindow floors TotalDuration so an empty timeline still has a usable ruler.
	MinWindow = 30.0

	epsilon = 1e-9
)

var ErrClipNotFound = errors.New("clip not found")

// Model holds the tracks and markers of one editor session.
//
// Every mutation replaces the affected slice instead of writing into it, so a
// slice handed out earlier keeps describing the state it was taken from.
// Model performs no validation and is not safe for concurrent use.
type Model struct {
	video   []VideoClip
	audio   []AudioClip
	markers []float64
	rev     uint64
}

func NewModel() *Model {
	return &Model{}
}

// Revision increases by one on every mutation.
func (m *Model) Revision() uint64 {
	return m.rev
}

func (m *Model) VideoClips() []VideoClip {
	return m.video
}

func (m *Model) AudioClips() []AudioClip {
	return m.audio
}

func (m *Model) Markers() []float64 {
	return m.markers
}

func (m *Model) VideoClip(id string) (VideoClip, bool) {
	for _, c := range m.video {
		if c.ID == id {
			return c, true
		}
	}
	return VideoClip{}, false
}

func (m *Model) AudioClip(id string) (AudioClip, bool) {
	for _, c := range m.audio {
		if c.ID == id {
			return c, true
		}
	}
	return AudioClip{}, false
}

// Clip looks up a clip of either kind.
func (m *Model) Clip(ref Ref) (Clip, bool) {
	switch ref.Type {
	case KindVideo:
		if c, ok := m.VideoClip(ref.ID); ok {
			return c, true
		}
	case KindAudio:
		if c, ok := m.AudioClip(ref.ID); ok {
			return c, true
		}
	}
	return nil, false
}

// Clips returns every clip of one kind as the Clip variant.
func (m *Model) Clips(kind Kind) []Clip {
	switch kind {
	case KindVideo:
		out := make([]Clip, len(m.video))
		for i, c := range m.video {
			out[i] = c
		}
		return out
	case KindAudio:
		out := make([]Clip, len(m.audio))
		for i, c := range m.audio {
			out[i] = c
		}
		return out
	}
	return nil
}

func (m *Model) AddVideoClip(c VideoClip) {
	next := make([]VideoClip, len(m.video), len(m.video)+1)
	copy(next, m.video)
	m.video = append(next, c)
	m.rev++
}

func (m *Model) AddAudioClip(c AudioClip) {
	next := make([]AudioClip, len(m.audio), len(m.audio)+1)
	copy(next, m.audio)
	m.audio = append(next, c)
	m.rev++
}

func (m *Model) UpdateVideoClip(id string, patch VideoPatch) error {
	for i, c := range m.video {
		if c.ID != id {
			continue
		}
		next := make([]VideoClip, len(m.video))
		copy(next, m.video)
		next[i] = patch.apply(c)
		m.video = next
		m.rev++
		return nil
	}
	return ErrClipNotFound
}

func (m *Model) UpdateAudioClip(id string, patch AudioPatch) error {
	for i, c := range m.audio {
		if c.ID != id {
			continue
		}
		next := make([]AudioClip, len(m.audio))
		copy(next, m.audio)
		next[i] = patch.apply(c)
		m.audio = next
		m.rev++
		return nil
	}
	return ErrClipNotFound
}

func (m *Model) RemoveClip(kind Kind, id string) error {
	switch kind {
	case KindVideo:
		for i, c := range m.video {
			if c.ID == id {
				next := make([]VideoClip, 0, len(m.video)-1)
				next = append(next, m.video[:i]...)
				m.video = append(next, m.video[i+1:]...)
				m.rev++
				return nil
			}
		}
	case KindAudio:
		for i, c := range m.audio {
			if c.ID == id {
				next := make([]AudioClip, 0, len(m.audio)-1)
				next = append(next, m.audio[:i]...)
				m.audio = append(next, m.audio[i+1:]...)
				m.rev++
				return nil
			}
		}
	}
	return ErrClipNotFound
}

// AddMarker inserts t keeping markers sorted. Duplicates are ignored.
func (m *Model) AddMarker(t float64) {
	i := sort.SearchFloat64s(m.markers, t)
	if i < len(m.markers) && math.Abs(m.markers[i]-t) < epsilon {
		return
	}
	next := make([]float64, 0, len(m.markers)+1)
	next = append(next, m.markers[:i]...)
	next = append(next, t)
	m.markers = append(next, m.markers[i:]...)
	m.rev++
}

// RemoveMarker deletes the marker at t, reporting whether one existed.
func (m *Model) RemoveMarker(t float64) bool {
	for i, v := range m.markers {
		if math.Abs(v-t) < 1e-6 {
			next := make([]float64, 0, len(m.markers)-1)
			next = append(next, m.markers[:i]...)
			m.markers = append(next, m.markers[i+1:]...)
			m.rev++
			return true
		}
	}
	return false
}

// ContentEnd is the latest visible end across both tracks.
func (m *Model) ContentEnd() float64 {
	end := 0.0
	for _, c := range m.video {
		if e := c.VisibleEnd(); e > end {
			end = e
		}
	}
	for _, c := range m.audio {
		if e := c.VisibleEnd(); e > end {
			end = e
		}
	}
	return end
}

// TotalDuration is ContentEnd floored to MinWindow.
func (m *Model) TotalDuration() float64 {
	return math.Max(m.ContentEnd(), MinWindow)
}
