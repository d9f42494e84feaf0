package playback

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/timeline"
)

var errAutoplay = errors.New("autoplay blocked")

type fakeVisual struct {
	src      string
	playing  bool
	position float64
	failSrc  map[string]bool
	calls    []string
	plays    int
	// lag accepts Play without ever reporting Playing, like a host that
	// has not confirmed yet.
	lag bool
}

func (v *fakeVisual) Load(src string) {
	v.src = src
	v.playing = false
	v.calls = append(v.calls, "load:"+src)
}

func (v *fakeVisual) Play() error {
	v.plays++
	v.calls = append(v.calls, "play")
	if v.failSrc[v.src] {
		return errAutoplay
	}
	v.playing = !v.lag
	return nil
}

func (v *fakeVisual) Pause() {
	v.playing = false
	v.calls = append(v.calls, "pause")
}

func (v *fakeVisual) Seek(seconds float64) {
	v.position = seconds
	v.calls = append(v.calls, fmt.Sprintf("seek:%.2f", seconds))
}

func (v *fakeVisual) Position() float64 { return v.position }
func (v *fakeVisual) Playing() bool     { return v.playing }
func (v *fakeVisual) Unmute()           { v.calls = append(v.calls, "unmute") }

// fakeAudio runs at clock rate while playing.
type fakeAudio struct {
	clock   *ManualClock
	pos     float64
	at      time.Time
	playing bool
	plays   int
	pauses  int
	seeks   int
}

func (a *fakeAudio) Play() error {
	a.at = a.clock.Now()
	a.playing = true
	a.plays++
	return nil
}

func (a *fakeAudio) Pause() {
	a.pos = a.Position()
	a.playing = false
	a.pauses++
}

func (a *fakeAudio) Seek(seconds float64) {
	a.pos = seconds
	a.at = a.clock.Now()
	a.seeks++
}

func (a *fakeAudio) Position() float64 {
	if !a.playing {
		return a.pos
	}
	return a.pos + a.clock.Now().Sub(a.at).Seconds()
}

func (a *fakeAudio) Playing() bool { return a.playing }

// laggyAudio runs once played but only reports Playing after confirmed is set.
type laggyAudio struct {
	fakeAudio
	confirmed bool
}

func (a *laggyAudio) Playing() bool { return a.playing && a.confirmed }

type recorder struct {
	mu      sync.Mutex
	elapsed []float64
	states  []State
	manual  []string
	advance []string
	buffer  []bool
}

func (r *recorder) ElapsedChanged(s float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elapsed = append(r.elapsed, s)
}

func (r *recorder) StateChanged(s State, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) BufferingChanged(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, b)
}

func (r *recorder) ManualPlayRequired(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manual = append(r.manual, key)
}

func (r *recorder) Advanced(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance = append(r.advance, from+">"+to)
}

func (r *recorder) lastElapsed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.elapsed) == 0 {
		return -1
	}
	return r.elapsed[len(r.elapsed)-1]
}

type harness struct {
	clock  *ManualClock
	visual *fakeVisual
	rec    *recorder
	engine *Engine
}

func newHarness(t *testing.T, items ...timeline.PlaylistItem) *harness {
	t.Helper()
	h := &harness{
		clock:  NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		visual: &fakeVisual{failSrc: map[string]bool{}},
		rec:    &recorder{},
	}
	h.engine = NewEngine(h.clock, h.visual, DefaultOptions(), zerolog.Nop())
	h.engine.SetObserver(h.rec)
	h.engine.SetPlaylist(playlistOf(items...))
	return h
}

// playlistOf lays items end to end.
func playlistOf(items ...timeline.PlaylistItem) timeline.Playlist {
	var p timeline.Playlist
	for _, it := range items {
		it.Start = p.Total
		p.Items = append(p.Items, it)
		p.Total += it.Duration
	}
	return p
}

func placeholder(key string, d float64) timeline.PlaylistItem {
	return timeline.PlaylistItem{Key: key, Duration: d}
}

func media(key, src string, in, out float64) timeline.PlaylistItem {
	return timeline.PlaylistItem{Key: key, VideoSrc: src, TrimStart: in, TrimEnd: out, Duration: out - in}
}
