package editor

import (
	"sync"
)

const visualTarget = "visual"

func audioTarget(clipID string) string { return "audio:" + clipID }

// remoteSurface mirrors a media element that lives in the host. Commands go
// out over the hub; the host reports back through Session.SurfaceEvent.
type remoteSurface struct {
	target string
	hub    *hub

	mu       sync.Mutex
	src      string
	playing  bool
	position float64
}

func newRemoteSurface(target string, h *hub) *remoteSurface {
	return &remoteSurface{target: target, hub: h}
}

func (r *remoteSurface) send(command string, m Message) {
	m.Type = MsgSurface
	m.Target = r.target
	m.Command = command
	r.hub.publish(m)
}

func (r *remoteSurface) Load(src string) {
	r.mu.Lock()
	r.src = src
	r.playing = false
	r.position = 0
	r.mu.Unlock()
	r.send("load", Message{Src: src})
}

// Play asks the host to start. Playing stays false until the host confirms.
func (r *remoteSurface) Play() error {
	r.send("play", Message{})
	return nil
}

func (r *remoteSurface) Pause() {
	r.mu.Lock()
	r.playing = false
	r.mu.Unlock()
	r.send("pause", Message{})
}

func (r *remoteSurface) Seek(s float64) {
	r.mu.Lock()
	r.position = s
	r.mu.Unlock()
	r.send("seek", Message{Position: seconds(s)})
}

func (r *remoteSurface) Unmute() {
	r.send("unmute", Message{})
}

func (r *remoteSurface) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

func (r *remoteSurface) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// report applies a host event to the mirrored state.
func (r *remoteSurface) report(event string, position float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch event {
	case "playing":
		r.playing = true
	case "pause", "ended", "play_failed", "waiting", "stalled":
		r.playing = false
	}
	if event == "timeupdate" || event == "playing" || event == "seeked" {
		r.position = position
	}
}

func (r *remoteSurface) currentSrc() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src
}
