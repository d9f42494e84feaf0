package playback

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/timeline"
)

type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StatePlaying   State = "playing"
	StateBuffering State = "buffering"
	StatePaused    State = "paused"
	StateAdvancing State = "advancing"
	StateEnded     State = "ended"
)

// Observer receives engine notifications. Calls are made after the engine
// lock is released, in the order the changes happened.
type Observer interface {
	ElapsedChanged(seconds float64)
	StateChanged(state State, itemKey string)
	BufferingChanged(buffering bool)
	ManualPlayRequired(itemKey string)
	Advanced(fromKey, toKey string)
}

type nopObserver struct{}

func (nopObserver) ElapsedChanged(float64)     {}
func (nopObserver) StateChanged(State, string) {}
func (nopObserver) BufferingChanged(bool)      {}
func (nopObserver) ManualPlayRequired(string)  {}
func (nopObserver) Advanced(string, string)    {}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	State     State   `json:"state"`
	Playing   bool    `json:"playing"`
	Elapsed   float64 `json:"elapsedSeconds"`
	Local     float64 `json:"localItemSeconds"`
	Seeking   bool    `json:"seeking"`
	Buffering bool    `json:"buffering"`
	ItemKey   string  `json:"itemKey,omitempty"`
	Total     float64 `json:"totalSeconds"`
}

// Engine keeps one visual surface and any number of audio surfaces on the
// single elapsed clock. Every async chain carries the play token it was
// started under and is dropped once the token moves on.
type Engine struct {
	mu       sync.Mutex
	clock    Clock
	visual   VisualSurface
	observer Observer
	opts     Options
	logger   zerolog.Logger

	playlist timeline.Playlist
	audio    []AudioBinding

	state     State
	playing   bool
	elapsed   float64
	local     float64
	seeking   bool
	buffering bool
	index     int
	loaded    string

	// Surfaces told to play, whether or not they have confirmed. Remote
	// surfaces only report Playing once the host has started them.
	visualReq bool
	audioReq  map[AudioSurface]playRequest

	token   uint64
	timerID int
	timers  map[int]Timer

	// placeholder clock origin
	phStart time.Time
	phBase  float64

	lastAdvance time.Time
	manual      map[string]bool

	events []func()
}

func NewEngine(clock Clock, visual VisualSurface, opts Options, logger zerolog.Logger) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	def := DefaultOptions()
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = def.RetryDelays
	}
	if opts.PlaceholderTick <= 0 {
		opts.PlaceholderTick = def.PlaceholderTick
	}
	if opts.DriftThreshold <= 0 {
		opts.DriftThreshold = def.DriftThreshold
	}
	if opts.AdvanceGuard <= 0 {
		opts.AdvanceGuard = def.AdvanceGuard
	}
	if opts.BufferingRetry <= 0 {
		opts.BufferingRetry = def.BufferingRetry
	}
	return &Engine{
		clock:    clock,
		visual:   visual,
		observer: nopObserver{},
		opts:     opts,
		logger:   logger.With().Str("component", "playback").Logger(),
		state:    StateIdle,
		index:    -1,
		timers:   make(map[int]Timer),
		manual:   make(map[string]bool),
		audioReq: make(map[AudioSurface]playRequest),
	}
}

// playRequest is an unconfirmed audio play: when it was last sent and how
// many times.
type playRequest struct {
	at    time.Time
	tries int
}

func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		State:     e.state,
		Playing:   e.playing,
		Elapsed:   e.elapsed,
		Local:     e.local,
		Seeking:   e.seeking,
		Buffering: e.buffering,
		Total:     e.playlist.Total,
	}
	if it, ok := e.current(); ok {
		s.ItemKey = it.Key
	}
	return s
}

// NeedsManualPlay reports whether key exhausted its autoplay retries.
func (e *Engine) NeedsManualPlay(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manual[key]
}

// SetPlaylist replaces the projected cut. A running item keeps playing if
// it is still the item under the playhead.
func (e *Engine) SetPlaylist(p timeline.Playlist) {
	e.mu.Lock()
	defer e.flush()

	prev, hadPrev := e.current()
	e.playlist = p
	if e.elapsed > p.Total {
		e.elapsed = p.Total
	}
	i := p.IndexAt(e.elapsed)
	if !e.playing {
		e.index = i
		e.deriveLocal()
		return
	}
	if i < 0 {
		e.finish()
		return
	}
	next := p.Items[i]
	if hadPrev && prev == next {
		e.index = i
		return
	}
	e.activate(i)
}

// SetAudio rebinds the audio surfaces. Surfaces that are no longer bound are
// paused.
func (e *Engine) SetAudio(bindings []AudioBinding) {
	e.mu.Lock()
	defer e.flush()

	keep := make(map[AudioSurface]bool, len(bindings))
	for _, b := range bindings {
		keep[b.Surface] = true
	}
	for _, b := range e.audio {
		if !keep[b.Surface] {
			e.pauseAudio(b.Surface)
		}
	}
	e.audio = append([]AudioBinding(nil), bindings...)
	e.syncAudio()
}

func (e *Engine) Play() {
	e.mu.Lock()
	defer e.flush()

	if e.playing {
		return
	}
	if e.playlist.Total <= 0 {
		e.setState(StateEnded)
		return
	}
	if e.elapsed >= e.playlist.Total {
		e.elapsed = 0
		e.emitElapsed()
	}
	e.playing = true
	e.activate(e.playlist.IndexAt(e.elapsed))
}

func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.flush()

	if !e.playing {
		return
	}
	e.halt()
	e.setState(StatePaused)
}

// Stop returns to Idle from any state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.flush()

	e.halt()
	e.seeking = false
	e.setState(StateIdle)
}

// BeginSeek marks the start of a scrub. Surface time updates are ignored
// until EndSeek.
func (e *Engine) BeginSeek() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeking = true
}

func (e *Engine) EndSeek() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeking = false
}

// Seek moves the playhead. While playing, the item under the new position is
// activated (or the current one re-seeked).
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.flush()
	e.seek(seconds)
}

func (e *Engine) seek(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return
	}
	total := e.playlist.Total
	if seconds < 0 {
		seconds = 0
	}
	if seconds > total {
		seconds = total
	}
	e.elapsed = seconds
	e.emitElapsed()

	i := e.playlist.IndexAt(seconds)
	if !e.playing {
		e.index = i
		e.deriveLocal()
		e.cue()
		e.syncAudio()
		return
	}
	if i < 0 {
		e.finish()
		return
	}
	it := e.playlist.Items[i]
	if i == e.index && it.HasMedia() && e.state == StatePlaying {
		e.deriveLocal()
		e.visual.Seek(e.mediaTarget(it))
		e.syncAudio()
		return
	}
	e.activate(i)
}

// Next moves the playhead to the start of the following item.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.flush()
	if e.index < 0 {
		return
	}
	if n := e.index + 1; n < len(e.playlist.Items) {
		e.seek(e.playlist.Items[n].Start)
		return
	}
	e.seek(e.playlist.Total)
}

// ManualPlay is the host's user-gesture play for an item whose autoplay
// retries ran out.
func (e *Engine) ManualPlay(key string) {
	e.mu.Lock()
	defer e.flush()

	it, ok := e.current()
	if !ok || it.Key != key || !it.HasMedia() {
		return
	}
	e.playing = true
	e.visual.Unmute()
	err := e.visual.Play()
	if err == nil {
		e.visualReq = true
	}
	if err == nil && e.visual.Playing() {
		e.started()
		return
	}
	e.logger.Warn().Str("item", key).Msg("Manual play did not start")
	e.emit(func(o Observer) { o.ManualPlayRequired(key) })
}

// OnTimeUpdate feeds the visual surface's reported media position.
func (e *Engine) OnTimeUpdate(position float64) {
	e.mu.Lock()
	defer e.flush()

	if e.seeking || !e.playing {
		return
	}
	it, ok := e.current()
	if !ok || !it.HasMedia() {
		return
	}
	if position >= it.TrimEnd-1e-3 {
		e.safeAdvance()
		return
	}
	local := position - it.TrimStart
	if local < 0 {
		local = 0
	}
	e.local = local
	e.elapsed = it.Start + local
	e.emitElapsed()
	e.syncAudio()
}

// OnEnded is the visual surface's end-of-media signal.
func (e *Engine) OnEnded() {
	e.mu.Lock()
	defer e.flush()

	if !e.playing {
		return
	}
	if it, ok := e.current(); !ok || !it.HasMedia() {
		return
	}
	e.safeAdvance()
}

// OnStalled is the visual surface's waiting/stalled signal.
func (e *Engine) OnStalled() {
	e.mu.Lock()
	defer e.flush()

	if !e.playing {
		return
	}
	if it, ok := e.current(); !ok || !it.HasMedia() {
		return
	}
	if !e.buffering {
		e.buffering = true
		e.emit(func(o Observer) { o.BufferingChanged(true) })
	}
	e.setState(StateBuffering)
	e.schedule(e.opts.BufferingRetry, func() {
		if !e.playing || !e.buffering {
			return
		}
		e.logger.Debug().Msg("Retrying stalled playback")
		if err := e.visual.Play(); err == nil {
			e.visualReq = true
		}
		if e.visual.Playing() {
			e.started()
		}
	})
}

// OnPlaying is the visual surface's playing signal.
func (e *Engine) OnPlaying() {
	e.mu.Lock()
	defer e.flush()

	if !e.playing {
		return
	}
	if it, ok := e.current(); !ok || !it.HasMedia() {
		return
	}
	e.started()
}

func (e *Engine) current() (timeline.PlaylistItem, bool) {
	if e.index < 0 || e.index >= len(e.playlist.Items) {
		return timeline.PlaylistItem{}, false
	}
	return e.playlist.Items[e.index], true
}

func (e *Engine) deriveLocal() {
	it, ok := e.current()
	if !ok {
		e.local = 0
		return
	}
	e.local = e.elapsed - it.Start
}

func (e *Engine) mediaTarget(it timeline.PlaylistItem) float64 {
	t := it.TrimStart + e.local
	if t < it.TrimStart {
		t = it.TrimStart
	}
	if t > it.TrimEnd {
		t = it.TrimEnd
	}
	return t
}

// activate makes item i current under a fresh play token.
func (e *Engine) activate(i int) {
	e.cancel()
	if i < 0 || i >= len(e.playlist.Items) {
		e.finish()
		return
	}
	e.index = i
	e.deriveLocal()
	it := e.playlist.Items[i]

	if !it.HasMedia() {
		e.pauseVisual()
		e.startPlaceholder(it)
		e.syncAudio()
		return
	}

	e.setState(StateLoading)
	if e.loaded != it.VideoSrc {
		e.visual.Load(it.VideoSrc)
		e.loaded = it.VideoSrc
		e.visualReq = false
	}
	e.visual.Unmute()
	e.visual.Seek(e.mediaTarget(it))
	e.syncAudio()
	e.attempt(it.Key, 0)
}

// attempt is one step of the autoplay retry chain.
func (e *Engine) attempt(key string, n int) {
	run := func() {
		if !e.playing {
			return
		}
		if e.visual.Playing() {
			e.started()
			return
		}
		err := e.visual.Play()
		if err == nil {
			e.visualReq = true
		}
		if err == nil && e.visual.Playing() {
			e.started()
			return
		}
		if n+1 < len(e.opts.RetryDelays) {
			e.attempt(key, n+1)
			return
		}
		e.manual[key] = true
		e.logger.Warn().Str("item", key).Int("attempts", len(e.opts.RetryDelays)).Msg("Autoplay failed, manual play required")
		e.emit(func(o Observer) { o.ManualPlayRequired(key) })
	}
	if d := e.opts.RetryDelays[n]; d > 0 {
		e.schedule(d, run)
		return
	}
	run()
}

func (e *Engine) started() {
	it, ok := e.current()
	if ok {
		delete(e.manual, it.Key)
	}
	if e.buffering {
		e.buffering = false
		e.emit(func(o Observer) { o.BufferingChanged(false) })
	}
	e.setState(StatePlaying)
}

func (e *Engine) startPlaceholder(it timeline.PlaylistItem) {
	e.setState(StatePlaying)
	e.phStart = e.clock.Now()
	e.phBase = e.local
	remaining := time.Duration((it.Duration - e.local) * float64(time.Second))
	e.schedule(remaining, func() {
		e.local = it.Duration
		e.elapsed = it.End()
		e.emitElapsed()
		e.advance(it.Key)
	})
	e.tick(it)
}

func (e *Engine) tick(it timeline.PlaylistItem) {
	e.schedule(e.opts.PlaceholderTick, func() {
		local := e.phBase + e.clock.Now().Sub(e.phStart).Seconds()
		if local > it.Duration {
			local = it.Duration
		}
		e.local = local
		e.elapsed = it.Start + local
		e.emitElapsed()
		e.syncAudio()
		e.tick(it)
	})
}

// safeAdvance handles end-of-media signals, which hosts may deliver twice
// in quick succession.
func (e *Engine) safeAdvance() {
	now := e.clock.Now()
	if !e.lastAdvance.IsZero() && now.Sub(e.lastAdvance) < e.opts.AdvanceGuard {
		e.logger.Debug().Dur("since", now.Sub(e.lastAdvance)).Msg("Advance suppressed")
		return
	}
	e.lastAdvance = now
	if it, ok := e.current(); ok {
		e.local = it.Duration
		e.elapsed = it.End()
		e.emitElapsed()
		e.advance(it.Key)
	}
}

func (e *Engine) advance(from string) {
	it, ok := e.current()
	if !ok {
		return
	}
	if it.HasMedia() {
		e.visual.Pause()
		e.visualReq = false
	}
	e.setState(StateAdvancing)
	next := e.index + 1
	if next >= len(e.playlist.Items) {
		e.emit(func(o Observer) { o.Advanced(from, "") })
		e.finish()
		return
	}
	if e.elapsed < e.playlist.Items[next].Start {
		e.elapsed = e.playlist.Items[next].Start
		e.emitElapsed()
	}
	to := e.playlist.Items[next].Key
	e.emit(func(o Observer) { o.Advanced(from, to) })
	e.activate(next)
}

func (e *Engine) finish() {
	e.halt()
	e.elapsed = e.playlist.Total
	e.index = -1
	e.local = 0
	e.emitElapsed()
	e.setState(StateEnded)
}

// halt stops playback and every pending chain and pauses live surfaces.
func (e *Engine) halt() {
	e.cancel()
	e.playing = false
	if e.buffering {
		e.buffering = false
		e.emit(func(o Observer) { o.BufferingChanged(false) })
	}
	e.pauseVisual()
	for _, b := range e.audio {
		e.pauseAudio(b.Surface)
	}
}

// pauseVisual pauses the visual surface if it is playing or was told to.
func (e *Engine) pauseVisual() {
	if e.loaded == "" {
		return
	}
	if e.visualReq || e.visual.Playing() {
		e.visual.Pause()
	}
	e.visualReq = false
}

func (e *Engine) pauseAudio(s AudioSurface) {
	if _, ok := e.audioReq[s]; ok || s.Playing() {
		s.Pause()
	}
	delete(e.audioReq, s)
}

// cue shows the frame under a paused playhead.
func (e *Engine) cue() {
	it, ok := e.current()
	if !ok || !it.HasMedia() {
		return
	}
	if e.loaded != it.VideoSrc {
		e.visual.Load(it.VideoSrc)
		e.loaded = it.VideoSrc
		e.visualReq = false
	}
	e.visual.Seek(e.mediaTarget(it))
}

func (e *Engine) syncAudio() {
	for _, b := range e.audio {
		active := e.playing && b.Clip.Contains(e.elapsed)
		if !active {
			e.pauseAudio(b.Surface)
			continue
		}
		want := e.elapsed - b.Clip.Start
		if b.Surface.Playing() {
			delete(e.audioReq, b.Surface)
			if math.Abs(b.Surface.Position()-want) > e.opts.DriftThreshold {
				b.Surface.Seek(want)
			}
			continue
		}
		req, requested := e.audioReq[b.Surface]
		if requested && e.clock.Now().Sub(req.at) < e.audioBackoff(req.tries) {
			continue
		}
		b.Surface.Seek(want)
		if err := b.Surface.Play(); err != nil {
			e.logger.Debug().Err(err).Str("clip", b.Clip.ID).Msg("Audio play failed")
		}
		e.audioReq[b.Surface] = playRequest{at: e.clock.Now(), tries: req.tries + 1}
	}
}

// audioBackoff is the wait before re-sending play to an audio surface that
// has not confirmed after tries requests. It doubles from BufferingRetry up
// to eight times that.
func (e *Engine) audioBackoff(tries int) time.Duration {
	d := e.opts.BufferingRetry
	for i := 1; i < tries && i < 4; i++ {
		d *= 2
	}
	return d
}

// cancel invalidates the current play token and stops its timers.
func (e *Engine) cancel() {
	e.token++
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) schedule(d time.Duration, fn func()) {
	token := e.token
	e.timerID++
	id := e.timerID
	e.timers[id] = e.clock.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.flush()
		delete(e.timers, id)
		if token != e.token {
			return
		}
		fn()
	})
}

func (e *Engine) setState(s State) {
	if e.state == s && s != StateLoading {
		return
	}
	e.state = s
	key := ""
	if it, ok := e.current(); ok {
		key = it.Key
	}
	e.emit(func(o Observer) { o.StateChanged(s, key) })
}

func (e *Engine) emitElapsed() {
	v := e.elapsed
	e.emit(func(o Observer) { o.ElapsedChanged(v) })
}

func (e *Engine) emit(fn func(Observer)) {
	o := e.observer
	e.events = append(e.events, func() { fn(o) })
}

// flush releases the lock and delivers queued notifications.
func (e *Engine) flush() {
	events := e.events
	e.events = nil
	e.mu.Unlock()
	for _, fn := range events {
		fn()
	}
}
