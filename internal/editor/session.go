package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyreel/internal/cache"
	"storyreel/internal/interact"
	"storyreel/internal/media"
	"storyreel/internal/playback"
	"storyreel/internal/render"
	"storyreel/internal/storage"
	"storyreel/internal/timeline"
	"storyreel/internal/viewport"
)

// defaultWidthPx is the viewport width assumed until the host reports one.
const defaultWidthPx = 1280

// Store is the persistence a session needs.
type Store interface {
	GetTimeline(id string) (*storage.Timeline, error)
	SaveTimeline(t *storage.Timeline) error
	DeleteTimeline(id string) error
	GetPlaybackState(timelineID string) (*storage.PlaybackState, error)
	SavePlaybackState(state *storage.PlaybackState) error
	GetAssetBySrc(src string) (*storage.Asset, error)
	SaveAsset(a *storage.Asset) error
	UpdateAssetMetadata(id string, duration float64, width, height int, videoCodec, audioCodec string) error
}

// Prober reads media metadata. *media.Prober implements it.
type Prober interface {
	IsAvailable() bool
	Probe(ctx context.Context, src string) (*media.Metadata, error)
}

// Session is one open timeline. Host input is serialised through mu; the
// playback engine and the hub have their own locks and never take mu.
type Session struct {
	id     string
	store  Store
	prober Prober
	opts   Options
	logger zerolog.Logger
	hub    *hub
	player *playback.Engine
	thumbs *media.ThumbnailService
	visual *remoteSurface

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	name      string
	model     *timeline.Model
	engine    *interact.Engine
	renderer  *render.Renderer
	audio     map[string]*remoteSurface
	hover     render.HoverTracker
	scrollPx  float64
	widthPx   float64
	drag      *interact.DragSession
	trim      *interact.TrimSession
	scrubbing bool
	frameRev  uint64
	playRev   uint64
	savedRev  uint64
	closed    bool
}

type sessionDeps struct {
	store  Store
	prober Prober
	stills *media.StillExtractor
	clock  playback.Clock
}

func newSession(t *storage.Timeline, deps sessionDeps, opts Options, logger zerolog.Logger) (*Session, error) {
	state, err := timeline.ParseState(t.State)
	if err != nil {
		return nil, fmt.Errorf("opening timeline %s: %w", t.ID, err)
	}
	tc, err := cache.New(opts.CacheCapacity, opts.CacheMaxSize)
	if err != nil {
		return nil, fmt.Errorf("opening timeline %s: %w", t.ID, err)
	}

	logger = logger.With().Str("timeline", t.ID).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      t.ID,
		name:    t.Name,
		store:   deps.store,
		prober:  deps.prober,
		opts:    opts,
		logger:  logger,
		hub:     newHub(logger),
		ctx:     ctx,
		cancel:  cancel,
		model:   timeline.NewModel(),
		audio:   make(map[string]*remoteSurface),
		hover:   render.HoverTracker{MarginPx: opts.TrimHandlePx},
		widthPx: defaultWidthPx,
	}
	s.model.Load(state)

	s.thumbs = media.NewThumbnailService(tc, deps.stills, opts.Thumbnails, logger)
	s.thumbs.SetOnReady(func(string) { s.invalidate() })
	s.renderer = render.New(s.thumbs, TemplateLookup{Template: opts.StillURLTemplate}, opts.Render, logger)

	s.engine = interact.NewEngine(s.model, opts.Interact, logger)
	s.engine.SetDropTarget(interact.DropTargetFunc(func(p []interact.DragPayload) {
		s.hub.publish(Message{Type: MsgDragOut, Payloads: p})
	}))

	s.visual = newRemoteSurface(visualTarget, s.hub)
	s.player = playback.NewEngine(deps.clock, s.visual, opts.Playback, logger)
	s.player.SetObserver(observer{hub: s.hub})

	s.syncPlaybackLocked()
	s.frameRev = s.model.Revision()
	s.savedRev = s.model.Revision()

	if ps, err := s.store.GetPlaybackState(s.id); err == nil {
		s.player.Seek(ps.Position)
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Err(err).Msg("Failed to restore playhead")
	}

	s.wg.Add(2)
	go s.prefetch()
	go s.savePlayheadLoop()

	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) State() timeline.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.State()
}

func (s *Session) Playlist() timeline.Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return timeline.BuildPlaylist(s.model)
}

func (s *Session) Playback() playback.Snapshot {
	return s.player.Snapshot()
}

// Replace swaps in a new persisted state, aborting any gesture.
func (s *Session) Replace(name string, state timeline.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endGesturesLocked(true)
	s.engine.ResetScope()
	if name != "" {
		s.name = name
	}
	s.model.Load(state)
	return s.afterEditLocked()
}

func (s *Session) Subscribe() (<-chan Message, func()) {
	return s.hub.subscribe()
}

func (s *Session) Thumbnail(url string) (cache.Entry, bool) {
	return s.thumbs.Lookup(url)
}

// View updates the viewport and returns the frame for it.
func (s *Session) View(scrollPx, widthPx, pxPerSecond, anchorPx *float64) render.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if widthPx != nil && viewport.Finite(*widthPx) && *widthPx >= 0 {
		s.widthPx = *widthPx
	}
	if scrollPx != nil && viewport.Finite(*scrollPx) {
		s.scrollPx = *scrollPx
	}
	if pxPerSecond != nil {
		old := s.engine.Zoom()
		s.engine.SetZoom(*pxPerSecond)
		if anchorPx != nil && viewport.Finite(*anchorPx) {
			s.scrollPx = viewport.ZoomAround(s.scrollPx, *anchorPx, old, s.engine.Zoom())
		}
	}
	if s.scrollPx < 0 {
		s.scrollPx = 0
	}
	return s.frameLocked()
}

func (s *Session) Frame() render.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

// Drop adds a sidebar asset at xPx. A source without a duration is looked up
// in the asset table and probed when unknown.
func (s *Session) Drop(ctx context.Context, src interact.DragSource, xPx float64) (timeline.Ref, error) {
	if src.DurationSeconds == nil && src.Src != "" {
		if d, ok := s.lookupDuration(ctx, src); ok {
			src.DurationSeconds = &d
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := s.engine.Drop(src, xPx)
	if err != nil {
		return timeline.Ref{}, err
	}
	return ref, s.afterEditLocked()
}

func (s *Session) lookupDuration(ctx context.Context, src interact.DragSource) (float64, bool) {
	asset, err := s.store.GetAssetBySrc(src.Src)
	switch {
	case err == nil:
		if asset.Duration != nil && *asset.Duration > 0 {
			return *asset.Duration, true
		}
	case errors.Is(err, storage.ErrNotFound):
		asset = &storage.Asset{ID: uuid.NewString(), Kind: string(src.Kind), Name: src.Name, Src: src.Src}
		if err := s.store.SaveAsset(asset); err != nil {
			s.logger.Warn().Err(err).Str("src", src.Src).Msg("Failed to record asset")
			return 0, false
		}
	default:
		s.logger.Warn().Err(err).Str("src", src.Src).Msg("Failed to look up asset")
		return 0, false
	}

	if s.prober == nil || !s.prober.IsAvailable() {
		return 0, false
	}
	meta, err := s.prober.Probe(ctx, src.Src)
	if err != nil {
		s.logger.Warn().Err(err).Str("src", src.Src).Msg("Failed to probe asset")
		return 0, false
	}
	if err := s.store.UpdateAssetMetadata(asset.ID, meta.Duration, meta.Width, meta.Height, meta.VideoCodec, meta.AudioCodec); err != nil {
		s.logger.Warn().Err(err).Str("asset", asset.ID).Msg("Failed to store asset metadata")
	}
	return meta.Duration, meta.Duration > 0
}

// Delete removes refs, or the current selection when refs is empty. Without
// confirm nothing is removed, the selection is left as it was, and the host
// is asked to confirm.
func (s *Session) Delete(refs []timeline.Ref, confirm bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel := s.engine.Selection()
	prev := sel.Refs()
	if len(refs) > 0 {
		sel.Clear()
		for _, r := range refs {
			if _, ok := s.model.Clip(r); ok {
				sel.Add(r)
			}
		}
	}
	err := s.engine.DeleteSelection(s.confirmerLocked(confirm))
	if err != nil {
		// Nothing was removed; give the host its selection back.
		sel.Clear()
		for _, r := range prev {
			sel.Add(r)
		}
		return err
	}
	return s.afterEditLocked()
}

// Key handles a keyboard event from the host.
func (s *Session) Key(key string, focus interact.Focus, confirm bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetConfirmer(s.confirmerLocked(confirm))
	if key == "Escape" {
		s.endGesturesLocked(true)
	}
	handled, err := s.engine.HandleKey(key, focus)
	if err != nil {
		return handled, err
	}
	return handled, s.afterEditLocked()
}

func (s *Session) confirmerLocked(confirm bool) interact.Confirmer {
	return interact.ConfirmFunc(func(prompt string) bool {
		if !confirm {
			s.hub.publish(Message{Type: MsgConfirm, Prompt: prompt})
		}
		return confirm
	})
}

func (s *Session) AddMarker(at float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !viewport.Finite(at) || at < 0 {
		return fmt.Errorf("invalid marker position %v", at)
	}
	s.model.AddMarker(at)
	return s.afterEditLocked()
}

func (s *Session) RemoveMarker(at float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.model.RemoveMarker(at) {
		return false, nil
	}
	return true, s.afterEditLocked()
}

// PointerDown starts a gesture at content position (x, y) in lane.
func (s *Session) PointerDown(lane int, x, y float64, laneRect *interact.Rect, additive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !viewport.Finite(x, y) {
		return
	}
	s.endGesturesLocked(false)

	if lane == LaneRuler {
		s.scrubbing = true
		s.player.BeginSeek()
		s.player.Seek(viewport.PixelToTime(x, s.engine.Zoom(), 0))
		return
	}

	frame := s.frameLocked()
	box, ok := frame.HitTest(lane, x)
	if !ok {
		if !additive && s.engine.Selection().Len() > 0 {
			s.engine.Selection().Clear()
			s.publishFrameLocked()
		}
		return
	}

	at := interact.Pointer{X: x, Y: y}
	switch zone := render.HoverZone(box, x, s.opts.TrimHandlePx); zone {
	case render.ZoneTrimStart, render.ZoneTrimEnd:
		edge := interact.EdgeStart
		if zone == render.ZoneTrimEnd {
			edge = interact.EdgeEnd
		}
		ts, err := s.engine.BeginTrim(box.Ref, edge, at, s.player.Seek)
		if err != nil {
			s.logger.Debug().Err(err).Str("clip", box.Ref.ID).Msg("Trim not started")
			return
		}
		s.trim = ts
	default:
		if ds, ok := s.engine.BeginDrag(box.Ref, at, laneRect, additive); ok {
			s.drag = ds
		}
	}
	s.publishFrameLocked()
}

func (s *Session) PointerMove(lane int, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !viewport.Finite(x, y) {
		return
	}
	p := interact.Pointer{X: x, Y: y}
	switch {
	case s.drag != nil:
		s.drag.Move(p)
	case s.trim != nil:
		s.trim.Move(p)
	case s.scrubbing:
		s.player.Seek(viewport.PixelToTime(x, s.engine.Zoom(), 0))
		return
	default:
		if h, changed := s.hover.Update(s.frameLocked(), lane, x); changed {
			s.hub.publish(Message{Type: MsgHover, Cursor: h.Cursor, Key: h.Ref.ID})
		}
		return
	}
	if err := s.afterEditLocked(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to apply gesture")
	}
}

func (s *Session) PointerUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endGesturesLocked(false)
	return s.afterEditLocked()
}

func (s *Session) PointerCancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endGesturesLocked(true)
	return s.afterEditLocked()
}

// Interacting reports whether a pointer gesture is in progress.
func (s *Session) Interacting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Interacting() || s.scrubbing
}

func (s *Session) endGesturesLocked(cancel bool) {
	if s.drag != nil {
		if cancel {
			s.drag.Cancel()
		} else {
			s.drag.End()
		}
		s.drag = nil
	}
	if s.trim != nil {
		if cancel {
			s.trim.Cancel()
		} else {
			s.trim.End()
		}
		s.trim = nil
	}
	if s.scrubbing {
		s.scrubbing = false
		s.player.EndSeek()
	}
}

// Playback controls go straight to the engine, which has its own lock.

func (s *Session) Play()                  { s.player.Play() }
func (s *Session) Pause()                 { s.player.Pause() }
func (s *Session) Stop()                  { s.player.Stop() }
func (s *Session) Next()                  { s.player.Next() }
func (s *Session) Seek(seconds float64)   { s.player.Seek(seconds) }
func (s *Session) BeginSeek()             { s.player.BeginSeek() }
func (s *Session) EndSeek()               { s.player.EndSeek() }
func (s *Session) ManualPlay(item string) { s.player.ManualPlay(item) }

// SurfaceEvent applies a media element report from the host.
func (s *Session) SurfaceEvent(target, event string, position float64) {
	if target == visualTarget {
		s.visual.report(event, position)
		switch event {
		case "timeupdate":
			s.player.OnTimeUpdate(position)
		case "ended":
			s.player.OnEnded()
		case "waiting", "stalled":
			s.player.OnStalled()
		case "playing":
			s.player.OnPlaying()
		}
		return
	}

	s.mu.Lock()
	var surf *remoteSurface
	for id, a := range s.audio {
		if audioTarget(id) == target {
			surf = a
			break
		}
	}
	s.mu.Unlock()
	if surf == nil {
		s.logger.Debug().Str("target", target).Msg("Event for unknown surface")
		return
	}
	surf.report(event, position)
}

// afterEditLocked pushes a changed model to the host, and once no gesture
// is open, to playback and storage.
func (s *Session) afterEditLocked() error {
	rev := s.model.Revision()
	if rev != s.frameRev {
		s.frameRev = rev
		s.engine.Selection().Prune(s.model)
		s.publishFrameLocked()
	}
	if s.engine.Interacting() {
		return nil
	}
	if rev != s.playRev {
		s.syncPlaybackLocked()
	}
	if rev != s.savedRev {
		if err := s.saveLocked(); err != nil {
			return err
		}
		s.savedRev = rev
	}
	return nil
}

func (s *Session) syncPlaybackLocked() {
	s.playRev = s.model.Revision()
	s.player.SetPlaylist(timeline.BuildPlaylist(s.model))

	clips := s.model.AudioClips()
	bindings := make([]playback.AudioBinding, 0, len(clips))
	live := make(map[string]bool, len(clips))
	for _, c := range clips {
		live[c.ID] = true
		surf, ok := s.audio[c.ID]
		if !ok {
			surf = newRemoteSurface(audioTarget(c.ID), s.hub)
			s.audio[c.ID] = surf
		}
		if surf.currentSrc() != c.MediaSrc {
			surf.Load(c.MediaSrc)
		}
		bindings = append(bindings, playback.AudioBinding{Clip: c, Surface: surf})
	}
	s.player.SetAudio(bindings)

	for id, surf := range s.audio {
		if !live[id] {
			delete(s.audio, id)
			surf.send("release", Message{})
		}
	}
}

func (s *Session) saveLocked() error {
	data, err := s.model.State().Encode()
	if err != nil {
		return err
	}
	return s.store.SaveTimeline(&storage.Timeline{ID: s.id, Name: s.name, State: data})
}

func (s *Session) frameLocked() render.Frame {
	return s.renderer.Frame(render.Input{
		Model:       s.model,
		Selected:    s.engine.Selection().Contains,
		ScrollPx:    s.scrollPx,
		WidthPx:     s.widthPx,
		PxPerSecond: s.engine.Zoom(),
		Playhead:    s.player.Snapshot().Elapsed,
	})
}

func (s *Session) publishFrameLocked() {
	if s.hub.count() == 0 {
		return
	}
	f := s.frameLocked()
	s.hub.publish(Message{Type: MsgFrame, Frame: &f})
}

// invalidate runs when a thumbnail finishes loading.
func (s *Session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.publishFrameLocked()
}

func (s *Session) prefetch() {
	defer s.wg.Done()
	s.mu.Lock()
	lookup := TemplateLookup{Template: s.opts.StillURLTemplate}
	var urls []string
	for _, c := range s.model.VideoClips() {
		if seg, ok := lookup.Resolve(c.SourceID); ok {
			urls = append(urls, seg.StillURL)
		} else if c.MediaSrc != "" {
			urls = append(urls, c.MediaSrc)
		}
	}
	s.mu.Unlock()
	if len(urls) == 0 {
		return
	}
	if err := s.thumbs.Prefetch(s.ctx, urls); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("Thumbnail prefetch failed")
	}
}

func (s *Session) savePlayheadLoop() {
	defer s.wg.Done()
	interval := s.opts.SaveInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := s.player.Snapshot().Elapsed
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			last = s.savePlayhead(last)
		}
	}
}

func (s *Session) savePlayhead(last float64) float64 {
	snap := s.player.Snapshot()
	if snap.Elapsed == last {
		return last
	}
	progress := 0.0
	if snap.Total > 0 {
		progress = snap.Elapsed / snap.Total
	}
	err := s.store.SavePlaybackState(&storage.PlaybackState{
		TimelineID: s.id,
		Position:   snap.Elapsed,
		Duration:   snap.Total,
		Progress:   progress,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save playhead")
		return last
	}
	return snap.Elapsed
}

// Close stops playback, persists the playhead and releases the session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.endGesturesLocked(true)
	if s.model.Revision() != s.savedRev {
		if err := s.saveLocked(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to save timeline on close")
		}
	}
	s.mu.Unlock()

	s.player.Stop()
	s.cancel()
	s.wg.Wait()
	s.savePlayhead(-1)
	s.thumbs.Close()
	s.hub.close()
	s.logger.Debug().Msg("Session closed")
}

type observer struct {
	hub *hub
}

func (o observer) ElapsedChanged(v float64) {
	o.hub.publish(Message{Type: MsgElapsed, Seconds: seconds(v)})
}

func (o observer) StateChanged(st playback.State, key string) {
	o.hub.publish(Message{Type: MsgState, State: st, Key: key})
}

func (o observer) BufferingChanged(b bool) {
	o.hub.publish(Message{Type: MsgBuffering, Buffering: &b})
}

func (o observer) ManualPlayRequired(key string) {
	o.hub.publish(Message{Type: MsgManualPlay, Key: key})
}

func (o observer) Advanced(from, to string) {
	o.hub.publish(Message{Type: MsgAdvanced, From: from, To: to})
}
