package editor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/interact"
	"storyreel/internal/media"
	"storyreel/internal/playback"
	"storyreel/internal/storage"
	"storyreel/internal/timeline"
)

type fakeProber struct {
	calls    int
	duration float64
}

func (p *fakeProber) IsAvailable() bool { return true }

func (p *fakeProber) Probe(ctx context.Context, src string) (*media.Metadata, error) {
	p.calls++
	return &media.Metadata{Duration: p.duration, Width: 1280, Height: 720, VideoCodec: "h264", HasVideo: true}, nil
}

type fixture struct {
	store   *storage.SQLiteStorage
	manager *Manager
	clock   *playback.ManualClock
	prober  *fakeProber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "storyreel.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	opts := DefaultOptions()
	opts.SaveInterval = time.Hour
	f := &fixture{
		store:  store,
		clock:  playback.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		prober: &fakeProber{duration: 7.5},
	}
	f.manager = NewManager(store, opts, zerolog.Nop())
	f.manager.SetClock(f.clock)
	f.manager.SetProber(f.prober)
	t.Cleanup(func() {
		f.manager.Close()
		store.Close()
	})
	return f
}

func twoClips() timeline.State {
	return timeline.State{
		VideoClips: []timeline.VideoClip{
			{ID: "v1", Title: "One", Start: 0, Duration: 5},
			{ID: "v2", Title: "Two", Start: 10, Duration: 5},
		},
		AudioClips: []timeline.AudioClip{},
	}
}

func storedState(t *testing.T, store *storage.SQLiteStorage, id string) timeline.State {
	t.Helper()
	rec, err := store.GetTimeline(id)
	if err != nil {
		t.Fatalf("get timeline: %v", err)
	}
	st, err := timeline.ParseState(rec.State)
	if err != nil {
		t.Fatalf("parse state: %v", err)
	}
	return st
}

func drain(ch <-chan Message) []Message {
	var out []Message
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func findMessage(msgs []Message, match func(Message) bool) (Message, bool) {
	for _, m := range msgs {
		if match(m) {
			return m, true
		}
	}
	return Message{}, false
}

func TestPutAndOpen(t *testing.T) {
	f := newFixture(t)
	s, err := f.manager.Put("t1", "Cut", twoClips())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	again, err := f.manager.Open("t1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if again != s {
		t.Fatal("expected the live session to be reused")
	}
	if got := storedState(t, f.store, "t1"); len(got.VideoClips) != 2 {
		t.Fatalf("expected persisted clips, got=%+v", got)
	}
	if _, err := f.manager.Open("missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got=%v", err)
	}
}

func TestDragPersistsOnRelease(t *testing.T) {
	f := newFixture(t)
	s, err := f.manager.Put("t1", "", twoClips())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	ctx := context.Background()

	steps := []Inbound{
		{Type: "pointer_down", Lane: 0, X: 100, Y: 10},
		{Type: "pointer_move", Lane: 0, X: 200, Y: 10},
	}
	for _, in := range steps {
		if err := s.Dispatch(ctx, in); err != nil {
			t.Fatalf("dispatch %s: %v", in.Type, err)
		}
	}
	if got := s.State().VideoClips[0].Start; got != 2 {
		t.Fatalf("expected live start 2, got=%v", got)
	}
	if got := storedState(t, f.store, "t1").VideoClips[0].Start; got != 0 {
		t.Fatalf("expected nothing persisted mid-gesture, got=%v", got)
	}

	if err := s.Dispatch(ctx, Inbound{Type: "pointer_up"}); err != nil {
		t.Fatalf("pointer_up: %v", err)
	}
	if got := storedState(t, f.store, "t1").VideoClips[0].Start; got != 2 {
		t.Fatalf("expected start 2 persisted, got=%v", got)
	}
	if s.Playlist().Items[0].Start != 2 {
		t.Fatalf("expected playlist rebuilt, got=%+v", s.Playlist().Items[0])
	}
}

func TestPointerCancelRestores(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "pointer_down", Lane: 0, X: 100})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_move", Lane: 0, X: 200})
	if err := s.Dispatch(ctx, Inbound{Type: "pointer_cancel"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := s.State().VideoClips[0].Start; got != 0 {
		t.Fatalf("expected start restored, got=%v", got)
	}
	if s.Interacting() {
		t.Fatal("expected no open gesture")
	}
}

func TestTrimFromEdgeSeeksPlayhead(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "pointer_down", Lane: 0, X: 248})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_move", Lane: 0, X: 198})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_up"})

	c := s.State().VideoClips[0]
	if c.TrimEnd != 1 || c.TrimStart != 0 {
		t.Fatalf("expected trimEnd 1, got=%+v", c)
	}
	if got := s.Playback().Elapsed; got != 4 {
		t.Fatalf("expected playhead at new edge 4, got=%v", got)
	}
}

func TestRulerScrub(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "pointer_down", Lane: LaneRuler, X: 150})
	if snap := s.Playback(); snap.Elapsed != 3 || !snap.Seeking {
		t.Fatalf("expected scrub to 3s, got=%+v", snap)
	}
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_move", Lane: LaneRuler, X: 300})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_up"})
	if snap := s.Playback(); snap.Elapsed != 6 || snap.Seeking {
		t.Fatalf("expected scrub released at 6s, got=%+v", snap)
	}
}

func TestDropProbesMissingDuration(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", timeline.State{})
	src := interact.DragSource{Kind: timeline.KindVideo, ID: "asset-1", Name: "Intro", Src: "/media/intro.mp4"}

	ref, err := s.Drop(context.Background(), src, 0)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	c, ok := s.model.VideoClip(ref.ID)
	if !ok || c.Duration != 7.5 {
		t.Fatalf("expected probed duration 7.5, got=%+v", c)
	}

	if _, err := s.Drop(context.Background(), src, 0); err != nil {
		t.Fatalf("second drop: %v", err)
	}
	if f.prober.calls != 1 {
		t.Fatalf("expected cached metadata on second drop, got probes=%d", f.prober.calls)
	}
	st := storedState(t, f.store, "t1")
	if len(st.VideoClips) != 2 || st.VideoClips[1].Start != 7.5 {
		t.Fatalf("expected second clip after the first, got=%+v", st.VideoClips)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	refs := []timeline.Ref{{Type: timeline.KindVideo, ID: "v1"}}
	if err := s.Delete(refs, false); !errors.Is(err, interact.ErrDeleteDeclined) {
		t.Fatalf("expected ErrDeleteDeclined, got=%v", err)
	}
	if _, ok := findMessage(drain(ch), func(m Message) bool { return m.Type == MsgConfirm && m.Prompt != "" }); !ok {
		t.Fatal("expected confirmation prompt")
	}
	if len(s.State().VideoClips) != 2 {
		t.Fatal("expected nothing deleted")
	}

	if err := s.Delete(refs, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if st := storedState(t, f.store, "t1"); len(st.VideoClips) != 1 || st.VideoClips[0].ID != "v2" {
		t.Fatalf("expected v1 removed, got=%+v", st.VideoClips)
	}
}

func TestKeyDeleteFromTimelineFocus(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "pointer_down", Lane: 0, X: 100})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_up"})

	if err := s.Dispatch(ctx, Inbound{Type: "key", Key: "Delete", Focus: "editable", Confirm: true}); err != nil {
		t.Fatalf("key: %v", err)
	}
	if len(s.State().VideoClips) != 2 {
		t.Fatal("expected delete ignored in editable focus")
	}
	if err := s.Dispatch(ctx, Inbound{Type: "key", Key: "Delete", Focus: "timeline", Confirm: true}); err != nil {
		t.Fatalf("key: %v", err)
	}
	if got := s.State().VideoClips; len(got) != 1 || got[0].ID != "v2" {
		t.Fatalf("expected selected clip deleted, got=%+v", got)
	}
}

func TestDragOutPublishesPayloads(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "pointer_down", Lane: 0, X: 100, Y: 10})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_move", Lane: 0, X: 150, Y: 60})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_up"})

	m, ok := findMessage(drain(ch), func(m Message) bool { return m.Type == MsgDragOut })
	if !ok || len(m.Payloads) != 1 || m.Payloads[0].ID != "v1" {
		t.Fatalf("expected drag-out payload for v1, got=%+v", m)
	}
	if got := s.State().VideoClips[0].Start; got != 0 {
		t.Fatalf("expected clip reverted on drag-out, got=%v", got)
	}
}

func TestAudioSurfacesFollowModel(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", timeline.State{})
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	st := timeline.State{
		AudioClips: []timeline.AudioClip{{ID: "a1", Start: 0, Duration: 4, MediaSrc: "/media/a1.mp3"}},
	}
	if err := s.Replace("", st); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, ok := findMessage(drain(ch), func(m Message) bool {
		return m.Type == MsgSurface && m.Target == "audio:a1" && m.Command == "load" && m.Src == "/media/a1.mp3"
	}); !ok {
		t.Fatal("expected audio surface load")
	}

	if err := s.Replace("", timeline.State{}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, ok := findMessage(drain(ch), func(m Message) bool {
		return m.Type == MsgSurface && m.Target == "audio:a1" && m.Command == "release"
	}); !ok {
		t.Fatal("expected audio surface release")
	}
}

func TestRemoteVisualPlayback(t *testing.T) {
	f := newFixture(t)
	st := timeline.State{
		VideoClips: []timeline.VideoClip{{ID: "v1", Start: 0, Duration: 4, MediaSrc: "/media/v1.mp4"}},
	}
	s, _ := f.manager.Put("t1", "", st)
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "play"})
	msgs := drain(ch)
	for _, cmd := range []string{"load", "unmute", "seek", "play"} {
		if _, ok := findMessage(msgs, func(m Message) bool {
			return m.Type == MsgSurface && m.Target == visualTarget && m.Command == cmd
		}); !ok {
			t.Fatalf("expected visual %s command, got=%+v", cmd, msgs)
		}
	}
	if got := s.Playback().State; got != playback.StateLoading {
		t.Fatalf("expected loading until the host confirms, got=%s", got)
	}

	_ = s.Dispatch(ctx, Inbound{Type: "surface", Target: visualTarget, Event: "playing"})
	if got := s.Playback().State; got != playback.StatePlaying {
		t.Fatalf("expected playing, got=%s", got)
	}
	_ = s.Dispatch(ctx, Inbound{Type: "surface", Target: visualTarget, Event: "timeupdate", Position: 1.25})
	m, ok := findMessage(drain(ch), func(m Message) bool { return m.Type == MsgElapsed })
	if !ok || m.Seconds == nil || *m.Seconds != 1.25 {
		t.Fatalf("expected elapsed 1.25, got=%+v", m)
	}
}

func TestPlayheadPersistsAcrossSessions(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	s.Seek(3)
	f.manager.Evict("t1")

	ps, err := f.store.GetPlaybackState("t1")
	if err != nil {
		t.Fatalf("get playback: %v", err)
	}
	if ps.Position != 3 || ps.Duration != 15 {
		t.Fatalf("expected playhead 3/15, got=%+v", ps)
	}

	s, err = f.manager.Open("t1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s.Playback().Elapsed; got != 3 {
		t.Fatalf("expected restored playhead 3, got=%v", got)
	}
}

func TestDispatchRejectsUnknownAndMalformed(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ctx := context.Background()
	if err := s.Dispatch(ctx, Inbound{Type: "teleport"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if err := s.Dispatch(ctx, Inbound{Type: "seek"}); err == nil {
		t.Fatal("expected error for seek without seconds")
	}
	if err := s.Dispatch(ctx, Inbound{Type: "drop", Source: []byte(`{"kind":"image","id":"x"}`)}); !errors.Is(err, interact.ErrInvalidDragSource) {
		t.Fatalf("expected ErrInvalidDragSource, got=%v", err)
	}
}

func TestTemplateLookup(t *testing.T) {
	l := TemplateLookup{Template: "https://cdn.example.com/stills/{id}.jpg"}
	seg, ok := l.Resolve("seg 1")
	if !ok || seg.StillURL != "https://cdn.example.com/stills/seg%201.jpg" {
		t.Fatalf("expected escaped still url, got=%+v ok=%v", seg, ok)
	}
	if _, ok := (TemplateLookup{}).Resolve("seg"); ok {
		t.Fatal("expected empty template to resolve nothing")
	}
}

func TestStopPausesSurfacesHostNeverConfirmed(t *testing.T) {
	f := newFixture(t)
	st := timeline.State{
		VideoClips: []timeline.VideoClip{{ID: "v1", Start: 0, Duration: 4, MediaSrc: "/media/v1.mp4"}},
		AudioClips: []timeline.AudioClip{{ID: "a1", Start: 0, Duration: 10, MediaSrc: "/media/a1.mp3"}},
	}
	s, _ := f.manager.Put("t1", "", st)
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "play"})
	f.clock.Advance(time.Second)
	plays := 0
	for _, m := range drain(ch) {
		if m.Type == MsgSurface && m.Target == "audio:a1" && m.Command == "play" {
			plays++
		}
	}
	if plays != 1 {
		t.Fatalf("expected a single audio play while unconfirmed, got=%d", plays)
	}

	_ = s.Dispatch(ctx, Inbound{Type: "stop"})
	msgs := drain(ch)
	for _, target := range []string{visualTarget, "audio:a1"} {
		if _, ok := findMessage(msgs, func(m Message) bool {
			return m.Type == MsgSurface && m.Target == target && m.Command == "pause"
		}); !ok {
			t.Fatalf("expected %s paused on stop, got=%+v", target, msgs)
		}
	}
}

func TestDeclinedDeleteKeepsSelection(t *testing.T) {
	f := newFixture(t)
	s, _ := f.manager.Put("t1", "", twoClips())
	ctx := context.Background()

	_ = s.Dispatch(ctx, Inbound{Type: "pointer_down", Lane: 0, X: 600, Y: 10})
	_ = s.Dispatch(ctx, Inbound{Type: "pointer_up"})
	v2 := timeline.Ref{Type: timeline.KindVideo, ID: "v2"}
	if !s.engine.Selection().Contains(v2) {
		t.Fatal("expected v2 selected by click")
	}

	refs := []timeline.Ref{{Type: timeline.KindVideo, ID: "v1"}}
	if err := s.Delete(refs, false); !errors.Is(err, interact.ErrDeleteDeclined) {
		t.Fatalf("expected ErrDeleteDeclined, got=%v", err)
	}
	sel := s.engine.Selection().Refs()
	if len(sel) != 1 || sel[0] != v2 {
		t.Fatalf("expected selection [v2] restored, got=%v", sel)
	}
}
