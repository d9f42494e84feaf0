package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"storyreel/internal/api"
	"storyreel/internal/config"
	"storyreel/internal/editor"
	"storyreel/internal/playback"
	"storyreel/internal/storage"
	"storyreel/internal/timeline"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "storyreel.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	opts := editor.DefaultOptions()
	opts.SaveInterval = time.Hour
	manager := editor.NewManager(store, opts, zerolog.Nop())
	manager.SetClock(playback.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	srv := New(config.Default(), zerolog.Nop(), store, manager)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		manager.Close()
		store.Close()
	})
	return ts
}

func do(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
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

func createTimeline(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	st := twoClips()
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/timelines", api.CreateTimelineRequest{Name: "cut", State: &st})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got=%d", resp.StatusCode)
	}
	var out api.TimelineResponse
	decode(t, resp, &out)
	if out.ID == "" {
		t.Fatalf("expected an id")
	}
	return out.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/health", nil)
	var out api.HealthResponse
	decode(t, resp, &out)
	if resp.StatusCode != http.StatusOK || out.Status != "ok" {
		t.Fatalf("unexpected health response %d %+v", resp.StatusCode, out)
	}
}

func TestTimelineLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := createTimeline(t, ts)
	base := ts.URL + "/api/v1/timelines/" + id

	var st timeline.State
	decode(t, do(t, http.MethodGet, base, nil), &st)
	if len(st.VideoClips) != 2 {
		t.Fatalf("expected 2 video clips, got=%d", len(st.VideoClips))
	}

	st.VideoClips = st.VideoClips[:1]
	resp := do(t, http.MethodPut, base, st)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on put, got=%d", resp.StatusCode)
	}
	var list api.TimelineListResponse
	decode(t, do(t, http.MethodGet, ts.URL+"/api/v1/timelines", nil), &list)
	if len(list.Items) != 1 || list.Items[0].ID != id {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	resp = do(t, http.MethodDelete, base, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 without confirm, got=%d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, base+"?confirm=true", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got=%d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base, nil)
	var e api.ErrorResponse
	decode(t, resp, &e)
	if resp.StatusCode != http.StatusNotFound || e.Error.Code != "TIMELINE_NOT_FOUND" {
		t.Fatalf("expected TIMELINE_NOT_FOUND, got=%d %+v", resp.StatusCode, e)
	}
}

func TestPutTimeline_RejectsMalformedState(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/timelines/x", strings.NewReader("{not json"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got=%d", resp.StatusCode)
	}
}

func TestDropLandsInFirstFreeSlot(t *testing.T) {
	ts := newTestServer(t)
	id := createTimeline(t, ts)
	base := ts.URL + "/api/v1/timelines/" + id

	resp := do(t, http.MethodPost, base+"/drop", map[string]interface{}{
		"source": map[string]interface{}{"kind": "video", "id": "asset-1", "name": "B-roll", "durationSeconds": 4},
		"x":      0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got=%d", resp.StatusCode)
	}
	var out api.DropResponse
	decode(t, resp, &out)
	if out.Ref.Type != timeline.KindVideo {
		t.Fatalf("expected a video ref, got=%+v", out.Ref)
	}

	var st timeline.State
	decode(t, do(t, http.MethodGet, base, nil), &st)
	var dropped *timeline.VideoClip
	for i := range st.VideoClips {
		if st.VideoClips[i].ID == out.Ref.ID {
			dropped = &st.VideoClips[i]
		}
	}
	if dropped == nil || dropped.Start != 5 || dropped.Duration != 4 {
		t.Fatalf("expected dropped clip at 5s for 4s, got=%+v", dropped)
	}

	resp = do(t, http.MethodPost, base+"/drop", map[string]interface{}{"source": map[string]interface{}{"kind": "image"}, "x": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad source, got=%d", resp.StatusCode)
	}
}

func TestDeleteClipsRequiresConfirm(t *testing.T) {
	ts := newTestServer(t)
	id := createTimeline(t, ts)
	base := ts.URL + "/api/v1/timelines/" + id
	refs := []timeline.Ref{{Type: timeline.KindVideo, ID: "v1"}}

	resp := do(t, http.MethodDelete, base+"/clips", api.DeleteClipsRequest{Refs: refs})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got=%d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, base+"/clips", api.DeleteClipsRequest{Refs: refs, Confirm: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got=%d", resp.StatusCode)
	}
	var st timeline.State
	decode(t, resp, &st)
	if len(st.VideoClips) != 1 || st.VideoClips[0].ID != "v2" {
		t.Fatalf("expected only v2 left, got=%+v", st.VideoClips)
	}
}

func TestMarkers(t *testing.T) {
	ts := newTestServer(t)
	id := createTimeline(t, ts)
	base := ts.URL + "/api/v1/timelines/" + id

	do(t, http.MethodPost, base+"/markers", api.MarkerRequest{Seconds: 4})
	var out api.MarkersResponse
	decode(t, do(t, http.MethodPost, base+"/markers", api.MarkerRequest{Seconds: 2}), &out)
	if len(out.Markers) != 2 || out.Markers[0] != 2 || out.Markers[1] != 4 {
		t.Fatalf("expected sorted markers [2 4], got=%v", out.Markers)
	}

	decode(t, do(t, http.MethodDelete, base+"/markers/2", nil), &out)
	if len(out.Markers) != 1 || out.Markers[0] != 4 {
		t.Fatalf("expected [4], got=%v", out.Markers)
	}
	resp := do(t, http.MethodDelete, base+"/markers/9", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown marker, got=%d", resp.StatusCode)
	}
}

func TestSeekPlayback(t *testing.T) {
	ts := newTestServer(t)
	id := createTimeline(t, ts)
	base := ts.URL + "/api/v1/timelines/" + id

	var snap playback.Snapshot
	decode(t, do(t, http.MethodPut, base+"/playback", api.SeekRequest{Position: 99}), &snap)
	if snap.Elapsed != 15 || snap.Total != 15 {
		t.Fatalf("expected seek clamped to 15, got=%+v", snap)
	}

	var pl timeline.Playlist
	decode(t, do(t, http.MethodGet, base+"/playlist", nil), &pl)
	if len(pl.Items) != 3 {
		t.Fatalf("expected clip, gap, clip playlist, got=%d items", len(pl.Items))
	}
}

func TestGetFrameFollowsQuery(t *testing.T) {
	ts := newTestServer(t)
	id := createTimeline(t, ts)

	var f struct {
		PxPerSecond float64           `json:"pxPerSecond"`
		Clips       []json.RawMessage `json:"clips"`
	}
	decode(t, do(t, http.MethodGet, ts.URL+"/api/v1/timelines/"+id+"/frame?width=400&pps=40", nil), &f)
	if f.PxPerSecond != 40 {
		t.Fatalf("expected 40 px/s, got=%v", f.PxPerSecond)
	}
	if len(f.Clips) == 0 {
		t.Fatalf("expected clips in the window")
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(editor.Message) bool) editor.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var m editor.Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(m) {
			return m
		}
	}
}

func TestControlChannel(t *testing.T) {
	ts := newTestServer(t)
	id := createTimeline(t, ts)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/timelines/" + id + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readUntil(t, conn, func(editor.Message) bool { return true })
	if first.Type != editor.MsgFrame || first.Frame == nil {
		t.Fatalf("expected an initial frame, got=%+v", first)
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "seek", "seconds": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, func(m editor.Message) bool {
		return m.Type == editor.MsgElapsed && m.Seconds != nil && *m.Seconds == 2
	})

	if err := conn.WriteJSON(map[string]interface{}{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readUntil(t, conn, func(m editor.Message) bool { return m.Type == editor.MsgError })
	if m.Key != "bogus" {
		t.Fatalf("expected error for bogus, got=%+v", m)
	}
}

func TestControlChannel_UnknownTimeline(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/timelines/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got=%v", resp)
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"http://app.local"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://app.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.local" {
		t.Fatalf("expected echoed origin, got=%q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow header, got=%q", got)
	}
}
