// Package render turns the timeline model into a display list for the
// current viewport. Only clips, markers and ruler ticks that intersect the
// viewport window are emitted.
package render

import (
	"sort"

	"github.com/rs/zerolog"
	"storyreel/internal/cache"
	"storyreel/internal/timeline"
	"storyreel/internal/viewport"
)

const (
	LaneVideo = 0
	LaneAudio = 1
)

// Segment is what the host knows about a generated segment.
type Segment struct {
	Title    string
	StillURL string
}

// SegmentLookup resolves a clip's source id. Missing segments are not errors.
type SegmentLookup interface {
	Resolve(segmentID string) (Segment, bool)
}

// ThumbnailSource is the session thumbnail cache as seen by the renderer.
type ThumbnailSource interface {
	Lookup(url string) (cache.Entry, bool)
	Request(url string)
}

type ClipBox struct {
	Ref         timeline.Ref    `json:"ref"`
	Lane        int             `json:"lane"`
	X           float64         `json:"x"`
	W           float64         `json:"w"`
	Start       float64         `json:"start"`
	End         float64         `json:"end"`
	Title       string          `json:"title"`
	Selected    bool            `json:"selected,omitempty"`
	Pending     bool            `json:"pending,omitempty"`
	Placeholder bool            `json:"placeholder,omitempty"`
	Thumb       *ThumbPlacement `json:"thumb,omitempty"`
}

type ThumbPlacement struct {
	URL string `json:"url"`
	Fit Fit    `json:"fit"`
}

type MarkerBox struct {
	X       float64 `json:"x"`
	Seconds float64 `json:"seconds"`
}

type Frame struct {
	Window       viewport.Window `json:"window"`
	PxPerSecond  float64         `json:"pxPerSecond"`
	TotalSeconds float64         `json:"totalSeconds"`
	Clips        []ClipBox       `json:"clips"`
	Ticks        []Tick          `json:"ticks"`
	Markers      []MarkerBox     `json:"markers"`
	PlayheadX    *float64        `json:"playheadX,omitempty"`
}

// Input is everything one frame depends on.
type Input struct {
	Model       *timeline.Model
	Selected    func(timeline.Ref) bool
	ScrollPx    float64
	WidthPx     float64
	PxPerSecond float64
	Playhead    float64
}

type Options struct {
	ClipHeightPx float64
	OverscanSecs float64
	MinMajorPx   float64
}

// Renderer keeps a start-sorted index of each track, rebuilt only when the
// model revision changes, so a frame costs O(log n + visible).
type Renderer struct {
	thumbs   ThumbnailSource
	segments SegmentLookup
	opts     Options
	logger   zerolog.Logger

	rev   uint64
	built bool
	video trackIndex
	audio trackIndex
}

func New(thumbs ThumbnailSource, segments SegmentLookup, opts Options, logger zerolog.Logger) *Renderer {
	if opts.ClipHeightPx <= 0 {
		opts.ClipHeightPx = 48
	}
	if opts.OverscanSecs < 0 {
		opts.OverscanSecs = 0
	}
	if opts.MinMajorPx <= 0 {
		opts.MinMajorPx = 80
	}
	return &Renderer{
		thumbs:   thumbs,
		segments: segments,
		opts:     opts,
		logger:   logger.With().Str("component", "render").Logger(),
	}
}

func (r *Renderer) Frame(in Input) Frame {
	total := in.Model.TotalDuration()
	win := viewport.Compute(in.ScrollPx, in.WidthPx, in.PxPerSecond, r.opts.OverscanSecs, total)
	f := Frame{
		Window:       win,
		PxPerSecond:  in.PxPerSecond,
		TotalSeconds: total,
		Clips:        []ClipBox{},
		Ticks:        []Tick{},
		Markers:      []MarkerBox{},
	}
	if in.PxPerSecond <= 0 || win.EndSeconds <= win.StartSeconds {
		return f
	}

	r.reindex(in.Model)
	selected := in.Selected
	if selected == nil {
		selected = func(timeline.Ref) bool { return false }
	}

	for _, c := range r.video.visible(win) {
		f.Clips = append(f.Clips, r.clipBox(c, LaneVideo, in.PxPerSecond, selected))
	}
	for _, c := range r.audio.visible(win) {
		f.Clips = append(f.Clips, r.clipBox(c, LaneAudio, in.PxPerSecond, selected))
	}

	for _, m := range visibleMarkers(in.Model.Markers(), win) {
		f.Markers = append(f.Markers, MarkerBox{X: viewport.TimeToPixel(m, in.PxPerSecond, 0), Seconds: m})
	}

	f.Ticks = Ticks(win, in.PxPerSecond, r.opts.MinMajorPx)

	if win.Contains(in.Playhead) {
		x := viewport.TimeToPixel(in.Playhead, in.PxPerSecond, 0)
		f.PlayheadX = &x
	}
	return f
}

func (r *Renderer) clipBox(c timeline.Clip, lane int, pps float64, selected func(timeline.Ref) bool) ClipBox {
	vs, ve := c.VisibleStart(), c.VisibleEnd()
	box := ClipBox{
		Ref:      c.Ref(),
		Lane:     lane,
		X:        viewport.TimeToPixel(vs, pps, 0),
		W:        (ve - vs) * pps,
		Start:    vs,
		End:      ve,
		Title:    c.Label(),
		Selected: selected(c.Ref()),
		Pending:  c.Src() == "",
	}

	switch v := c.(type) {
	case timeline.VideoClip:
		r.decorateVideo(&box, v)
	case timeline.AudioClip:
		// Audio lanes draw a waveform placeholder on the host.
	}
	return box
}

func (r *Renderer) decorateVideo(box *ClipBox, c timeline.VideoClip) {
	box.Placeholder = true
	still := ""
	if r.segments != nil && c.SourceID != "" {
		if seg, ok := r.segments.Resolve(c.SourceID); ok {
			still = seg.StillURL
			if box.Title == "" {
				box.Title = seg.Title
			}
		}
	}
	if still == "" {
		still = c.MediaSrc
	}
	if still == "" || r.thumbs == nil {
		return
	}

	entry, ok := r.thumbs.Lookup(still)
	if !ok {
		r.thumbs.Request(still)
		return
	}
	if entry.Status != cache.StatusReady || entry.Width <= 0 || entry.Height <= 0 {
		return
	}
	box.Placeholder = false
	box.Thumb = &ThumbPlacement{
		URL: entry.URL,
		Fit: CoverFit(float64(entry.Width), float64(entry.Height), box.W, r.opts.ClipHeightPx),
	}
}

func (r *Renderer) reindex(m *timeline.Model) {
	if r.built && r.rev == m.Revision() {
		return
	}
	r.video = buildIndex(m.Clips(timeline.KindVideo))
	r.audio = buildIndex(m.Clips(timeline.KindAudio))
	r.rev = m.Revision()
	r.built = true
}

// trackIndex orders clips by visible start; maxEnd[i] is the largest visible
// end among clips[:i+1], which lets a binary search skip everything that ends
// before the window.
type trackIndex struct {
	clips  []timeline.Clip
	maxEnd []float64
}

func buildIndex(clips []timeline.Clip) trackIndex {
	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].VisibleStart() < clips[j].VisibleStart()
	})
	idx := trackIndex{clips: clips, maxEnd: make([]float64, len(clips))}
	running := 0.0
	for i, c := range clips {
		if e := c.VisibleEnd(); i == 0 || e > running {
			running = e
		}
		idx.maxEnd[i] = running
	}
	return idx
}

func (idx trackIndex) visible(w viewport.Window) []timeline.Clip {
	first := sort.Search(len(idx.clips), func(i int) bool {
		return idx.maxEnd[i] >= w.StartSeconds
	})
	var out []timeline.Clip
	for i := first; i < len(idx.clips); i++ {
		c := idx.clips[i]
		if c.VisibleStart() > w.EndSeconds {
			break
		}
		if w.Intersects(c.VisibleStart(), c.VisibleEnd()) {
			out = append(out, c)
		}
	}
	return out
}

// visibleMarkers relies on markers being kept sorted by the model.
func visibleMarkers(markers []float64, w viewport.Window) []float64 {
	lo := sort.SearchFloat64s(markers, w.StartSeconds)
	hi := sort.Search(len(markers), func(i int) bool { return markers[i] > w.EndSeconds })
	if lo >= hi {
		return nil
	}
	return markers[lo:hi]
}
