package timeline

import (
	"fmt"
	"sort"
)

// PlaylistItem is one slot of the assembled cut. TrimStart and TrimEnd are
// media-local in and out points; an item without VideoSrc is a placeholder
// that still occupies Duration seconds.
type PlaylistItem struct {
	Key       string  `json:"key"`
	VideoSrc  string  `json:"videoSrc,omitempty"`
	Start     float64 `json:"start"`
	TrimStart float64 `json:"trimStartSeconds"`
	TrimEnd   float64 `json:"trimEndSeconds"`
	Duration  float64 `json:"durationSeconds"`
}

func (i PlaylistItem) HasMedia() bool {
	return i.VideoSrc != ""
}

func (i PlaylistItem) End() float64 {
	return i.Start + i.Duration
}

type Playlist struct {
	Items []PlaylistItem `json:"items"`
	Total float64        `json:"totalSeconds"`
}

// IndexAt returns the item covering t, or -1 when t is outside the playlist.
func (p Playlist) IndexAt(t float64) int {
	if t < 0 || t >= p.Total {
		return -1
	}
	i := sort.Search(len(p.Items), func(i int) bool {
		return p.Items[i].End() > t
	})
	if i == len(p.Items) {
		return -1
	}
	return i
}

// BuildPlaylist projects the video track onto a gapless sequence. Gaps between
// visible spans, and audio running past the last video clip, become
// placeholder items so that playlist time equals timeline time.
func BuildPlaylist(m *Model) Playlist {
	clips := append([]VideoClip(nil), m.VideoClips()...)
	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].VisibleStart() < clips[j].VisibleStart()
	})

	var items []PlaylistItem
	cursor := 0.0
	gap := func(from, to float64) {
		if to-from <= epsilon {
			return
		}
		items = append(items, PlaylistItem{
			Key:      fmt.Sprintf("gap-%.3f", from),
			Start:    from,
			Duration: to - from,
		})
	}

	for _, c := range clips {
		vs := c.VisibleStart()
		in := c.TrimStart
		if vs < cursor {
			// Transient overlap: drop the part already covered.
			in += cursor - vs
			vs = cursor
		}
		out := c.Duration - c.TrimEnd
		if out-in <= epsilon {
			continue
		}
		gap(cursor, vs)
		items = append(items, PlaylistItem{
			Key:       c.ID,
			VideoSrc:  c.MediaSrc,
			Start:     vs,
			TrimStart: in,
			TrimEnd:   out,
			Duration:  out - in,
		})
		cursor = vs + out - in
	}

	end := cursor
	for _, a := range m.AudioClips() {
		if e := a.VisibleEnd(); e > end {
			end = e
		}
	}
	gap(cursor, end)

	return Playlist{Items: items, Total: end}
}
