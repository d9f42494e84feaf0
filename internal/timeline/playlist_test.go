package timeline

import "testing"

func TestBuildPlaylist_FillsGapsWithPlaceholders(t *testing.T) {
	m := NewModel()
	m.AddVideoClip(VideoClip{ID: "b", Start: 6, Duration: 4, TrimStart: 1, MediaSrc: "b.mp4"})
	m.AddVideoClip(VideoClip{ID: "a", Start: 0, Duration: 5, TrimEnd: 1, MediaSrc: "a.mp4"})
	m.AddAudioClip(AudioClip{ID: "music", Start: 0, Duration: 12})

	pl := BuildPlaylist(m)

	if len(pl.Items) != 4 {
		t.Fatalf("expected 4 items (a, gap, b, tail), got=%+v", pl.Items)
	}
	a, gap, b, tail := pl.Items[0], pl.Items[1], pl.Items[2], pl.Items[3]
	if a.Key != "a" || a.Start != 0 || a.TrimStart != 0 || a.TrimEnd != 4 || a.Duration != 4 {
		t.Fatalf("unexpected first item: %+v", a)
	}
	if gap.HasMedia() || gap.Start != 4 || gap.Duration != 3 {
		t.Fatalf("unexpected gap item: %+v", gap)
	}
	if b.Key != "b" || b.Start != 7 || b.TrimStart != 1 || b.TrimEnd != 4 || b.Duration != 3 {
		t.Fatalf("unexpected second item: %+v", b)
	}
	if tail.HasMedia() || tail.Start != 10 || tail.Duration != 2 {
		t.Fatalf("unexpected tail item: %+v", tail)
	}
	if pl.Total != 12 {
		t.Fatalf("expected total 12, got=%v", pl.Total)
	}
}

func TestBuildPlaylist_PendingClipKeepsSlot(t *testing.T) {
	m := NewModel()
	m.AddVideoClip(VideoClip{ID: "pending", Start: 0, Duration: 6})
	m.AddVideoClip(VideoClip{ID: "next", Start: 6, Duration: 2, MediaSrc: "n.mp4"})

	pl := BuildPlaylist(m)
	if len(pl.Items) != 2 {
		t.Fatalf("expected 2 items, got=%+v", pl.Items)
	}
	if pl.Items[0].HasMedia() || pl.Items[0].Duration != 6 || pl.Items[0].Key != "pending" {
		t.Fatalf("expected pending placeholder of 6s, got=%+v", pl.Items[0])
	}
}

func TestPlaylist_IndexAt(t *testing.T) {
	pl := Playlist{
		Items: []PlaylistItem{
			{Key: "a", Start: 0, Duration: 2},
			{Key: "b", Start: 2, Duration: 3},
		},
		Total: 5,
	}
	cases := map[float64]int{0: 0, 1.99: 0, 2: 1, 4.9: 1, 5: -1, -1: -1}
	for at, want := range cases {
		if got := pl.IndexAt(at); got != want {
			t.Fatalf("IndexAt(%v): expected %d, got=%d", at, want, got)
		}
	}
}
