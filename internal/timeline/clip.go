package timeline

// Kind identifies which track a clip lives on.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

func (k Kind) Valid() bool {
	return k == KindVideo || k == KindAudio
}

// Ref addresses a clip on either track.
type Ref struct {
	Type Kind   `json:"type"`
	ID   string `json:"id"`
}

// Clip is implemented only by VideoClip and AudioClip.
type Clip interface {
	Ref() Ref
	Label() string
	SourceRef() string
	Src() string
	VisibleStart() float64
	VisibleEnd() float64
	isClip()
}

// VideoClip is placed at Start measured from its untrimmed left edge.
// The visible span is [Start+TrimStart, Start+Duration-TrimEnd].
type VideoClip struct {
	ID        string  `json:"id"`
	SourceID  string  `json:"sourceId"`
	Title     string  `json:"title"`
	Start     float64 `json:"start"`
	Duration  float64 `json:"duration"`
	TrimStart float64 `json:"trimStart"`
	TrimEnd   float64 `json:"trimEnd"`
	MediaSrc  string  `json:"mediaSrc,omitempty"`
}

func (c VideoClip) Ref() Ref              { return Ref{Type: KindVideo, ID: c.ID} }
func (c VideoClip) Label() string         { return c.Title }
func (c VideoClip) SourceRef() string     { return c.SourceID }
func (c VideoClip) Src() string           { return c.MediaSrc }
func (c VideoClip) VisibleStart() float64 { return c.Start + c.TrimStart }
func (c VideoClip) VisibleEnd() float64   { return c.Start + c.Duration - c.TrimEnd }
func (VideoClip) isClip()                 {}

// VisibleDuration is the length of the span left after trimming.
func (c VideoClip) VisibleDuration() float64 {
	return c.Duration - c.TrimStart - c.TrimEnd
}

// TrimValid reports whether the clip satisfies the trim invariant.
func (c VideoClip) TrimValid() bool {
	return c.TrimStart >= 0 && c.TrimEnd >= 0 && c.TrimStart+c.TrimEnd+MinVisible <= c.Duration+epsilon
}

// AudioClip has no trim; its visible span is [Start, Start+Duration).
type AudioClip struct {
	ID            string  `json:"id"`
	SourceAssetID string  `json:"sourceAssetId"`
	Name          string  `json:"name"`
	Start         float64 `json:"start"`
	Duration      float64 `json:"duration"`
	MediaSrc      string  `json:"mediaSrc,omitempty"`
}

func (c AudioClip) Ref() Ref              { return Ref{Type: KindAudio, ID: c.ID} }
func (c AudioClip) Label() string         { return c.Name }
func (c AudioClip) SourceRef() string     { return c.SourceAssetID }
func (c AudioClip) Src() string           { return c.MediaSrc }
func (c AudioClip) VisibleStart() float64 { return c.Start }
func (c AudioClip) VisibleEnd() float64   { return c.Start + c.Duration }
func (AudioClip) isClip()                 {}

// Contains reports whether t falls inside the half-open window [Start, Start+Duration).
func (c AudioClip) Contains(t float64) bool {
	return t >= c.Start && t < c.Start+c.Duration
}

// VideoPatch carries the fields to replace on a video clip. Nil fields are kept.
type VideoPatch struct {
	SourceID  *string
	Title     *string
	Start     *float64
	Duration  *float64
	TrimStart *float64
	TrimEnd   *float64
	MediaSrc  *string
}

func (p VideoPatch) apply(c VideoClip) VideoClip {
	if p.SourceID != nil {
		c.SourceID = *p.SourceID
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Start != nil {
		c.Start = *p.Start
	}
	if p.Duration != nil {
		c.Duration = *p.Duration
	}
	if p.TrimStart != nil {
		c.TrimStart = *p.TrimStart
	}
	if p.TrimEnd != nil {
		c.TrimEnd = *p.TrimEnd
	}
	if p.MediaSrc != nil {
		c.MediaSrc = *p.MediaSrc
	}
	return c
}

// AudioPatch carries the fields to replace on an audio clip. Nil fields are kept.
type AudioPatch struct {
	SourceAssetID *string
	Name          *string
	Start         *float64
	Duration      *float64
	MediaSrc      *string
}

func (p AudioPatch) apply(c AudioClip) AudioClip {
	if p.SourceAssetID != nil {
		c.SourceAssetID = *p.SourceAssetID
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Start != nil {
		c.Start = *p.Start
	}
	if p.Duration != nil {
		c.Duration = *p.Duration
	}
	if p.MediaSrc != nil {
		c.MediaSrc = *p.MediaSrc
	}
	return c
}

// Float returns a pointer to v for use in patches.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v for use in patches.
func String(v string) *string { return &v }
