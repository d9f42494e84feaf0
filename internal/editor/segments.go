package editor

import (
	"net/url"
	"strings"

	"storyreel/internal/render"
)

// TemplateLookup resolves a segment's still image by substituting its id
// into a URL template such as "https://cdn/stills/{id}.jpg".
type TemplateLookup struct {
	Template string
}

func (l TemplateLookup) Resolve(segmentID string) (render.Segment, bool) {
	if l.Template == "" || segmentID == "" || !strings.Contains(l.Template, "{id}") {
		return render.Segment{}, false
	}
	return render.Segment{
		StillURL: strings.ReplaceAll(l.Template, "{id}", url.PathEscape(segmentID)),
	}, true
}
