// Package viewport maps between timeline seconds and lane pixels and
// computes the culling window the renderer works from.
package viewport

import "math"

// DefaultOverscan is how much content outside the visible range is kept.
const DefaultOverscan = 2.0

func TimeToPixel(seconds, pxPerSecond, offsetPx float64) float64 {
	return seconds*pxPerSecond + offsetPx
}

// PixelToTime is the inverse of TimeToPixel. A non-positive zoom yields NaN.
func PixelToTime(px, pxPerSecond, offsetPx float64) float64 {
	if pxPerSecond <= 0 {
		return math.NaN()
	}
	return (px - offsetPx) / pxPerSecond
}

func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Finite reports whether every value is neither NaN nor infinite.
func Finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Window struct {
	StartPx      float64 `json:"startPx"`
	WidthPx      float64 `json:"widthPx"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
}

// Compute returns the visible range of a scroll container widened by overscan
// seconds on both sides and clamped to [0, total].
func Compute(scrollPx, visibleWidthPx, pxPerSecond, overscan, total float64) Window {
	if pxPerSecond <= 0 || !Finite(scrollPx, visibleWidthPx, pxPerSecond, overscan, total) {
		return Window{}
	}
	start := Clamp(scrollPx/pxPerSecond-overscan, 0, total)
	end := Clamp((scrollPx+visibleWidthPx)/pxPerSecond+overscan, start, total)
	return Window{
		StartPx:      start * pxPerSecond,
		WidthPx:      (end - start) * pxPerSecond,
		StartSeconds: start,
		EndSeconds:   end,
	}
}

// Intersects reports whether [a, b] touches the window.
func (w Window) Intersects(a, b float64) bool {
	return b >= w.StartSeconds && a <= w.EndSeconds
}

func (w Window) Contains(t float64) bool {
	return t >= w.StartSeconds && t <= w.EndSeconds
}

// ZoomAround returns the scroll offset that keeps the time under anchorPx
// (relative to the container's left edge) fixed when zooming from oldPPS to newPPS.
func ZoomAround(scrollPx, anchorPx, oldPPS, newPPS float64) float64 {
	if oldPPS <= 0 || newPPS <= 0 {
		return scrollPx
	}
	t := (scrollPx + anchorPx) / oldPPS
	return math.Max(0, t*newPPS-anchorPx)
}
