package render

import "math"

// Fit places an image inside a target box with cover semantics: the image is
// scaled by max(targetW/imgW, targetH/imgH) and centre-cropped.
type Fit struct {
	Scale float64 `json:"scale"`
	// Source crop rectangle in image pixels.
	SX float64 `json:"sx"`
	SY float64 `json:"sy"`
	SW float64 `json:"sw"`
	SH float64 `json:"sh"`
}

func CoverFit(imgW, imgH, targetW, targetH float64) Fit {
	if imgW <= 0 || imgH <= 0 || targetW <= 0 || targetH <= 0 {
		return Fit{}
	}
	scale := math.Max(targetW/imgW, targetH/imgH)
	sw, sh := targetW/scale, targetH/scale
	return Fit{
		Scale: scale,
		SX:    (imgW - sw) / 2,
		SY:    (imgH - sh) / 2,
		SW:    sw,
		SH:    sh,
	}
}
