package editor

import (
	"time"

	"storyreel/internal/config"
	"storyreel/internal/interact"
	"storyreel/internal/media"
	"storyreel/internal/playback"
	"storyreel/internal/render"
	"storyreel/internal/viewport"
)

// Options configures every session a Manager opens.
type Options struct {
	Interact         interact.Options
	Render           render.Options
	Playback         playback.Options
	Thumbnails       media.ThumbnailOptions
	CacheCapacity    int
	CacheMaxSize     int64
	StillURLTemplate string
	TrimHandlePx     float64
	SaveInterval     time.Duration
}

func DefaultOptions() Options {
	return Options{
		Interact:      interact.DefaultOptions(),
		Render:        render.Options{OverscanSecs: viewport.DefaultOverscan},
		Playback:      playback.DefaultOptions(),
		CacheCapacity: 1000,
		CacheMaxSize:  256 << 20,
		TrimHandlePx:  render.DefaultHandlePx,
		SaveInterval:  5 * time.Second,
	}
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := interact.ParseOverlapPolicy(cfg.Editor.OverlapPolicy)
	if err != nil {
		return Options{}, err
	}
	e := cfg.Editor
	p := cfg.Playback
	return Options{
		Interact: interact.Options{
			PxPerSecond:         e.PxPerSecond,
			SnapPx:              e.SnapPx,
			DragOutPx:           e.DragOutPx,
			MinVisible:          e.MinVisible,
			DefaultClipDuration: e.DefaultClipDuration,
			Policy:              policy,
		},
		Render: render.Options{
			OverscanSecs: e.OverscanSeconds,
		},
		Playback: playback.Options{
			RetryDelays:     p.RetryDelays,
			PlaceholderTick: p.PlaceholderTick,
			DriftThreshold:  p.DriftThreshold,
			AdvanceGuard:    p.AdvanceGuard,
			BufferingRetry:  p.BufferingRetry,
		},
		Thumbnails: media.ThumbnailOptions{
			FetchTimeout: cfg.Thumbnails.FetchTimeout,
			Concurrency:  cfg.Thumbnails.Concurrency,
		},
		CacheCapacity:    cfg.Thumbnails.CacheCapacity,
		CacheMaxSize:     cfg.Thumbnails.CacheMaxSize,
		StillURLTemplate: cfg.Thumbnails.StillURLTemplate,
		TrimHandlePx:     e.TrimHandlePx,
		SaveInterval:     p.SaveInterval,
	}, nil
}
