package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"storyreel/internal/cache"
)

const maxThumbnailBytes = 8 << 20

type ThumbnailOptions struct {
	FetchTimeout time.Duration
	Concurrency  int
}

// ThumbnailService loads stills into a session cache in the background.
// Callers never block on a load; they ask again once OnReady fires.
type ThumbnailService struct {
	cache   *cache.ThumbnailCache
	stills  *StillExtractor
	client  *http.Client
	opts    ThumbnailOptions
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	onReady func(url string)
}

func NewThumbnailService(c *cache.ThumbnailCache, stills *StillExtractor, opts ThumbnailOptions, logger zerolog.Logger) *ThumbnailService {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ThumbnailService{
		cache:  c,
		stills: stills,
		client: &http.Client{Timeout: opts.FetchTimeout},
		opts:   opts,
		logger: logger.With().Str("component", "thumbnails").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnReady registers a callback fired after a URL finishes loading,
// successfully or not.
func (s *ThumbnailService) SetOnReady(fn func(url string)) {
	s.mu.Lock()
	s.onReady = fn
	s.mu.Unlock()
}

func (s *ThumbnailService) Lookup(url string) (cache.Entry, bool) {
	return s.cache.Get(url)
}

// Request starts a background load for url unless one was already issued.
func (s *ThumbnailService) Request(url string) {
	if url == "" || s.ctx.Err() != nil || !s.cache.MarkPending(url) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.load(s.ctx, url)
	}()
}

// Prefetch loads every url not yet cached, at most Concurrency at a time.
func (s *ThumbnailService) Prefetch(ctx context.Context, urls []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, u := range urls {
		u := u
		if u == "" || !s.cache.MarkPending(u) {
			continue
		}
		g.Go(func() error {
			s.load(ctx, u)
			return ctx.Err()
		})
	}
	return g.Wait()
}

func (s *ThumbnailService) load(ctx context.Context, url string) {
	data, err := s.fetch(ctx, url)
	if err == nil {
		var cfg image.Config
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
		if err == nil {
			s.cache.SetReady(url, data, cfg.Width, cfg.Height)
			s.logger.Debug().
				Str("url", url).
				Str("size", humanize.Bytes(uint64(len(data)))).
				Int("width", cfg.Width).
				Int("height", cfg.Height).
				Msg("thumbnail cached")
		}
	}
	if err != nil {
		s.cache.SetFailed(url, err)
		s.logger.Warn().Err(err).Str("url", url).Msg("thumbnail unavailable")
	}

	s.mu.Lock()
	fn := s.onReady
	s.mu.Unlock()
	if fn != nil {
		fn(url)
	}
}

func (s *ThumbnailService) fetch(ctx context.Context, url string) ([]byte, error) {
	if IsSupportedVideo(url) {
		if s.stills == nil || !s.stills.IsAvailable() {
			return nil, fmt.Errorf("no still extractor for %s", url)
		}
		path, err := s.stills.Extract(ctx, url, 0)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return os.ReadFile(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
}

// Close cancels in-flight loads, waits for them and purges the cache.
func (s *ThumbnailService) Close() {
	s.cancel()
	s.wg.Wait()
	count, size := s.CacheStats()
	s.cache.Purge()
	s.logger.Debug().Int("entries", count).Str("size", humanize.Bytes(uint64(size))).Msg("thumbnail cache purged")
}

func (s *ThumbnailService) CacheStats() (count int, size int64) {
	return s.cache.Len(), s.cache.Size()
}
