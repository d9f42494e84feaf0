// Package cache holds the per-session thumbnail cache.
package cache

import (
	"net/url"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is a thumbnail in some stage of loading. Data is only set when ready.
type Entry struct {
	URL    string
	Status Status
	Data   []byte
	Width  int
	Height int
	Err    error
}

// ThumbnailCache is an LRU of thumbnails keyed by normalized URL, bounded by
// both entry count and total bytes. It is owned by one editor session and
// purged when the session closes.
type ThumbnailCache struct {
	mu      sync.Mutex
	items   *lru.Cache[string, *Entry]
	size    int64
	maxSize int64
}

// New creates a cache with the given entry capacity and byte budget.
func New(capacity int, maxSizeBytes int64) (*ThumbnailCache, error) {
	c := &ThumbnailCache{maxSize: maxSizeBytes}
	items, err := lru.NewWithEvict[string, *Entry](capacity, func(_ string, e *Entry) {
		// Runs inside calls made with c.mu held.
		c.size -= int64(len(e.Data))
	})
	if err != nil {
		return nil, err
	}
	c.items = items
	return c, nil
}

// NormalizeURL canonicalises a thumbnail URL so equivalent spellings share an
// entry: lower-case scheme and host, no default port, no fragment, sorted query.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String()
}

// Get returns a copy of the entry for rawURL.
func (c *ThumbnailCache) Get(rawURL string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items.Get(NormalizeURL(rawURL)); ok {
		return *e, true
	}
	return Entry{}, false
}

// MarkPending records that a load for rawURL has started. It returns false
// when an entry already exists, so only one load is ever issued per URL.
func (c *ThumbnailCache) MarkPending(rawURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := NormalizeURL(rawURL)
	if _, ok := c.items.Peek(key); ok {
		return false
	}
	c.items.Add(key, &Entry{URL: key, Status: StatusPending})
	return true
}

func (c *ThumbnailCache) SetReady(rawURL string, data []byte, width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := NormalizeURL(rawURL)
	dataSize := int64(len(data))
	if dataSize > c.maxSize {
		// Too large to keep; remember the failure so the renderer stops asking.
		c.items.Add(key, &Entry{URL: key, Status: StatusFailed})
		return
	}

	if prev, ok := c.items.Peek(key); ok {
		c.size -= int64(len(prev.Data))
		prev.Data = nil
	}
	c.items.Add(key, &Entry{URL: key, Status: StatusReady, Data: data, Width: width, Height: height})
	c.size += dataSize

	for c.size > c.maxSize && c.items.Len() > 1 {
		c.items.RemoveOldest()
	}
}

func (c *ThumbnailCache) SetFailed(rawURL string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := NormalizeURL(rawURL)
	if prev, ok := c.items.Peek(key); ok {
		c.size -= int64(len(prev.Data))
		prev.Data = nil
	}
	c.items.Add(key, &Entry{URL: key, Status: StatusFailed, Err: err})
}

// Forget drops rawURL so the next request retries the load.
func (c *ThumbnailCache) Forget(rawURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(NormalizeURL(rawURL))
}

// Purge empties the cache. Called on session teardown.
func (c *ThumbnailCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
	c.size = 0
}

func (c *ThumbnailCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Size returns the bytes held by ready entries.
func (c *ThumbnailCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
