package editor

import (
	"sync"

	"github.com/rs/zerolog"
)

const subscriberBuffer = 256

// hub fans messages out to the connected hosts. It has its own lock so
// surfaces and observers can publish while the session lock is held.
type hub struct {
	mu     sync.Mutex
	subs   map[chan Message]struct{}
	logger zerolog.Logger
}

func newHub(logger zerolog.Logger) *hub {
	return &hub{
		subs:   make(map[chan Message]struct{}),
		logger: logger,
	}
}

func (h *hub) subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// publish never blocks; a subscriber that falls behind misses messages.
func (h *hub) publish(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- m:
		default:
			h.logger.Warn().Str("type", m.Type).Msg("subscriber too slow, message dropped")
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
