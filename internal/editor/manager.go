package editor

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"storyreel/internal/media"
	"storyreel/internal/playback"
	"storyreel/internal/storage"
	"storyreel/internal/timeline"
)

// Manager keeps at most one live session per timeline id.
type Manager struct {
	store  Store
	opts   Options
	logger zerolog.Logger

	prober Prober
	stills *media.StillExtractor
	clock  playback.Clock

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store Store, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		opts:     opts,
		logger:   logger.With().Str("component", "editor").Logger(),
		clock:    playback.RealClock{},
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) SetProber(p Prober) { m.prober = p }

func (m *Manager) SetStillExtractor(x *media.StillExtractor) { m.stills = x }

func (m *Manager) SetClock(c playback.Clock) { m.clock = c }

// Open returns the live session for id, loading it from storage if needed.
// Unknown ids yield storage.ErrNotFound.
func (m *Manager) Open(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	t, err := m.store.GetTimeline(id)
	if err != nil {
		return nil, err
	}
	return m.openLocked(t)
}

// Put stores state under id, creating the timeline when it does not exist.
func (m *Manager) Put(id, name string, state timeline.State) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, s.Replace(name, state)
	}
	normalized := timeline.NewModel()
	normalized.Load(state)
	data, err := normalized.State().Encode()
	if err != nil {
		return nil, err
	}
	t := &storage.Timeline{ID: id, Name: name, State: json.RawMessage(data)}
	if err := m.store.SaveTimeline(t); err != nil {
		return nil, err
	}
	return m.openLocked(t)
}

func (m *Manager) openLocked(t *storage.Timeline) (*Session, error) {
	s, err := newSession(t, sessionDeps{
		store:  m.store,
		prober: m.prober,
		stills: m.stills,
		clock:  m.clock,
	}, m.opts, m.logger)
	if err != nil {
		return nil, err
	}
	m.sessions[t.ID] = s
	m.logger.Info().Str("timeline", t.ID).Int("open", len(m.sessions)).Msg("Session opened")
	return s, nil
}

// Evict closes the live session for id, if any.
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Delete closes the session and removes the timeline from storage.
func (m *Manager) Delete(id string) error {
	m.Evict(id)
	if err := m.store.DeleteTimeline(id); err != nil {
		return fmt.Errorf("deleting timeline %s: %w", id, err)
	}
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
