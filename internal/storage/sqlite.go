package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS timelines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timelines_updated ON timelines(updated_at DESC);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		src TEXT NOT NULL UNIQUE,
		duration REAL,
		width INTEGER,
		height INTEGER,
		video_codec TEXT,
		audio_codec TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS playback_states (
		timeline_id TEXT PRIMARY KEY REFERENCES timelines(id) ON DELETE CASCADE,
		position REAL NOT NULL,
		duration REAL NOT NULL,
		progress REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Timelines

// SaveTimeline inserts or replaces the stored state of a timeline.
func (s *SQLiteStorage) SaveTimeline(t *Timeline) error {
	if !json.Valid(t.State) {
		return fmt.Errorf("saving timeline %s: state is not valid JSON", t.ID)
	}
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO timelines (id, name, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, t.ID, t.Name, string(t.State), now, now)
	if err != nil {
		return fmt.Errorf("saving timeline %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) GetTimeline(id string) (*Timeline, error) {
	row := s.db.QueryRow(`
		SELECT id, name, state, created_at, updated_at
		FROM timelines WHERE id = ?
	`, id)

	var t Timeline
	var state string
	err := row.Scan(&t.ID, &t.Name, &state, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.State = json.RawMessage(state)
	return &t, nil
}

// ListTimelines returns the most recently edited timelines with their
// saved playhead, if any.
func (s *SQLiteStorage) ListTimelines(limit int) ([]TimelineSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			t.id, t.name, t.updated_at,
			p.timeline_id, p.position, p.duration, p.progress, p.updated_at
		FROM timelines t
		LEFT JOIN playback_states p ON p.timeline_id = t.id
		ORDER BY t.updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TimelineSummary
	for rows.Next() {
		var item TimelineSummary
		var (
			pid                sql.NullString
			pos, dur, progress sql.NullFloat64
			playbackUpdatedAt  sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.Name, &item.UpdatedAt,
			&pid, &pos, &dur, &progress, &playbackUpdatedAt,
		); err != nil {
			return nil, err
		}
		if pid.Valid {
			item.PlaybackState = &PlaybackState{
				TimelineID: pid.String,
				Position:   pos.Float64,
				Duration:   dur.Float64,
				Progress:   progress.Float64,
				UpdatedAt:  playbackUpdatedAt.Time,
			}
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (s *SQLiteStorage) DeleteTimeline(id string) error {
	res, err := s.db.Exec("DELETE FROM timelines WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.db.Exec("DELETE FROM playback_states WHERE timeline_id = ?", id)
	return err
}

// Assets

func (s *SQLiteStorage) SaveAsset(a *Asset) error {
	_, err := s.db.Exec(`
		INSERT INTO assets (id, kind, name, src, duration, width, height, video_codec, audio_codec, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			src = excluded.src
	`, a.ID, a.Kind, a.Name, a.Src, a.Duration, a.Width, a.Height, a.VideoCodec, a.AudioCodec, time.Now())
	return err
}

func (s *SQLiteStorage) GetAsset(id string) (*Asset, error) {
	return s.scanAsset(s.db.QueryRow(`
		SELECT id, kind, name, src, duration, width, height, video_codec, audio_codec, created_at
		FROM assets WHERE id = ?
	`, id))
}

func (s *SQLiteStorage) GetAssetBySrc(src string) (*Asset, error) {
	return s.scanAsset(s.db.QueryRow(`
		SELECT id, kind, name, src, duration, width, height, video_codec, audio_codec, created_at
		FROM assets WHERE src = ?
	`, src))
}

func (s *SQLiteStorage) scanAsset(row *sql.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Kind, &a.Name, &a.Src, &a.Duration, &a.Width, &a.Height,
		&a.VideoCodec, &a.AudioCodec, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStorage) UpdateAssetMetadata(id string, duration float64, width, height int, videoCodec, audioCodec string) error {
	_, err := s.db.Exec(`
		UPDATE assets SET
			duration = ?, width = ?, height = ?, video_codec = ?, audio_codec = ?
		WHERE id = ?
	`, duration, width, height, videoCodec, audioCodec, id)
	return err
}

// GetAssetsWithoutMetadata returns assets that have not been probed yet.
func (s *SQLiteStorage) GetAssetsWithoutMetadata(limit int) ([]Asset, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, name, src, duration, width, height, video_codec, audio_codec, created_at
		FROM assets WHERE duration IS NULL
		ORDER BY created_at
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.Kind, &a.Name, &a.Src, &a.Duration, &a.Width, &a.Height,
			&a.VideoCodec, &a.AudioCodec, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// Playback State methods

// SavePlaybackState saves or updates the playhead of a timeline.
func (s *SQLiteStorage) SavePlaybackState(state *PlaybackState) error {
	_, err := s.db.Exec(`
		INSERT INTO playback_states (timeline_id, position, duration, progress, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(timeline_id) DO UPDATE SET
			position = excluded.position,
			duration = excluded.duration,
			progress = excluded.progress,
			updated_at = excluded.updated_at
	`, state.TimelineID, state.Position, state.Duration, state.Progress, time.Now())
	return err
}

func (s *SQLiteStorage) GetPlaybackState(timelineID string) (*PlaybackState, error) {
	row := s.db.QueryRow(`
		SELECT timeline_id, position, duration, progress, updated_at
		FROM playback_states WHERE timeline_id = ?
	`, timelineID)

	var state PlaybackState
	err := row.Scan(&state.TimelineID, &state.Position, &state.Duration, &state.Progress, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &state, nil
}
