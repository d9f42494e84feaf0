package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"storyreel/internal/cache"
	"storyreel/internal/editor"
	"storyreel/internal/interact"
	"storyreel/internal/storage"
	"storyreel/internal/streaming"
	"storyreel/internal/timeline"
)

const Version = "0.1.0"

const maxStateBytes = 16 << 20

type Handler struct {
	storage  *storage.SQLiteStorage
	manager  *editor.Manager
	logger   zerolog.Logger
	streamer *streaming.Handler
	origins  []string
}

func NewHandler(store *storage.SQLiteStorage, manager *editor.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		storage:  store,
		manager:  manager,
		logger:   logger,
		streamer: streaming.NewHandler(),
	}
}

// SetAllowedOrigins restricts WebSocket upgrades to the given origins.
func (h *Handler) SetAllowedOrigins(origins []string) {
	h.origins = origins
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Sessions: h.manager.Len(),
	})
}

// Timelines

func (h *Handler) ListTimelines(w http.ResponseWriter, r *http.Request) {
	items, err := h.storage.ListTimelines(50)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list timelines")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list timelines")
		return
	}
	if items == nil {
		items = []storage.TimelineSummary{}
	}
	writeJSON(w, http.StatusOK, TimelineListResponse{Items: items})
}

func (h *Handler) CreateTimeline(w http.ResponseWriter, r *http.Request) {
	var req CreateTimelineRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxStateBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	state := timeline.State{}
	if req.State != nil {
		state = *req.State
	}

	id := uuid.NewString()
	s, err := h.manager.Put(id, req.Name, state)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create timeline")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create timeline")
		return
	}
	writeJSON(w, http.StatusCreated, TimelineResponse{ID: id, Name: s.Name(), State: s.State()})
}

// GetTimeline returns the persisted state object of a timeline.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// PutTimeline replaces the whole state, creating the timeline if needed.
func (h *Handler) PutTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxStateBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Failed to read body")
		return
	}
	state, err := timeline.ParseState(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_STATE", err.Error())
		return
	}

	s, err := h.manager.Put(id, r.URL.Query().Get("name"), state)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("failed to store timeline")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store timeline")
		return
	}
	h.logger.Debug().
		Str("id", id).
		Int("video", len(state.VideoClips)).
		Int("audio", len(state.AudioClips)).
		Msg("timeline stored")
	writeJSON(w, http.StatusOK, s.State())
}

func (h *Handler) DeleteTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusConflict, "CONFIRMATION_REQUIRED", "Deleting a timeline must be confirmed")
		return
	}
	if err := h.manager.Delete(id); err != nil {
		h.writeSessionError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Playlist())
}

// GetFrame renders the display list for the viewport given in the query.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.View(queryFloat(q.Get("scroll")), queryFloat(q.Get("width")), queryFloat(q.Get("pps")), nil))
}

// Editing

func (h *Handler) Drop(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req DropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	src, err := interact.ParseDragSource(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DRAG_SOURCE", err.Error())
		return
	}
	ref, err := s.Drop(r.Context(), src, req.X)
	if err != nil {
		h.writeSessionError(w, s.ID(), err)
		return
	}
	writeJSON(w, http.StatusCreated, DropResponse{Ref: ref})
}

func (h *Handler) DeleteClips(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req DeleteClipsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	if err := s.Delete(req.Refs, req.Confirm); err != nil {
		h.writeSessionError(w, s.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

func (h *Handler) AddMarker(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req MarkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	if err := s.AddMarker(req.Seconds); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MarkersResponse{Markers: markersOf(s)})
}

func (h *Handler) RemoveMarker(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	at, err := strconv.ParseFloat(chi.URLParam(r, "seconds"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid marker position")
		return
	}
	removed, err := s.RemoveMarker(at)
	if err != nil {
		h.writeSessionError(w, s.ID(), err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "MARKER_NOT_FOUND", "Marker not found")
		return
	}
	writeJSON(w, http.StatusOK, MarkersResponse{Markers: markersOf(s)})
}

// Playback handlers

func (h *Handler) GetPlayback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Playback())
}

func (h *Handler) SeekPlayback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	s.Seek(req.Position)
	writeJSON(w, http.StatusOK, s.Playback())
}

// GetThumbnail serves a still from the session cache. Pending loads answer
// 202 so the host can retry after the next frame invalidation.
func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	url := r.URL.Query().Get("url")
	entry, found := s.Thumbnail(url)
	if !found {
		writeError(w, http.StatusNotFound, "THUMBNAIL_NOT_FOUND", "Thumbnail not requested")
		return
	}
	switch entry.Status {
	case cache.StatusReady:
		w.Header().Set("Content-Type", http.DetectContentType(entry.Data))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.WriteHeader(http.StatusOK)
		w.Write(entry.Data)
	case cache.StatusFailed:
		writeError(w, http.StatusNotFound, "THUMBNAIL_NOT_FOUND", "Thumbnail not available")
	default:
		writeError(w, http.StatusAccepted, "THUMBNAIL_PENDING", "Thumbnail is loading")
	}
}

// StreamAsset serves a local asset file with range support.
func (h *Handler) StreamAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asset, err := h.storage.GetAsset(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ASSET_NOT_FOUND", "Asset not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("failed to get asset for streaming")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get asset")
		return
	}
	h.streamer.ServeAsset(w, r, asset.Src)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.manager.Open(id)
	if err != nil {
		h.writeSessionError(w, id, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) writeSessionError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "TIMELINE_NOT_FOUND", "Timeline not found")
	case errors.Is(err, interact.ErrDeleteDeclined):
		writeError(w, http.StatusConflict, "CONFIRMATION_REQUIRED", "Deletion must be confirmed")
	case errors.Is(err, interact.ErrNoSelection):
		writeError(w, http.StatusBadRequest, "NO_SELECTION", "No clips selected")
	case errors.Is(err, interact.ErrInvalidDragSource):
		writeError(w, http.StatusBadRequest, "INVALID_DRAG_SOURCE", err.Error())
	default:
		h.logger.Error().Err(err).Str("id", id).Msg("timeline request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Request failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func queryFloat(v string) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func markersOf(s *editor.Session) []float64 {
	m := s.State().Markers
	if m == nil {
		m = []float64{}
	}
	return m
}
