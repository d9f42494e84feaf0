package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"storyreel/internal/api"
	"storyreel/internal/config"
	"storyreel/internal/editor"
	"storyreel/internal/storage"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	storage    *storage.SQLiteStorage
	manager    *editor.Manager
	handler    *api.Handler
}

func New(cfg *config.Config, logger zerolog.Logger, store *storage.SQLiteStorage, manager *editor.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		storage: store,
		manager: manager,
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// Router exposes the mux for in-process tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(CORSMiddleware(s.cfg.Server.AllowedOrigins))
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.handler = api.NewHandler(s.storage, s.manager, s.logger)
	s.handler.SetAllowedOrigins(s.cfg.Server.AllowedOrigins)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handler.Health)

		r.Get("/timelines", s.handler.ListTimelines)
		r.Post("/timelines", s.handler.CreateTimeline)

		r.Route("/timelines/{id}", func(r chi.Router) {
			r.Get("/", s.handler.GetTimeline)
			r.Put("/", s.handler.PutTimeline)
			r.Delete("/", s.handler.DeleteTimeline)

			r.Get("/playlist", s.handler.GetPlaylist)
			r.Get("/frame", s.handler.GetFrame)
			r.Get("/thumbnail", s.handler.GetThumbnail)

			// Editing
			r.Post("/drop", s.handler.Drop)
			r.Delete("/clips", s.handler.DeleteClips)
			r.Post("/markers", s.handler.AddMarker)
			r.Delete("/markers/{seconds}", s.handler.RemoveMarker)

			// Playback
			r.Get("/playback", s.handler.GetPlayback)
			r.Put("/playback", s.handler.SeekPlayback)

			r.Get("/ws", s.handler.Connect)
		})

		r.Get("/assets/{id}/stream", s.handler.StreamAsset)
	})
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
