// Package server exposes the tracker commands, the stored data and the event
// stream over HTTP on the local machine.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/events"
	"slippi-tracker/internal/ingest"
	"slippi-tracker/internal/middleware"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/service"
	"slippi-tracker/internal/tracker"
)

type Params struct {
	fx.In

	Config  *config.Config
	Tracker *tracker.Tracker
	Results *service.ResultService
	Stats   *service.StatsService
	Ranks   *service.RankService
	Notes   *service.NoteService
	Chats   *service.ChatService
	Imports *service.ImportService
	Runs    *repository.IngestRunRepository
	Bus     *events.Bus
	Logger  zerolog.Logger
}

type Server struct {
	origins []string
	tracker *tracker.Tracker
	results *service.ResultService
	stats   *service.StatsService
	ranks   *service.RankService
	notes   *service.NoteService
	chats   *service.ChatService
	imports *service.ImportService
	runs    *repository.IngestRunRepository
	bus     *events.Bus
	logger  zerolog.Logger
}

func New(p Params) *Server {
	return &Server{
		origins: p.Config.AllowedOrigins,
		tracker: p.Tracker,
		results: p.Results,
		stats:   p.Stats,
		ranks:   p.Ranks,
		notes:   p.Notes,
		chats:   p.Chats,
		imports: p.Imports,
		runs:    p.Runs,
		bus:     p.Bus,
		logger:  p.Logger,
	}
}

// APIResponse wraps every JSON reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowOriginFunc: s.originAllowed,
		AllowedMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:  []string{"Content-Type", middleware.RequestIDHeader},
	})
	r.Use(c.Handler)
	r.Use(middleware.RequestID(s.logger))
	r.Use(middleware.RequireOrigin(s.origins))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))

		r.Post("/init", s.initTracker)
		r.Get("/options", s.getOptions)
		r.Put("/options", s.setOptions)
		r.Post("/confirm-code", s.confirmCode)
		r.Get("/parsing", s.parsing)
		r.Post("/parsing/cancel", s.cancelParsing)
		r.Post("/percent-check/disable", s.disablePercentCheck)
		r.Post("/hard-reset", s.hardReset)
		r.Get("/codes/unique", s.uniqueCodes)
		r.Post("/folders/validate", s.validateFolder)
		r.Get("/ingest-runs", s.ingestRuns)

		r.Route("/results", func(r chi.Router) {
			r.Post("/query", s.queryResults)
			r.Post("/count", s.countResults)
			r.Get("/total", s.totalMatches)
			r.Put("/{id}/notes", s.saveMatchNotes)
		})
		r.Post("/match-stats", s.matchStats)

		r.Route("/stats/characters/{id}", func(r chi.Router) {
			r.Get("/", s.characterStats)
			r.Get("/opponent", s.opponentCharacterStats)
		})

		r.Get("/seasons", s.seasons)
		r.Post("/ranks/refresh", s.refreshRanks)

		r.Route("/players/{userID}", func(r chi.Router) {
			r.Get("/", s.player)
			r.Put("/", s.upsertPlayer)
			r.Get("/results", s.playerResults)
			r.Get("/ranks", s.playerRanks)
			r.Get("/notes", s.playerNotes)
			r.Post("/notes", s.createPlayerNote)
			r.Post("/chat", s.upsertChat)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Get("/characters", s.characterNotes)
			r.Post("/characters", s.createCharacterNote)
			r.Put("/characters/{id}", s.updateCharacterNote)
			r.Delete("/characters/{id}", s.deleteCharacterNote)
			r.Post("/characters/import", s.importCharacterNotes)
			r.Post("/characters/export", s.exportCharacterNotes)
			r.Put("/players/{id}", s.updatePlayerNote)
			r.Delete("/players/{id}", s.deletePlayerNote)
		})

		r.Route("/chats/{id}/messages", func(r chi.Router) {
			r.Get("/", s.chatMessages)
			r.Post("/", s.addChatMessage)
		})

		r.Post("/database/import", s.importDatabase)
		r.Post("/database/export", s.exportDatabase)
	})

	return r
}

func (s *Server) originAllowed(origin string) bool {
	return middleware.OriginAllowed(s.origins, origin)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeSuccess(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// writeError maps known errors to client statuses; anything else is
// logged as an internal failure.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

var errBadRequest = errors.New("invalid request")

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, tracker.ErrMissingCodes),
		errors.Is(err, tracker.ErrMissingDBPath),
		errors.Is(err, tracker.ErrMissingReplayPath):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrNotInitialized),
		errors.Is(err, tracker.ErrParsing):
		return http.StatusConflict
	case errors.Is(err, ingest.ErrFolderNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, map[string]string{"status": "healthy"})
}
