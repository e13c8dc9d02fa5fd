package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/repository"
)

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return v, nil
}

type pathRequest struct {
	Path string `json:"path"`
}

func (p pathRequest) validate() error {
	if p.Path == "" {
		return fmt.Errorf("%w: path is required", errBadRequest)
	}
	return nil
}

// Tracker commands

func (s *Server) initTracker(w http.ResponseWriter, r *http.Request) {
	var opts domain.TrackerOptions
	if err := decode(r, &opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tracker.InitTracker(r.Context(), opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, s.tracker.Options())
}

func (s *Server) getOptions(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, s.tracker.Options())
}

func (s *Server) setOptions(w http.ResponseWriter, r *http.Request) {
	var opts domain.TrackerOptions
	if err := decode(r, &opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tracker.SetOptions(r.Context(), opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, s.tracker.Options())
}

type confirmCodeRequest struct {
	Code    string `json:"code"`
	StartAt string `json:"startAt"`
}

func (s *Server) confirmCode(w http.ResponseWriter, r *http.Request) {
	var req confirmCodeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Code == "" || req.StartAt == "" {
		s.writeError(w, r, fmt.Errorf("%w: code and startAt are required", errBadRequest))
		return
	}
	if err := s.tracker.ConfirmCode(r.Context(), req.Code, req.StartAt); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) parsing(w http.ResponseWriter, r *http.Request) {
	parsing, err := s.tracker.Parsing(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, map[string]bool{"parsing": parsing})
}

func (s *Server) cancelParsing(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.CancelParsing(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) disablePercentCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DisablePercentCheck(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) hardReset(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.HardReset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) uniqueCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.tracker.GetUniqueCodes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, codes)
}

func (s *Server) validateFolder(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.tracker.ValidateSlippiFolder(req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, summary)
}

func (s *Server) ingestRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = n
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, runs)
}

// Results

func (s *Server) queryResults(w http.ResponseWriter, r *http.Request) {
	var params domain.QueryParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.results.Query(r.Context(), s.tracker.Codes(), &params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, results)
}

func (s *Server) countResults(w http.ResponseWriter, r *http.Request) {
	var params domain.QueryParams
	if err := decode(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.results.QueryCount(r.Context(), s.tracker.Codes(), &params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, map[string]int{"count": n})
}

func (s *Server) totalMatches(w http.ResponseWriter, r *http.Request) {
	n, err := s.results.TotalMatches(r.Context(), s.tracker.Codes())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, map[string]int{"total": n})
}

func (s *Server) saveMatchNotes(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var notes []domain.MatchNote
	if err := decode(r, &notes); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.results.SaveNotes(r.Context(), id, notes); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

type matchStatsRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) matchStats(w http.ResponseWriter, r *http.Request) {
	var req matchStatsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.results.MatchStats(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, stats)
}

func (s *Server) characterStats(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.stats.CharacterStats(r.Context(), s.tracker.Codes(), int(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, stats)
}

func (s *Server) opponentCharacterStats(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.stats.OpponentCharacterStats(r.Context(), s.tracker.Codes(), int(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, stats)
}

// Players and ranks

func (s *Server) seasons(w http.ResponseWriter, r *http.Request) {
	seasons, err := s.ranks.Seasons(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, seasons)
}

type codeRequest struct {
	Code string `json:"code"`
}

// refreshRanks takes the code in the body since connect codes carry a '#'.
func (s *Server) refreshRanks(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Code == "" {
		s.writeError(w, r, fmt.Errorf("%w: code is required", errBadRequest))
		return
	}
	ranks, err := s.ranks.Refresh(r.Context(), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, ranks)
}

func (s *Server) player(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p, err := s.ranks.Player(r.Context(), userID)
	if err == nil && p == nil {
		err = fmt.Errorf("player %s: %w", userID, repository.ErrNotFound)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, p)
}

func (s *Server) upsertPlayer(w http.ResponseWriter, r *http.Request) {
	var p domain.Player
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = chi.URLParam(r, "userID")
	if err := s.ranks.UpsertPlayer(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, p)
}

func (s *Server) playerResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.results.PlayerResults(r.Context(), chi.URLParam(r, "userID"), s.tracker.Codes())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, results)
}

func (s *Server) playerRanks(w http.ResponseWriter, r *http.Request) {
	ranks, err := s.ranks.PlayerRanks(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, ranks)
}

// Notes

func (s *Server) characterNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.CharacterNotes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, notes)
}

func (s *Server) createCharacterNote(w http.ResponseWriter, r *http.Request) {
	var note domain.CharacterNote
	if err := decode(r, &note); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.notes.CreateCharacterNote(r.Context(), note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, created)
}

func (s *Server) updateCharacterNote(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var note domain.CharacterNote
	if err := decode(r, &note); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.notes.UpdateCharacterNote(r.Context(), id, note); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) deleteCharacterNote(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.notes.DeleteCharacterNote(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) importCharacterNotes(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.notes.ImportCharacterNotesFile(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, res)
}

func (s *Server) exportCharacterNotes(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	path, err := s.notes.ExportCharacterNotes(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, pathRequest{Path: path})
}

type noteRequest struct {
	Content string `json:"content"`
}

func (s *Server) playerNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.PlayerNotes(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, notes)
}

func (s *Server) createPlayerNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	note, err := s.notes.CreatePlayerNote(r.Context(), chi.URLParam(r, "userID"), req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, note)
}

func (s *Server) updatePlayerNote(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req noteRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.notes.UpdatePlayerNote(r.Context(), id, req.Content); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) deletePlayerNote(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.notes.DeletePlayerNote(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

// Chats

func (s *Server) upsertChat(w http.ResponseWriter, r *http.Request) {
	thread, err := s.chats.UpsertPlayerChat(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, thread)
}

func (s *Server) chatMessages(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msgs, err := s.chats.Messages(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, msgs)
}

func (s *Server) addChatMessage(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var msg domain.ChatMessage
	if err := decode(r, &msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg.ChatID = id
	saved, err := s.chats.AddMessage(r.Context(), msg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, saved)
}

// Database files

func (s *Server) importDatabase(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.imports.ImportDatabase(r.Context(), req.Path); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) exportDatabase(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.imports.ExportDatabase(r.Context(), s.tracker.Options().PathToDB, req.Path); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccess(w, req)
}
