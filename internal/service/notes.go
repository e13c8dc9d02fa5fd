package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/repository"
)

// CharacterNotes groups notes by the character they are about.
type CharacterNotes map[string][]domain.CharacterNote

type ImportResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type NoteService struct {
	repo    *repository.NoteRepository
	emitter domain.Emitter
	logger  zerolog.Logger
}

func NewNoteService(repo *repository.NoteRepository, emitter domain.Emitter, logger zerolog.Logger) *NoteService {
	return &NoteService{
		repo:    repo,
		emitter: emitter,
		logger:  logger,
	}
}

func (s *NoteService) CharacterNotes(ctx context.Context) (CharacterNotes, error) {
	notes, err := s.repo.CharacterNotes(ctx)
	if err != nil {
		return nil, err
	}
	out := CharacterNotes{}
	for _, n := range notes {
		key := strconv.Itoa(n.CharacterID)
		out[key] = append(out[key], n)
	}
	return out, nil
}

// EmitCharacterNotes publishes the current notes.
func (s *NoteService) EmitCharacterNotes(ctx context.Context) error {
	notes, err := s.CharacterNotes(ctx)
	if err != nil {
		return err
	}
	s.emitter.Emit(domain.EventCharacterNotes, notes)
	return nil
}

func (s *NoteService) CreateCharacterNote(ctx context.Context, note domain.CharacterNote) (*domain.CharacterNote, error) {
	return s.repo.CreateCharacterNote(ctx, note)
}

func (s *NoteService) UpdateCharacterNote(ctx context.Context, id int64, note domain.CharacterNote) error {
	return s.repo.UpdateCharacterNote(ctx, id, note)
}

func (s *NoteService) DeleteCharacterNote(ctx context.Context, id int64) error {
	return s.repo.DeleteCharacterNote(ctx, id)
}

// ImportCharacterNotes adds every note of a {characterId: [notes]}
// document as a new note.
func (s *NoteService) ImportCharacterNotes(ctx context.Context, notes CharacterNotes) (ImportResult, error) {
	var res ImportResult
	for key, list := range notes {
		characterID, err := strconv.Atoi(key)
		if err != nil {
			res.Failed += len(list)
			continue
		}
		for _, n := range list {
			n.ID = 0
			n.CharacterID = characterID
			if _, err := s.repo.CreateCharacterNote(ctx, n); err != nil {
				s.logger.Warn().Err(err).Int("character", characterID).Msg("failed to import character note")
				res.Failed++
				continue
			}
			res.Succeeded++
		}
	}
	if err := s.EmitCharacterNotes(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (s *NoteService) ImportCharacterNotesFile(ctx context.Context, path string) (ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to read notes: %w", err)
	}
	var notes CharacterNotes
	if err := json.Unmarshal(data, &notes); err != nil {
		return ImportResult{}, fmt.Errorf("failed to decode notes: %w", err)
	}
	return s.ImportCharacterNotes(ctx, notes)
}

// ExportCharacterNotes writes every note to path, adding a .json
// extension when missing.
func (s *NoteService) ExportCharacterNotes(ctx context.Context, path string) (string, error) {
	notes, err := s.CharacterNotes(ctx)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		path += ".json"
	}
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode notes: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write notes: %w", err)
	}
	return path, nil
}

func (s *NoteService) PlayerNotes(ctx context.Context, userID string) ([]domain.PlayerNote, error) {
	return s.repo.PlayerNotes(ctx, userID)
}

func (s *NoteService) CreatePlayerNote(ctx context.Context, userID, content string) (*domain.PlayerNote, error) {
	return s.repo.CreatePlayerNote(ctx, userID, content)
}

func (s *NoteService) UpdatePlayerNote(ctx context.Context, id int64, content string) error {
	return s.repo.UpdatePlayerNote(ctx, id, content)
}

func (s *NoteService) DeletePlayerNote(ctx context.Context, id int64) error {
	return s.repo.DeletePlayerNote(ctx, id)
}
