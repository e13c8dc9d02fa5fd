package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/rowstore"
)

type NoteRepository struct {
	handle *Handle
	logger zerolog.Logger
}

func NewNoteRepository(handle *Handle, logger zerolog.Logger) *NoteRepository {
	return &NoteRepository{
		handle: handle,
		logger: logger,
	}
}

func (r *NoteRepository) CharacterNotes(ctx context.Context) ([]domain.CharacterNote, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, TableCharacterNotes, rowstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.CharacterNote](rows)
}

func (r *NoteRepository) CreateCharacterNote(ctx context.Context, note domain.CharacterNote) (*domain.CharacterNote, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	note.ID = 0
	row, err := rowstore.ToRow(note)
	if err != nil {
		return nil, err
	}
	saved, err := store.InsertOne(ctx, TableCharacterNotes, row)
	if err != nil {
		return nil, fmt.Errorf("failed to create character note: %w", err)
	}
	note.ID = saved.ID()
	return &note, nil
}

func (r *NoteRepository) UpdateCharacterNote(ctx context.Context, id int64, note domain.CharacterNote) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	note.ID = 0
	row, err := rowstore.ToRow(note)
	if err != nil {
		return err
	}
	return store.UpdateOne(ctx, TableCharacterNotes, id, row)
}

func (r *NoteRepository) DeleteCharacterNote(ctx context.Context, id int64) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	return store.DeleteRow(ctx, TableCharacterNotes, rowstore.ID(id))
}

func (r *NoteRepository) PlayerNotes(ctx context.Context, userID string) ([]domain.PlayerNote, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRowsWhere(ctx, TablePlayerNotes, rowstore.Fields{"userId": userID}, rowstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.PlayerNote](rows)
}

func (r *NoteRepository) CreatePlayerNote(ctx context.Context, userID, content string) (*domain.PlayerNote, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	saved, err := store.InsertOne(ctx, TablePlayerNotes, rowstore.Row{"userId": userID, "content": content})
	if err != nil {
		return nil, fmt.Errorf("failed to create player note: %w", err)
	}
	return &domain.PlayerNote{ID: saved.ID(), UserID: userID, Content: content}, nil
}

func (r *NoteRepository) UpdatePlayerNote(ctx context.Context, id int64, content string) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	return store.UpdateOne(ctx, TablePlayerNotes, id, rowstore.Row{"content": content})
}

func (r *NoteRepository) DeletePlayerNote(ctx context.Context, id int64) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	return store.DeleteRow(ctx, TablePlayerNotes, rowstore.ID(id))
}
