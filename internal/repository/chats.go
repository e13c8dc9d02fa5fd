package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/rowstore"
)

type ChatRepository struct {
	handle *Handle
	logger zerolog.Logger
}

func NewChatRepository(handle *Handle, logger zerolog.Logger) *ChatRepository {
	return &ChatRepository{
		handle: handle,
		logger: logger,
	}
}

// UpsertChat returns the chat with an opponent, creating it on first use.
func (r *ChatRepository) UpsertChat(ctx context.Context, opponentUserID string) (*domain.Chat, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	saved, err := store.Upsert(ctx, TableChats, rowstore.Row{"opponentUserId": opponentUserID}, "opponentUserId")
	if err != nil {
		return nil, fmt.Errorf("failed to upsert chat with %s: %w", opponentUserID, err)
	}
	return &domain.Chat{ID: saved.ID(), OpponentUserID: opponentUserID}, nil
}

func (r *ChatRepository) AddMessage(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	msg.ID = 0
	row, err := rowstore.ToRow(msg)
	if err != nil {
		return nil, err
	}
	saved, err := store.InsertOne(ctx, TableChatMessages, row)
	if err != nil {
		return nil, fmt.Errorf("failed to add chat message: %w", err)
	}
	msg.ID = saved.ID()
	return &msg, nil
}

func (r *ChatRepository) Messages(ctx context.Context, chatID int64) ([]domain.ChatMessage, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRowsWhere(ctx, TableChatMessages, rowstore.Fields{"chatId": chatID}, rowstore.QueryOptions{
		Sort: &rowstore.Sort{By: "sentAt", Direction: rowstore.Asc},
	})
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.ChatMessage](rows)
}
