package service

import (
	"context"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/repository"
)

type ChatThread struct {
	Chat     *domain.Chat         `json:"chat"`
	Messages []domain.ChatMessage `json:"messages"`
}

type ChatService struct {
	repo   *repository.ChatRepository
	logger zerolog.Logger
}

func NewChatService(repo *repository.ChatRepository, logger zerolog.Logger) *ChatService {
	return &ChatService{repo: repo, logger: logger}
}

// UpsertPlayerChat opens the chat with an opponent and returns its history.
func (s *ChatService) UpsertPlayerChat(ctx context.Context, opponentUserID string) (*ChatThread, error) {
	chat, err := s.repo.UpsertChat(ctx, opponentUserID)
	if err != nil {
		s.logger.Error().Err(err).Str("opponent", opponentUserID).Msg("failed to create chat")
		return nil, err
	}
	msgs, err := s.repo.Messages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	return &ChatThread{Chat: chat, Messages: msgs}, nil
}

func (s *ChatService) AddMessage(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	created, err := s.repo.AddMessage(ctx, msg)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat", msg.ChatID).Msg("failed to add chat message")
		return nil, err
	}
	return created, nil
}

func (s *ChatService) Messages(ctx context.Context, chatID int64) ([]domain.ChatMessage, error) {
	return s.repo.Messages(ctx, chatID)
}
