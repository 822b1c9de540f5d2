package messagestore

import (
	"context"

	"chatrelay/internal/messagestore/models"

	"github.com/sirupsen/logrus"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) StoreUserMessage(ctx context.Context, userID, message string) (*models.ChatTurn, error) {
	logrus.WithField("user_id", userID).Debug("storing user message")
	return s.repo.InsertTurn(ctx, userID, message, models.RoleUser)
}

func (s *Service) StoreBotReply(ctx context.Context, userID, reply string) (*models.ChatTurn, error) {
	logrus.WithField("user_id", userID).Debug("storing bot reply")
	return s.repo.InsertTurn(ctx, userID, reply, models.RoleBot)
}

func (s *Service) CountUserMessages(ctx context.Context, userID string) (int, error) {
	return s.repo.CountTurns(ctx, userID, models.RoleUser)
}

func (s *Service) GetHistory(ctx context.Context, userID string) ([]models.HistoryItem, error) {
	turns, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	history := make([]models.HistoryItem, len(turns))
	for i, t := range turns {
		history[i] = t.HistoryItem()
	}

	logrus.WithField("user_id", userID).Debugf("loaded %d history items", len(history))
	return history, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
