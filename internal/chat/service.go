package chat

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/messagestore/models"

	"github.com/sirupsen/logrus"
)

var ErrQuotaExceeded = errors.New("quota exceeded")

const failureReplyFormat = "AI call failed: %v"

type Store interface {
	CountUserMessages(ctx context.Context, userID string) (int, error)
	StoreUserMessage(ctx context.Context, userID, message string) (*models.ChatTurn, error)
	StoreBotReply(ctx context.Context, userID, reply string) (*models.ChatTurn, error)
}

type Provider interface {
	Complete(ctx context.Context, message string) (string, error)
}

type Service struct {
	store    Store
	provider Provider
	quota    int
	locks    *userLocks
}

func NewService(store Store, provider Provider, quota int) *Service {
	return &Service{
		store:    store,
		provider: provider,
		quota:    quota,
		locks:    newUserLocks(),
	}
}

// Send relays one user message. The quota check and the user turn insert run
// under a per-user lock, so concurrent sends from one user cannot overshoot
// the quota within this process. Provider failures become the reply text.
func (s *Service) Send(ctx context.Context, userID, message string) (string, error) {
	log := logrus.WithField("user_id", userID)

	if err := s.admit(ctx, userID, message); err != nil {
		return "", err
	}

	// Once the user turn is stored a client disconnect must not orphan it.
	ctx = context.WithoutCancel(ctx)

	reply, err := s.provider.Complete(ctx, message)
	if err != nil {
		log.Warnf("completion failed, storing failure reply: %v", err)
		reply = FailureReply(err)
	}

	if _, err := s.store.StoreBotReply(ctx, userID, reply); err != nil {
		return "", err
	}

	log.Info("chat turn completed")
	return reply, nil
}

func (s *Service) admit(ctx context.Context, userID, message string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	count, err := s.store.CountUserMessages(ctx, userID)
	if err != nil {
		return err
	}
	if count >= s.quota {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"count":   count,
			"quota":   s.quota,
		}).Info("message quota exceeded")
		return ErrQuotaExceeded
	}

	if _, err := s.store.StoreUserMessage(ctx, userID, message); err != nil {
		return err
	}
	return nil
}

func FailureReply(err error) string {
	return fmt.Sprintf(failureReplyFormat, err)
}
