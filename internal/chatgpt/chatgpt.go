package chatgpt

import (
	"context"
	"errors"
	"time"

	"chatrelay/pkg/config"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

var ErrNoChoices = errors.New("no answer from OpenAI")

type Service struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewService(cfg *config.Config) *Service {
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return &Service{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.OpenAIModel,
		timeout: cfg.ProviderTimeout,
	}
}

// Complete sends message as the only turn of a fresh conversation and returns
// the content of the first choice.
func (s *Service) Complete(ctx context.Context, message string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: message,
			},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		logrus.WithField("model", s.model).Errorf("OpenAI request failed: %v", err)
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	logrus.WithFields(logrus.Fields{
		"model":             resp.Model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("OpenAI completion received")

	return resp.Choices[0].Message.Content, nil
}
