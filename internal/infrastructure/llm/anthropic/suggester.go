// Package anthropic asks a Claude model for classification suggestions.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/llm"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

const defaultMaxTokens = 1024

var timeNow = func() time.Time { return time.Now().UTC() }

type Suggester struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	executor  *resilience.Executor
}

type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
	Timeout   time.Duration
	Executor  *resilience.Executor
}

func NewSuggester(opts Options) (*Suggester, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "anthropic suggester", errors.New("api key is required"))
	}
	if opts.Model == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "anthropic suggester", errors.New("model is required"))
	}
	// Retries go through the executor, not the SDK.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Suggester{
		client:    anthropic.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: maxTokens,
		executor:  opts.Executor,
	}, nil
}

func (s *Suggester) Suggest(ctx context.Context, input ports.SuggestionInput) (*domain.AiSuggestion, error) {
	prompt := llm.BuildPrompt(input)

	var message *anthropic.Message
	err := s.executor.Execute(ctx, "anthropic.messages", func(ctx context.Context) error {
		resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(s.model),
			MaxTokens: s.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return asStatusError(err)
		}
		message = resp
		return nil
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, resilience.Temporary("anthropic suggest", err, resilience.ClassifyHTTP)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	suggestion, err := llm.ParseSuggestion(text.String(), input, timeNow())
	if err != nil {
		return nil, fmt.Errorf("anthropic suggest: %w", err)
	}
	return suggestion, nil
}

func asStatusError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &resilience.StatusError{
			Operation: "anthropic messages",
			Code:      apiErr.StatusCode,
			Body:      apiErr.Error(),
		}
	}
	return err
}
