package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/llm"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// Suggester asks a local Ollama model for tags and a queue.
type Suggester struct {
	client *Client
}

func NewSuggester(client *Client) *Suggester {
	return &Suggester{client: client}
}

func (s *Suggester) Suggest(ctx context.Context, input ports.SuggestionInput) (*domain.AiSuggestion, error) {
	raw, err := s.client.generateJSON(ctx, llm.BuildPrompt(input))
	if err != nil {
		return nil, resilience.Temporary("ollama suggest", err, resilience.ClassifyHTTP)
	}
	suggestion, err := llm.ParseSuggestion(raw, input, timeNow())
	if err != nil {
		return nil, fmt.Errorf("ollama suggest: %w", err)
	}
	return suggestion, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0,
		},
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
