// Package llm holds the prompt and response contract shared by the
// classification oracles.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const maxSnippet = 4000

// BuildPrompt asks for a strict JSON answer naming tags and, optionally, one
// of the offered queues.
func BuildPrompt(input ports.SuggestionInput) string {
	snippet := input.Text
	if runes := []rune(snippet); len(runes) > maxSnippet {
		snippet = string(runes[:maxSnippet])
	}

	var queues strings.Builder
	for _, q := range input.Queues {
		fmt.Fprintf(&queues, "- id=%s name=%q", q.ID, q.Name)
		if q.Description != "" {
			fmt.Fprintf(&queues, " description=%q", q.Description)
		}
		queues.WriteString("\n")
	}
	if queues.Len() == 0 {
		queues.WriteString("(none)\n")
	}

	return `You are a document classifier for a document routing system.
Return a strict JSON object with keys:
tags (array of {name (string), confidence (number from 0 to 1), reasoning (string)}),
queue_id (string, one of the queue ids below or empty),
confidence (number from 0 to 1), summary (string).
No markdown, no extra keys.

File name: ` + input.FileName + `
MIME type: ` + input.MimeType + `

Queues:
` + queues.String() + `
Document text:
` + snippet
}

type response struct {
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	} `json:"tags"`
	QueueID    string  `json:"queue_id"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// ParseSuggestion reads the model answer. Tags with unusable names are
// skipped, confidences are clamped into [0,1] and a queue id not offered in
// the input is dropped.
func ParseSuggestion(raw string, input ports.SuggestionInput, now time.Time) (*domain.AiSuggestion, error) {
	var resp response
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parse suggestion json: %w", err)
	}

	tags := make([]domain.SuggestedTag, 0, len(resp.Tags))
	seen := make(map[string]struct{}, len(resp.Tags))
	for _, t := range resp.Tags {
		name, err := domain.NewTagName(strings.TrimSpace(t.Name))
		if err != nil {
			continue
		}
		key := strings.ToLower(name.String())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, domain.SuggestedTag{
			TagName:    name,
			Confidence: clamp(t.Confidence),
			Reasoning:  strings.TrimSpace(t.Reasoning),
		})
	}
	if len(tags) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse suggestion", errors.New("model returned no usable tags"))
	}

	queueID := strings.TrimSpace(resp.QueueID)
	if queueID != "" && !offered(input.Queues, queueID) {
		queueID = ""
	}
	return domain.NewAiSuggestion(tags, queueID, clamp(resp.Confidence), resp.Summary, now)
}

func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func clamp(v float64) domain.ConfidenceScore {
	v = min(max(v, 0), 1)
	score, err := domain.NewConfidenceScore(v)
	if err != nil {
		// NaN
		score, _ = domain.NewConfidenceScore(0)
	}
	return score
}

func offered(queues []ports.QueueOption, id string) bool {
	for _, q := range queues {
		if q.ID == id {
			return true
		}
	}
	return false
}
