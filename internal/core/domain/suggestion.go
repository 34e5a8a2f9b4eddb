package domain

import (
	"strings"
	"time"
)

type SuggestedTag struct {
	TagName    TagName
	Confidence ConfidenceScore
	Reasoning  string
}

// AiSuggestion is the structured output of a classification oracle.
type AiSuggestion struct {
	tags             []SuggestedTag
	suggestedQueueID string
	confidence       ConfidenceScore
	summary          string
	generatedAt      time.Time
}

func NewAiSuggestion(tags []SuggestedTag, suggestedQueueID string, confidence ConfidenceScore, summary string, generatedAt time.Time) (*AiSuggestion, error) {
	if len(tags) == 0 {
		return nil, invalidInput("ai suggestion", "at least one suggested tag is required")
	}
	out := make([]SuggestedTag, len(tags))
	copy(out, tags)
	return &AiSuggestion{
		tags:             out,
		suggestedQueueID: strings.TrimSpace(suggestedQueueID),
		confidence:       confidence,
		summary:          strings.TrimSpace(summary),
		generatedAt:      generatedAt.UTC(),
	}, nil
}

func (s *AiSuggestion) Tags() []SuggestedTag {
	out := make([]SuggestedTag, len(s.tags))
	copy(out, s.tags)
	return out
}

func (s *AiSuggestion) SuggestedQueueID() string { return s.suggestedQueueID }

func (s *AiSuggestion) Confidence() ConfidenceScore { return s.confidence }

func (s *AiSuggestion) Summary() string { return s.summary }

func (s *AiSuggestion) GeneratedAt() time.Time { return s.generatedAt }

// Preview renders the suggestion as AiSuggested tags without touching a document.
func (s *AiSuggestion) Preview() []Tag {
	out := make([]Tag, 0, len(s.tags))
	for _, tag := range s.tags {
		out = append(out, NewAiSuggestedTag(tag.TagName, tag.Confidence))
	}
	return out
}

type SuggestedTagSnapshot struct {
	TagName    string  `json:"tag_name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

type AiSuggestionSnapshot struct {
	Tags             []SuggestedTagSnapshot `json:"tags"`
	SuggestedQueueID string                 `json:"suggested_queue_id,omitempty"`
	Confidence       float64                `json:"confidence"`
	Summary          string                 `json:"summary,omitempty"`
	GeneratedAt      time.Time              `json:"generated_at"`
}

func (s *AiSuggestion) Snapshot() AiSuggestionSnapshot {
	tags := make([]SuggestedTagSnapshot, 0, len(s.tags))
	for _, tag := range s.tags {
		tags = append(tags, SuggestedTagSnapshot{
			TagName:    tag.TagName.String(),
			Confidence: tag.Confidence.Value(),
			Reasoning:  tag.Reasoning,
		})
	}
	return AiSuggestionSnapshot{
		Tags:             tags,
		SuggestedQueueID: s.suggestedQueueID,
		Confidence:       s.confidence.Value(),
		Summary:          s.summary,
		GeneratedAt:      s.generatedAt,
	}
}

func RestoreAiSuggestion(s AiSuggestionSnapshot) (*AiSuggestion, error) {
	tags := make([]SuggestedTag, 0, len(s.Tags))
	for _, raw := range s.Tags {
		name, err := NewTagName(raw.TagName)
		if err != nil {
			return nil, err
		}
		score, err := NewConfidenceScore(raw.Confidence)
		if err != nil {
			return nil, err
		}
		tags = append(tags, SuggestedTag{TagName: name, Confidence: score, Reasoning: raw.Reasoning})
	}
	confidence, err := NewConfidenceScore(s.Confidence)
	if err != nil {
		return nil, err
	}
	return NewAiSuggestion(tags, s.SuggestedQueueID, confidence, s.Summary, s.GeneratedAt)
}
