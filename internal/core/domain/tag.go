package domain

import (
	"strings"
	"time"
)

type TagSource string

const (
	TagSourceAutomatic   TagSource = "automatic"
	TagSourceManual      TagSource = "manual"
	TagSourceAiSuggested TagSource = "ai_suggested"
	TagSourceAiApplied   TagSource = "ai_applied"
)

func ParseTagSource(value string) (TagSource, error) {
	switch source := TagSource(strings.ToLower(strings.TrimSpace(value))); source {
	case TagSourceAutomatic, TagSourceManual, TagSourceAiSuggested, TagSourceAiApplied:
		return source, nil
	default:
		return "", invalidInput("tag source", "unknown tag source %q", value)
	}
}

// Tag is owned by a Document; it is never shared between documents.
type Tag struct {
	name       TagName
	source     TagSource
	confidence *ConfidenceScore
}

func NewAutomaticTag(name TagName, confidence ConfidenceScore) Tag {
	return Tag{name: name, source: TagSourceAutomatic, confidence: &confidence}
}

func NewManualTag(name TagName) Tag {
	return Tag{name: name, source: TagSourceManual}
}

func NewAiSuggestedTag(name TagName, confidence ConfidenceScore) Tag {
	return Tag{name: name, source: TagSourceAiSuggested, confidence: &confidence}
}

func NewAiAppliedTag(name TagName, confidence ConfidenceScore) Tag {
	return Tag{name: name, source: TagSourceAiApplied, confidence: &confidence}
}

func (t Tag) Name() TagName { return t.name }

func (t Tag) Source() TagSource { return t.source }

func (t Tag) Confidence() (ConfidenceScore, bool) {
	if t.confidence == nil {
		return ConfidenceScore{}, false
	}
	return *t.confidence, true
}

type TagSnapshot struct {
	Name       string   `json:"name"`
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (t Tag) Snapshot() TagSnapshot {
	s := TagSnapshot{Name: t.name.String(), Source: string(t.source)}
	if t.confidence != nil {
		v := t.confidence.Value()
		s.Confidence = &v
	}
	return s
}

func RestoreTag(s TagSnapshot) (Tag, error) {
	name, err := NewTagName(s.Name)
	if err != nil {
		return Tag{}, err
	}
	source, err := ParseTagSource(s.Source)
	if err != nil {
		return Tag{}, err
	}
	tag := Tag{name: name, source: source}
	if s.Confidence != nil {
		score, err := NewConfidenceScore(*s.Confidence)
		if err != nil {
			return Tag{}, err
		}
		tag.confidence = &score
	}
	return tag, nil
}

// ClassificationHistoryEntry records why a tag was applied. RuleID is empty
// for entries produced by the AI oracle.
type ClassificationHistoryEntry struct {
	ruleID           string
	tagName          TagName
	matchedCondition string
	confidence       ConfidenceScore
	matchedAt        time.Time
}

func NewClassificationHistoryEntry(ruleID string, tagName TagName, matchedCondition string, confidence ConfidenceScore, matchedAt time.Time) (ClassificationHistoryEntry, error) {
	if strings.TrimSpace(matchedCondition) == "" {
		return ClassificationHistoryEntry{}, invalidInput("classification history", "matched condition cannot be empty")
	}
	if tagName.String() == "" {
		return ClassificationHistoryEntry{}, invalidInput("classification history", "tag name is required")
	}
	return ClassificationHistoryEntry{
		ruleID:           ruleID,
		tagName:          tagName,
		matchedCondition: matchedCondition,
		confidence:       confidence,
		matchedAt:        matchedAt.UTC(),
	}, nil
}

func (h ClassificationHistoryEntry) RuleID() string { return h.ruleID }

func (h ClassificationHistoryEntry) TagName() TagName { return h.tagName }

func (h ClassificationHistoryEntry) MatchedCondition() string { return h.matchedCondition }

func (h ClassificationHistoryEntry) Confidence() ConfidenceScore { return h.confidence }

func (h ClassificationHistoryEntry) MatchedAt() time.Time { return h.matchedAt }

type HistoryEntrySnapshot struct {
	RuleID           string    `json:"rule_id,omitempty"`
	TagName          string    `json:"tag_name"`
	MatchedCondition string    `json:"matched_condition"`
	Confidence       float64   `json:"confidence"`
	MatchedAt        time.Time `json:"matched_at"`
}

func (h ClassificationHistoryEntry) Snapshot() HistoryEntrySnapshot {
	return HistoryEntrySnapshot{
		RuleID:           h.ruleID,
		TagName:          h.tagName.String(),
		MatchedCondition: h.matchedCondition,
		Confidence:       h.confidence.Value(),
		MatchedAt:        h.matchedAt,
	}
}

func RestoreClassificationHistoryEntry(s HistoryEntrySnapshot) (ClassificationHistoryEntry, error) {
	name, err := NewTagName(s.TagName)
	if err != nil {
		return ClassificationHistoryEntry{}, err
	}
	score, err := NewConfidenceScore(s.Confidence)
	if err != nil {
		return ClassificationHistoryEntry{}, err
	}
	return NewClassificationHistoryEntry(s.RuleID, name, s.MatchedCondition, score, s.MatchedAt)
}
