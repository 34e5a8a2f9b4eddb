package service

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	defaultRegexTimeout     = time.Second
	maxMatchedConditionSize = 500
)

// Subject is the evaluable view of a document. Dry runs build one directly
// from request fields.
type Subject struct {
	FileName  string
	MimeType  string
	SizeBytes int64
	Text      string
}

func SubjectOf(doc *domain.Document, text string) Subject {
	return Subject{
		FileName:  doc.FileName().String(),
		MimeType:  doc.MimeType().String(),
		SizeBytes: doc.FileSize().Bytes(),
		Text:      text,
	}
}

// RuleMatch is a rule that matched together with the conditions it matched on.
type RuleMatch struct {
	Rule       *domain.ClassificationRule
	Conditions []string
}

type DryRunResult struct {
	RuleID            string   `json:"rule_id"`
	RuleName          string   `json:"rule_name"`
	Priority          int      `json:"priority"`
	IsActive          bool     `json:"is_active"`
	Matched           bool     `json:"matched"`
	MatchedConditions []string `json:"matched_conditions"`
}

// RuleEvaluator matches documents against classification rules. It is safe
// for concurrent use.
type RuleEvaluator struct {
	regexTimeout time.Duration
	logger       *slog.Logger
	compiled     sync.Map
	match        func(re *regexp.Regexp, s string) bool
}

func NewRuleEvaluator(logger *slog.Logger, regexTimeout time.Duration) *RuleEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if regexTimeout <= 0 {
		regexTimeout = defaultRegexTimeout
	}
	return &RuleEvaluator{
		regexTimeout: regexTimeout,
		logger:       logger.With("component", "rule_evaluator"),
		match:        (*regexp.Regexp).MatchString,
	}
}

// EvaluateRules returns every active rule whose conditions all match, in
// ascending priority order. Ties keep their input order.
func (e *RuleEvaluator) EvaluateRules(doc *domain.Document, rules []*domain.ClassificationRule, text string) []RuleMatch {
	subject := SubjectOf(doc, text)
	matches := make([]RuleMatch, 0)
	for _, rule := range sortByPriority(rules, true) {
		matched, conditions := e.evaluateRule(subject, rule)
		if matched {
			matches = append(matches, RuleMatch{Rule: rule, Conditions: conditions})
		}
	}
	return matches
}

// DryRun evaluates every given rule, active or not, and reports which
// conditions matched. Nothing is mutated.
func (e *RuleEvaluator) DryRun(subject Subject, rules []*domain.ClassificationRule) []DryRunResult {
	results := make([]DryRunResult, 0, len(rules))
	for _, rule := range sortByPriority(rules, false) {
		matched, conditions := e.evaluateRule(subject, rule)
		results = append(results, DryRunResult{
			RuleID:            rule.ID(),
			RuleName:          rule.Name(),
			Priority:          rule.Priority().Value(),
			IsActive:          rule.IsActive(),
			Matched:           matched,
			MatchedConditions: conditions,
		})
	}
	return results
}

// BuildClassification folds matches into automatic tags and one history
// entry per rule and tag. Tags are deduplicated case-insensitively, first
// rule wins.
func (e *RuleEvaluator) BuildClassification(matches []RuleMatch, matchedAt time.Time) ([]domain.Tag, []domain.ClassificationHistoryEntry, error) {
	var (
		tags    []domain.Tag
		history []domain.ClassificationHistoryEntry
	)
	for _, match := range matches {
		summary := summarizeConditions(match.Rule, match.Conditions)
		for _, name := range match.Rule.ApplyTags() {
			entry, err := domain.NewClassificationHistoryEntry(match.Rule.ID(), name, summary, domain.PerfectConfidence(), matchedAt)
			if err != nil {
				return nil, nil, fmt.Errorf("build history entry for rule %s: %w", match.Rule.ID(), err)
			}
			history = append(history, entry)
			if containsTag(tags, name) {
				continue
			}
			tags = append(tags, domain.NewAutomaticTag(name, domain.PerfectConfidence()))
		}
	}
	return tags, history, nil
}

func (e *RuleEvaluator) evaluateRule(subject Subject, rule *domain.ClassificationRule) (bool, []string) {
	conditions := rule.Conditions()
	matched := make([]string, 0, len(conditions))
	all := len(conditions) > 0
	for _, condition := range conditions {
		if e.evaluateCondition(subject, condition) {
			matched = append(matched, condition.String())
			continue
		}
		all = false
	}
	return all, matched
}

func (e *RuleEvaluator) evaluateCondition(subject Subject, condition domain.RuleCondition) bool {
	switch condition.Type() {
	case domain.ConditionFileNameRegex:
		return e.matchFileName(subject.FileName, condition.Pattern())
	case domain.ConditionMimeType:
		return strings.EqualFold(subject.MimeType, condition.Pattern())
	case domain.ConditionFileSize:
		minBytes, maxBytes, ok := domain.ParseSizeRange(condition.Pattern())
		if !ok {
			return false
		}
		return subject.SizeBytes >= minBytes && subject.SizeBytes <= maxBytes
	case domain.ConditionTextContent:
		if subject.Text == "" {
			return false
		}
		return strings.Contains(strings.ToLower(subject.Text), strings.ToLower(condition.Pattern()))
	default:
		return false
	}
}

// matchFileName never fails: compile errors, panics and timeouts all count
// as a non-match.
func (e *RuleEvaluator) matchFileName(fileName, pattern string) bool {
	re, err := e.regex(pattern)
	if err != nil {
		e.logger.Warn("rule_regex_invalid", "pattern", pattern, "error", err)
		return false
	}

	result := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("rule_regex_panic", "pattern", pattern, "panic", fmt.Sprint(r))
				result <- false
			}
		}()
		result <- e.match(re, fileName)
	}()

	timer := time.NewTimer(e.regexTimeout)
	defer timer.Stop()
	select {
	case ok := <-result:
		return ok
	case <-timer.C:
		e.logger.Warn("rule_regex_timeout", "pattern", pattern, "timeout", e.regexTimeout.String())
		return false
	}
}

func (e *RuleEvaluator) regex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := e.compiled.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	e.compiled.Store(pattern, re)
	return re, nil
}

func sortByPriority(rules []*domain.ClassificationRule, activeOnly bool) []*domain.ClassificationRule {
	out := make([]*domain.ClassificationRule, 0, len(rules))
	for _, rule := range rules {
		if rule == nil || (activeOnly && !rule.IsActive()) {
			continue
		}
		out = append(out, rule)
	}
	slices.SortStableFunc(out, func(a, b *domain.ClassificationRule) int {
		return a.Priority().Value() - b.Priority().Value()
	})
	return out
}

func summarizeConditions(rule *domain.ClassificationRule, matched []string) string {
	summary := strings.Join(matched, " AND ")
	if summary == "" {
		summary = "rule " + rule.Name()
	}
	if runes := []rune(summary); len(runes) > maxMatchedConditionSize {
		summary = string(runes[:maxMatchedConditionSize])
	}
	return summary
}

func containsTag(tags []domain.Tag, name domain.TagName) bool {
	for _, tag := range tags {
		if tag.Name().EqualFold(name) {
			return true
		}
	}
	return false
}
