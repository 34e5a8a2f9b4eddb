package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	MinRulePriority     = 1
	MaxRulePriority     = 1000
	DefaultRulePriority = 500
	maxRuleNameLength   = 200
)

// RulePriority orders rule evaluation; lower values are evaluated first.
type RulePriority struct {
	value int
}

func NewRulePriority(value int) (RulePriority, error) {
	if value < MinRulePriority || value > MaxRulePriority {
		return RulePriority{}, invalidInput("rule priority", "priority must be between %d and %d, got %d", MinRulePriority, MaxRulePriority, value)
	}
	return RulePriority{value: value}, nil
}

func DefaultPriority() RulePriority { return RulePriority{value: DefaultRulePriority} }

func (p RulePriority) Value() int { return p.value }

type ConditionType string

const (
	ConditionFileNameRegex ConditionType = "FileNameRegex"
	ConditionMimeType      ConditionType = "MimeType"
	ConditionFileSize      ConditionType = "FileSize"
	ConditionTextContent   ConditionType = "TextContent"
)

func ParseConditionType(value string) (ConditionType, error) {
	trimmed := strings.TrimSpace(value)
	for _, t := range []ConditionType{ConditionFileNameRegex, ConditionMimeType, ConditionFileSize, ConditionTextContent} {
		if strings.EqualFold(string(t), trimmed) {
			return t, nil
		}
	}
	return "", invalidInput("condition type", "unknown condition type %q", value)
}

// RuleCondition is one predicate of a rule. Pattern meaning depends on Type:
// a regex, an exact MIME string, a "min-max" byte range or a substring.
type RuleCondition struct {
	conditionType ConditionType
	pattern       string
}

func NewFileNameRegexCondition(pattern string) (RuleCondition, error) {
	if strings.TrimSpace(pattern) == "" {
		return RuleCondition{}, invalidInput("file name regex condition", "regex pattern cannot be empty")
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return RuleCondition{}, invalidInput("file name regex condition", "invalid regex %q: %v", pattern, err)
	}
	return RuleCondition{conditionType: ConditionFileNameRegex, pattern: pattern}, nil
}

func NewMimeTypeCondition(mimeType string) (RuleCondition, error) {
	if strings.TrimSpace(mimeType) == "" {
		return RuleCondition{}, invalidInput("mime type condition", "mime type cannot be empty")
	}
	return RuleCondition{conditionType: ConditionMimeType, pattern: mimeType}, nil
}

func NewFileSizeCondition(minBytes, maxBytes int64) (RuleCondition, error) {
	if minBytes < 0 {
		return RuleCondition{}, invalidInput("file size condition", "minimum size cannot be negative")
	}
	if maxBytes < minBytes {
		return RuleCondition{}, invalidInput("file size condition", "maximum size cannot be less than minimum")
	}
	return RuleCondition{conditionType: ConditionFileSize, pattern: fmt.Sprintf("%d-%d", minBytes, maxBytes)}, nil
}

func NewTextContentCondition(snippet string) (RuleCondition, error) {
	if strings.TrimSpace(snippet) == "" {
		return RuleCondition{}, invalidInput("text content condition", "text snippet cannot be empty")
	}
	return RuleCondition{conditionType: ConditionTextContent, pattern: snippet}, nil
}

// NewRuleCondition builds a condition from its wire form. FileSize patterns
// must already be in "min-max" form.
func NewRuleCondition(conditionType, pattern string) (RuleCondition, error) {
	t, err := ParseConditionType(conditionType)
	if err != nil {
		return RuleCondition{}, err
	}
	switch t {
	case ConditionFileNameRegex:
		return NewFileNameRegexCondition(pattern)
	case ConditionMimeType:
		return NewMimeTypeCondition(pattern)
	case ConditionTextContent:
		return NewTextContentCondition(pattern)
	default:
		minBytes, maxBytes, ok := ParseSizeRange(pattern)
		if !ok {
			return RuleCondition{}, invalidInput("file size condition", "pattern %q must be \"min-max\"", pattern)
		}
		return NewFileSizeCondition(minBytes, maxBytes)
	}
}

// restoreRuleCondition trusts stored patterns; the evaluator treats
// anything malformed as a non-match.
func restoreRuleCondition(conditionType, pattern string) (RuleCondition, error) {
	t, err := ParseConditionType(conditionType)
	if err != nil {
		return RuleCondition{}, err
	}
	return RuleCondition{conditionType: t, pattern: pattern}, nil
}

// ParseSizeRange splits a "min-max" pattern into exactly two integers.
func ParseSizeRange(pattern string) (int64, int64, bool) {
	parts := strings.Split(pattern, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	minBytes, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	maxBytes, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return minBytes, maxBytes, true
}

func (c RuleCondition) Type() ConditionType { return c.conditionType }

func (c RuleCondition) Pattern() string { return c.pattern }

// String renders the condition as "Type: Pattern".
func (c RuleCondition) String() string {
	return fmt.Sprintf("%s: %s", c.conditionType, c.pattern)
}

type ClassificationRule struct {
	eventRecorder

	id            string
	tenantID      string
	name          string
	description   string
	priority      RulePriority
	isActive      bool
	conditions    []RuleCondition
	applyTags     []TagName
	targetQueueID string
	createdAt     time.Time
	updatedAt     time.Time
}

type RuleDefinition struct {
	Name          string
	Description   string
	Priority      RulePriority
	Conditions    []RuleCondition
	ApplyTags     []TagName
	TargetQueueID string
}

func (def RuleDefinition) validate(op string) error {
	if strings.TrimSpace(def.Name) == "" {
		return invalidInput(op, "rule name is required")
	}
	if len(def.Name) > maxRuleNameLength {
		return invalidInput(op, "rule name cannot exceed %d characters", maxRuleNameLength)
	}
	if def.Priority.Value() == 0 {
		return invalidInput(op, "rule priority is required")
	}
	if len(def.Conditions) == 0 {
		return invalidInput(op, "at least one condition must be specified")
	}
	if len(def.ApplyTags) == 0 {
		return invalidInput(op, "at least one tag must be specified")
	}
	return nil
}

// DefineRule creates an active classification rule.
func DefineRule(id, tenantID string, def RuleDefinition) (*ClassificationRule, error) {
	const op = "define rule"
	if strings.TrimSpace(id) == "" || strings.TrimSpace(tenantID) == "" {
		return nil, invalidInput(op, "rule id and tenant id are required")
	}
	if err := def.validate(op); err != nil {
		return nil, err
	}
	now := timeNow()
	rule := &ClassificationRule{
		id:            id,
		tenantID:      tenantID,
		name:          strings.TrimSpace(def.Name),
		description:   strings.TrimSpace(def.Description),
		priority:      def.Priority,
		isActive:      true,
		conditions:    append([]RuleCondition(nil), def.Conditions...),
		applyTags:     append([]TagName(nil), def.ApplyTags...),
		targetQueueID: strings.TrimSpace(def.TargetQueueID),
		createdAt:     now,
		updatedAt:     now,
	}
	rule.record(EventRuleCreated, tenantID, id, now, "name", rule.name)
	return rule, nil
}

// Update replaces the rule definition as a whole.
func (r *ClassificationRule) Update(def RuleDefinition) error {
	if err := def.validate("update rule"); err != nil {
		return err
	}
	r.name = strings.TrimSpace(def.Name)
	r.description = strings.TrimSpace(def.Description)
	r.priority = def.Priority
	r.conditions = append([]RuleCondition(nil), def.Conditions...)
	r.applyTags = append([]TagName(nil), def.ApplyTags...)
	r.targetQueueID = strings.TrimSpace(def.TargetQueueID)
	r.updatedAt = timeNow()
	r.record(EventRuleUpdated, r.tenantID, r.id, r.updatedAt, "name", r.name)
	return nil
}

func (r *ClassificationRule) Activate() {
	if r.isActive {
		return
	}
	r.isActive = true
	r.updatedAt = timeNow()
	r.record(EventRuleActivated, r.tenantID, r.id, r.updatedAt, "name", r.name)
}

func (r *ClassificationRule) Deactivate() {
	if !r.isActive {
		return
	}
	r.isActive = false
	r.updatedAt = timeNow()
	r.record(EventRuleDeactivated, r.tenantID, r.id, r.updatedAt, "name", r.name)
}

func (r *ClassificationRule) ID() string { return r.id }
func (r *ClassificationRule) TenantID() string { return r.tenantID }
func (r *ClassificationRule) Name() string { return r.name }
func (r *ClassificationRule) Description() string { return r.description }
func (r *ClassificationRule) Priority() RulePriority { return r.priority }
func (r *ClassificationRule) IsActive() bool { return r.isActive }
func (r *ClassificationRule) TargetQueueID() string { return r.targetQueueID }
func (r *ClassificationRule) CreatedAt() time.Time { return r.createdAt }
func (r *ClassificationRule) UpdatedAt() time.Time { return r.updatedAt }

func (r *ClassificationRule) Conditions() []RuleCondition {
	return append([]RuleCondition(nil), r.conditions...)
}

func (r *ClassificationRule) ApplyTags() []TagName {
	return append([]TagName(nil), r.applyTags...)
}

type ConditionSnapshot struct {
	Type    string `json:"type" yaml:"type"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

type RuleSnapshot struct {
	ID            string              `json:"id"`
	TenantID      string              `json:"tenant_id"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Priority      int                 `json:"priority"`
	IsActive      bool                `json:"is_active"`
	Conditions    []ConditionSnapshot `json:"conditions"`
	ApplyTags     []string            `json:"apply_tags"`
	TargetQueueID string              `json:"target_queue_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (r *ClassificationRule) Snapshot() RuleSnapshot {
	s := RuleSnapshot{
		ID:            r.id,
		TenantID:      r.tenantID,
		Name:          r.name,
		Description:   r.description,
		Priority:      r.priority.Value(),
		IsActive:      r.isActive,
		Conditions:    make([]ConditionSnapshot, 0, len(r.conditions)),
		ApplyTags:     make([]string, 0, len(r.applyTags)),
		TargetQueueID: r.targetQueueID,
		CreatedAt:     r.createdAt,
		UpdatedAt:     r.updatedAt,
	}
	for _, c := range r.conditions {
		s.Conditions = append(s.Conditions, ConditionSnapshot{Type: string(c.conditionType), Pattern: c.pattern})
	}
	for _, tag := range r.applyTags {
		s.ApplyTags = append(s.ApplyTags, tag.String())
	}
	return s
}

// RestoreRule rebuilds a stored rule. An empty condition list is tolerated
// here; such a rule never matches.
func RestoreRule(s RuleSnapshot) (*ClassificationRule, error) {
	priority, err := NewRulePriority(s.Priority)
	if err != nil {
		return nil, err
	}
	rule := &ClassificationRule{
		id:            s.ID,
		tenantID:      s.TenantID,
		name:          s.Name,
		description:   s.Description,
		priority:      priority,
		isActive:      s.IsActive,
		targetQueueID: s.TargetQueueID,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
	}
	for _, raw := range s.Conditions {
		condition, err := restoreRuleCondition(raw.Type, raw.Pattern)
		if err != nil {
			return nil, err
		}
		rule.conditions = append(rule.conditions, condition)
	}
	for _, raw := range s.ApplyTags {
		tag, err := NewTagName(raw)
		if err != nil {
			return nil, err
		}
		rule.applyTags = append(rule.applyTags, tag)
	}
	return rule, nil
}

// ParseRuleDefinition validates wire-level rule fields.
func ParseRuleDefinition(name, description string, priority int, conditions []ConditionSnapshot, tags []string, targetQueueID string) (RuleDefinition, error) {
	def := RuleDefinition{Name: name, Description: description, TargetQueueID: targetQueueID}
	if priority == 0 {
		def.Priority = DefaultPriority()
	} else {
		p, err := NewRulePriority(priority)
		if err != nil {
			return RuleDefinition{}, err
		}
		def.Priority = p
	}
	for _, raw := range conditions {
		condition, err := NewRuleCondition(raw.Type, raw.Pattern)
		if err != nil {
			return RuleDefinition{}, err
		}
		def.Conditions = append(def.Conditions, condition)
	}
	for _, raw := range tags {
		tag, err := NewTagName(raw)
		if err != nil {
			return RuleDefinition{}, err
		}
		def.ApplyTags = append(def.ApplyTags, tag)
	}
	return def, nil
}
