package domain

import (
	"errors"
	"testing"
)

func TestRuleConditionConstruction(t *testing.T) {
	if _, err := NewFileNameRegexCondition("invoice(["); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid regex to be rejected, got %v", err)
	}
	if _, err := NewMimeTypeCondition(" "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected blank mime to be rejected, got %v", err)
	}
	if _, err := NewFileSizeCondition(-1, 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected negative min to be rejected, got %v", err)
	}
	if _, err := NewFileSizeCondition(10, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected max < min to be rejected, got %v", err)
	}

	cond, err := NewFileSizeCondition(0, 2_000_000)
	if err != nil {
		t.Fatalf("NewFileSizeCondition() error = %v", err)
	}
	if cond.String() != "FileSize: 0-2000000" {
		t.Fatalf("unexpected condition string %q", cond.String())
	}
}

func TestNewRuleConditionFromWireForm(t *testing.T) {
	cond, err := NewRuleCondition("filesize", "100-200")
	if err != nil {
		t.Fatalf("NewRuleCondition() error = %v", err)
	}
	if cond.Type() != ConditionFileSize || cond.Pattern() != "100-200" {
		t.Fatalf("unexpected condition %s", cond)
	}
	for _, pattern := range []string{"100", "a-b", "1-2-3", "100-50"} {
		if _, err := NewRuleCondition("FileSize", pattern); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewRuleCondition(FileSize, %q) error = %v, want ErrInvalidInput", pattern, err)
		}
	}
	if _, err := NewRuleCondition("Checksum", "abc"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected unknown condition type to be rejected, got %v", err)
	}
}

func TestParseRuleDefinitionDefaults(t *testing.T) {
	def, err := ParseRuleDefinition("Invoices", "", 0, []ConditionSnapshot{{Type: "FileNameRegex", Pattern: "invoice.*"}}, []string{"Invoice"}, "")
	if err != nil {
		t.Fatalf("ParseRuleDefinition() error = %v", err)
	}
	if def.Priority.Value() != DefaultRulePriority {
		t.Fatalf("expected default priority, got %d", def.Priority.Value())
	}
	if _, err := ParseRuleDefinition("Invoices", "", 1001, nil, nil, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected out-of-range priority to be rejected, got %v", err)
	}
}

func TestDefineRuleValidation(t *testing.T) {
	cond, _ := NewMimeTypeCondition("application/pdf")
	base := RuleDefinition{
		Name:       "PDFs",
		Priority:   DefaultPriority(),
		Conditions: []RuleCondition{cond},
		ApplyTags:  []TagName{MustTagName("Pdf")},
	}

	noConditions := base
	noConditions.Conditions = nil
	if _, err := DefineRule("rule-1", "tenant-a", noConditions); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected missing conditions to be rejected, got %v", err)
	}
	noTags := base
	noTags.ApplyTags = nil
	if _, err := DefineRule("rule-1", "tenant-a", noTags); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected missing tags to be rejected, got %v", err)
	}

	rule, err := DefineRule("rule-1", "tenant-a", base)
	if err != nil {
		t.Fatalf("DefineRule() error = %v", err)
	}
	if !rule.IsActive() {
		t.Fatalf("new rules must be active")
	}
	rule.Deactivate()
	rule.Deactivate()
	events := rule.PullEvents()
	if len(events) != 2 || events[1].Type != EventRuleDeactivated {
		t.Fatalf("expected created and one deactivated event, got %+v", events)
	}
}

func TestRestoreRuleKeepsMalformedPattern(t *testing.T) {
	rule, err := RestoreRule(RuleSnapshot{
		ID:         "rule-1",
		TenantID:   "tenant-a",
		Name:       "legacy",
		Priority:   10,
		IsActive:   true,
		Conditions: []ConditionSnapshot{{Type: "FileSize", Pattern: "garbage"}},
		ApplyTags:  []string{"Legacy"},
	})
	if err != nil {
		t.Fatalf("RestoreRule() error = %v", err)
	}
	if rule.Conditions()[0].Pattern() != "garbage" {
		t.Fatalf("expected stored pattern to survive restore")
	}
}
