// Package seed provisions tenants, queues and rules from a YAML file. Loading
// is idempotent: existing queues and rules are matched by name and left
// alone, existing tenants get their limits and settings refreshed.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type File struct {
	Tenants []Tenant `yaml:"tenants"`
}

type Tenant struct {
	domain.TenantSnapshot `yaml:",inline"`

	Queues []ports.QueueInput `yaml:"queues"`
	Rules  []Rule             `yaml:"rules"`
}

// Rule references its target queue by name within the same tenant.
type Rule struct {
	ports.RuleInput `yaml:",inline"`

	TargetQueue string `yaml:"target_queue"`
	Inactive    bool   `yaml:"inactive"`
}

type Summary struct {
	Tenants int
	Queues  int
	Rules   int
}

func Parse(r io.Reader) (File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	for i, t := range file.Tenants {
		if strings.TrimSpace(t.ID) == "" {
			return File{}, fmt.Errorf("seed tenant #%d: id is required", i+1)
		}
	}
	return file, nil
}

func ParseFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(bytes.NewReader(raw))
}

type Loader struct {
	tenants ports.TenantRepository
	queues  ports.QueueService
	rules   ports.RuleService
	logger  *slog.Logger
}

func NewLoader(tenants ports.TenantRepository, queues ports.QueueService, rules ports.RuleService, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{tenants: tenants, queues: queues, rules: rules, logger: logger.With("component", "seed")}
}

func (l *Loader) Apply(ctx context.Context, file File) (Summary, error) {
	var summary Summary
	for _, t := range file.Tenants {
		created, err := l.applyTenant(ctx, t.TenantSnapshot)
		if err != nil {
			return summary, fmt.Errorf("seed tenant %s: %w", t.ID, err)
		}
		if created {
			summary.Tenants++
		}

		queueIDs, n, err := l.applyQueues(ctx, t.ID, t.Queues)
		if err != nil {
			return summary, fmt.Errorf("seed queues for %s: %w", t.ID, err)
		}
		summary.Queues += n

		n, err = l.applyRules(ctx, t.ID, t.Rules, queueIDs)
		if err != nil {
			return summary, fmt.Errorf("seed rules for %s: %w", t.ID, err)
		}
		summary.Rules += n
	}
	l.logger.Info("seed_applied", "tenants", summary.Tenants, "queues", summary.Queues, "rules", summary.Rules)
	return summary, nil
}

func (l *Loader) applyTenant(ctx context.Context, snap domain.TenantSnapshot) (bool, error) {
	quota := domain.DefaultTenantQuota()
	maxDocs, maxBytes := quota.MaxDocuments(), quota.MaxStorageBytes()
	if snap.MaxDocuments > 0 {
		maxDocs = snap.MaxDocuments
	}
	if snap.MaxStorageBytes > 0 {
		maxBytes = snap.MaxStorageBytes
	}
	defaults := domain.DefaultTenantSettings()
	retention, maxFile := defaults.RetentionDays(), defaults.MaxFileSizeBytes()
	if snap.RetentionDays > 0 {
		retention = snap.RetentionDays
	}
	if snap.MaxFileSizeBytes > 0 {
		maxFile = snap.MaxFileSizeBytes
	}
	settings, err := domain.NewTenantSettings(retention, snap.WebhookSignatureKey, maxFile)
	if err != nil {
		return false, err
	}
	name := snap.Name
	if name == "" {
		name = snap.ID
	}

	tenant, err := l.tenants.GetByID(ctx, snap.ID)
	switch {
	case err == nil:
		if err := tenant.UpdateLimits(maxDocs, maxBytes); err != nil {
			return false, err
		}
		tenant.UpdateSettings(settings)
		return false, l.tenants.Save(ctx, tenant)
	case domain.IsKind(err, domain.ErrTenantNotFound):
		quota, err := domain.NewTenantQuota(maxDocs, maxBytes)
		if err != nil {
			return false, err
		}
		tenant, err := domain.NewTenant(snap.ID, name, quota, settings)
		if err != nil {
			return false, err
		}
		return true, l.tenants.Save(ctx, tenant)
	default:
		return false, err
	}
}

func (l *Loader) applyQueues(ctx context.Context, tenantID string, inputs []ports.QueueInput) (map[string]string, int, error) {
	existing, err := l.queues.List(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	ids := make(map[string]string, len(existing)+len(inputs))
	for _, q := range existing {
		ids[strings.ToLower(q.Name())] = q.ID()
	}

	created := 0
	for _, input := range inputs {
		key := strings.ToLower(strings.TrimSpace(input.Name))
		if _, ok := ids[key]; ok {
			continue
		}
		queue, err := l.queues.Create(ctx, tenantID, input)
		if err != nil {
			return nil, created, fmt.Errorf("queue %q: %w", input.Name, err)
		}
		ids[key] = queue.ID()
		created++
	}
	return ids, created, nil
}

func (l *Loader) applyRules(ctx context.Context, tenantID string, inputs []Rule, queueIDs map[string]string) (int, error) {
	existing, err := l.rules.List(ctx, tenantID, false)
	if err != nil {
		return 0, err
	}
	names := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		names[strings.ToLower(r.Name())] = struct{}{}
	}

	created := 0
	for _, r := range inputs {
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if _, ok := names[key]; ok {
			continue
		}
		input := r.RuleInput
		if r.TargetQueue != "" {
			id, ok := queueIDs[strings.ToLower(strings.TrimSpace(r.TargetQueue))]
			if !ok {
				return created, fmt.Errorf("rule %q: unknown target queue %q", r.Name, r.TargetQueue)
			}
			input.TargetQueueID = id
		}
		rule, err := l.rules.Create(ctx, tenantID, input)
		if err != nil {
			return created, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if r.Inactive {
			if _, err := l.rules.SetActive(ctx, tenantID, rule.ID(), false); err != nil {
				return created, fmt.Errorf("deactivate rule %q: %w", r.Name, err)
			}
		}
		names[key] = struct{}{}
		created++
	}
	return created, nil
}

