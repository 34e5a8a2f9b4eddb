// Package memory keeps aggregates as snapshots in process memory. It backs
// STORE_DRIVER=memory and the use-case tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type outboxRow struct {
	event       domain.Event
	publishedAt *time.Time
}

type Store struct {
	mu         sync.Mutex
	documents  map[string]domain.DocumentSnapshot
	rules      map[string]domain.RuleSnapshot
	queues     map[string]domain.QueueSnapshot
	deliveries map[string]domain.DeliverySnapshot
	tenants    map[string]domain.TenantSnapshot
	outbox     []outboxRow
	locks      map[string]bool
}

func NewStore() *Store {
	return &Store{
		documents:  make(map[string]domain.DocumentSnapshot),
		rules:      make(map[string]domain.RuleSnapshot),
		queues:     make(map[string]domain.QueueSnapshot),
		deliveries: make(map[string]domain.DeliverySnapshot),
		tenants:    make(map[string]domain.TenantSnapshot),
		locks:      make(map[string]bool),
	}
}

func (s *Store) Documents() *DocumentRepository { return &DocumentRepository{store: s} }
func (s *Store) Rules() *RuleRepository { return &RuleRepository{store: s} }
func (s *Store) Queues() *QueueRepository { return &QueueRepository{store: s} }
func (s *Store) Deliveries() *DeliveryRepository { return &DeliveryRepository{store: s} }
func (s *Store) Tenants() *TenantRepository { return &TenantRepository{store: s} }
func (s *Store) Outbox() *OutboxStore { return &OutboxStore{store: s} }
func (s *Store) SweepLock() *SweepLock { return &SweepLock{store: s} }

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

func (s *Store) appendEvents(events []domain.Event) {
	for _, event := range events {
		s.outbox = append(s.outbox, outboxRow{event: event})
	}
}

func conflict(op, id string, stored, given int64) error {
	return domain.WrapError(domain.ErrConcurrencyConflict, op, fmt.Errorf("%s: stored version %d, given %d", id, stored, given))
}

type DocumentRepository struct {
	store *Store
}

func (r *DocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(doc.TenantID(), doc.ID())
	if _, exists := r.store.documents[k]; exists {
		return conflict("create document", doc.ID(), 0, 0)
	}
	doc.SetVersion(1)
	r.store.documents[k] = doc.Snapshot()
	r.store.appendEvents(doc.PullEvents())
	return nil
}

func (r *DocumentRepository) Update(_ context.Context, doc *domain.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(doc.TenantID(), doc.ID())
	stored, ok := r.store.documents[k]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("id=%s", doc.ID()))
	}
	if stored.Version != doc.Version() {
		return conflict("update document", doc.ID(), stored.Version, doc.Version())
	}
	doc.SetVersion(stored.Version + 1)
	r.store.documents[k] = doc.Snapshot()
	r.store.appendEvents(doc.PullEvents())
	return nil
}

func (r *DocumentRepository) GetByID(_ context.Context, tenantID, id string) (*domain.Document, error) {
	r.store.mu.Lock()
	snapshot, ok := r.store.documents[key(tenantID, id)]
	r.store.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return domain.RestoreDocument(snapshot)
}

func (r *DocumentRepository) ListByStatus(_ context.Context, tenantID string, status domain.DocumentStatus, limit int) ([]*domain.Document, error) {
	return r.collect(tenantID, limit, func(s domain.DocumentSnapshot) bool { return s.Status == status })
}

func (r *DocumentRepository) ListExpired(_ context.Context, tenantID string, uploadedBefore time.Time, limit int) ([]*domain.Document, error) {
	return r.collect(tenantID, limit, func(s domain.DocumentSnapshot) bool {
		return s.Status != domain.StatusExpired && s.UploadedAt.Before(uploadedBefore)
	})
}

func (r *DocumentRepository) Search(_ context.Context, tenantID string, filter domain.DocumentFilter, page domain.PageRequest) (domain.PageResult[*domain.Document], error) {
	page = page.Normalize()
	all, err := r.collect(tenantID, 0, func(domain.DocumentSnapshot) bool { return true })
	if err != nil {
		return domain.PageResult[*domain.Document]{}, err
	}
	matched := make([]*domain.Document, 0, len(all))
	for _, doc := range all {
		if filter.Matches(doc) {
			matched = append(matched, doc)
		}
	}
	slices.SortStableFunc(matched, func(a, b *domain.Document) int {
		return b.UploadedAt().Compare(a.UploadedAt())
	})

	start := min(page.Offset(), len(matched))
	end := min(start+page.PageSize, len(matched))
	return domain.NewPageResult(matched[start:end], len(matched), page), nil
}

func (r *DocumentRepository) Usage(_ context.Context, tenantID string) (domain.TenantUsage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	usage := domain.TenantUsage{TenantID: tenantID}
	for _, s := range r.store.documents {
		if s.TenantID != tenantID || s.Status == domain.StatusExpired {
			continue
		}
		usage.Documents++
		usage.StorageBytes += s.SizeBytes
	}
	return usage, nil
}

// collect returns matching documents oldest first.
func (r *DocumentRepository) collect(tenantID string, limit int, keep func(domain.DocumentSnapshot) bool) ([]*domain.Document, error) {
	r.store.mu.Lock()
	snapshots := make([]domain.DocumentSnapshot, 0)
	for _, s := range r.store.documents {
		if s.TenantID == tenantID && keep(s) {
			snapshots = append(snapshots, s)
		}
	}
	r.store.mu.Unlock()

	slices.SortFunc(snapshots, func(a, b domain.DocumentSnapshot) int {
		if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	out := make([]*domain.Document, 0, len(snapshots))
	for _, s := range snapshots {
		doc, err := domain.RestoreDocument(s)
		if err != nil {
			return nil, fmt.Errorf("restore document %s: %w", s.ID, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

type RuleRepository struct {
	store *Store
}

func (r *RuleRepository) Create(_ context.Context, rule *domain.ClassificationRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(rule.TenantID(), rule.ID())
	if _, exists := r.store.rules[k]; exists {
		return conflict("create rule", rule.ID(), 0, 0)
	}
	r.store.rules[k] = rule.Snapshot()
	r.store.appendEvents(rule.PullEvents())
	return nil
}

func (r *RuleRepository) Update(_ context.Context, rule *domain.ClassificationRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(rule.TenantID(), rule.ID())
	if _, ok := r.store.rules[k]; !ok {
		return domain.WrapError(domain.ErrRuleNotFound, "update rule", fmt.Errorf("id=%s", rule.ID()))
	}
	r.store.rules[k] = rule.Snapshot()
	r.store.appendEvents(rule.PullEvents())
	return nil
}

func (r *RuleRepository) GetByID(_ context.Context, tenantID, id string) (*domain.ClassificationRule, error) {
	r.store.mu.Lock()
	snapshot, ok := r.store.rules[key(tenantID, id)]
	r.store.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrRuleNotFound, "get rule", fmt.Errorf("id=%s", id))
	}
	return domain.RestoreRule(snapshot)
}

// List orders by priority, then creation time.
func (r *RuleRepository) List(_ context.Context, tenantID string, activeOnly bool) ([]*domain.ClassificationRule, error) {
	r.store.mu.Lock()
	snapshots := make([]domain.RuleSnapshot, 0)
	for _, s := range r.store.rules {
		if s.TenantID == tenantID && (!activeOnly || s.IsActive) {
			snapshots = append(snapshots, s)
		}
	}
	r.store.mu.Unlock()

	slices.SortFunc(snapshots, func(a, b domain.RuleSnapshot) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	out := make([]*domain.ClassificationRule, 0, len(snapshots))
	for _, s := range snapshots {
		rule, err := domain.RestoreRule(s)
		if err != nil {
			return nil, fmt.Errorf("restore rule %s: %w", s.ID, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

type QueueRepository struct {
	store *Store
}

func (r *QueueRepository) Create(_ context.Context, queue *domain.RoutingQueue) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(queue.TenantID(), queue.ID())
	if _, exists := r.store.queues[k]; exists {
		return conflict("create queue", queue.ID(), 0, 0)
	}
	r.store.queues[k] = queue.Snapshot()
	return nil
}

func (r *QueueRepository) Update(_ context.Context, queue *domain.RoutingQueue) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(queue.TenantID(), queue.ID())
	if _, ok := r.store.queues[k]; !ok {
		return domain.WrapError(domain.ErrQueueNotFound, "update queue", fmt.Errorf("id=%s", queue.ID()))
	}
	r.store.queues[k] = queue.Snapshot()
	return nil
}

func (r *QueueRepository) GetByID(_ context.Context, tenantID, id string) (*domain.RoutingQueue, error) {
	r.store.mu.Lock()
	snapshot, ok := r.store.queues[key(tenantID, id)]
	r.store.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrQueueNotFound, "get queue", fmt.Errorf("id=%s", id))
	}
	return domain.RestoreQueue(snapshot)
}

func (r *QueueRepository) List(_ context.Context, tenantID string) ([]*domain.RoutingQueue, error) {
	r.store.mu.Lock()
	snapshots := make([]domain.QueueSnapshot, 0)
	for _, s := range r.store.queues {
		if s.TenantID == tenantID {
			snapshots = append(snapshots, s)
		}
	}
	r.store.mu.Unlock()

	slices.SortFunc(snapshots, func(a, b domain.QueueSnapshot) int { return cmp.Compare(a.Name, b.Name) })
	out := make([]*domain.RoutingQueue, 0, len(snapshots))
	for _, s := range snapshots {
		queue, err := domain.RestoreQueue(s)
		if err != nil {
			return nil, fmt.Errorf("restore queue %s: %w", s.ID, err)
		}
		out = append(out, queue)
	}
	return out, nil
}

type DeliveryRepository struct {
	store *Store
}

func (r *DeliveryRepository) Create(_ context.Context, delivery *domain.WebhookDelivery) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(delivery.TenantID(), delivery.ID())
	if _, exists := r.store.deliveries[k]; exists {
		return conflict("create delivery", delivery.ID(), 0, 0)
	}
	delivery.SetVersion(1)
	r.store.deliveries[k] = delivery.Snapshot()
	r.store.appendEvents(delivery.PullEvents())
	return nil
}

func (r *DeliveryRepository) Update(_ context.Context, delivery *domain.WebhookDelivery) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := key(delivery.TenantID(), delivery.ID())
	stored, ok := r.store.deliveries[k]
	if !ok {
		return domain.WrapError(domain.ErrDeliveryNotFound, "update delivery", fmt.Errorf("id=%s", delivery.ID()))
	}
	if stored.Version != delivery.Version() {
		return conflict("update delivery", delivery.ID(), stored.Version, delivery.Version())
	}
	delivery.SetVersion(stored.Version + 1)
	r.store.deliveries[k] = delivery.Snapshot()
	r.store.appendEvents(delivery.PullEvents())
	return nil
}

func (r *DeliveryRepository) GetByID(_ context.Context, tenantID, id string) (*domain.WebhookDelivery, error) {
	r.store.mu.Lock()
	snapshot, ok := r.store.deliveries[key(tenantID, id)]
	r.store.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrDeliveryNotFound, "get delivery", fmt.Errorf("id=%s", id))
	}
	return domain.RestoreDelivery(snapshot)
}

func (r *DeliveryRepository) ListByDocument(_ context.Context, tenantID, documentID string) ([]*domain.WebhookDelivery, error) {
	return r.collect(tenantID, 0, func(s domain.DeliverySnapshot) bool { return s.DocumentID == documentID })
}

func (r *DeliveryRepository) ListByStatus(_ context.Context, tenantID string, status domain.DeliveryStatus, limit int) ([]*domain.WebhookDelivery, error) {
	return r.collect(tenantID, limit, func(s domain.DeliverySnapshot) bool { return s.Status == status })
}

func (r *DeliveryRepository) collect(tenantID string, limit int, keep func(domain.DeliverySnapshot) bool) ([]*domain.WebhookDelivery, error) {
	r.store.mu.Lock()
	snapshots := make([]domain.DeliverySnapshot, 0)
	for _, s := range r.store.deliveries {
		if s.TenantID == tenantID && keep(s) {
			snapshots = append(snapshots, s)
		}
	}
	r.store.mu.Unlock()

	slices.SortFunc(snapshots, func(a, b domain.DeliverySnapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	out := make([]*domain.WebhookDelivery, 0, len(snapshots))
	for _, s := range snapshots {
		delivery, err := domain.RestoreDelivery(s)
		if err != nil {
			return nil, fmt.Errorf("restore delivery %s: %w", s.ID, err)
		}
		out = append(out, delivery)
	}
	return out, nil
}

type TenantRepository struct {
	store *Store
}

func (r *TenantRepository) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.store.mu.Lock()
	snapshot, ok := r.store.tenants[id]
	r.store.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrTenantNotFound, "get tenant", fmt.Errorf("id=%s", id))
	}
	return domain.RestoreTenant(snapshot)
}

func (r *TenantRepository) List(_ context.Context) ([]*domain.Tenant, error) {
	r.store.mu.Lock()
	snapshots := make([]domain.TenantSnapshot, 0, len(r.store.tenants))
	for _, s := range r.store.tenants {
		snapshots = append(snapshots, s)
	}
	r.store.mu.Unlock()

	slices.SortFunc(snapshots, func(a, b domain.TenantSnapshot) int { return cmp.Compare(a.ID, b.ID) })
	out := make([]*domain.Tenant, 0, len(snapshots))
	for _, s := range snapshots {
		tenant, err := domain.RestoreTenant(s)
		if err != nil {
			return nil, fmt.Errorf("restore tenant %s: %w", s.ID, err)
		}
		out = append(out, tenant)
	}
	return out, nil
}

// Save upserts. A stale version on an existing tenant is a conflict.
func (r *TenantRepository) Save(_ context.Context, tenant *domain.Tenant) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if stored, ok := r.store.tenants[tenant.ID()]; ok && stored.Version != tenant.Version() {
		return conflict("save tenant", tenant.ID(), stored.Version, tenant.Version())
	}
	tenant.SetVersion(tenant.Version() + 1)
	r.store.tenants[tenant.ID()] = tenant.Snapshot()
	return nil
}

type OutboxStore struct {
	store *Store
}

func (o *OutboxStore) ListUnpublished(_ context.Context, limit int) ([]domain.Event, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()

	out := make([]domain.Event, 0)
	for _, row := range o.store.outbox {
		if row.publishedAt != nil {
			continue
		}
		out = append(out, row.event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *OutboxStore) MarkPublished(_ context.Context, eventID string, publishedAt time.Time) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()

	for i := range o.store.outbox {
		if o.store.outbox[i].event.ID == eventID {
			at := publishedAt
			o.store.outbox[i].publishedAt = &at
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", eventID)
}

// Events returns every recorded event, published or not.
func (o *OutboxStore) Events() []domain.Event {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()

	out := make([]domain.Event, 0, len(o.store.outbox))
	for _, row := range o.store.outbox {
		out = append(out, row.event)
	}
	return out
}

type SweepLock struct {
	store *Store
}

func (l *SweepLock) TryAcquire(_ context.Context, name string) (func(), bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	if l.store.locks[name] {
		return nil, false, nil
	}
	l.store.locks[name] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.store.mu.Lock()
			delete(l.store.locks, name)
			l.store.mu.Unlock()
		})
	}, true, nil
}
