package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/cache"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/realtime"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

// --- Clock ---

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t, ticks: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Tick(time.Duration) (<-chan time.Time, func()) {
	return c.ticks, func() {}
}

// fire advances the clock and delivers one tick.
func (c *fakeClock) fire(d time.Duration) {
	c.Advance(d)
	c.ticks <- c.Now()
}

// --- Statuses ---

var (
	stBacklog    = domain.Status{ID: "st-backlog", Name: "Backlog", OrderIndex: 0}
	stApproval   = domain.Status{ID: "st-approval", Name: "Aguardando aprovação", OrderIndex: 1}
	stProduction = domain.Status{ID: "st-prod", Name: "Em Produção", OrderIndex: 2}
	stReview     = domain.Status{ID: "st-review", Name: "Revisão", OrderIndex: 3}
	stDone       = domain.Status{ID: "st-done", Name: "Concluído", OrderIndex: 4}
	stCustom     = domain.Status{ID: "st-custom", Name: "Ideias", OrderIndex: 5}
)

func defaultStatuses() []domain.Status {
	return []domain.Status{stBacklog, stApproval, stProduction, stReview, stDone, stCustom}
}

type staticStatuses []domain.Status

func (s staticStatuses) Statuses(context.Context) ([]domain.Status, error) {
	return s, nil
}

// --- Demand store ---

type mockDemandStore struct {
	mu       sync.Mutex
	rows     map[string]*domain.Demand
	statuses []domain.Status
	seq      int

	gets    int
	updates []map[string]any
	onGet   func(call int)
	err     error
}

func newMockDemandStore(statuses []domain.Status, demands ...domain.Demand) *mockDemandStore {
	m := &mockDemandStore{rows: make(map[string]*domain.Demand), statuses: statuses}
	for i := range demands {
		d := demands[i]
		m.rows[d.ID] = &d
	}
	return m
}

func (m *mockDemandStore) joined(d *domain.Demand) *domain.Demand {
	out := *d
	out.Status = nil
	for _, s := range m.statuses {
		if s.ID == d.StatusID {
			st := s
			out.Status = &st
		}
	}
	return &out
}

func (m *mockDemandStore) ListDemands(context.Context) ([]domain.Demand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Demand, 0, len(m.rows))
	for _, d := range m.rows {
		out = append(out, *m.joined(d))
	}
	return out, nil
}

func (m *mockDemandStore) GetDemand(_ context.Context, id string) (*domain.Demand, error) {
	m.mu.Lock()
	m.gets++
	call, hook := m.gets, m.onGet
	m.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "demand", ID: id}
	}
	return m.joined(d), nil
}

func (m *mockDemandStore) CreateDemand(_ context.Context, data map[string]any) (*domain.Demand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.seq++
	d := &domain.Demand{ID: fmt.Sprintf("dem-%d", m.seq), SequenceNumber: m.seq}
	applyPatch(d, data)
	m.rows[d.ID] = d
	return m.joined(d), nil
}

func (m *mockDemandStore) UpdateDemand(_ context.Context, id string, patch map[string]any) (*domain.Demand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.rows[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "demand", ID: id}
	}
	m.updates = append(m.updates, patch)
	applyPatch(d, patch)
	return m.joined(d), nil
}

func (m *mockDemandStore) DeleteDemand(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return &domain.ErrNotFound{Resource: "demand", ID: id}
	}
	delete(m.rows, id)
	return nil
}

func (m *mockDemandStore) set(id string, fn func(d *domain.Demand)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.rows[id])
}

func (m *mockDemandStore) raw(id string) domain.Demand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *mockDemandStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func applyPatch(d *domain.Demand, patch map[string]any) {
	for k, v := range patch {
		switch k {
		case "title":
			d.Title = v.(string)
		case "description":
			d.Description = v.(string)
		case "caption":
			d.Caption = v.(string)
		case "priority":
			d.Priority = domain.Priority(v.(string))
		case "status_id":
			d.StatusID = v.(string)
		case "type_id":
			d.TypeID = v.(string)
		case "origin_id":
			d.OriginID = v.(string)
		case "created_by":
			d.CreatedBy = v.(string)
		case "responsible_id":
			switch r := v.(type) {
			case string:
				d.ResponsibleID = &r
			case *string:
				d.ResponsibleID = r
			default:
				d.ResponsibleID = nil
			}
		case "deadline":
			if s, ok := v.(string); ok {
				d.Deadline, _ = domain.ParseDate(s)
			} else {
				d.Deadline = domain.Date{}
			}
		case "production_started_at":
			if t, ok := v.(time.Time); ok {
				d.ProductionStartedAt = &t
			} else {
				d.ProductionStartedAt = nil
			}
		case "finished_at":
			if t, ok := v.(time.Time); ok {
				d.FinishedAt = &t
			} else {
				d.FinishedAt = nil
			}
		case "accumulated_time":
			switch n := v.(type) {
			case int64:
				d.AccumulatedTime = n
			case int:
				d.AccumulatedTime = int64(n)
			}
		}
	}
}

// --- Lookup store ---

type mockLookupStore struct {
	mu       sync.Mutex
	statuses []domain.Status
	lookups  map[string][]domain.Lookup
	lists    int
	created  []map[string]any
	updated  []map[string]any
}

func (m *mockLookupStore) ListStatuses(context.Context) ([]domain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	return append([]domain.Status(nil), m.statuses...), nil
}

func (m *mockLookupStore) CreateStatus(_ context.Context, data map[string]any) (*domain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, data)
	st := domain.Status{
		ID:         fmt.Sprintf("st-%d", len(m.statuses)+1),
		Name:       data["name"].(string),
		OrderIndex: data["order_index"].(int),
		Kind:       domain.StatusKind(data["kind"].(string)),
	}
	m.statuses = append(m.statuses, st)
	return &st, nil
}

func (m *mockLookupStore) UpdateStatus(_ context.Context, id string, patch map[string]any) (*domain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.statuses {
		if m.statuses[i].ID == id {
			if n, ok := patch["name"].(string); ok {
				m.statuses[i].Name = n
			}
			if k, ok := patch["kind"].(string); ok {
				m.statuses[i].Kind = domain.StatusKind(k)
			}
			m.updated = append(m.updated, patch)
			st := m.statuses[i]
			return &st, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "status", ID: id}
}

func (m *mockLookupStore) DeleteStatus(context.Context, string) error { return nil }

func (m *mockLookupStore) ListLookups(_ context.Context, table string) ([]domain.Lookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	return m.lookups[table], nil
}

func (m *mockLookupStore) CreateLookup(_ context.Context, table string, data map[string]any) (*domain.Lookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := domain.Lookup{ID: fmt.Sprintf("%s-%d", table, len(m.lookups[table])+1), Name: data["name"].(string)}
	if m.lookups == nil {
		m.lookups = make(map[string][]domain.Lookup)
	}
	m.lookups[table] = append(m.lookups[table], l)
	return &l, nil
}

func (m *mockLookupStore) UpdateLookup(_ context.Context, table, id string, _ map[string]any) (*domain.Lookup, error) {
	return &domain.Lookup{ID: id}, nil
}

func (m *mockLookupStore) DeleteLookup(context.Context, string, string) error { return nil }

func (m *mockLookupStore) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

// --- Log store ---

type mockLogStore struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	err     error
}

func (m *mockLogStore) InsertLog(_ context.Context, e domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockLogStore) ListLogs(_ context.Context, f domain.LogFilter) ([]domain.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LogEntry
	for _, e := range m.entries {
		if f.TableName != "" && e.TableName != f.TableName {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockLogStore) all() []domain.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogEntry(nil), m.entries...)
}

// --- Permission store ---

type mockPermissionStore struct {
	mu       sync.Mutex
	rows     []domain.RolePermission
	lists    int
	inserts  int
	upserts  int
	listErr  error
	entered  chan struct{}
	released chan struct{}
}

func (m *mockPermissionStore) ListRolePermissions(ctx context.Context, role string) ([]domain.RolePermission, error) {
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.released != nil {
		<-m.released
	}
	// Like the HTTP client, a cancelled request fails.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.RolePermission
	for _, r := range m.rows {
		if strings.EqualFold(r.Role, role) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockPermissionStore) ListAllRolePermissions(context.Context) ([]domain.RolePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RolePermission(nil), m.rows...), nil
}

func (m *mockPermissionStore) InsertRolePermissions(_ context.Context, rows []domain.RolePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	for _, r := range rows {
		if m.find(r.Role, r.Resource) < 0 {
			m.rows = append(m.rows, r)
		}
	}
	return nil
}

func (m *mockPermissionStore) UpsertRolePermission(_ context.Context, row domain.RolePermission) (*domain.RolePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if i := m.find(row.Role, row.Resource); i >= 0 {
		row.ID = m.rows[i].ID
		m.rows[i] = row
	} else {
		row.ID = fmt.Sprintf("perm-%d", len(m.rows)+1)
		m.rows = append(m.rows, row)
	}
	return &row, nil
}

func (m *mockPermissionStore) find(role string, res domain.Resource) int {
	for i, r := range m.rows {
		if strings.EqualFold(r.Role, role) && r.Resource == res {
			return i
		}
	}
	return -1
}

func (m *mockPermissionStore) counts() (lists, inserts, upserts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists, m.inserts, m.upserts
}

// --- Comment store ---

type mockCommentStore struct {
	mu   sync.Mutex
	rows []domain.Comment
}

func (m *mockCommentStore) ListComments(_ context.Context, demandID string) ([]domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Comment
	for _, c := range m.rows {
		if c.DemandID == demandID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommentStore) GetComment(_ context.Context, id string) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "comment", ID: id}
}

func (m *mockCommentStore) CreateComment(_ context.Context, data map[string]any) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := domain.Comment{
		ID:               fmt.Sprintf("c-%d", len(m.rows)+1),
		DemandID:         data["demand_id"].(string),
		AuthorID:         data["author_id"].(string),
		Body:             data["body"].(string),
		MentionedUserIDs: data["mentioned_user_ids"].([]string),
		CreatedAt:        time.Date(2026, 1, 1, 0, len(m.rows), 0, 0, time.UTC),
	}
	if p, ok := data["parent_id"].(string); ok {
		c.ParentID = &p
	}
	m.rows = append(m.rows, c)
	return &c, nil
}

func (m *mockCommentStore) UpdateComment(_ context.Context, id string, patch map[string]any) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		if b, ok := patch["body"].(string); ok {
			m.rows[i].Body = b
		}
		if e, ok := patch["is_edited"].(bool); ok {
			m.rows[i].IsEdited = e
		}
		if d, ok := patch["is_deleted"].(bool); ok {
			m.rows[i].IsDeleted = d
		}
		c := m.rows[i]
		return &c, nil
	}
	return nil, &domain.ErrNotFound{Resource: "comment", ID: id}
}

// --- Helpers ---

func newHub() *realtime.Hub {
	return realtime.NewHub(zap.NewNop())
}

func newLookupService(store *mockLookupStore, logs *mockLogStore, hub *realtime.Hub) *service.LookupService {
	return newLookupServiceWithDemands(store, logs, newMockDemandStore(store.statuses), hub)
}

func newLookupServiceWithDemands(store *mockLookupStore, logs *mockLogStore, demands *mockDemandStore, hub *realtime.Hub) *service.LookupService {
	return service.NewLookupService(
		store,
		logs,
		demands,
		cache.New[[]domain.Status](time.Minute),
		cache.New[[]domain.Lookup](time.Minute),
		hub,
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func editor() *domain.Session {
	return &domain.Session{UserID: "user-1", FullName: "Ana", Role: "designer", AccessToken: "tok"}
}

func ptr[T any](v T) *T { return &v }
