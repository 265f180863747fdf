package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var permTracer = otel.Tracer("service/permissions")

const backfillTimeout = 10 * time.Second

// PermissionResolver answers can(role, resource, action) from the
// role_permissions matrix, cached per role.
type PermissionResolver struct {
	store    port.PermissionStore
	logs     port.LogStore
	cache    port.Cache[domain.PermissionMatrix]
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger

	loads singleflight.Group
	epoch atomic.Uint64
	wg    sync.WaitGroup
}

// NewPermissionResolver creates a resolver. The bulkhead bounds the number
// of concurrent background backfills.
func NewPermissionResolver(
	store port.PermissionStore,
	logs port.LogStore,
	cache port.Cache[domain.PermissionMatrix],
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PermissionResolver {
	return &PermissionResolver{
		store:    store,
		logs:     logs,
		cache:    cache,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
	}
}

func (r *PermissionResolver) key(role string) string {
	return fmt.Sprintf("perm:%d:%s", r.epoch.Load(), role)
}

// Load returns the matrix for the session's role.
func (r *PermissionResolver) Load(ctx context.Context, sess *domain.Session) (*domain.PermissionMatrix, error) {
	role := domain.EffectiveRole(sess.Role, sess.PermissionLevel)
	return r.LoadRole(ctx, role)
}

// LoadRole returns the matrix for role. Missing rows are backfilled with
// default-deny rows in the background.
func (r *PermissionResolver) LoadRole(ctx context.Context, role string) (*domain.PermissionMatrix, error) {
	ctx, span := permTracer.Start(ctx, "PermissionResolver.Load")
	defer span.End()

	role = domain.NormalizeRole(role)
	span.SetAttributes(attribute.String("role", role))

	if domain.IsAdminRole(role) {
		return adminMatrix(role), nil
	}
	if role == "" {
		return &domain.PermissionMatrix{Resources: map[domain.Resource]domain.PermissionSet{}}, nil
	}

	key := r.key(role)
	if m, ok := r.cache.Get(key); ok {
		r.metrics.IncrCacheHit("permissions")
		return &m, nil
	}
	r.metrics.IncrCacheMiss("permissions")

	// The load is shared by every waiter, so one caller going away must
	// not fail the others.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.loads.Do(key, func() (any, error) {
		rows, err := r.store.ListRolePermissions(loadCtx, role)
		if err != nil {
			return nil, err
		}
		m := buildMatrix(role, rows)
		r.cache.Set(key, m)
		r.backfill(role, rows)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load permissions for %s: %w", role, err)
	}
	m := v.(domain.PermissionMatrix)
	return &m, nil
}

// Can reports whether the session may perform action on resource. Admin
// roles always can; anything without a matrix row is denied.
func (r *PermissionResolver) Can(ctx context.Context, sess *domain.Session, resource domain.Resource, action domain.Action) (bool, error) {
	m, err := r.Load(ctx, sess)
	if err != nil {
		return false, err
	}
	allowed := Allows(m, resource, action)
	r.metrics.RecordPermissionCheck(allowed)
	return allowed, nil
}

// Allows evaluates a resolved matrix.
func Allows(m *domain.PermissionMatrix, resource domain.Resource, action domain.Action) bool {
	if m == nil {
		return false
	}
	if m.IsAdmin {
		return true
	}
	set, ok := m.Resources[resource]
	if !ok {
		return false
	}
	return set.Allows(action)
}

// ApplyToggle applies the dependency rule to a single flag change:
// edit or delete imply view, and dropping view drops everything.
func ApplyToggle(set domain.PermissionSet, action domain.Action, enabled bool) domain.PermissionSet {
	switch action {
	case domain.ActionView:
		set.View = enabled
		if !enabled {
			set.Edit = false
			set.Delete = false
		}
	case domain.ActionEdit:
		set.Edit = enabled
		if enabled {
			set.View = true
		}
	case domain.ActionDelete:
		set.Delete = enabled
		if enabled {
			set.View = true
		}
	}
	return set
}

// Toggle flips one flag of (role, resource) and persists the row at once.
func (r *PermissionResolver) Toggle(ctx context.Context, sess *domain.Session, role string, resource domain.Resource, action domain.Action, enabled bool) (*domain.RolePermission, error) {
	ctx, span := permTracer.Start(ctx, "PermissionResolver.Toggle")
	defer span.End()

	role = domain.NormalizeRole(role)
	switch {
	case role == "":
		return nil, &domain.ErrValidation{Field: "role", Message: "cargo é obrigatório"}
	case domain.IsAdminRole(role):
		return nil, &domain.ErrForbidden{Action: "alterar permissões de administrador"}
	case !knownResource(resource):
		return nil, &domain.ErrValidation{Field: "resource", Message: "recurso desconhecido"}
	case !action.Valid():
		return nil, &domain.ErrValidation{Field: "action", Message: "ação desconhecida"}
	}

	current, err := r.LoadRole(ctx, role)
	if err != nil {
		return nil, err
	}
	next := ApplyToggle(current.Resources[resource], action, enabled)

	row, err := r.store.UpsertRolePermission(ctx, domain.RolePermission{
		Role:      role,
		Resource:  resource,
		CanView:   next.View,
		CanManage: next.Edit,
		CanDelete: next.Delete,
	})
	if err != nil {
		return nil, err
	}

	recordLog(ctx, r.logs, r.logger, sess, domain.LogUpsert, "role_permissions", row.ID, map[string]any{
		"role":       role,
		"resource":   string(resource),
		"action":     string(action),
		"enabled":    enabled,
		"can_view":   row.CanView,
		"can_manage": row.CanManage,
		"can_delete": row.CanDelete,
	})
	r.InvalidateRole(role)
	return row, nil
}

// ListAll returns every matrix row, for the admin screen.
func (r *PermissionResolver) ListAll(ctx context.Context) ([]domain.RolePermission, error) {
	ctx, span := permTracer.Start(ctx, "PermissionResolver.ListAll")
	defer span.End()
	return r.store.ListAllRolePermissions(ctx)
}

// InvalidateRole drops the cached matrix of role.
func (r *PermissionResolver) InvalidateRole(role string) {
	r.cache.Delete(r.key(domain.NormalizeRole(role)))
}

// InvalidateAll drops every cached matrix.
func (r *PermissionResolver) InvalidateAll() {
	r.epoch.Add(1)
}

// Run invalidates cached matrices when role_permissions or profiles
// change, until ctx is done.
func (r *PermissionResolver) Run(ctx context.Context, notifier port.ChangeNotifier) {
	events, cancel := notifier.Subscribe("role_permissions", "profiles")
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			r.InvalidateAll()
		}
	}
}

// Backfill inserts default-deny rows for every (role, resource) pair
// missing from the matrix and returns the number of rows requested. It is
// the synchronous form used by the operator CLI.
func (r *PermissionResolver) Backfill(ctx context.Context, roles []string) (int, error) {
	all, err := r.store.ListAllRolePermissions(ctx)
	if err != nil {
		return 0, err
	}
	byRole := make(map[string][]domain.RolePermission)
	for _, row := range all {
		role := domain.NormalizeRole(row.Role)
		byRole[role] = append(byRole[role], row)
	}
	if len(roles) == 0 {
		for role := range byRole {
			roles = append(roles, role)
		}
	}

	total := 0
	for _, role := range roles {
		role = domain.NormalizeRole(role)
		if role == "" || domain.IsAdminRole(role) {
			continue
		}
		missing := missingRows(role, byRole[role])
		if len(missing) == 0 {
			continue
		}
		if err := r.store.InsertRolePermissions(ctx, missing); err != nil {
			return total, fmt.Errorf("backfill %s: %w", role, err)
		}
		total += len(missing)
		r.metrics.AddBackfilledRows(len(missing))
	}
	if total > 0 {
		r.InvalidateAll()
	}
	return total, nil
}

// Wait blocks until in-flight background backfills finish.
func (r *PermissionResolver) Wait() {
	r.wg.Wait()
}

func (r *PermissionResolver) backfill(role string, rows []domain.RolePermission) {
	missing := missingRows(role, rows)
	if len(missing) == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
		defer cancel()

		if err := r.bulkhead.Acquire(ctx); err != nil {
			r.logger.Warn("permissions: backfill skipped", zap.String("role", role), zap.Error(err))
			return
		}
		defer r.bulkhead.Release()

		if err := r.store.InsertRolePermissions(ctx, missing); err != nil {
			r.logger.Warn("permissions: backfill failed",
				zap.String("role", role),
				zap.Int("rows", len(missing)),
				zap.Error(err),
			)
			return
		}
		r.metrics.AddBackfilledRows(len(missing))
		r.logger.Info("permissions: backfilled default rows",
			zap.String("role", role),
			zap.Int("rows", len(missing)),
		)
	}()
}

func missingRows(role string, rows []domain.RolePermission) []domain.RolePermission {
	have := make(map[domain.Resource]bool, len(rows))
	for _, row := range rows {
		have[domain.Resource(strings.ToLower(string(row.Resource)))] = true
	}
	var missing []domain.RolePermission
	for _, res := range domain.KnownResources {
		if !have[res] {
			missing = append(missing, domain.RolePermission{Role: role, Resource: res})
		}
	}
	return missing
}

func buildMatrix(role string, rows []domain.RolePermission) domain.PermissionMatrix {
	m := domain.PermissionMatrix{
		Role:      role,
		Resources: make(map[domain.Resource]domain.PermissionSet, len(rows)),
	}
	for _, row := range rows {
		m.Resources[domain.Resource(strings.ToLower(string(row.Resource)))] = row.Set()
	}
	return m
}

func adminMatrix(role string) *domain.PermissionMatrix {
	m := &domain.PermissionMatrix{
		Role:      role,
		IsAdmin:   true,
		Resources: make(map[domain.Resource]domain.PermissionSet, len(domain.KnownResources)),
	}
	for _, res := range domain.KnownResources {
		m.Resources[res] = domain.PermissionSet{View: true, Edit: true, Delete: true}
	}
	return m
}

func knownResource(r domain.Resource) bool {
	for _, k := range domain.KnownResources {
		if k == r {
			return true
		}
	}
	return false
}
