package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var lookupTracer = otel.Tracer("service/lookups")

const statusesKey = "statuses"

// LookupTables are the simple lookup tables served by the API.
var LookupTables = []string{"types", "origins", "job_titles"}

// StatusInput is the body of status create/update calls.
type StatusInput struct {
	Name       *string            `json:"name,omitempty"`
	Color      *string            `json:"color,omitempty"`
	OrderIndex *int               `json:"order_index,omitempty"`
	Kind       *domain.StatusKind `json:"kind,omitempty"`
}

// LookupInput is the body of type/origin create/update calls.
type LookupInput struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// LookupService serves statuses and lookup tables from a cache that is
// dropped whenever the table changes.
type LookupService struct {
	store    port.LookupStore
	logs     port.LogStore
	demands  port.DemandStore
	statuses port.Cache[[]domain.Status]
	lookups  port.Cache[[]domain.Lookup]
	notifier port.ChangeNotifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewLookupService creates a lookup service.
func NewLookupService(
	store port.LookupStore,
	logs port.LogStore,
	demands port.DemandStore,
	statuses port.Cache[[]domain.Status],
	lookups port.Cache[[]domain.Lookup],
	notifier port.ChangeNotifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LookupService {
	return &LookupService{
		store:    store,
		logs:     logs,
		demands:  demands,
		statuses: statuses,
		lookups:  lookups,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// ============================================================
// Statuses
// ============================================================

// Statuses returns the workflow statuses ordered by order_index.
func (s *LookupService) Statuses(ctx context.Context) ([]domain.Status, error) {
	ctx, span := lookupTracer.Start(ctx, "LookupService.Statuses")
	defer span.End()

	if cached, ok := s.statuses.Get(statusesKey); ok {
		s.metrics.IncrCacheHit("lookups")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("lookups")

	list, err := s.store.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].OrderIndex < list[j].OrderIndex })
	s.statuses.Set(statusesKey, list)
	return list, nil
}

// DefaultStatus is the lowest-ordered status that is not a completed one.
func (s *LookupService) DefaultStatus(ctx context.Context) (*domain.Status, error) {
	list, err := s.Statuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range list {
		if !st.IsCompleted() {
			return &st, nil
		}
	}
	return nil, &domain.ErrValidation{Field: "status_id", Message: "nenhum status inicial configurado"}
}

// CreateStatus adds a status. A missing kind is inferred from the name
// and stored explicitly.
func (s *LookupService) CreateStatus(ctx context.Context, sess *domain.Session, in StatusInput) (*domain.Status, error) {
	ctx, span := lookupTracer.Start(ctx, "LookupService.CreateStatus")
	defer span.End()

	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "nome é obrigatório"}
	}
	name := strings.TrimSpace(*in.Name)

	kind := domain.InferStatusKind(name)
	if in.Kind != nil {
		if !in.Kind.Valid() {
			return nil, &domain.ErrValidation{Field: "kind", Message: "tipo de status desconhecido"}
		}
		kind = *in.Kind
	}

	data := map[string]any{"name": name, "kind": string(kind)}
	if in.Color != nil {
		data["color"] = *in.Color
	}
	if in.OrderIndex != nil {
		data["order_index"] = *in.OrderIndex
	} else {
		list, err := s.Statuses(ctx)
		if err != nil {
			return nil, err
		}
		data["order_index"] = nextOrderIndex(list)
	}

	st, err := s.store.CreateStatus(ctx, data)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, sess, domain.LogCreate, "statuses", st.ID, data)
	return st, nil
}

// UpdateStatus patches a status. Renaming never changes the kind: rows
// stored without one get the kind inferred from their current name pinned
// in the same write. Moving a status into or out of production is refused
// while demands sit in it.
func (s *LookupService) UpdateStatus(ctx context.Context, sess *domain.Session, id string, in StatusInput) (*domain.Status, error) {
	ctx, span := lookupTracer.Start(ctx, "LookupService.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("status.id", id))

	patch := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "nome é obrigatório"}
		}
		patch["name"] = name
	}
	if in.Color != nil {
		patch["color"] = *in.Color
	}
	if in.OrderIndex != nil {
		patch["order_index"] = *in.OrderIndex
	}
	if in.Kind != nil {
		if !in.Kind.Valid() {
			return nil, &domain.ErrValidation{Field: "kind", Message: "tipo de status desconhecido"}
		}
		patch["kind"] = string(*in.Kind)
	}
	if len(patch) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "nenhum campo para atualizar"}
	}

	if in.Name != nil || in.Kind != nil {
		current, err := s.currentStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		oldKind := current.EffectiveKind()
		newKind := oldKind
		if in.Kind != nil {
			newKind = *in.Kind
		} else if !current.Kind.Valid() {
			patch["kind"] = string(oldKind)
		}
		if (oldKind == domain.KindProduction) != (newKind == domain.KindProduction) {
			if err := s.ensureUnused(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	st, err := s.store.UpdateStatus(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, sess, domain.LogUpdate, "statuses", id, patch)
	return st, nil
}

// currentStatus reads the stored row, bypassing the cache.
func (s *LookupService) currentStatus(ctx context.Context, id string) (*domain.Status, error) {
	list, err := s.store.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range list {
		if st.ID == id {
			return &st, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "status", ID: id}
}

// ensureUnused fails when any demand currently holds status id, since
// flipping its production flag would strand their open timer sessions.
func (s *LookupService) ensureUnused(ctx context.Context, id string) error {
	list, err := s.demands.ListDemands(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, d := range list {
		if d.StatusID == id {
			n++
		}
	}
	if n > 0 {
		return &domain.ErrConflict{Message: fmt.Sprintf(
			"%d demanda(s) neste status: mova-as antes de mudar o tipo de produção", n)}
	}
	return nil
}

// DeleteStatus removes a status.
func (s *LookupService) DeleteStatus(ctx context.Context, sess *domain.Session, id string) error {
	ctx, span := lookupTracer.Start(ctx, "LookupService.DeleteStatus")
	defer span.End()

	if err := s.store.DeleteStatus(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, sess, domain.LogDelete, "statuses", id, nil)
	return nil
}

// ============================================================
// Lookup tables
// ============================================================

// Lookups returns the rows of a lookup table.
func (s *LookupService) Lookups(ctx context.Context, table string) ([]domain.Lookup, error) {
	ctx, span := lookupTracer.Start(ctx, "LookupService.Lookups")
	defer span.End()

	if err := checkTable(table); err != nil {
		return nil, err
	}
	key := "lookup:" + table
	if cached, ok := s.lookups.Get(key); ok {
		s.metrics.IncrCacheHit("lookups")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("lookups")

	list, err := s.store.ListLookups(ctx, table)
	if err != nil {
		return nil, err
	}
	s.lookups.Set(key, list)
	return list, nil
}

// CreateLookup adds a row to a lookup table.
func (s *LookupService) CreateLookup(ctx context.Context, sess *domain.Session, table string, in LookupInput) (*domain.Lookup, error) {
	ctx, span := lookupTracer.Start(ctx, "LookupService.CreateLookup")
	defer span.End()

	if err := checkTable(table); err != nil {
		return nil, err
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "nome é obrigatório"}
	}
	data := map[string]any{"name": strings.TrimSpace(*in.Name)}
	if in.Color != nil {
		data["color"] = *in.Color
	}

	l, err := s.store.CreateLookup(ctx, table, data)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, sess, domain.LogCreate, table, l.ID, data)
	return l, nil
}

// UpdateLookup patches a lookup row.
func (s *LookupService) UpdateLookup(ctx context.Context, sess *domain.Session, table, id string, in LookupInput) (*domain.Lookup, error) {
	ctx, span := lookupTracer.Start(ctx, "LookupService.UpdateLookup")
	defer span.End()

	if err := checkTable(table); err != nil {
		return nil, err
	}
	patch := map[string]any{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "nome é obrigatório"}
		}
		patch["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Color != nil {
		patch["color"] = *in.Color
	}
	if len(patch) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "nenhum campo para atualizar"}
	}

	l, err := s.store.UpdateLookup(ctx, table, id, patch)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, sess, domain.LogUpdate, table, id, patch)
	return l, nil
}

// DeleteLookup removes a lookup row.
func (s *LookupService) DeleteLookup(ctx context.Context, sess *domain.Session, table, id string) error {
	ctx, span := lookupTracer.Start(ctx, "LookupService.DeleteLookup")
	defer span.End()

	if err := checkTable(table); err != nil {
		return err
	}
	if err := s.store.DeleteLookup(ctx, table, id); err != nil {
		return err
	}
	s.changed(ctx, sess, domain.LogDelete, table, id, nil)
	return nil
}

// ============================================================
// Invalidation
// ============================================================

// Invalidate drops the cached rows of table.
func (s *LookupService) Invalidate(table string) {
	if table == "statuses" {
		s.statuses.Delete(statusesKey)
		return
	}
	s.lookups.Delete("lookup:" + table)
}

// Run drops cached tables as change events arrive, until ctx is done.
func (s *LookupService) Run(ctx context.Context) {
	tables := append([]string{"statuses"}, LookupTables...)
	events, cancel := s.notifier.Subscribe(tables...)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Invalidate(ev.Table)
		}
	}
}

func (s *LookupService) changed(ctx context.Context, sess *domain.Session, action domain.LogAction, table, id string, details map[string]any) {
	s.Invalidate(table)
	recordLog(ctx, s.logs, s.logger, sess, action, table, id, details)
	s.notifier.Publish(domain.ChangeEvent{Table: table, Type: eventType(action), RecordID: id})
}

func checkTable(table string) error {
	for _, t := range LookupTables {
		if t == table {
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "lookup table", ID: table}
}

func nextOrderIndex(list []domain.Status) int {
	next := 0
	for _, st := range list {
		if st.OrderIndex >= next {
			next = st.OrderIndex + 1
		}
	}
	return next
}

func eventType(action domain.LogAction) string {
	switch action {
	case domain.LogCreate:
		return "INSERT"
	case domain.LogDelete:
		return "DELETE"
	}
	return "UPDATE"
}
