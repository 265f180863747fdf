package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var demandTracer = otel.Tracer("service/demands")

// DemandPatch is the body of PATCH /v1/demands/{id}. Status changes go
// through the transition controller instead.
type DemandPatch struct {
	Title         *string                      `json:"title,omitempty"`
	Description   *string                      `json:"description,omitempty"`
	Caption       *string                      `json:"caption,omitempty"`
	Priority      *domain.Priority             `json:"priority,omitempty"`
	TypeID        *string                      `json:"type_id,omitempty"`
	OriginID      *string                      `json:"origin_id,omitempty"`
	ResponsibleID domain.Optional[string]      `json:"responsible_id"`
	Deadline      domain.Optional[domain.Date] `json:"deadline"`
}

// BoardView is a filtered list plus the counters computed with the same
// filter.
type BoardView struct {
	Data     []domain.Demand    `json:"data"`
	Total    int                `json:"total"`
	Counters domain.TabCounters `json:"counters"`
}

// DemandService handles demand CRUD.
type DemandService struct {
	store    port.DemandStore
	lookups  *LookupService
	logs     port.LogStore
	notifier port.ChangeNotifier
	clock    Clock
	loc      *time.Location
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewDemandService creates a demand service.
func NewDemandService(
	store port.DemandStore,
	lookups *LookupService,
	logs port.LogStore,
	notifier port.ChangeNotifier,
	clock Clock,
	loc *time.Location,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DemandService {
	if loc == nil {
		loc = time.UTC
	}
	return &DemandService{
		store:    store,
		lookups:  lookups,
		logs:     logs,
		notifier: notifier,
		clock:    clock,
		loc:      loc,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *DemandService) now() time.Time {
	return s.clock.Now().In(s.loc)
}

// Board lists demands matching f, with counters.
func (s *DemandService) Board(ctx context.Context, f domain.DemandFilter) (*BoardView, error) {
	ctx, span := demandTracer.Start(ctx, "DemandService.Board")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("board", time.Since(start)) }()

	all, err := s.store.ListDemands(ctx)
	if err != nil {
		s.countExternal(err)
		return nil, err
	}
	now := s.now()
	data := Apply(all, f, now)
	return &BoardView{
		Data:     data,
		Total:    len(data),
		Counters: TabCounts(all, f, now),
	}, nil
}

func (s *DemandService) countExternal(err error) {
	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		s.metrics.IncrExternalError(ext.Service)
	}
}

// Counters returns the tab counters for f.
func (s *DemandService) Counters(ctx context.Context, f domain.DemandFilter) (*domain.TabCounters, error) {
	ctx, span := demandTracer.Start(ctx, "DemandService.Counters")
	defer span.End()

	all, err := s.store.ListDemands(ctx)
	if err != nil {
		s.countExternal(err)
		return nil, err
	}
	c := TabCounts(all, f, s.now())
	return &c, nil
}

// Get returns one demand.
func (s *DemandService) Get(ctx context.Context, id string) (*domain.Demand, error) {
	ctx, span := demandTracer.Start(ctx, "DemandService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("demand.id", id))

	return s.store.GetDemand(ctx, id)
}

// Create validates and inserts a demand. Without an explicit status the
// demand starts in the lowest-ordered non-completed status.
func (s *DemandService) Create(ctx context.Context, sess *domain.Session, req *domain.CreateDemandRequest) (*domain.Demand, error) {
	ctx, span := demandTracer.Start(ctx, "DemandService.Create")
	defer span.End()

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	var status domain.Status
	if req.StatusID == "" {
		def, err := s.lookups.DefaultStatus(ctx)
		if err != nil {
			return nil, err
		}
		status = *def
	} else {
		statuses, err := s.lookups.Statuses(ctx)
		if err != nil {
			return nil, err
		}
		st, ok := findStatus(statuses, req.StatusID)
		if !ok {
			return nil, &domain.ErrValidation{Field: "status_id", Message: "status inexistente"}
		}
		status = st
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	data := map[string]any{
		"title":            strings.TrimSpace(req.Title),
		"description":      req.Description,
		"caption":          req.Caption,
		"priority":         string(priority),
		"status_id":        status.ID,
		"type_id":          req.TypeID,
		"origin_id":        req.OriginID,
		"responsible_id":   req.ResponsibleID,
		"deadline":         nil,
		"accumulated_time": 0,
	}
	if sess != nil && sess.UserID != "" {
		data["created_by"] = sess.UserID
	}
	if !req.Deadline.IsZero() {
		data["deadline"] = req.Deadline.String()
	}
	now := s.clock.Now().UTC()
	if status.IsProduction() {
		data["production_started_at"] = now
	}
	if status.IsCompleted() {
		data["finished_at"] = now
	}

	d, err := s.store.CreateDemand(ctx, data)
	if err != nil {
		s.logger.Error("create demand failed", zap.String("title", req.Title), zap.Error(err))
		return nil, err
	}

	recordLog(ctx, s.logs, s.logger, sess, domain.LogCreate, "demands", d.ID, map[string]any{
		"title":     d.Title,
		"status_id": status.ID,
		"priority":  string(priority),
	})
	s.notifier.Publish(domain.ChangeEvent{Table: "demands", Type: "INSERT", RecordID: d.ID})
	return d, nil
}

// Update applies a patch of discrete fields immediately.
func (s *DemandService) Update(ctx context.Context, sess *domain.Session, id string, p *DemandPatch) (*domain.Demand, error) {
	ctx, span := demandTracer.Start(ctx, "DemandService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("demand.id", id))

	patch, err := patchFields(p)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, sess, id, patch)
}

// SaveField persists one free-text field. It is the flush target of the
// autosave debouncer.
func (s *DemandService) SaveField(ctx context.Context, sess *domain.Session, id, field, value string) error {
	ctx, span := demandTracer.Start(ctx, "DemandService.SaveField")
	defer span.End()

	if !AutosaveField(field) {
		return &domain.ErrValidation{Field: "field", Message: "campo não suporta salvamento automático"}
	}
	if field == "title" && strings.TrimSpace(value) == "" {
		return &domain.ErrValidation{Field: "title", Message: "título é obrigatório"}
	}
	_, err := s.apply(ctx, sess, id, map[string]any{field: value})
	return err
}

func (s *DemandService) apply(ctx context.Context, sess *domain.Session, id string, patch map[string]any) (*domain.Demand, error) {
	current, err := s.store.GetDemand(ctx, id)
	if err != nil {
		return nil, err
	}

	details := DiffDetails(current, patch)
	if len(details) == 0 {
		return current, nil
	}

	updated, err := s.store.UpdateDemand(ctx, id, patch)
	if err != nil {
		s.logger.Error("update demand failed", zap.String("demand_id", id), zap.Error(err))
		return nil, err
	}

	recordLog(ctx, s.logs, s.logger, sess, domain.LogUpdate, "demands", id, details)
	s.notifier.Publish(domain.ChangeEvent{Table: "demands", Type: "UPDATE", RecordID: id})
	return updated, nil
}

// Delete removes a demand.
func (s *DemandService) Delete(ctx context.Context, sess *domain.Session, id string) error {
	ctx, span := demandTracer.Start(ctx, "DemandService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("demand.id", id))

	current, err := s.store.GetDemand(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDemand(ctx, id); err != nil {
		return err
	}

	recordLog(ctx, s.logs, s.logger, sess, domain.LogDelete, "demands", id, map[string]any{
		"title": current.Title,
		"code":  current.Code(),
	})
	s.notifier.Publish(domain.ChangeEvent{Table: "demands", Type: "DELETE", RecordID: id})
	return nil
}

// ============================================================
// Validation & diff
// ============================================================

func validateCreate(req *domain.CreateDemandRequest) error {
	switch {
	case req == nil:
		return &domain.ErrValidation{Field: "body", Message: "corpo da requisição ausente"}
	case strings.TrimSpace(req.Title) == "":
		return &domain.ErrValidation{Field: "title", Message: "título é obrigatório"}
	case req.TypeID == "":
		return &domain.ErrValidation{Field: "type_id", Message: "tipo é obrigatório"}
	case req.OriginID == "":
		return &domain.ErrValidation{Field: "origin_id", Message: "origem é obrigatória"}
	case req.Priority != "" && !req.Priority.Valid():
		return &domain.ErrValidation{Field: "priority", Message: "prioridade inválida"}
	}
	return nil
}

func patchFields(p *DemandPatch) (map[string]any, error) {
	if p == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "corpo da requisição ausente"}
	}
	patch := map[string]any{}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return nil, &domain.ErrValidation{Field: "title", Message: "título é obrigatório"}
		}
		patch["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		patch["description"] = *p.Description
	}
	if p.Caption != nil {
		patch["caption"] = *p.Caption
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return nil, &domain.ErrValidation{Field: "priority", Message: "prioridade inválida"}
		}
		patch["priority"] = string(*p.Priority)
	}
	if p.TypeID != nil {
		if *p.TypeID == "" {
			return nil, &domain.ErrValidation{Field: "type_id", Message: "tipo é obrigatório"}
		}
		patch["type_id"] = *p.TypeID
	}
	if p.OriginID != nil {
		if *p.OriginID == "" {
			return nil, &domain.ErrValidation{Field: "origin_id", Message: "origem é obrigatória"}
		}
		patch["origin_id"] = *p.OriginID
	}
	if p.ResponsibleID.Set {
		if p.ResponsibleID.Value == nil || *p.ResponsibleID.Value == "" {
			patch["responsible_id"] = nil
		} else {
			patch["responsible_id"] = *p.ResponsibleID.Value
		}
	}
	if p.Deadline.Set {
		if p.Deadline.Value == nil || p.Deadline.Value.IsZero() {
			patch["deadline"] = nil
		} else {
			patch["deadline"] = p.Deadline.Value.String()
		}
	}
	if len(patch) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "nenhum campo para atualizar"}
	}
	return patch, nil
}

// DiffDetails describes a patch against the current row: changed string
// fields as {old, new} pairs, other fields as their new value. Fields
// that do not change are left out.
func DiffDetails(current *domain.Demand, patch map[string]any) map[string]any {
	old := map[string]string{
		"title":       current.Title,
		"description": current.Description,
		"caption":     current.Caption,
		"priority":    string(current.Priority),
		"type_id":     current.TypeID,
		"origin_id":   current.OriginID,
		"status_id":   current.StatusID,
		"deadline":    current.Deadline.String(),
	}
	if current.ResponsibleID != nil {
		old["responsible_id"] = *current.ResponsibleID
	}

	details := make(map[string]any, len(patch))
	for field, v := range patch {
		prev, textual := old[field]
		if field == "responsible_id" {
			textual = true
		}
		switch nv := v.(type) {
		case string:
			if textual && prev == nv {
				continue
			}
			if textual {
				details[field] = change(prev, nv)
				continue
			}
		case nil:
			if textual && prev == "" {
				continue
			}
		}
		details[field] = v
	}
	return details
}
