package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var transitionTracer = otel.Tracer("service/transition")

// Transition notices returned to the UI.
const (
	NoticeTimerStarted  = "timer_started"
	NoticeTimerStopped  = "timer_stopped"
	NoticeStatusUpdated = "status_updated"
)

// StatusSource provides the configured statuses.
type StatusSource interface {
	Statuses(ctx context.Context) ([]domain.Status, error)
}

// ============================================================
// Plan
// ============================================================

// TransitionPlan is the full mutation set of one status change. It is
// written in a single update.
type TransitionPlan struct {
	StatusID string

	StartTimer bool
	StartedAt  time.Time

	StopTimer       bool
	RecordedSeconds int64
	AccumulatedTime int64

	SetFinished   bool
	ClearFinished bool
	FinishedAt    time.Time
}

// PlanTransition computes the mutation for moving d from one status to
// another at now.
func PlanTransition(d domain.Demand, from, to domain.Status, now time.Time) TransitionPlan {
	p := TransitionPlan{StatusID: to.ID}

	fromProd, toProd := from.IsProduction(), to.IsProduction()
	switch {
	case !fromProd && toProd:
		p.StartTimer = true
		p.StartedAt = now
	case fromProd && !toProd:
		p.StopTimer = true
		if d.ProductionStartedAt != nil {
			p.RecordedSeconds = SessionSeconds(*d.ProductionStartedAt, now)
		}
		p.AccumulatedTime = d.AccumulatedTime + p.RecordedSeconds
	}

	fromDone, toDone := from.IsCompleted(), to.IsCompleted()
	switch {
	case !fromDone && toDone:
		p.SetFinished = true
		p.FinishedAt = now
	case fromDone && !toDone:
		p.ClearFinished = true
	}
	return p
}

// Patch renders the plan as a row patch.
func (p TransitionPlan) Patch() map[string]any {
	patch := map[string]any{"status_id": p.StatusID}
	if p.StartTimer {
		patch["production_started_at"] = p.StartedAt.UTC()
	}
	if p.StopTimer {
		patch["production_started_at"] = nil
		patch["accumulated_time"] = p.AccumulatedTime
	}
	if p.SetFinished {
		patch["finished_at"] = p.FinishedAt.UTC()
	}
	if p.ClearFinished {
		patch["finished_at"] = nil
	}
	return patch
}

// Notice classifies the plan for the user-facing toast.
func (p TransitionPlan) Notice() string {
	switch {
	case p.StartTimer:
		return NoticeTimerStarted
	case p.StopTimer:
		return NoticeTimerStopped
	}
	return NoticeStatusUpdated
}

// Message is the Portuguese toast text.
func (p TransitionPlan) Message() string {
	switch p.Notice() {
	case NoticeTimerStarted:
		return "Status atualizado. Cronômetro de produção iniciado"
	case NoticeTimerStopped:
		return fmt.Sprintf("Status atualizado. Cronômetro pausado, %s registrados", FormatHMS(p.RecordedSeconds))
	}
	return "Status atualizado"
}

// ============================================================
// Controller
// ============================================================

// TransitionResult is returned by POST /v1/demands/{id}/status.
type TransitionResult struct {
	Demand          *domain.Demand `json:"demand"`
	Notice          string         `json:"notice"`
	Message         string         `json:"message"`
	RecordedSeconds int64          `json:"recorded_seconds,omitempty"`
	Corrected       bool           `json:"corrected,omitempty"`
}

// TransitionController applies status changes and keeps the production
// timer consistent with the status.
type TransitionController struct {
	demands  port.DemandStore
	statuses StatusSource
	logs     port.LogStore
	notifier port.ChangeNotifier
	clock    Clock
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu   sync.Mutex
	seq  uint64
	gens map[string]uint64
}

// NewTransitionController creates the controller.
func NewTransitionController(
	demands port.DemandStore,
	statuses StatusSource,
	logs port.LogStore,
	notifier port.ChangeNotifier,
	clock Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TransitionController {
	return &TransitionController{
		demands:  demands,
		statuses: statuses,
		logs:     logs,
		notifier: notifier,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		gens:     make(map[string]uint64),
	}
}

// Transition moves a demand to toStatusID.
func (c *TransitionController) Transition(ctx context.Context, sess *domain.Session, demandID, toStatusID string) (*TransitionResult, error) {
	ctx, span := transitionTracer.Start(ctx, "TransitionController.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("demand.id", demandID),
		attribute.String("status.to", toStatusID),
	)

	if toStatusID == "" {
		return nil, &domain.ErrValidation{Field: "status_id", Message: "status é obrigatório"}
	}

	statuses, err := c.statuses.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	to, ok := findStatus(statuses, toStatusID)
	if !ok {
		return nil, &domain.ErrValidation{Field: "status_id", Message: "status inexistente"}
	}

	gen := c.begin(demandID)
	defer c.end(demandID, gen)

	current, err := c.demands.GetDemand(ctx, demandID)
	if err != nil {
		return nil, err
	}
	if current.StatusID == to.ID {
		return &TransitionResult{Demand: current, Notice: NoticeStatusUpdated, Message: "Status atualizado"}, nil
	}
	from, _ := findStatus(statuses, current.StatusID)

	now := c.clock.Now()
	plan := PlanTransition(*current, from, to, now)

	if _, err := c.demands.UpdateDemand(ctx, demandID, plan.Patch()); err != nil {
		c.logger.Error("transition: update failed",
			zap.String("demand_id", demandID),
			zap.String("to_status", to.Name),
			zap.Error(err),
		)
		return nil, err
	}

	recordLog(ctx, c.logs, c.logger, sess, domain.LogUpdate, "demands", demandID, transitionDetails(from, to, plan))
	c.metrics.RecordTransition(plan.Notice(), plan.RecordedSeconds)

	result := &TransitionResult{
		Notice:          plan.Notice(),
		Message:         plan.Message(),
		RecordedSeconds: plan.RecordedSeconds,
	}

	result.Demand, result.Corrected = c.reconcile(ctx, demandID, to, statuses, gen)
	c.notifier.Publish(domain.ChangeEvent{Table: "demands", Type: "UPDATE", RecordID: demandID})
	return result, nil
}

// reconcile re-reads the demand and, if another writer moved it elsewhere
// meanwhile, writes the requested status again (last writer wins). The
// correction is skipped when a newer transition of the same demand was
// started by this process, since that one owns the final state.
func (c *TransitionController) reconcile(ctx context.Context, demandID string, want domain.Status, statuses []domain.Status, gen uint64) (*domain.Demand, bool) {
	fresh, err := c.demands.GetDemand(ctx, demandID)
	if err != nil {
		c.logger.Warn("transition: re-fetch failed", zap.String("demand_id", demandID), zap.Error(err))
		return nil, false
	}
	if fresh.StatusID == want.ID {
		return fresh, false
	}

	c.logger.Warn("transition: server status differs from requested",
		zap.String("demand_id", demandID),
		zap.String("requested", want.ID),
		zap.String("server", fresh.StatusID),
	)
	c.metrics.IncrDrift()

	if !c.isLatest(demandID, gen) {
		c.logger.Debug("transition: newer transition in flight, skipping correction", zap.String("demand_id", demandID))
		return fresh, false
	}

	serverStatus, _ := findStatus(statuses, fresh.StatusID)
	fix := PlanTransition(*fresh, serverStatus, want, c.clock.Now())
	corrected, err := c.demands.UpdateDemand(ctx, demandID, fix.Patch())
	if err != nil {
		c.logger.Error("transition: corrective update failed", zap.String("demand_id", demandID), zap.Error(err))
		return fresh, false
	}
	return corrected, true
}

// begin hands out a generation that is unique across all demands, so a
// pruned entry can never be confused with a later one.
func (c *TransitionController) begin(demandID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.gens[demandID] = c.seq
	return c.seq
}

// end drops the demand's entry unless a newer transition took it over.
func (c *TransitionController) end(demandID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[demandID] == gen {
		delete(c.gens, demandID)
	}
}

func (c *TransitionController) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.gens)
}

func (c *TransitionController) isLatest(demandID string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[demandID] == gen
}

func findStatus(statuses []domain.Status, id string) (domain.Status, bool) {
	for _, s := range statuses {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Status{ID: id}, false
}

func transitionDetails(from, to domain.Status, p TransitionPlan) map[string]any {
	details := map[string]any{
		"status_id":   change(from.ID, to.ID),
		"status_name": change(from.Name, to.Name),
		"status_kind": change(string(from.EffectiveKind()), string(to.EffectiveKind())),
	}
	if p.StartTimer {
		details["production_started_at"] = p.StartedAt.UTC()
	}
	if p.StopTimer {
		details["production_started_at"] = nil
		details["accumulated_time"] = p.AccumulatedTime
	}
	return details
}
