package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var analyticsTracer = otel.Tracer("service/analytics")

// logScanLimit bounds the audit entries scanned for completion times.
const logScanLimit = 10000

// ============================================================
// Pure reductions
// ============================================================

// CompletionTimes returns, per demand, the latest audit entry that moved
// it into a completed status.
func CompletionTimes(logs []domain.LogEntry, statuses []domain.Status) map[string]time.Time {
	completed := make(map[string]bool)
	for _, s := range statuses {
		if s.IsCompleted() {
			completed[s.ID] = true
		}
	}

	out := make(map[string]time.Time)
	for _, e := range logs {
		if e.TableName != "demands" || e.Action != domain.LogUpdate || e.RecordID == "" {
			continue
		}
		if !enteredCompleted(e.Details, completed) {
			continue
		}
		if prev, ok := out[e.RecordID]; !ok || e.CreatedAt.After(prev) {
			out[e.RecordID] = e.CreatedAt
		}
	}
	return out
}

func enteredCompleted(details map[string]any, completed map[string]bool) bool {
	if kind, ok := newValue(details, "status_kind"); ok && kind == string(domain.KindCompleted) {
		return true
	}
	id, ok := newValue(details, "status_id")
	return ok && completed[id]
}

func newValue(details map[string]any, field string) (string, bool) {
	pair, ok := details[field].(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := pair["new"].(string)
	return v, ok
}

// LeadTime returns the days from creation to completion. closed is false
// for open demands, whose value runs until now and stays out of averages.
func LeadTime(d domain.Demand, completions map[string]time.Time, now time.Time) (days float64, closed bool) {
	end := now
	if statusOf(d).IsCompleted() {
		closed = true
		switch {
		case !completions[d.ID].IsZero():
			end = completions[d.ID]
		case d.FinishedAt != nil:
			end = *d.FinishedAt
		default:
			end = d.UpdatedAt
		}
	}
	days = end.Sub(d.CreatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return days, closed
}

// IsSLACompliant is true unless the demand is open and past its deadline.
func IsSLACompliant(d domain.Demand, now time.Time) bool {
	return !IsDelayed(d, now)
}

type leadAcc struct {
	sum   float64
	count int
}

func (a *leadAcc) add(days float64) {
	a.sum += days
	a.count++
}

func (a leadAcc) avg() float64 {
	if a.count == 0 {
		return 0
	}
	return round2(a.sum / float64(a.count))
}

// Summarize reduces demands created within [from, to] into the dashboard.
func Summarize(demands []domain.Demand, logs []domain.LogEntry, statuses []domain.Status, from, to domain.Date, now time.Time) *domain.DashboardSummary {
	completions := CompletionTimes(logs, statuses)
	loc := now.Location()

	var inScope []domain.Demand
	for _, d := range demands {
		if inRange(d, from, to, loc) {
			inScope = append(inScope, d)
		}
	}

	sum := &domain.DashboardSummary{
		GeneratedAt: now,
		From:        from,
		To:          to,
		Counters:    TabCounts(inScope, domain.DemandFilter{}, now),
	}

	var (
		total     leadAcc
		compliant int

		assignees    = make(map[string]*domain.AssigneeStats)
		assigneeLead = make(map[string]*leadAcc)
		types        = make(map[string]*domain.TypeStats)
		typeLead     = make(map[string]*leadAcc)
		statusTotals = make(map[string]int)
	)

	for _, d := range inScope {
		days, closed := LeadTime(d, completions, now)
		if closed {
			total.add(days)
			sum.ClosedCount++
		}
		if IsSLACompliant(d, now) {
			compliant++
		}
		statusTotals[d.StatusID]++

		aID, aName := "", "Sem responsável"
		if d.ResponsibleID != nil {
			aID = *d.ResponsibleID
			aName = d.ResponsibleName()
		}
		a, ok := assignees[aID]
		if !ok {
			a = &domain.AssigneeStats{ProfileID: aID, Name: aName}
			assignees[aID] = a
			assigneeLead[aID] = &leadAcc{}
		}
		a.Total++
		a.ProductionSeconds += ElapsedOf(&d, now).Seconds
		if closed {
			a.Completed++
			assigneeLead[aID].add(days)
		}
		if IsDelayed(d, now) {
			a.Delayed++
		}

		tName := ""
		if d.Type != nil {
			tName = d.Type.Name
		}
		t, ok := types[d.TypeID]
		if !ok {
			t = &domain.TypeStats{TypeID: d.TypeID, Name: tName}
			types[d.TypeID] = t
			typeLead[d.TypeID] = &leadAcc{}
		}
		t.Total++
		if closed {
			typeLead[d.TypeID].add(days)
		}
	}

	sum.AvgLeadTimeDays = total.avg()
	sum.SLACompliance = 100
	if len(inScope) > 0 {
		sum.SLACompliance = round2(float64(compliant) * 100 / float64(len(inScope)))
	}

	for id, a := range assignees {
		a.AvgLeadTimeDays = assigneeLead[id].avg()
		sum.ByAssignee = append(sum.ByAssignee, *a)
	}
	sort.Slice(sum.ByAssignee, func(i, j int) bool {
		if sum.ByAssignee[i].Total != sum.ByAssignee[j].Total {
			return sum.ByAssignee[i].Total > sum.ByAssignee[j].Total
		}
		return sum.ByAssignee[i].Name < sum.ByAssignee[j].Name
	})

	for id, t := range types {
		t.AvgLeadTimeDays = typeLead[id].avg()
		sum.ByType = append(sum.ByType, *t)
	}
	sort.Slice(sum.ByType, func(i, j int) bool {
		if sum.ByType[i].Total != sum.ByType[j].Total {
			return sum.ByType[i].Total > sum.ByType[j].Total
		}
		return sum.ByType[i].Name < sum.ByType[j].Name
	})

	for _, s := range sortedStatuses(statuses) {
		sum.ByStatus = append(sum.ByStatus, domain.StatusCount{
			StatusID: s.ID,
			Name:     s.Name,
			Kind:     s.EffectiveKind(),
			Total:    statusTotals[s.ID],
		})
	}
	return sum
}

// GroupByDeadline buckets demands due within month by day.
func GroupByDeadline(demands []domain.Demand, year int, month time.Month) []domain.CalendarDay {
	days := make(map[int][]domain.Demand)
	for _, d := range demands {
		if d.Deadline.Year == year && d.Deadline.Month == month {
			days[d.Deadline.Day] = append(days[d.Deadline.Day], d)
		}
	}
	out := make([]domain.CalendarDay, 0, len(days))
	for day, ds := range days {
		sort.SliceStable(ds, func(i, j int) bool { return ds[i].Title < ds[j].Title })
		out = append(out, domain.CalendarDay{
			Date:    domain.Date{Year: year, Month: month, Day: day},
			Demands: ds,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Day < out[j].Date.Day })
	return out
}

func sortedStatuses(statuses []domain.Status) []domain.Status {
	out := append([]domain.Status(nil), statuses...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ============================================================
// Service
// ============================================================

// Analytics loads board data and reduces it into dashboards.
type Analytics struct {
	demands  port.DemandStore
	logs     port.LogStore
	statuses StatusSource
	clock    Clock
	loc      *time.Location
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAnalytics creates the analytics service. Day boundaries use loc.
func NewAnalytics(demands port.DemandStore, logs port.LogStore, statuses StatusSource, clock Clock, loc *time.Location, metrics *observability.Metrics, logger *zap.Logger) *Analytics {
	if loc == nil {
		loc = time.UTC
	}
	return &Analytics{
		demands:  demands,
		logs:     logs,
		statuses: statuses,
		clock:    clock,
		loc:      loc,
		metrics:  metrics,
		logger:   logger,
	}
}

// Now is the analytics clock in the board timezone.
func (a *Analytics) Now() time.Time {
	return a.clock.Now().In(a.loc)
}

type boardData struct {
	demands  []domain.Demand
	logs     []domain.LogEntry
	statuses []domain.Status
}

func (a *Analytics) load(ctx context.Context) (*boardData, error) {
	var data boardData
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d, err := a.demands.ListDemands(gCtx)
		if err != nil {
			return fmt.Errorf("list demands: %w", err)
		}
		data.demands = d
		return nil
	})
	g.Go(func() error {
		l, err := a.logs.ListLogs(gCtx, domain.LogFilter{
			TableName: "demands",
			Action:    domain.LogUpdate,
			Limit:     logScanLimit,
		})
		if err != nil {
			return fmt.Errorf("list logs: %w", err)
		}
		data.logs = l
		return nil
	})
	g.Go(func() error {
		s, err := a.statuses.Statuses(gCtx)
		if err != nil {
			return fmt.Errorf("list statuses: %w", err)
		}
		data.statuses = s
		return nil
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("analytics: load failed", zap.Error(err))
		return nil, err
	}
	return &data, nil
}

// Dashboard summarizes the demands created within [from, to]. Zero dates
// leave that side open.
func (a *Analytics) Dashboard(ctx context.Context, from, to domain.Date) (*domain.DashboardSummary, error) {
	ctx, span := analyticsTracer.Start(ctx, "Analytics.Dashboard")
	defer span.End()

	start := time.Now()
	defer func() { a.metrics.RecordRequestDuration("dashboard", time.Since(start)) }()

	if !from.IsZero() && !to.IsZero() && from.StartOfDay(a.loc).After(to.StartOfDay(a.loc)) {
		return nil, &domain.ErrValidation{Field: "from", Message: "data inicial maior que a final"}
	}

	data, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(data.demands, data.logs, data.statuses, from, to, a.Now()), nil
}

// Report returns the dashboard plus the demand rows it covers, for export.
func (a *Analytics) Report(ctx context.Context, from, to domain.Date) (*domain.DashboardSummary, []domain.Demand, error) {
	ctx, span := analyticsTracer.Start(ctx, "Analytics.Report")
	defer span.End()

	data, err := a.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	now := a.Now()
	rows := Apply(data.demands, domain.DemandFilter{From: from, To: to}, now)
	return Summarize(data.demands, data.logs, data.statuses, from, to, now), rows, nil
}

// Calendar returns the demands due in month ("YYYY-MM"), grouped by day.
func (a *Analytics) Calendar(ctx context.Context, month string) ([]domain.CalendarDay, error) {
	ctx, span := analyticsTracer.Start(ctx, "Analytics.Calendar")
	defer span.End()

	var m time.Time
	if month == "" {
		m = a.Now()
	} else {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "month", Message: "use o formato AAAA-MM"}
		}
		m = parsed
	}

	demands, err := a.demands.ListDemands(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByDeadline(demands, m.Year(), m.Month()), nil
}
