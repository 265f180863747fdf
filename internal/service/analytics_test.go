package service_test

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func completionLog(demandID string, at time.Time) domain.LogEntry {
	return domain.LogEntry{
		Action:    domain.LogUpdate,
		TableName: "demands",
		RecordID:  demandID,
		CreatedAt: at,
		Details: map[string]any{
			"status_id": map[string]any{"old": stReview.ID, "new": stDone.ID},
		},
	}
}

func TestLeadTime(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -10)

	done := withStatus(domain.Demand{ID: "d1", CreatedAt: created, UpdatedAt: now}, stDone)
	logs := []domain.LogEntry{
		completionLog("d1", created.AddDate(0, 0, 2)),
		completionLog("d1", created.AddDate(0, 0, 4)),
	}
	completions := service.CompletionTimes(logs, defaultStatuses())

	days, closed := service.LeadTime(done, completions, now)
	if !closed || days != 4 {
		t.Errorf("expected 4 days from latest completion log, got %v closed=%v", days, closed)
	}

	days, closed = service.LeadTime(withStatus(domain.Demand{ID: "d2", CreatedAt: created, UpdatedAt: created.AddDate(0, 0, 6)}, stDone), completions, now)
	if !closed || days != 6 {
		t.Errorf("expected updated_at fallback of 6 days, got %v", days)
	}

	_, closed = service.LeadTime(withStatus(domain.Demand{ID: "d3", CreatedAt: created}, stProduction), completions, now)
	if closed {
		t.Error("open demands are not closed")
	}
}

func TestCompletionTimes_KindMarker(t *testing.T) {
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	logs := []domain.LogEntry{{
		Action: domain.LogUpdate, TableName: "demands", RecordID: "d9", CreatedAt: at,
		Details: map[string]any{"status_kind": map[string]any{"old": "review", "new": "completed"}},
	}, {
		Action: domain.LogUpdate, TableName: "demands", RecordID: "d8", CreatedAt: at,
		Details: map[string]any{"title": map[string]any{"old": "a", "new": "b"}},
	}}
	got := service.CompletionTimes(logs, nil)
	if !got["d9"].Equal(at) {
		t.Error("expected d9 completion from kind marker")
	}
	if _, ok := got["d8"]; ok {
		t.Error("title edits are not completions")
	}
}

func TestIsSLACompliant(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	past := domain.NewDate(now.AddDate(0, 0, -3))

	if service.IsSLACompliant(withStatus(domain.Demand{Deadline: past}, stReview), now) {
		t.Error("open and past deadline is not compliant")
	}
	if !service.IsSLACompliant(withStatus(domain.Demand{Deadline: past}, stDone), now) {
		t.Error("completed is compliant regardless of deadline")
	}
	if !service.IsSLACompliant(withStatus(domain.Demand{}, stReview), now) {
		t.Error("no deadline is compliant")
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	ana, bia := "ana", "bia"
	past := domain.NewDate(now.AddDate(0, 0, -1))
	started := now.Add(-30 * time.Second)

	demands := []domain.Demand{
		withStatus(domain.Demand{ID: "d1", TypeID: "post", ResponsibleID: &ana, Responsible: &domain.ProfileRef{FullName: "Ana"}, CreatedAt: now.AddDate(0, 0, -4), UpdatedAt: now.AddDate(0, 0, -2), AccumulatedTime: 100}, stDone),
		withStatus(domain.Demand{ID: "d2", TypeID: "post", ResponsibleID: &ana, Responsible: &domain.ProfileRef{FullName: "Ana"}, CreatedAt: now.AddDate(0, 0, -3), Deadline: past, AccumulatedTime: 20, ProductionStartedAt: &started}, stProduction),
		withStatus(domain.Demand{ID: "d3", TypeID: "video", ResponsibleID: &bia, Responsible: &domain.ProfileRef{FullName: "Bia"}, CreatedAt: now.AddDate(0, 0, -2)}, stBacklog),
		withStatus(domain.Demand{ID: "d4", TypeID: "video", CreatedAt: now.AddDate(0, -2, 0)}, stBacklog),
	}

	from := domain.NewDate(now.AddDate(0, 0, -7))
	sum := service.Summarize(demands, nil, defaultStatuses(), from, domain.Date{}, now)

	if sum.Counters.Total != 3 {
		t.Fatalf("expected 3 demands in range, got %d", sum.Counters.Total)
	}
	if sum.Counters.Delayed != 1 || sum.ClosedCount != 1 {
		t.Errorf("unexpected counters %+v closed=%d", sum.Counters, sum.ClosedCount)
	}
	if math.Abs(sum.SLACompliance-66.67) > 0.01 {
		t.Errorf("expected 66.67%% SLA, got %v", sum.SLACompliance)
	}
	if sum.AvgLeadTimeDays != 2 {
		t.Errorf("expected avg lead time 2, got %v", sum.AvgLeadTimeDays)
	}

	if len(sum.ByAssignee) != 2 || sum.ByAssignee[0].Name != "Ana" {
		t.Fatalf("unexpected assignees %+v", sum.ByAssignee)
	}
	a := sum.ByAssignee[0]
	if a.Total != 2 || a.Completed != 1 || a.Delayed != 1 || a.ProductionSeconds != 150 {
		t.Errorf("unexpected Ana stats %+v", a)
	}
	if len(sum.ByStatus) != len(defaultStatuses()) || sum.ByStatus[0].StatusID != stBacklog.ID || sum.ByStatus[0].Total != 1 {
		t.Errorf("unexpected status counts %+v", sum.ByStatus)
	}
}

func TestGroupByDeadline(t *testing.T) {
	demands := []domain.Demand{
		{ID: "a", Title: "B", Deadline: domain.Date{Year: 2026, Month: 3, Day: 5}},
		{ID: "b", Title: "A", Deadline: domain.Date{Year: 2026, Month: 3, Day: 5}},
		{ID: "c", Deadline: domain.Date{Year: 2026, Month: 3, Day: 1}},
		{ID: "d", Deadline: domain.Date{Year: 2026, Month: 4, Day: 1}},
		{ID: "e"},
	}
	days := service.GroupByDeadline(demands, 2026, time.March)
	if len(days) != 2 || days[0].Date.Day != 1 || len(days[1].Demands) != 2 || days[1].Demands[0].ID != "b" {
		t.Errorf("unexpected calendar %+v", days)
	}
}

func TestAnalytics_DashboardLoadsConcurrently(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	store := newMockDemandStore(defaultStatuses(),
		domain.Demand{ID: "d1", StatusID: stDone.ID, CreatedAt: now.AddDate(0, 0, -3), UpdatedAt: now},
	)
	logs := &mockLogStore{entries: []domain.LogEntry{completionLog("d1", now.AddDate(0, 0, -1))}}
	a := service.NewAnalytics(store, logs, staticStatuses(defaultStatuses()), newFakeClock(now), time.UTC, observability.NewMetrics(), zap.NewNop())

	sum, err := a.Dashboard(context.Background(), domain.Date{}, domain.Date{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.AvgLeadTimeDays != 2 {
		t.Errorf("expected lead time from log (2 days), got %v", sum.AvgLeadTimeDays)
	}

	_, err = a.Dashboard(context.Background(), domain.NewDate(now), domain.NewDate(now.AddDate(0, 0, -1)))
	if err == nil {
		t.Error("expected validation error for inverted range")
	}
}

func TestAnalytics_Calendar(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	store := newMockDemandStore(defaultStatuses(),
		domain.Demand{ID: "d1", StatusID: stBacklog.ID, Deadline: domain.Date{Year: 2026, Month: 5, Day: 2}},
	)
	a := service.NewAnalytics(store, &mockLogStore{}, staticStatuses(defaultStatuses()), newFakeClock(now), time.UTC, observability.NewMetrics(), zap.NewNop())

	days, err := a.Calendar(context.Background(), "2026-05")
	if err != nil || len(days) != 1 {
		t.Fatalf("expected one day, got %v %v", days, err)
	}
	if _, err := a.Calendar(context.Background(), "maio"); err == nil {
		t.Error("expected validation error")
	}
}

func TestWriteReport(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	demands := []domain.Demand{
		withStatus(domain.Demand{ID: "d1", SequenceNumber: 7, Title: "Banner", CreatedAt: now, AccumulatedTime: 3661}, stReview),
	}
	sum := service.Summarize(demands, nil, defaultStatuses(), domain.Date{}, domain.Date{}, now)

	var buf bytes.Buffer
	if err := service.WriteReport(&buf, sum, demands, time.UTC); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer f.Close()

	code, _ := f.GetCellValue("Demandas", "A2")
	if code != "DEM-0007" {
		t.Errorf("expected DEM-0007, got %q", code)
	}
	elapsed, _ := f.GetCellValue("Demandas", "K2")
	if elapsed != "01:01:01" {
		t.Errorf("expected 01:01:01, got %q", elapsed)
	}
	total, _ := f.GetCellValue("Resumo", "B3")
	if total != "1" {
		t.Errorf("expected total 1, got %q", total)
	}
}
