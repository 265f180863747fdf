package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

func newDemandService(store *mockDemandStore, lookups *mockLookupStore, logs *mockLogStore, clock *fakeClock) *service.DemandService {
	hub := newHub()
	return service.NewDemandService(store, newLookupServiceWithDemands(lookups, logs, store, hub), logs, hub, clock, time.UTC, observability.NewMetrics(), zap.NewNop())
}

func TestCreateDemand_DefaultsToFirstOpenStatus(t *testing.T) {
	done := domain.Status{ID: "st-done-first", Name: "Concluído", OrderIndex: -1}
	lookups := &mockLookupStore{statuses: append([]domain.Status{done}, defaultStatuses()...)}
	store := newMockDemandStore(lookups.statuses)
	logs := &mockLogStore{}
	svc := newDemandService(store, lookups, logs, newFakeClock(t0))

	d, err := svc.Create(context.Background(), editor(), &domain.CreateDemandRequest{
		Title: "  Carrossel  ", TypeID: "post", OriginID: "insta",
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.StatusID != stBacklog.ID {
		t.Errorf("expected backlog default, got %s", d.StatusID)
	}
	if d.Title != "Carrossel" || d.Priority != domain.PriorityMedium || d.CreatedBy != "user-1" {
		t.Errorf("unexpected demand %+v", d)
	}
	if d.ProductionStartedAt != nil || d.AccumulatedTime != 0 {
		t.Error("new backlog demand must have no running timer")
	}
	if len(logs.all()) != 1 || logs.all()[0].Action != domain.LogCreate {
		t.Errorf("expected one CREATE entry, got %+v", logs.all())
	}
}

func TestCreateDemand_InProductionStartsTimer(t *testing.T) {
	lookups := &mockLookupStore{statuses: defaultStatuses()}
	store := newMockDemandStore(lookups.statuses)
	svc := newDemandService(store, lookups, &mockLogStore{}, newFakeClock(t0))

	d, err := svc.Create(context.Background(), editor(), &domain.CreateDemandRequest{
		Title: "Reels", TypeID: "video", OriginID: "insta", StatusID: stProduction.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.ProductionStartedAt == nil || !d.ProductionStartedAt.Equal(t0) {
		t.Errorf("expected timer started at creation, got %v", d.ProductionStartedAt)
	}
}

func TestCreateDemand_ValidationNeverReachesStore(t *testing.T) {
	lookups := &mockLookupStore{statuses: defaultStatuses()}
	store := newMockDemandStore(lookups.statuses)
	svc := newDemandService(store, lookups, &mockLogStore{}, newFakeClock(t0))

	bad := []*domain.CreateDemandRequest{
		{TypeID: "t", OriginID: "o"},
		{Title: "x", OriginID: "o"},
		{Title: "x", TypeID: "t"},
		{Title: "x", TypeID: "t", OriginID: "o", Priority: "Urgente"},
	}
	for i, req := range bad {
		_, err := svc.Create(context.Background(), editor(), req)
		var ve *domain.ErrValidation
		if !errors.As(err, &ve) {
			t.Errorf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
	if len(store.rows) != 0 || lookups.listCalls() != 0 {
		t.Error("validation must happen before any backend call")
	}
}

func TestUpdateDemand_PatchAndDiff(t *testing.T) {
	resp := "u-1"
	store := newMockDemandStore(defaultStatuses(), domain.Demand{
		ID: "d1", Title: "A", Priority: domain.PriorityLow, StatusID: stBacklog.ID, ResponsibleID: &resp,
	})
	logs := &mockLogStore{}
	svc := newDemandService(store, &mockLookupStore{statuses: defaultStatuses()}, logs, newFakeClock(t0))

	var patch service.DemandPatch
	body := `{"title":"A","priority":"Alta","responsible_id":null,"deadline":"2026-04-01"}`
	if err := json.Unmarshal([]byte(body), &patch); err != nil {
		t.Fatal(err)
	}

	d, err := svc.Update(context.Background(), editor(), "d1", &patch)
	if err != nil {
		t.Fatal(err)
	}
	if d.Priority != domain.PriorityHigh || d.ResponsibleID != nil || d.Deadline.String() != "2026-04-01" {
		t.Errorf("unexpected demand %+v", d)
	}

	details := logs.all()[0].Details
	if _, ok := details["title"]; ok {
		t.Error("unchanged title must not be logged")
	}
	if p := details["priority"].(map[string]any); p["old"] != "Baixa" || p["new"] != "Alta" {
		t.Errorf("unexpected priority diff %+v", p)
	}
	if v, ok := details["responsible_id"]; !ok || v != nil {
		t.Errorf("expected responsible_id cleared in details, got %v", v)
	}
}

func TestUpdateDemand_AbsentFieldsUntouched(t *testing.T) {
	var patch service.DemandPatch
	if err := json.Unmarshal([]byte(`{"caption":"oi"}`), &patch); err != nil {
		t.Fatal(err)
	}
	if patch.ResponsibleID.Set || patch.Deadline.Set {
		t.Error("absent optional fields must stay unset")
	}
}

func TestUpdateDemand_NoChangesSkipsWrite(t *testing.T) {
	store := newMockDemandStore(defaultStatuses(), domain.Demand{ID: "d1", Title: "Same", StatusID: stBacklog.ID})
	logs := &mockLogStore{}
	svc := newDemandService(store, &mockLookupStore{statuses: defaultStatuses()}, logs, newFakeClock(t0))

	if _, err := svc.Update(context.Background(), editor(), "d1", &service.DemandPatch{Title: ptr("Same")}); err != nil {
		t.Fatal(err)
	}
	if store.updateCount() != 0 || len(logs.all()) != 0 {
		t.Error("identical patch must not write")
	}
}

func TestDeleteDemand_Logs(t *testing.T) {
	store := newMockDemandStore(defaultStatuses(), domain.Demand{ID: "d1", Title: "Bye", SequenceNumber: 3, StatusID: stBacklog.ID})
	logs := &mockLogStore{}
	svc := newDemandService(store, &mockLookupStore{statuses: defaultStatuses()}, logs, newFakeClock(t0))

	if err := svc.Delete(context.Background(), editor(), "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDemand(context.Background(), "d1"); err == nil {
		t.Error("expected demand removed")
	}
	e := logs.all()[0]
	if e.Action != domain.LogDelete || e.Details["code"] != "DEM-0003" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestBoard_ListAndCountersShareFilter(t *testing.T) {
	now := t0
	store := newMockDemandStore(defaultStatuses(),
		domain.Demand{ID: "d1", Title: "Post A", StatusID: stProduction.ID, CreatedAt: now.Add(-time.Hour)},
		domain.Demand{ID: "d2", Title: "Post B", StatusID: stBacklog.ID, CreatedAt: now.Add(-2 * time.Hour)},
		domain.Demand{ID: "d3", Title: "Vídeo", StatusID: stProduction.ID, CreatedAt: now},
	)
	svc := newDemandService(store, &mockLookupStore{statuses: defaultStatuses()}, &mockLogStore{}, newFakeClock(now))

	view, err := svc.Board(context.Background(), domain.DemandFilter{Search: "post", Tab: domain.TabProduction})
	if err != nil {
		t.Fatal(err)
	}
	if view.Total != 1 || view.Data[0].ID != "d1" {
		t.Errorf("unexpected list %+v", view.Data)
	}
	if view.Counters.Production != 1 || view.Counters.Backlog != 1 || view.Counters.Total != 2 {
		t.Errorf("unexpected counters %+v", view.Counters)
	}
}
