package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"
)

func TestStatuses_CachedAndSorted(t *testing.T) {
	store := &mockLookupStore{statuses: []domain.Status{stDone, stBacklog, stProduction}}
	svc := newLookupService(store, &mockLogStore{}, newHub())
	ctx := context.Background()

	list, err := svc.Statuses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].ID != stBacklog.ID || list[2].ID != stDone.ID {
		t.Errorf("expected order_index order, got %+v", list)
	}
	_, _ = svc.Statuses(ctx)
	if store.listCalls() != 1 {
		t.Errorf("expected one store call, got %d", store.listCalls())
	}
}

func TestLookupRun_InvalidatesOnChange(t *testing.T) {
	store := &mockLookupStore{lookups: map[string][]domain.Lookup{"types": {{ID: "t1", Name: "Post"}}}}
	hub := newHub()
	svc := newLookupService(store, &mockLogStore{}, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)
	waitFor(t, func() bool { return hub.Count() == 1 })

	_, _ = svc.Lookups(ctx, "types")
	_, _ = svc.Lookups(ctx, "types")
	if store.listCalls() != 1 {
		t.Fatalf("expected cached lookups, got %d calls", store.listCalls())
	}

	hub.Publish(domain.ChangeEvent{Table: "types", Type: "INSERT"})
	waitFor(t, func() bool {
		_, _ = svc.Lookups(ctx, "types")
		return store.listCalls() >= 2
	})
}

func TestLookups_UnknownTable(t *testing.T) {
	svc := newLookupService(&mockLookupStore{}, &mockLogStore{}, newHub())
	_, err := svc.Lookups(context.Background(), "profiles")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateStatus_InfersKindAndAppends(t *testing.T) {
	store := &mockLookupStore{statuses: defaultStatuses()}
	logs := &mockLogStore{}
	svc := newLookupService(store, logs, newHub())
	ctx := context.Background()

	st, err := svc.CreateStatus(ctx, editor(), statusInput("Produção externa", nil))
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != domain.KindProduction || st.OrderIndex != 6 {
		t.Errorf("unexpected status %+v", st)
	}

	custom := domain.KindReview
	st, err = svc.CreateStatus(ctx, editor(), statusInput("Com o cliente", &custom))
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != domain.KindReview {
		t.Errorf("explicit kind must win, got %s", st.Kind)
	}

	bad := domain.StatusKind("archived")
	_, err = svc.CreateStatus(ctx, editor(), statusInput("X", &bad))
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Errorf("expected ErrValidation for unknown kind, got %v", err)
	}
	if len(logs.all()) != 2 || logs.all()[0].TableName != "statuses" {
		t.Errorf("expected two statuses log entries, got %+v", logs.all())
	}
}

func TestUpdateStatus_RenameKeepsKind(t *testing.T) {
	prod := stProduction
	prod.Kind = domain.KindProduction
	store := &mockLookupStore{statuses: []domain.Status{prod}}
	svc := newLookupService(store, &mockLogStore{}, newHub())
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, editor(), prod.ID, statusInput("Fazendo", nil)); err != nil {
		t.Fatal(err)
	}
	list, _ := svc.Statuses(ctx)
	if list[0].Name != "Fazendo" || !list[0].IsProduction() {
		t.Errorf("renamed status must keep its kind, got %+v", list[0])
	}
}

func statusInput(name string, kind *domain.StatusKind) service.StatusInput {
	return service.StatusInput{Name: &name, Kind: kind}
}

func TestUpdateStatus_RenamePinsInferredKind(t *testing.T) {
	store := &mockLookupStore{statuses: []domain.Status{stProduction}}
	started := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	demands := newMockDemandStore(store.statuses,
		domain.Demand{ID: "d1", StatusID: stProduction.ID, ProductionStartedAt: &started})
	svc := newLookupServiceWithDemands(store, &mockLogStore{}, demands, newHub())
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, editor(), stProduction.ID, statusInput("Em andamento", nil)); err != nil {
		t.Fatal(err)
	}
	if got := store.updated[0]["kind"]; got != string(domain.KindProduction) {
		t.Errorf("rename of a row without kind must store the inferred one, patch kind = %v", got)
	}
	list, _ := svc.Statuses(ctx)
	if list[0].Name != "Em andamento" || !list[0].IsProduction() {
		t.Errorf("renamed status left production: %+v", list[0])
	}
}

func TestUpdateStatus_KindChangeAcrossProduction(t *testing.T) {
	prod := stProduction
	prod.Kind = domain.KindProduction
	store := &mockLookupStore{statuses: []domain.Status{prod, stReview}}
	started := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	demands := newMockDemandStore(store.statuses,
		domain.Demand{ID: "d1", StatusID: prod.ID, ProductionStartedAt: &started})
	svc := newLookupServiceWithDemands(store, &mockLogStore{}, demands, newHub())
	ctx := context.Background()

	review := domain.KindReview
	_, err := svc.UpdateStatus(ctx, editor(), prod.ID, service.StatusInput{Kind: &review})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict while demands are in production, got %v", err)
	}
	if len(store.updated) != 0 {
		t.Errorf("refused change reached the store: %+v", store.updated)
	}

	// Same side of the boundary is allowed.
	approval := domain.KindApproval
	if _, err := svc.UpdateStatus(ctx, editor(), stReview.ID, service.StatusInput{Kind: &approval}); err != nil {
		t.Errorf("review -> approval should pass, got %v", err)
	}

	// An empty status can be flipped.
	production := domain.KindProduction
	if _, err := svc.UpdateStatus(ctx, editor(), stReview.ID, service.StatusInput{Kind: &production}); err != nil {
		t.Errorf("unused status should accept a production kind, got %v", err)
	}
}
