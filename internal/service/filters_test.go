package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"
)

func withStatus(d domain.Demand, st domain.Status) domain.Demand {
	d.StatusID = st.ID
	d.Status = &st
	return d
}

func TestIsDelayed(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	yesterday := domain.NewDate(now.AddDate(0, 0, -1))
	today := domain.NewDate(now)

	d := domain.Demand{Deadline: yesterday}
	if !service.IsDelayed(withStatus(d, stBacklog), now) {
		t.Error("backlog demand due yesterday must be delayed")
	}
	if service.IsDelayed(withStatus(d, stDone), now) {
		t.Error("completed demand is never delayed")
	}
	if service.IsDelayed(withStatus(domain.Demand{Deadline: today}, stBacklog), now) {
		t.Error("a deadline covers its whole day")
	}
	if service.IsDelayed(withStatus(domain.Demand{}, stBacklog), now) {
		t.Error("no deadline is never delayed")
	}
	if !service.IsDelayed(withStatus(d, stCustom), now) {
		t.Error("custom statuses still count as delayed")
	}
}

func TestTabOf_ExclusiveByKind(t *testing.T) {
	cases := map[string]domain.Tab{
		"Backlog":              domain.TabBacklog,
		"Aguardando aprovação": domain.TabApproval,
		"Agendado":             domain.TabApproval,
		"Em Produção":          domain.TabProduction,
		"Em revisão":           domain.TabReview,
		"Parado":               domain.TabReview,
		"Concluído":            domain.TabCompleted,
		"Entregue":             domain.TabCompleted,
		"Produção concluída":   domain.TabCompleted,
		"Ideias":               domain.TabAll,
	}
	for name, want := range cases {
		d := withStatus(domain.Demand{}, domain.Status{Name: name})
		if got := service.TabOf(d); got != want {
			t.Errorf("%q: expected tab %q, got %q", name, want, got)
		}
	}
}

func TestMatchesSearch(t *testing.T) {
	resp := "u-9"
	d := domain.Demand{
		ID:             "5b1c-uuid",
		SequenceNumber: 42,
		Title:          "Post de lançamento",
		ResponsibleID:  &resp,
		Responsible:    &domain.ProfileRef{ID: resp, FullName: "Beatriz Lima"},
	}
	for _, q := range []string{"", "LANÇAMENTO", "dem-0042", "5b1c", "beatriz"} {
		if !service.MatchesSearch(d, q) {
			t.Errorf("expected match for %q", q)
		}
	}
	if service.MatchesSearch(d, "vídeo") {
		t.Error("unexpected match")
	}
}

func boardFixture(now time.Time) []domain.Demand {
	statuses := defaultStatuses()
	var out []domain.Demand
	for i := 0; i < 60; i++ {
		st := statuses[i%len(statuses)]
		d := domain.Demand{
			ID:        fmt.Sprintf("d%02d", i),
			Title:     fmt.Sprintf("Peça %d", i),
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
			UpdatedAt: now.Add(-time.Duration(60-i) * time.Minute),
		}
		if i%3 == 0 {
			d.Deadline = domain.NewDate(now.AddDate(0, 0, -2))
		}
		if i%4 == 0 {
			r := "designer-a"
			d.ResponsibleID = &r
		}
		out = append(out, withStatus(d, st))
	}
	return out
}

func TestTabCounts_AgreeWithApply(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	demands := boardFixture(now)

	filters := []domain.DemandFilter{
		{},
		{DesignerID: "designer-a"},
		{Search: "peça 1"},
		{From: domain.NewDate(now.AddDate(0, 0, -1)), To: domain.NewDate(now)},
	}
	for _, f := range filters {
		counts := service.TabCounts(demands, f, now)
		byTab := map[domain.Tab]int{
			domain.TabBacklog:    counts.Backlog,
			domain.TabApproval:   counts.Approval,
			domain.TabProduction: counts.Production,
			domain.TabReview:     counts.Review,
			domain.TabCompleted:  counts.Completed,
		}
		for tab, n := range byTab {
			tf := f
			tf.Tab = tab
			if got := len(service.Apply(demands, tf, now)); got != n {
				t.Errorf("filter %+v tab %s: counter %d, list %d", f, tab, n, got)
			}
		}
		df := f
		df.Delayed = true
		if got := len(service.Apply(demands, df, now)); got != counts.Delayed {
			t.Errorf("filter %+v: delayed counter %d, list %d", f, counts.Delayed, got)
		}
		if got := len(service.Apply(demands, f, now)); got != counts.Total {
			t.Errorf("filter %+v: total counter %d, list %d", f, counts.Total, got)
		}
	}
}

func TestApply_Sorting(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	demands := boardFixture(now)

	all := service.Apply(demands, domain.DemandFilter{}, now)
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatal("default list must be newest-created first")
		}
	}

	done := service.Apply(demands, domain.DemandFilter{Tab: domain.TabCompleted}, now)
	for i := 1; i < len(done); i++ {
		if done[i].UpdatedAt.After(done[i-1].UpdatedAt) {
			t.Fatal("completed tab must be most-recently-updated first")
		}
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	demands := boardFixture(now)
	first := demands[0].ID

	service.Apply(demands, domain.DemandFilter{Tab: domain.TabApproval}, now)
	if demands[0].ID != first {
		t.Error("input slice was reordered")
	}
}

func TestParseTab(t *testing.T) {
	if tab, ok := service.ParseTab("Production"); !ok || tab != domain.TabProduction {
		t.Errorf("expected production, got %q %v", tab, ok)
	}
	if _, ok := service.ParseTab("archived"); ok {
		t.Error("expected unknown tab rejected")
	}
}
