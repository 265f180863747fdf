package service

import (
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
)

// Filters hold no state: the list view and the counters both go through
// TabOf and Matches so their numbers always agree.

// statusOf returns the joined status of d, or the zero status.
func statusOf(d domain.Demand) domain.Status {
	if d.Status == nil {
		return domain.Status{}
	}
	return *d.Status
}

// IsDelayed reports whether an open demand is past its deadline. The
// deadline covers its whole day in now's location.
func IsDelayed(d domain.Demand, now time.Time) bool {
	if statusOf(d).IsCompleted() || d.Deadline.IsZero() {
		return false
	}
	return d.Deadline.EndOfDay(now.Location()).Before(now)
}

// TabOf returns the workflow tab of d, or TabAll when its status fits no
// tab (custom statuses).
func TabOf(d domain.Demand) domain.Tab {
	switch statusOf(d).EffectiveKind() {
	case domain.KindBacklog:
		return domain.TabBacklog
	case domain.KindApproval:
		return domain.TabApproval
	case domain.KindProduction:
		return domain.TabProduction
	case domain.KindReview:
		return domain.TabReview
	case domain.KindCompleted:
		return domain.TabCompleted
	}
	return domain.TabAll
}

// MatchesSearch is a case-insensitive substring match on title, id,
// sequence code and responsible name.
func MatchesSearch(d domain.Demand, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, field := range []string{d.Title, d.ID, d.Code(), d.ResponsibleName()} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// inRange checks created_at against the inclusive [From, To] day range.
func inRange(d domain.Demand, from, to domain.Date, loc *time.Location) bool {
	created := d.CreatedAt.In(loc)
	if !from.IsZero() && created.Before(from.StartOfDay(loc)) {
		return false
	}
	if !to.IsZero() && created.After(to.EndOfDay(loc)) {
		return false
	}
	return true
}

// matchesBase is every predicate except the tab and delayed ones.
func matchesBase(d domain.Demand, f domain.DemandFilter, loc *time.Location) bool {
	if f.DesignerID != "" && (d.ResponsibleID == nil || *d.ResponsibleID != f.DesignerID) {
		return false
	}
	return MatchesSearch(d, f.Search) && inRange(d, f.From, f.To, loc)
}

// Matches reports whether d passes every predicate of f.
func Matches(d domain.Demand, f domain.DemandFilter, now time.Time) bool {
	if !matchesBase(d, f, now.Location()) {
		return false
	}
	if f.Tab != domain.TabAll && TabOf(d) != f.Tab {
		return false
	}
	if f.Delayed && !IsDelayed(d, now) {
		return false
	}
	return true
}

// Apply filters and sorts demands. The input slice is not modified.
func Apply(demands []domain.Demand, f domain.DemandFilter, now time.Time) []domain.Demand {
	out := make([]domain.Demand, 0, len(demands))
	for _, d := range demands {
		if Matches(d, f, now) {
			out = append(out, d)
		}
	}
	Sort(out, f.Tab)
	return out
}

// Sort orders newest first: by updated_at on the approval and completed
// tabs, by created_at elsewhere.
func Sort(demands []domain.Demand, tab domain.Tab) {
	byUpdate := tab == domain.TabApproval || tab == domain.TabCompleted
	sort.SliceStable(demands, func(i, j int) bool {
		if byUpdate {
			return demands[i].UpdatedAt.After(demands[j].UpdatedAt)
		}
		return demands[i].CreatedAt.After(demands[j].CreatedAt)
	})
}

// TabCounts counts the demands matching f in each tab. The tab and
// delayed fields of f are ignored; every count uses Matches.
func TabCounts(demands []domain.Demand, f domain.DemandFilter, now time.Time) domain.TabCounters {
	base := f
	base.Tab = domain.TabAll
	base.Delayed = false

	var c domain.TabCounters
	for _, d := range demands {
		if !Matches(d, base, now) {
			continue
		}
		c.Total++
		switch TabOf(d) {
		case domain.TabBacklog:
			c.Backlog++
		case domain.TabApproval:
			c.Approval++
		case domain.TabProduction:
			c.Production++
		case domain.TabReview:
			c.Review++
		case domain.TabCompleted:
			c.Completed++
		}
		if IsDelayed(d, now) {
			c.Delayed++
		}
	}
	return c
}

// ParseTab validates a tab query value.
func ParseTab(s string) (domain.Tab, bool) {
	t := domain.Tab(strings.ToLower(strings.TrimSpace(s)))
	if t == domain.TabAll {
		return t, true
	}
	for _, known := range domain.Tabs {
		if t == known {
			return t, true
		}
	}
	return domain.TabAll, false
}
