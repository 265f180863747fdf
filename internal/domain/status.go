package domain

import "strings"

// StatusKind is the workflow meaning of a status. Statuses are renamable by
// users; the kind is what the timer, the tabs and the analytics look at.
type StatusKind string

const (
	KindBacklog    StatusKind = "backlog"
	KindApproval   StatusKind = "approval"
	KindProduction StatusKind = "production"
	KindReview     StatusKind = "review"
	KindCompleted  StatusKind = "completed"
	KindCustom     StatusKind = "custom"
)

// Valid reports whether k is one of the known kinds.
func (k StatusKind) Valid() bool {
	switch k {
	case KindBacklog, KindApproval, KindProduction, KindReview, KindCompleted, KindCustom:
		return true
	}
	return false
}

// Status is a user-configurable workflow state.
type Status struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Color      string     `json:"color,omitempty"`
	OrderIndex int        `json:"order_index"`
	Kind       StatusKind `json:"kind,omitempty"`
}

// Substrings used to infer the kind of legacy statuses that were saved
// before the kind column existed. Order matters: completion is checked
// first so "Produção concluída" is completed, not production.
var (
	completedMarkers  = []string{"conclu", "entregue", "finaliz"}
	productionMarkers = []string{"produção", "producao", "production"}
	reviewMarkers     = []string{"revis", "parad", "pausad", "stalled"}
	approvalMarkers   = []string{"aprova", "agend"}
	backlogMarkers    = []string{"backlog"}
)

// InferStatusKind classifies a status name by case-insensitive substring.
func InferStatusKind(name string) StatusKind {
	n := strings.ToLower(name)
	switch {
	case containsAny(n, completedMarkers):
		return KindCompleted
	case containsAny(n, productionMarkers):
		return KindProduction
	case containsAny(n, reviewMarkers):
		return KindReview
	case containsAny(n, approvalMarkers):
		return KindApproval
	case containsAny(n, backlogMarkers):
		return KindBacklog
	}
	return KindCustom
}

// EffectiveKind returns the stored kind, falling back to name inference
// for rows without one.
func (s Status) EffectiveKind() StatusKind {
	if s.Kind.Valid() {
		return s.Kind
	}
	return InferStatusKind(s.Name)
}

// IsProduction reports whether time accrues while a demand is in s.
func (s Status) IsProduction() bool {
	return s.EffectiveKind() == KindProduction
}

// IsCompleted reports whether s is a delivery state.
func (s Status) IsCompleted() bool {
	return s.EffectiveKind() == KindCompleted
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Lookup is a simple named row (demand types, origins, job titles).
type Lookup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}
