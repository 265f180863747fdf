package domain

import "time"

// ============================================================
// Board tabs & filters
// ============================================================

// Tab is a workflow bucket of the demand list.
type Tab string

const (
	TabAll        Tab = ""
	TabBacklog    Tab = "backlog"
	TabApproval   Tab = "approval"
	TabProduction Tab = "production"
	TabReview     Tab = "review"
	TabCompleted  Tab = "completed"
)

// Tabs lists the workflow tabs in board order.
var Tabs = []Tab{TabBacklog, TabApproval, TabProduction, TabReview, TabCompleted}

// DemandFilter is the combined list filter. Zero fields match everything.
type DemandFilter struct {
	Search     string
	DesignerID string
	From       Date
	To         Date
	Tab        Tab
	Delayed    bool
}

// TabCounters are the quick-filter counters shown above the list.
type TabCounters struct {
	Total      int `json:"total"`
	Backlog    int `json:"backlog"`
	Approval   int `json:"approval"`
	Production int `json:"production"`
	Review     int `json:"review"`
	Completed  int `json:"completed"`
	Delayed    int `json:"delayed"`
}

// ============================================================
// Dashboard & reports
// ============================================================

// AssigneeStats is the per-responsible aggregate.
type AssigneeStats struct {
	ProfileID         string  `json:"profile_id"`
	Name              string  `json:"name"`
	Total             int     `json:"total"`
	Completed         int     `json:"completed"`
	Delayed           int     `json:"delayed"`
	AvgLeadTimeDays   float64 `json:"avg_lead_time_days"`
	ProductionSeconds int64   `json:"production_seconds"`
}

// TypeStats is the per-demand-type aggregate.
type TypeStats struct {
	TypeID          string  `json:"type_id"`
	Name            string  `json:"name"`
	Total           int     `json:"total"`
	AvgLeadTimeDays float64 `json:"avg_lead_time_days"`
}

// StatusCount is the per-status counter.
type StatusCount struct {
	StatusID string     `json:"status_id"`
	Name     string     `json:"name"`
	Kind     StatusKind `json:"kind"`
	Total    int        `json:"total"`
}

// DashboardSummary is returned by GET /v1/dashboard.
type DashboardSummary struct {
	GeneratedAt     time.Time       `json:"generated_at"`
	From            Date            `json:"from"`
	To              Date            `json:"to"`
	Counters        TabCounters     `json:"counters"`
	SLACompliance   float64         `json:"sla_compliance_pct"`
	AvgLeadTimeDays float64         `json:"avg_lead_time_days"`
	ClosedCount     int             `json:"closed_count"`
	ByAssignee      []AssigneeStats `json:"by_assignee"`
	ByType          []TypeStats     `json:"by_type"`
	ByStatus        []StatusCount   `json:"by_status"`
}

// CalendarDay groups demands due on the same day.
type CalendarDay struct {
	Date    Date     `json:"date"`
	Demands []Demand `json:"demands"`
}
