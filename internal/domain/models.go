// Package domain defines the core business entities of the marketing-ops
// demand board. These models mirror the Supabase tables but carry no
// knowledge of how they are fetched.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Demand
// ============================================================

// Priority of a demand as shown on the board.
type Priority string

const (
	PriorityHigh   Priority = "Alta"
	PriorityMedium Priority = "Média"
	PriorityLow    Priority = "Baixa"
)

// Valid reports whether p is one of the accepted priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Demand is a unit of creative work tracked through the status workflow.
type Demand struct {
	ID             string   `json:"id"`
	SequenceNumber int      `json:"sequence_number,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	Priority       Priority `json:"priority"`
	StatusID       string   `json:"status_id"`
	TypeID         string   `json:"type_id,omitempty"`
	OriginID       string   `json:"origin_id,omitempty"`
	ResponsibleID  *string  `json:"responsible_id"`
	CreatedBy      string   `json:"created_by,omitempty"`
	Deadline       Date     `json:"deadline"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Timer bookkeeping. ProductionStartedAt is set iff the current status
	// is a production status; AccumulatedTime holds closed sessions only.
	ProductionStartedAt *time.Time `json:"production_started_at"`
	AccumulatedTime     int64      `json:"accumulated_time"`
	FinishedAt          *time.Time `json:"finished_at"`

	// Joined rows (select=*,status:statuses(*),...).
	Status      *Status     `json:"status,omitempty"`
	Type        *Lookup     `json:"type,omitempty"`
	Origin      *Lookup     `json:"origin,omitempty"`
	Responsible *ProfileRef `json:"responsible,omitempty"`
}

// Code is the human-readable sequence code shown on cards (DEM-0042).
func (d Demand) Code() string {
	if d.SequenceNumber <= 0 {
		return ""
	}
	return fmt.Sprintf("DEM-%04d", d.SequenceNumber)
}

// ResponsibleName returns the joined responsible name or "".
func (d Demand) ResponsibleName() string {
	if d.Responsible == nil {
		return ""
	}
	return d.Responsible.FullName
}

// CreateDemandRequest is the body of POST /v1/demands.
type CreateDemandRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Caption       string   `json:"caption,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
	StatusID      string   `json:"status_id,omitempty"`
	TypeID        string   `json:"type_id"`
	OriginID      string   `json:"origin_id"`
	ResponsibleID *string  `json:"responsible_id,omitempty"`
	Deadline      Date     `json:"deadline"`
}

// ============================================================
// Profiles / session
// ============================================================

// ProfileRef is the slim profile joined into demand rows.
type ProfileRef struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Profile is a team member.
type Profile struct {
	ID              string `json:"id"`
	FullName        string `json:"full_name"`
	Email           string `json:"email,omitempty"`
	Role            string `json:"role"`
	PermissionLevel int    `json:"permission_level,omitempty"`
	JobTitleID      string `json:"job_title_id,omitempty"`
	JobTitle        string `json:"job_title,omitempty"`
	Origin          string `json:"origin,omitempty"`
	Status          string `json:"status,omitempty"` // ativo | inativo
	AvatarURL       string `json:"avatar_url,omitempty"`
}

// ManageUserRequest is forwarded to the manage-user edge function.
type ManageUserRequest struct {
	Action     string `json:"action"` // create | update | delete
	UserID     string `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Role       string `json:"role,omitempty"`
	JobTitleID string `json:"job_title_id,omitempty"`
	Origin     string `json:"origin,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Session is the authenticated caller, resolved from the Supabase JWT and
// the profiles table.
type Session struct {
	UserID          string
	Email           string
	FullName        string
	Role            string
	PermissionLevel int
	AccessToken     string
}

// NormalizeRole lower-cases and trims a role name.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// ============================================================
// Comments
// ============================================================

// Comment belongs to one demand, optionally replying to a root comment.
type Comment struct {
	ID               string     `json:"id"`
	DemandID         string     `json:"demand_id"`
	ParentID         *string    `json:"parent_id"`
	AuthorID         string     `json:"author_id"`
	Body             string     `json:"body"`
	MentionedUserIDs []string   `json:"mentioned_user_ids"`
	IsEdited         bool       `json:"is_edited"`
	EditedAt         *time.Time `json:"edited_at"`
	IsDeleted        bool       `json:"is_deleted"`
	DeletedAt        *time.Time `json:"deleted_at"`
	CreatedAt        time.Time  `json:"created_at"`

	Author  *ProfileRef `json:"author,omitempty"`
	Replies []Comment   `json:"replies,omitempty"`
}

// CreateCommentRequest is the body of POST /v1/demands/{id}/comments.
type CreateCommentRequest struct {
	ParentID         *string  `json:"parent_id,omitempty"`
	Body             string   `json:"body"`
	MentionedUserIDs []string `json:"mentioned_user_ids,omitempty"`
}

// ============================================================
// Audit log
// ============================================================

// LogAction is the kind of mutation recorded in the audit log.
type LogAction string

const (
	LogCreate LogAction = "CREATE"
	LogUpdate LogAction = "UPDATE"
	LogDelete LogAction = "DELETE"
	LogUpsert LogAction = "UPSERT"
)

// LogEntry is an immutable audit record.
type LogEntry struct {
	ID        string         `json:"id,omitempty"`
	UserID    string         `json:"user_id"`
	Action    LogAction      `json:"action"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// LogFilter narrows GET /v1/logs.
type LogFilter struct {
	TableName string
	Action    LogAction
	RecordID  string
	Limit     int
}

// ============================================================
// Realtime
// ============================================================

// ChangeEvent is the opaque "something changed" signal for a table.
type ChangeEvent struct {
	Table    string    `json:"table"`
	Type     string    `json:"type,omitempty"` // INSERT | UPDATE | DELETE, informative only
	RecordID string    `json:"record_id,omitempty"`
	At       time.Time `json:"at"`
}
