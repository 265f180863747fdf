// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations (Supabase, Redis, S3...).
package port

import (
	"context"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
)

// DemandStore persists demands. Reads return rows joined with status,
// type, origin and responsible profile.
type DemandStore interface {
	ListDemands(ctx context.Context) ([]domain.Demand, error)
	GetDemand(ctx context.Context, id string) (*domain.Demand, error)
	CreateDemand(ctx context.Context, data map[string]any) (*domain.Demand, error)
	// UpdateDemand applies patch in a single call and returns the stored row.
	UpdateDemand(ctx context.Context, id string, patch map[string]any) (*domain.Demand, error)
	DeleteDemand(ctx context.Context, id string) error
}

// LookupStore persists statuses and the simple lookup tables (types, origins).
type LookupStore interface {
	ListStatuses(ctx context.Context) ([]domain.Status, error)
	CreateStatus(ctx context.Context, data map[string]any) (*domain.Status, error)
	UpdateStatus(ctx context.Context, id string, patch map[string]any) (*domain.Status, error)
	DeleteStatus(ctx context.Context, id string) error

	ListLookups(ctx context.Context, table string) ([]domain.Lookup, error)
	CreateLookup(ctx context.Context, table string, data map[string]any) (*domain.Lookup, error)
	UpdateLookup(ctx context.Context, table, id string, patch map[string]any) (*domain.Lookup, error)
	DeleteLookup(ctx context.Context, table, id string) error
}

// PermissionStore persists the role_permissions matrix.
type PermissionStore interface {
	// ListRolePermissions matches role case-insensitively.
	ListRolePermissions(ctx context.Context, role string) ([]domain.RolePermission, error)
	ListAllRolePermissions(ctx context.Context) ([]domain.RolePermission, error)
	// InsertRolePermissions inserts rows, silently skipping (role, resource)
	// pairs that already exist.
	InsertRolePermissions(ctx context.Context, rows []domain.RolePermission) error
	// UpsertRolePermission inserts or updates the row keyed on (role, resource).
	UpsertRolePermission(ctx context.Context, row domain.RolePermission) (*domain.RolePermission, error)
}

// LogStore appends and reads audit log entries.
type LogStore interface {
	InsertLog(ctx context.Context, entry domain.LogEntry) error
	ListLogs(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error)
}

// CommentStore persists demand comments.
type CommentStore interface {
	ListComments(ctx context.Context, demandID string) ([]domain.Comment, error)
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	CreateComment(ctx context.Context, data map[string]any) (*domain.Comment, error)
	UpdateComment(ctx context.Context, id string, patch map[string]any) (*domain.Comment, error)
}

// ProfileStore reads team member profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
}

// UserDirectory wraps the user-management edge functions, which also
// provision the Supabase Auth record. Calls carry the caller's token.
type UserDirectory interface {
	ListUsers(ctx context.Context, accessToken string) ([]domain.Profile, error)
	ManageUser(ctx context.Context, accessToken string, req *domain.ManageUserRequest) (*domain.Profile, error)
}

// FileStorage stores uploaded assets (logos, avatars) and returns a public URL.
type FileStorage interface {
	Upload(ctx context.Context, bucket, filename, contentType string, data []byte) (string, error)
}

// ChangeNotifier fans out "table changed" signals.
type ChangeNotifier interface {
	Publish(event domain.ChangeEvent)
	// Subscribe returns a channel of events for the given tables (all when
	// empty) and a cancel func that must be called to release it.
	Subscribe(tables ...string) (<-chan domain.ChangeEvent, func())
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
