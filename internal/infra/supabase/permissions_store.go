package supabase

import (
	"context"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
)

// ============================================================
// PermissionStore implementation: role_permissions
// ============================================================

const permissionConflictKeys = "on_conflict=role,resource"

func (c *Client) ListRolePermissions(ctx context.Context, role string) ([]domain.RolePermission, error) {
	var rows []domain.RolePermission
	path := query("role_permissions", "select=*", ilike("role", role))
	if err := c.read(ctx, "ListRolePermissions", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListAllRolePermissions(ctx context.Context) ([]domain.RolePermission, error) {
	var rows []domain.RolePermission
	path := query("role_permissions", "select=*", "order=role.asc,resource.asc")
	if err := c.read(ctx, "ListAllRolePermissions", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertRolePermissions is safe to race: rows that already exist for the
// (role, resource) key are ignored by the backend.
func (c *Client) InsertRolePermissions(ctx context.Context, rows []domain.RolePermission) error {
	if len(rows) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, permissionRow(r))
	}
	_, err := c.write(ctx, "InsertRolePermissions", func(ctx context.Context) ([]byte, error) {
		return c.doPost(ctx, query("role_permissions", permissionConflictKeys), payload,
			"resolution=ignore-duplicates,return=minimal")
	})
	return err
}

func (c *Client) UpsertRolePermission(ctx context.Context, row domain.RolePermission) (*domain.RolePermission, error) {
	body, err := c.write(ctx, "UpsertRolePermission", func(ctx context.Context) ([]byte, error) {
		return c.doPost(ctx, query("role_permissions", permissionConflictKeys), []map[string]any{permissionRow(row)},
			"resolution=merge-duplicates,return=representation")
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.RolePermission](body, "role_permission", row.Role+"/"+string(row.Resource))
}

func permissionRow(r domain.RolePermission) map[string]any {
	return map[string]any{
		"role":       r.Role,
		"resource":   string(r.Resource),
		"can_view":   r.CanView,
		"can_manage": r.CanManage,
		"can_delete": r.CanDelete,
	}
}
