package supabase

import (
	"context"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
)

// ============================================================
// LookupStore implementation: statuses, types, origins
// ============================================================

func (c *Client) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	var rows []domain.Status
	if err := c.read(ctx, "ListStatuses", query("statuses", "select=*", "order=order_index.asc"), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) CreateStatus(ctx context.Context, data map[string]any) (*domain.Status, error) {
	body, err := c.write(ctx, "CreateStatus", func(ctx context.Context) ([]byte, error) {
		return c.doPost(ctx, "statuses", data, "")
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Status](body, "status", "")
}

func (c *Client) UpdateStatus(ctx context.Context, id string, patch map[string]any) (*domain.Status, error) {
	body, err := c.write(ctx, "UpdateStatus", func(ctx context.Context) ([]byte, error) {
		return c.doPatch(ctx, query("statuses", eq("id", id)), patch)
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Status](body, "status", id)
}

func (c *Client) DeleteStatus(ctx context.Context, id string) error {
	_, err := c.write(ctx, "DeleteStatus", func(ctx context.Context) ([]byte, error) {
		return nil, c.doDelete(ctx, query("statuses", eq("id", id)))
	})
	return err
}

func (c *Client) ListLookups(ctx context.Context, table string) ([]domain.Lookup, error) {
	var rows []domain.Lookup
	if err := c.read(ctx, "List:"+table, query(table, "select=id,name,color", "order=name.asc"), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) CreateLookup(ctx context.Context, table string, data map[string]any) (*domain.Lookup, error) {
	body, err := c.write(ctx, "Create:"+table, func(ctx context.Context) ([]byte, error) {
		return c.doPost(ctx, query(table, "select=id,name,color"), data, "")
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Lookup](body, table, "")
}

func (c *Client) UpdateLookup(ctx context.Context, table, id string, patch map[string]any) (*domain.Lookup, error) {
	body, err := c.write(ctx, "Update:"+table, func(ctx context.Context) ([]byte, error) {
		return c.doPatch(ctx, query(table, eq("id", id), "select=id,name,color"), patch)
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Lookup](body, table, id)
}

func (c *Client) DeleteLookup(ctx context.Context, table, id string) error {
	_, err := c.write(ctx, "Delete:"+table, func(ctx context.Context) ([]byte, error) {
		return nil, c.doDelete(ctx, query(table, eq("id", id)))
	})
	return err
}
