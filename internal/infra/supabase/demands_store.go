package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
)

// ============================================================
// DemandStore implementation: demands via PostgREST
// ============================================================

// demandSelect joins the lookup tables server-side.
const demandSelect = "select=*,status:statuses(*),type:types(id,name,color),origin:origins(id,name,color),responsible:profiles!responsible_id(id,full_name,avatar_url)"

func (c *Client) ListDemands(ctx context.Context) ([]domain.Demand, error) {
	var rows []domain.Demand
	if err := c.read(ctx, "ListDemands", query("demands", demandSelect, "order=created_at.desc"), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetDemand(ctx context.Context, id string) (*domain.Demand, error) {
	var rows []domain.Demand
	if err := c.read(ctx, "GetDemand", query("demands", demandSelect, eq("id", id), "limit=1"), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "demand", ID: id}
	}
	return &rows[0], nil
}

func (c *Client) CreateDemand(ctx context.Context, data map[string]any) (*domain.Demand, error) {
	body, err := c.write(ctx, "CreateDemand", func(ctx context.Context) ([]byte, error) {
		return c.doPost(ctx, query("demands", demandSelect), data, "")
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Demand](body, "demand", "")
}

// UpdateDemand sends the whole patch in one PATCH so the audit trigger and
// the realtime broadcast see a single change.
func (c *Client) UpdateDemand(ctx context.Context, id string, patch map[string]any) (*domain.Demand, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("update demand %s: empty patch", id)
	}
	body, err := c.write(ctx, "UpdateDemand", func(ctx context.Context) ([]byte, error) {
		return c.doPatch(ctx, query("demands", eq("id", id), demandSelect), patch)
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Demand](body, "demand", id)
}

func (c *Client) DeleteDemand(ctx context.Context, id string) error {
	_, err := c.write(ctx, "DeleteDemand", func(ctx context.Context) ([]byte, error) {
		return nil, c.doDelete(ctx, query("demands", eq("id", id)))
	})
	return err
}
