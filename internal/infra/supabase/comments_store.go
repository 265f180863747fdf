package supabase

import (
	"context"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
)

// ============================================================
// CommentStore / ProfileStore implementation
// ============================================================

const commentSelect = "select=*,author:profiles!author_id(id,full_name,avatar_url)"

func (c *Client) ListComments(ctx context.Context, demandID string) ([]domain.Comment, error) {
	var rows []domain.Comment
	path := query("comments", commentSelect, eq("demand_id", demandID), "order=created_at.asc")
	if err := c.read(ctx, "ListComments", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	var rows []domain.Comment
	if err := c.read(ctx, "GetComment", query("comments", commentSelect, eq("id", id), "limit=1"), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "comment", ID: id}
	}
	return &rows[0], nil
}

func (c *Client) CreateComment(ctx context.Context, data map[string]any) (*domain.Comment, error) {
	body, err := c.write(ctx, "CreateComment", func(ctx context.Context) ([]byte, error) {
		return c.doPost(ctx, query("comments", commentSelect), data, "")
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Comment](body, "comment", "")
}

func (c *Client) UpdateComment(ctx context.Context, id string, patch map[string]any) (*domain.Comment, error) {
	body, err := c.write(ctx, "UpdateComment", func(ctx context.Context) ([]byte, error) {
		return c.doPatch(ctx, query("comments", eq("id", id), commentSelect), patch)
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Comment](body, "comment", id)
}

func (c *Client) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	var rows []domain.Profile
	path := query("profiles", "select=*", eq("id", id), "limit=1")
	if err := c.read(ctx, "GetProfile", path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: id}
	}
	return &rows[0], nil
}
