package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
)

// ============================================================
// LogStore implementation: audit logs
// ============================================================

func (c *Client) InsertLog(ctx context.Context, entry domain.LogEntry) error {
	data := map[string]any{
		"user_id":    entry.UserID,
		"action":     string(entry.Action),
		"table_name": entry.TableName,
		"record_id":  entry.RecordID,
		"details":    entry.Details,
	}
	if entry.UserID == "" {
		data["user_id"] = nil
	}
	_, err := c.write(ctx, "InsertLog", func(ctx context.Context) ([]byte, error) {
		return c.doPost(ctx, "logs", data, "return=minimal")
	})
	return err
}

func (c *Client) ListLogs(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error) {
	parts := []string{"select=*", "order=created_at.desc"}
	if filter.TableName != "" {
		parts = append(parts, eq("table_name", filter.TableName))
	}
	if filter.Action != "" {
		parts = append(parts, eq("action", string(filter.Action)))
	}
	if filter.RecordID != "" {
		parts = append(parts, eq("record_id", filter.RecordID))
	}
	if filter.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", filter.Limit))
	}

	var rows []domain.LogEntry
	if err := c.read(ctx, "ListLogs", query("logs", parts...), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
