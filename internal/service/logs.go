package service

import (
	"context"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var logTracer = otel.Tracer("service/logs")

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// LogService reads the audit log.
type LogService struct {
	store  port.LogStore
	logger *zap.Logger
}

// NewLogService creates a log service.
func NewLogService(store port.LogStore, logger *zap.Logger) *LogService {
	return &LogService{store: store, logger: logger}
}

// List returns log entries, newest first.
func (s *LogService) List(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error) {
	ctx, span := logTracer.Start(ctx, "LogService.List")
	defer span.End()

	if filter.Action != "" {
		switch filter.Action {
		case domain.LogCreate, domain.LogUpdate, domain.LogDelete, domain.LogUpsert:
		default:
			return nil, &domain.ErrValidation{Field: "action", Message: "ação desconhecida"}
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLogLimit
	}
	if filter.Limit > maxLogLimit {
		filter.Limit = maxLogLimit
	}
	return s.store.ListLogs(ctx, filter)
}

// recordLog appends an audit entry. The mutation it describes already
// happened, so a failure here is logged and swallowed.
func recordLog(ctx context.Context, store port.LogStore, logger *zap.Logger, sess *domain.Session, action domain.LogAction, table, recordID string, details map[string]any) {
	entry := domain.LogEntry{
		Action:    action,
		TableName: table,
		RecordID:  recordID,
		Details:   details,
	}
	if sess != nil {
		entry.UserID = sess.UserID
	}
	if err := store.InsertLog(ctx, entry); err != nil {
		logger.Warn("audit log write failed",
			zap.String("table", table),
			zap.String("record_id", recordID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// change builds the {old, new} pair stored for a changed field.
func change(oldV, newV any) map[string]any {
	return map[string]any{"old": oldV, "new": newV}
}
