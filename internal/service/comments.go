package service

import (
	"context"
	"sort"
	"strings"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var commentTracer = otel.Tracer("service/comments")

const deletedCommentBody = "Comentário removido"

// CommentService manages demand discussion threads.
type CommentService struct {
	store    port.CommentStore
	logs     port.LogStore
	notifier port.ChangeNotifier
	clock    Clock
	logger   *zap.Logger
}

// NewCommentService creates a comment service.
func NewCommentService(store port.CommentStore, logs port.LogStore, notifier port.ChangeNotifier, clock Clock, logger *zap.Logger) *CommentService {
	return &CommentService{store: store, logs: logs, notifier: notifier, clock: clock, logger: logger}
}

// List returns the threads of a demand: root comments oldest first, each
// with its replies. Deleted comments keep their place only when they have
// live replies, with the body blanked.
func (s *CommentService) List(ctx context.Context, demandID string) ([]domain.Comment, error) {
	ctx, span := commentTracer.Start(ctx, "CommentService.List")
	defer span.End()
	span.SetAttributes(attribute.String("demand.id", demandID))

	rows, err := s.store.ListComments(ctx, demandID)
	if err != nil {
		return nil, err
	}
	return Thread(rows), nil
}

// Thread nests replies under their root comment.
func Thread(rows []domain.Comment) []domain.Comment {
	replies := make(map[string][]domain.Comment)
	var roots []domain.Comment
	for _, c := range rows {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		if c.IsDeleted {
			continue
		}
		replies[*c.ParentID] = append(replies[*c.ParentID], c)
	}

	out := make([]domain.Comment, 0, len(roots))
	for _, root := range roots {
		rs := replies[root.ID]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.Before(rs[j].CreatedAt) })
		if root.IsDeleted {
			if len(rs) == 0 {
				continue
			}
			root.Body = deletedCommentBody
			root.MentionedUserIDs = nil
		}
		root.Replies = rs
		out = append(out, root)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Create posts a comment. A reply to a reply is attached to the root of
// the thread, keeping threads one level deep.
func (s *CommentService) Create(ctx context.Context, sess *domain.Session, demandID string, req *domain.CreateCommentRequest) (*domain.Comment, error) {
	ctx, span := commentTracer.Start(ctx, "CommentService.Create")
	defer span.End()

	if req == nil || strings.TrimSpace(req.Body) == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "comentário vazio"}
	}

	data := map[string]any{
		"demand_id":          demandID,
		"author_id":          sess.UserID,
		"body":               strings.TrimSpace(req.Body),
		"mentioned_user_ids": DedupeMentions(req.MentionedUserIDs),
	}

	if req.ParentID != nil && *req.ParentID != "" {
		parent, err := s.store.GetComment(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.DemandID != demandID {
			return nil, &domain.ErrValidation{Field: "parent_id", Message: "comentário pertence a outra demanda"}
		}
		rootID := parent.ID
		if parent.ParentID != nil {
			rootID = *parent.ParentID
		}
		data["parent_id"] = rootID
	}

	c, err := s.store.CreateComment(ctx, data)
	if err != nil {
		return nil, err
	}
	recordLog(ctx, s.logs, s.logger, sess, domain.LogCreate, "comments", c.ID, map[string]any{
		"demand_id": demandID,
		"parent_id": data["parent_id"],
		"mentions":  len(c.MentionedUserIDs),
	})
	s.notifier.Publish(domain.ChangeEvent{Table: "comments", Type: "INSERT", RecordID: c.ID})
	return c, nil
}

// Edit changes the body of a comment. Only its author may edit it.
func (s *CommentService) Edit(ctx context.Context, sess *domain.Session, id, body string) (*domain.Comment, error) {
	ctx, span := commentTracer.Start(ctx, "CommentService.Edit")
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, &domain.ErrValidation{Field: "body", Message: "comentário vazio"}
	}

	current, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsDeleted {
		return nil, &domain.ErrNotFound{Resource: "comment", ID: id}
	}
	if current.AuthorID != sess.UserID {
		return nil, &domain.ErrForbidden{Action: "editar comentário de outro usuário"}
	}
	if current.Body == body {
		return current, nil
	}

	c, err := s.store.UpdateComment(ctx, id, map[string]any{
		"body":      body,
		"is_edited": true,
		"edited_at": s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	recordLog(ctx, s.logs, s.logger, sess, domain.LogUpdate, "comments", id, map[string]any{
		"body": change(current.Body, body),
	})
	s.notifier.Publish(domain.ChangeEvent{Table: "comments", Type: "UPDATE", RecordID: id})
	return c, nil
}

// Delete soft-deletes a comment. Its author and admins may delete it.
func (s *CommentService) Delete(ctx context.Context, sess *domain.Session, id string) error {
	ctx, span := commentTracer.Start(ctx, "CommentService.Delete")
	defer span.End()

	current, err := s.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if current.IsDeleted {
		return nil
	}
	isAdmin := domain.IsAdminRole(domain.EffectiveRole(sess.Role, sess.PermissionLevel))
	if current.AuthorID != sess.UserID && !isAdmin {
		return &domain.ErrForbidden{Action: "remover comentário de outro usuário"}
	}

	if _, err := s.store.UpdateComment(ctx, id, map[string]any{
		"is_deleted": true,
		"deleted_at": s.clock.Now().UTC(),
	}); err != nil {
		return err
	}
	recordLog(ctx, s.logs, s.logger, sess, domain.LogDelete, "comments", id, map[string]any{
		"demand_id": current.DemandID,
	})
	s.notifier.Publish(domain.ChangeEvent{Table: "comments", Type: "UPDATE", RecordID: id})
	return nil
}

// DedupeMentions drops blanks and repeats, keeping first-seen order.
func DedupeMentions(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
