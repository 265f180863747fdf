package service_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

func newCommentService(store *mockCommentStore, logs *mockLogStore) *service.CommentService {
	return service.NewCommentService(store, logs, newHub(), newFakeClock(t0), zap.NewNop())
}

func at(min int) time.Time {
	return time.Date(2026, 1, 1, 0, min, 0, 0, time.UTC)
}

func TestThread_NestsAndOrders(t *testing.T) {
	root1, root2 := "r1", "r2"
	rows := []domain.Comment{
		{ID: "r2", Body: "second", CreatedAt: at(5)},
		{ID: "a", ParentID: &root1, Body: "late reply", CreatedAt: at(9)},
		{ID: "r1", Body: "first", CreatedAt: at(1)},
		{ID: "b", ParentID: &root1, Body: "early reply", CreatedAt: at(2)},
		{ID: "c", ParentID: &root2, Body: "gone", IsDeleted: true, CreatedAt: at(6)},
	}

	out := service.Thread(rows)
	if len(out) != 2 || out[0].ID != "r1" || out[1].ID != "r2" {
		t.Fatalf("unexpected roots %+v", out)
	}
	if len(out[0].Replies) != 2 || out[0].Replies[0].ID != "b" || out[0].Replies[1].ID != "a" {
		t.Errorf("replies must be oldest first, got %+v", out[0].Replies)
	}
	if len(out[1].Replies) != 0 {
		t.Error("deleted replies must be omitted")
	}
}

func TestThread_DeletedRootKeptOnlyWithReplies(t *testing.T) {
	root := "r1"
	rows := []domain.Comment{
		{ID: "r1", Body: "secret", IsDeleted: true, MentionedUserIDs: []string{"u"}, CreatedAt: at(1)},
		{ID: "a", ParentID: &root, Body: "reply", CreatedAt: at(2)},
		{ID: "r2", Body: "alone", IsDeleted: true, CreatedAt: at(3)},
	}

	out := service.Thread(rows)
	if len(out) != 1 {
		t.Fatalf("expected only the root with replies, got %+v", out)
	}
	if out[0].Body != "Comentário removido" || out[0].MentionedUserIDs != nil {
		t.Errorf("deleted root must be blanked, got %+v", out[0])
	}
}

func TestCreateComment_ReplyToReplyFlattens(t *testing.T) {
	store := &mockCommentStore{}
	svc := newCommentService(store, &mockLogStore{})
	ctx := context.Background()

	root, err := svc.Create(ctx, editor(), "d1", &domain.CreateCommentRequest{Body: "root"})
	if err != nil {
		t.Fatal(err)
	}
	reply, _ := svc.Create(ctx, editor(), "d1", &domain.CreateCommentRequest{Body: "reply", ParentID: &root.ID})
	nested, err := svc.Create(ctx, editor(), "d1", &domain.CreateCommentRequest{Body: "nested", ParentID: &reply.ID})
	if err != nil {
		t.Fatal(err)
	}
	if nested.ParentID == nil || *nested.ParentID != root.ID {
		t.Errorf("expected reply attached to root %s, got %v", root.ID, nested.ParentID)
	}

	threads, _ := svc.List(ctx, "d1")
	if len(threads) != 1 || len(threads[0].Replies) != 2 {
		t.Errorf("expected one thread with two replies, got %+v", threads)
	}
}

func TestCreateComment_Validation(t *testing.T) {
	store := &mockCommentStore{}
	svc := newCommentService(store, &mockLogStore{})
	ctx := context.Background()

	_, err := svc.Create(ctx, editor(), "d1", &domain.CreateCommentRequest{Body: "   "})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Errorf("expected ErrValidation for blank body, got %v", err)
	}

	other, _ := svc.Create(ctx, editor(), "d2", &domain.CreateCommentRequest{Body: "elsewhere"})
	_, err = svc.Create(ctx, editor(), "d1", &domain.CreateCommentRequest{Body: "x", ParentID: &other.ID})
	if !errors.As(err, &ve) || ve.Field != "parent_id" {
		t.Errorf("expected parent_id validation, got %v", err)
	}
}

func TestCreateComment_DedupesMentions(t *testing.T) {
	store := &mockCommentStore{}
	svc := newCommentService(store, &mockLogStore{})

	c, err := svc.Create(context.Background(), editor(), "d1", &domain.CreateCommentRequest{
		Body: "@bia @caio", MentionedUserIDs: []string{"bia", " ", "caio", "bia"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.MentionedUserIDs, []string{"bia", "caio"}) {
		t.Errorf("unexpected mentions %v", c.MentionedUserIDs)
	}
}

func TestEditComment_AuthorOnly(t *testing.T) {
	store := &mockCommentStore{rows: []domain.Comment{{ID: "c1", DemandID: "d1", AuthorID: "user-1", Body: "old"}}}
	logs := &mockLogStore{}
	svc := newCommentService(store, logs)
	ctx := context.Background()

	other := &domain.Session{UserID: "user-2", Role: "admin"}
	_, err := svc.Edit(ctx, other, "c1", "hijack")
	var fe *domain.ErrForbidden
	if !errors.As(err, &fe) {
		t.Fatalf("expected ErrForbidden even for admins, got %v", err)
	}

	c, err := svc.Edit(ctx, editor(), "c1", "new")
	if err != nil {
		t.Fatal(err)
	}
	if c.Body != "new" || !c.IsEdited {
		t.Errorf("unexpected comment %+v", c)
	}
	if len(logs.all()) != 1 || logs.all()[0].TableName != "comments" {
		t.Errorf("expected one comments log entry, got %+v", logs.all())
	}
}

func TestDeleteComment_AuthorOrAdmin(t *testing.T) {
	store := &mockCommentStore{rows: []domain.Comment{
		{ID: "c1", DemandID: "d1", AuthorID: "user-1", Body: "a"},
		{ID: "c2", DemandID: "d1", AuthorID: "user-1", Body: "b"},
	}}
	svc := newCommentService(store, &mockLogStore{})
	ctx := context.Background()

	stranger := &domain.Session{UserID: "user-3", Role: "designer"}
	var fe *domain.ErrForbidden
	if err := svc.Delete(ctx, stranger, "c1"); !errors.As(err, &fe) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	admin := &domain.Session{UserID: "user-9", Role: "Administrador"}
	if err := svc.Delete(ctx, admin, "c1"); err != nil {
		t.Errorf("admin delete: %v", err)
	}
	if err := svc.Delete(ctx, editor(), "c2"); err != nil {
		t.Errorf("author delete: %v", err)
	}

	c, _ := store.GetComment(ctx, "c1")
	if !c.IsDeleted {
		t.Error("expected soft delete")
	}
	if _, err := svc.Edit(ctx, editor(), "c2", "again"); err == nil {
		t.Error("deleted comments cannot be edited")
	}
}
