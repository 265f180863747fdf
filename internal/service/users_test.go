package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

type mockDirectory struct {
	calls  []domain.ManageUserRequest
	tokens []string
	users  []domain.Profile
}

func (m *mockDirectory) ListUsers(_ context.Context, token string) ([]domain.Profile, error) {
	m.tokens = append(m.tokens, token)
	return m.users, nil
}

func (m *mockDirectory) ManageUser(_ context.Context, token string, req *domain.ManageUserRequest) (*domain.Profile, error) {
	m.tokens = append(m.tokens, token)
	m.calls = append(m.calls, *req)
	id := req.UserID
	if id == "" {
		id = "new-user"
	}
	return &domain.Profile{ID: id, FullName: req.FullName, Role: req.Role}, nil
}

func TestManageUser_Validation(t *testing.T) {
	dir := &mockDirectory{}
	svc := service.NewUserService(dir, &mockLogStore{}, newHub(), zap.NewNop())

	cases := []struct {
		name  string
		req   *domain.ManageUserRequest
		field string
	}{
		{"unknown action", &domain.ManageUserRequest{Action: "promote"}, "action"},
		{"create without name", &domain.ManageUserRequest{Action: "create", Email: "a@b.com", Password: "123456"}, "full_name"},
		{"create bad email", &domain.ManageUserRequest{Action: "create", FullName: "Ana", Email: "ana", Password: "123456"}, "email"},
		{"create short password", &domain.ManageUserRequest{Action: "create", FullName: "Ana", Email: "a@b.com", Password: "123"}, "password"},
		{"update without id", &domain.ManageUserRequest{Action: "update"}, "user_id"},
		{"delete self", &domain.ManageUserRequest{Action: "delete", UserID: "user-1"}, "user_id"},
		{"bad status", &domain.ManageUserRequest{Action: "update", UserID: "u2", Status: "banido"}, "status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Manage(context.Background(), editor(), tc.req)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Errorf("expected validation on %s, got %v", tc.field, err)
			}
		})
	}
	if len(dir.calls) != 0 {
		t.Error("invalid requests must not reach the edge function")
	}
}

func TestManageUser_CreateForwardsAndLogs(t *testing.T) {
	dir := &mockDirectory{}
	logs := &mockLogStore{}
	svc := service.NewUserService(dir, logs, newHub(), zap.NewNop())

	p, err := svc.Manage(context.Background(), editor(), &domain.ManageUserRequest{
		Action: "create", FullName: " Bia ", Email: "bia@agencia.com", Password: "segredo", Role: "Social Media",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "new-user" || dir.calls[0].Role != "social media" || dir.calls[0].FullName != "Bia" {
		t.Errorf("unexpected forwarded request %+v", dir.calls[0])
	}
	if dir.tokens[0] != "tok" {
		t.Error("the caller's token must be forwarded")
	}
	e := logs.all()[0]
	if e.Action != domain.LogCreate || e.TableName != "profiles" || e.RecordID != "new-user" {
		t.Errorf("unexpected log entry %+v", e)
	}
	if _, ok := e.Details["password"]; ok {
		t.Error("passwords must never be logged")
	}
}
