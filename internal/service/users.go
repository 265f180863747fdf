package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var userTracer = otel.Tracer("service/users")

const minPasswordLength = 6

// UserService manages team members through the user-management edge
// functions, which also own the auth records.
type UserService struct {
	directory port.UserDirectory
	logs      port.LogStore
	notifier  port.ChangeNotifier
	logger    *zap.Logger
}

// NewUserService creates a user service.
func NewUserService(directory port.UserDirectory, logs port.LogStore, notifier port.ChangeNotifier, logger *zap.Logger) *UserService {
	return &UserService{directory: directory, logs: logs, notifier: notifier, logger: logger}
}

// List returns every user with role and job title.
func (s *UserService) List(ctx context.Context, sess *domain.Session) ([]domain.Profile, error) {
	ctx, span := userTracer.Start(ctx, "UserService.List")
	defer span.End()
	return s.directory.ListUsers(ctx, sess.AccessToken)
}

// Manage creates, updates or deletes a user.
func (s *UserService) Manage(ctx context.Context, sess *domain.Session, req *domain.ManageUserRequest) (*domain.Profile, error) {
	ctx, span := userTracer.Start(ctx, "UserService.Manage")
	defer span.End()

	if err := validateManage(sess, req); err != nil {
		return nil, err
	}
	req.Role = domain.NormalizeRole(req.Role)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)

	p, err := s.directory.ManageUser(ctx, sess.AccessToken, req)
	if err != nil {
		s.logger.Error("manage user failed",
			zap.String("action", req.Action),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		return nil, err
	}

	recordID := req.UserID
	if p != nil && p.ID != "" {
		recordID = p.ID
	}
	details := map[string]any{"action": req.Action}
	if req.Role != "" {
		details["role"] = req.Role
	}
	if req.Status != "" {
		details["status"] = req.Status
	}
	recordLog(ctx, s.logs, s.logger, sess, manageLogAction(req.Action), "profiles", recordID, details)
	s.notifier.Publish(domain.ChangeEvent{Table: "profiles", Type: eventType(manageLogAction(req.Action)), RecordID: recordID})
	return p, nil
}

func validateManage(sess *domain.Session, req *domain.ManageUserRequest) error {
	if req == nil {
		return &domain.ErrValidation{Field: "body", Message: "corpo da requisição ausente"}
	}
	switch req.Action {
	case "create":
		if strings.TrimSpace(req.FullName) == "" {
			return &domain.ErrValidation{Field: "full_name", Message: "nome é obrigatório"}
		}
		if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
			return &domain.ErrValidation{Field: "email", Message: "e-mail inválido"}
		}
		if len(req.Password) < minPasswordLength {
			return &domain.ErrValidation{Field: "password", Message: "senha deve ter ao menos 6 caracteres"}
		}
	case "update":
		if req.UserID == "" {
			return &domain.ErrValidation{Field: "user_id", Message: "usuário é obrigatório"}
		}
		if req.Password != "" && len(req.Password) < minPasswordLength {
			return &domain.ErrValidation{Field: "password", Message: "senha deve ter ao menos 6 caracteres"}
		}
	case "delete":
		if req.UserID == "" {
			return &domain.ErrValidation{Field: "user_id", Message: "usuário é obrigatório"}
		}
		if req.UserID == sess.UserID {
			return &domain.ErrValidation{Field: "user_id", Message: "não é possível remover o próprio usuário"}
		}
	default:
		return &domain.ErrValidation{Field: "action", Message: "ação deve ser create, update ou delete"}
	}
	if req.Status != "" && req.Status != "ativo" && req.Status != "inativo" {
		return &domain.ErrValidation{Field: "status", Message: "status deve ser ativo ou inativo"}
	}
	return nil
}

func manageLogAction(action string) domain.LogAction {
	switch action {
	case "create":
		return domain.LogCreate
	case "delete":
		return domain.LogDelete
	}
	return domain.LogUpdate
}
