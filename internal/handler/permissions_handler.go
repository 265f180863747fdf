package handler

import (
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Sessão & permissões
// ============================================================

type meResponse struct {
	UserID      string                   `json:"user_id"`
	Email       string                   `json:"email"`
	FullName    string                   `json:"full_name"`
	Role        string                   `json:"role"`
	Permissions *domain.PermissionMatrix `json:"permissions"`
}

func meHandler(perms *service.PermissionResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/me")
		defer span.End()

		sess := SessionFromContext(ctx)
		m, err := perms.Load(ctx, sess)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{
			UserID:      sess.UserID,
			Email:       sess.Email,
			FullName:    sess.FullName,
			Role:        sess.Role,
			Permissions: m,
		})
	}
}

func myPermissionsHandler(perms *service.PermissionResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/permissions/me")
		defer span.End()

		m, err := perms.Load(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func listPermissionsHandler(perms *service.PermissionResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/permissions")
		defer span.End()

		if role := r.URL.Query().Get("role"); role != "" {
			m, err := perms.LoadRole(ctx, role)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, m)
			return
		}

		rows, err := perms.ListAll(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.RolePermission]{Data: rows, Total: len(rows)})
	}
}

type toggleRequest struct {
	Action  domain.Action `json:"action"`
	Enabled bool          `json:"enabled"`
}

func togglePermissionHandler(perms *service.PermissionResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/permissions/{role}/{resource}")
		defer span.End()

		var req toggleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		row, err := perms.Toggle(ctx, SessionFromContext(ctx),
			chi.URLParam(r, "role"),
			domain.Resource(chi.URLParam(r, "resource")),
			req.Action,
			req.Enabled,
		)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}
