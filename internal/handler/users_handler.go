package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Usuários
// ============================================================

func listUsersHandler(svc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users")
		defer span.End()

		users, err := svc.List(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Profile]{Data: users, Total: len(users)})
	}
}

func manageUserHandler(svc *service.UserService, perms *service.PermissionResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users")
		defer span.End()

		var req domain.ManageUserRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sess := SessionFromContext(ctx)

		if req.Action == "delete" {
			ok, err := perms.Can(ctx, sess, domain.ResourceUsers, domain.ActionDelete)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "Você não tem permissão para esta ação")
				return
			}
		}

		p, err := svc.Manage(ctx, sess, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		status := http.StatusOK
		if req.Action == "create" {
			status = http.StatusCreated
		}
		writeJSON(w, status, p)
	}
}

// ============================================================
// Uploads
// ============================================================

type uploadResponse struct {
	URL string `json:"url"`
}

// uploadHandler stores an image in bucket. Each bucket gets its own route
// so the router can gate them separately.
func uploadHandler(svc *service.UploadService, bucket string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/uploads/"+bucket)
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadBytes+(1<<20))
		if err := r.ParseMultipartForm(service.MaxUploadBytes); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, http.StatusRequestEntityTooLarge, "arquivo maior que 5MB")
				return
			}
			writeError(w, http.StatusBadRequest, "formulário inválido")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "campo file ausente")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, service.MaxUploadBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "falha ao ler arquivo")
			return
		}

		url, err := svc.Upload(ctx, SessionFromContext(ctx), bucket, header.Filename, data)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
	}
}
