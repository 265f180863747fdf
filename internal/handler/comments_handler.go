package handler

import (
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Comentários
// ============================================================

func listCommentsHandler(svc *service.CommentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/demands/{id}/comments")
		defer span.End()

		threads, err := svc.List(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Comment]{Data: threads, Total: len(threads)})
	}
}

func createCommentHandler(svc *service.CommentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/demands/{id}/comments")
		defer span.End()

		var req domain.CreateCommentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		c, err := svc.Create(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

type editCommentRequest struct {
	Body string `json:"body"`
}

func editCommentHandler(svc *service.CommentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/comments/{id}")
		defer span.End()

		var req editCommentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		c, err := svc.Edit(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), req.Body)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func deleteCommentHandler(svc *service.CommentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/comments/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := svc.Delete(ctx, SessionFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Comentário removido", ID: id})
	}
}
