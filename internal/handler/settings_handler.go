package handler

import (
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Status
// ============================================================

func listStatusesHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/statuses")
		defer span.End()

		list, err := svc.Statuses(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Status]{Data: list, Total: len(list)})
	}
}

func createStatusHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/statuses")
		defer span.End()

		var in service.StatusInput
		if !decodeJSON(w, r, &in) {
			return
		}
		st, err := svc.CreateStatus(ctx, SessionFromContext(ctx), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func updateStatusHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/statuses/{id}")
		defer span.End()

		var in service.StatusInput
		if !decodeJSON(w, r, &in) {
			return
		}
		st, err := svc.UpdateStatus(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func deleteStatusHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/statuses/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := svc.DeleteStatus(ctx, SessionFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Status removido", ID: id})
	}
}

// ============================================================
// Tipos, origens e cargos
// ============================================================

func listLookupsHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/lookups/{table}")
		defer span.End()

		list, err := svc.Lookups(ctx, chi.URLParam(r, "table"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Lookup]{Data: list, Total: len(list)})
	}
}

func createLookupHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/lookups/{table}")
		defer span.End()

		var in service.LookupInput
		if !decodeJSON(w, r, &in) {
			return
		}
		l, err := svc.CreateLookup(ctx, SessionFromContext(ctx), chi.URLParam(r, "table"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

func updateLookupHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/lookups/{table}/{id}")
		defer span.End()

		var in service.LookupInput
		if !decodeJSON(w, r, &in) {
			return
		}
		l, err := svc.UpdateLookup(ctx, SessionFromContext(ctx), chi.URLParam(r, "table"), chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

func deleteLookupHandler(svc *service.LookupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/lookups/{table}/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := svc.DeleteLookup(ctx, SessionFromContext(ctx), chi.URLParam(r, "table"), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Registro removido", ID: id})
	}
}

// ============================================================
// Logs
// ============================================================

func listLogsHandler(svc *service.LogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/logs")
		defer span.End()

		q := r.URL.Query()
		entries, err := svc.List(ctx, domain.LogFilter{
			TableName: q.Get("table"),
			Action:    domain.LogAction(q.Get("action")),
			RecordID:  q.Get("record_id"),
			Limit:     parseLimit(r),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.LogEntry]{Data: entries, Total: len(entries)})
	}
}
