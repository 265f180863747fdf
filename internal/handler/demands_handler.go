package handler

import (
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Board
// ============================================================

func listDemandsHandler(svc *service.DemandService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/demands")
		defer span.End()

		f, err := parseDemandFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		view, err := svc.Board(ctx, f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func demandCountersHandler(svc *service.DemandService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/demands/counters")
		defer span.End()

		f, err := parseDemandFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		counters, err := svc.Counters(ctx, f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, counters)
	}
}

// ============================================================
// CRUD
// ============================================================

func getDemandHandler(svc *service.DemandService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/demands/{id}")
		defer span.End()

		d, err := svc.Get(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func createDemandHandler(svc *service.DemandService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/demands")
		defer span.End()

		var req domain.CreateDemandRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, err := svc.Create(ctx, SessionFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func patchDemandHandler(svc *service.DemandService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/demands/{id}")
		defer span.End()

		var patch service.DemandPatch
		if !decodeJSON(w, r, &patch) {
			return
		}

		d, err := svc.Update(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func deleteDemandHandler(svc *service.DemandService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/demands/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := svc.Delete(ctx, SessionFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Demanda removida", ID: id})
	}
}

// ============================================================
// Status transition & autosave
// ============================================================

type transitionRequest struct {
	StatusID string `json:"status_id"`
}

func transitionHandler(svc *service.TransitionController, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/demands/{id}/status")
		defer span.End()

		var req transitionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("demand.id", id), attribute.String("status.id", req.StatusID))

		res, err := svc.Transition(ctx, SessionFromContext(ctx), id, req.StatusID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type draftRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type draftResponse struct {
	Field      string `json:"field"`
	Generation uint64 `json:"generation"`
}

func draftHandler(autosave *service.Autosaver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req draftRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		gen, err := autosave.Queue(SessionFromContext(r.Context()), chi.URLParam(r, "id"), req.Field, req.Value)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, draftResponse{Field: req.Field, Generation: gen})
	}
}

// ============================================================
// Timer
// ============================================================

func timerHandler(timers *service.TimerWatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/demands/{id}/timer")
		defer span.End()

		e, err := timers.Current(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func timerStreamHandler(timers *service.TimerWatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Fail before the stream starts so errors keep their status code.
		if _, err := timers.Current(r.Context(), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		stream := newSSEStream(w)
		err := timers.Watch(r.Context(), id, func(e service.Elapsed) error {
			return stream.send("timer", e)
		})
		if err != nil && r.Context().Err() == nil {
			logger.Warn("timer stream ended", zap.String("demand_id", id), zap.Error(err))
			return
		}
		if err == nil {
			stream.send("stopped", map[string]string{"demand_id": id})
		}
	}
}
