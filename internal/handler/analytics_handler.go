package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ============================================================
// Dashboard & relatórios
// ============================================================

func parseRange(r *http.Request) (from, to domain.Date, err error) {
	if from, err = parseDateParam(r, "from"); err != nil {
		return
	}
	to, err = parseDateParam(r, "to")
	return
}

func dashboardHandler(svc *service.Analytics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		from, to, err := parseRange(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		summary, err := svc.Dashboard(ctx, from, to)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

type reportSummaryResponse struct {
	Summary *domain.DashboardSummary `json:"summary"`
	Demands []domain.Demand          `json:"demands"`
}

func reportSummaryHandler(svc *service.Analytics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/summary")
		defer span.End()

		from, to, err := parseRange(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		summary, rows, err := svc.Report(ctx, from, to)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, reportSummaryResponse{Summary: summary, Demands: rows})
	}
}

func reportExportHandler(svc *service.Analytics, loc *time.Location, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/demands.xlsx")
		defer span.End()

		from, to, err := parseRange(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		summary, rows, err := svc.Report(ctx, from, to)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// Render fully before writing headers so a failure is still a 500.
		var buf bytes.Buffer
		if err := service.WriteReport(&buf, summary, rows, loc); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		filename := fmt.Sprintf("demandas-%s.xlsx", svc.Now().Format("2006-01-02"))
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			logger.Warn("report: client write failed", zap.Error(err))
		}
	}
}

func calendarHandler(svc *service.Analytics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/calendar")
		defer span.End()

		days, err := svc.Calendar(ctx, r.URL.Query().Get("month"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CalendarDay]{Data: days, Total: len(days)})
	}
}
