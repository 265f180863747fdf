package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the API routes call into. Backend is nil
// when the Supabase settings are missing.
type Services struct {
	Sessions    *service.SessionService
	Permissions *service.PermissionResolver
	Demands     *service.DemandService
	Transitions *service.TransitionController
	Autosave    *service.Autosaver
	Timers      *service.TimerWatcher
	Comments    *service.CommentService
	Logs        *service.LogService
	Lookups     *service.LookupService
	Users       *service.UserService
	Uploads     *service.UploadService
	Analytics   *service.Analytics
	Notifier    port.ChangeNotifier
	Backend     port.Pinger
	Location    *time.Location
}

// Options are the HTTP-level settings of the router.
type Options struct {
	CORSOrigins   []string
	WebhookSecret string
	// MissingSetting names the absent backend setting; when set every
	// /v1 route answers 503.
	MissingSetting string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Backend, logger))
	r.Get("/readyz", readyzHandler(opts.MissingSetting))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if opts.MissingSetting != "" {
			r.Handle("/*", notConfigured(opts.MissingSetting, logger))
			return
		}

		r.Post("/webhooks/db-change", webhookHandler(svc.Notifier, opts.WebhookSecret, logger))

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(svc.Sessions, logger))
			perm := func(res domain.Resource, action domain.Action) func(http.Handler) http.Handler {
				return RequirePermission(svc.Permissions, res, action, logger)
			}

			// =============================================
			// Sessão, eventos e métricas
			// =============================================
			r.Get("/me", meHandler(svc.Permissions, logger))
			r.Get("/events", eventsHandler(svc.Notifier, logger))
			r.Get("/metrics/ops", opsMetricsHandler(metrics))

			// =============================================
			// Demandas
			// =============================================
			r.Route("/demands", func(r chi.Router) {
				r.With(perm(domain.ResourceDemands, domain.ActionView)).Get("/", listDemandsHandler(svc.Demands, logger))
				r.With(perm(domain.ResourceDemands, domain.ActionView)).Get("/counters", demandCountersHandler(svc.Demands, logger))
				r.With(perm(domain.ResourceDemands, domain.ActionEdit)).Post("/", createDemandHandler(svc.Demands, logger))

				r.Route("/{id}", func(r chi.Router) {
					r.With(perm(domain.ResourceDemands, domain.ActionView)).Get("/", getDemandHandler(svc.Demands, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionEdit)).Patch("/", patchDemandHandler(svc.Demands, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionDelete)).Delete("/", deleteDemandHandler(svc.Demands, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionEdit)).Post("/status", transitionHandler(svc.Transitions, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionEdit)).Patch("/draft", draftHandler(svc.Autosave, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionView)).Get("/timer", timerHandler(svc.Timers, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionView)).Get("/timer/stream", timerStreamHandler(svc.Timers, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionView)).Get("/comments", listCommentsHandler(svc.Comments, logger))
					r.With(perm(domain.ResourceDemands, domain.ActionView)).Post("/comments", createCommentHandler(svc.Comments, logger))
				})
			})

			// =============================================
			// Comentários
			// =============================================
			r.Route("/comments/{id}", func(r chi.Router) {
				r.Use(perm(domain.ResourceDemands, domain.ActionView))
				r.Patch("/", editCommentHandler(svc.Comments, logger))
				r.Delete("/", deleteCommentHandler(svc.Comments, logger))
			})

			// =============================================
			// Status e tabelas auxiliares
			// =============================================
			r.Get("/statuses", listStatusesHandler(svc.Lookups, logger))
			r.With(perm(domain.ResourceSettings, domain.ActionEdit)).Post("/statuses", createStatusHandler(svc.Lookups, logger))
			r.With(perm(domain.ResourceSettings, domain.ActionEdit)).Patch("/statuses/{id}", updateStatusHandler(svc.Lookups, logger))
			r.With(perm(domain.ResourceSettings, domain.ActionDelete)).Delete("/statuses/{id}", deleteStatusHandler(svc.Lookups, logger))

			r.Get("/lookups/{table}", listLookupsHandler(svc.Lookups, logger))
			r.With(perm(domain.ResourceSettings, domain.ActionEdit)).Post("/lookups/{table}", createLookupHandler(svc.Lookups, logger))
			r.With(perm(domain.ResourceSettings, domain.ActionEdit)).Patch("/lookups/{table}/{id}", updateLookupHandler(svc.Lookups, logger))
			r.With(perm(domain.ResourceSettings, domain.ActionDelete)).Delete("/lookups/{table}/{id}", deleteLookupHandler(svc.Lookups, logger))

			// =============================================
			// Logs
			// =============================================
			r.With(perm(domain.ResourceLogs, domain.ActionView)).Get("/logs", listLogsHandler(svc.Logs, logger))

			// =============================================
			// Usuários e uploads
			// =============================================
			r.With(perm(domain.ResourceUsers, domain.ActionView)).Get("/users", listUsersHandler(svc.Users, logger))
			r.With(perm(domain.ResourceUsers, domain.ActionEdit)).Post("/users", manageUserHandler(svc.Users, svc.Permissions, logger))
			r.With(perm(domain.ResourceSettings, domain.ActionEdit)).Post("/uploads/logos", uploadHandler(svc.Uploads, "logos", logger))
			r.Post("/uploads/avatars", uploadHandler(svc.Uploads, "avatars", logger))

			// =============================================
			// Permissões
			// =============================================
			r.Get("/permissions/me", myPermissionsHandler(svc.Permissions, logger))
			r.With(perm(domain.ResourcePermissions, domain.ActionView)).Get("/permissions", listPermissionsHandler(svc.Permissions, logger))
			r.With(perm(domain.ResourcePermissions, domain.ActionEdit)).Put("/permissions/{role}/{resource}", togglePermissionHandler(svc.Permissions, logger))

			// =============================================
			// Dashboard, relatórios e calendário
			// =============================================
			r.With(perm(domain.ResourceDashboard, domain.ActionView)).Get("/dashboard", dashboardHandler(svc.Analytics, logger))
			r.With(perm(domain.ResourceReports, domain.ActionView)).Get("/reports/summary", reportSummaryHandler(svc.Analytics, logger))
			r.With(perm(domain.ResourceReports, domain.ActionView)).Get("/reports/demands.xlsx", reportExportHandler(svc.Analytics, svc.Location, logger))
			r.With(perm(domain.ResourceCalendar, domain.ActionView)).Get("/calendar", calendarHandler(svc.Analytics, logger))
		})
	})

	return r
}

// ============================================================
// Health & metrics
// ============================================================

const healthTimeout = 3 * time.Second

func healthzHandler(backend port.Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}

		if backend != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()

			start := time.Now()
			err := backend.Ping(ctx)
			sh := domain.ServiceHealth{
				Name:        "supabase",
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				logger.Warn("health: supabase ping failed", zap.Error(err))
				sh.Status = "degraded"
				sh.Error = err.Error()
			}
			services = append(services, sh)
		} else {
			services = append(services, domain.ServiceHealth{
				Name: "supabase", Status: "unhealthy", LastChecked: now, Error: "not configured",
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(missing string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if missing != "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_configured", "missing": missing})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func opsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
