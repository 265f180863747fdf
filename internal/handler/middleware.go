package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionMiddleware validates the Supabase access token and injects the
// resolved Session into the context. EventSource clients cannot send
// headers, so the token is also accepted as ?access_token=.
func SessionMiddleware(sessions *service.SessionService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			sess, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				logger.Warn("auth: session rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// SessionFromContext returns the authenticated session, or nil.
func SessionFromContext(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(sessionKey).(*domain.Session)
	return s
}

// RequirePermission gates a route on the caller's permission matrix.
func RequirePermission(perms *service.PermissionResolver, resource domain.Resource, action domain.Action, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "sessão ausente")
				return
			}

			ok, err := perms.Can(r.Context(), sess, resource, action)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			if !ok {
				logger.Info("permission denied",
					zap.String("user_id", sess.UserID),
					zap.String("role", sess.Role),
					zap.String("resource", string(resource)),
					zap.String("action", string(action)),
				)
				writeError(w, http.StatusForbidden, "Você não tem permissão para esta ação")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// notConfigured answers every request with 503 while backend settings
// are missing.
func notConfigured(setting string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handleServiceError(w, &domain.ErrNotConfigured{Setting: setting}, logger)
	}
}
