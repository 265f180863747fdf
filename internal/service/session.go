package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var sessionTracer = otel.Tracer("service/session")

// SupabaseClaims are the claims of a Supabase Auth access token.
type SupabaseClaims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// SessionService turns a Supabase access token into a Session backed by
// the caller's profile row.
type SessionService struct {
	jwtSecret []byte
	profiles  port.ProfileStore
	cache     port.Cache[domain.Profile]
	clock     Clock
	metrics   *observability.Metrics
	logger    *zap.Logger

	epoch atomic.Uint64
}

// NewSessionService creates a session service verifying HS256 tokens
// signed with the project's JWT secret.
func NewSessionService(jwtSecret string, profiles port.ProfileStore, cache port.Cache[domain.Profile], clock Clock, metrics *observability.Metrics, logger *zap.Logger) *SessionService {
	return &SessionService{
		jwtSecret: []byte(jwtSecret),
		profiles:  profiles,
		cache:     cache,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// ValidateAccessToken verifies signature, expiry and audience.
func (s *SessionService) ValidateAccessToken(tokenString string) (*SupabaseClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SupabaseClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithAudience("authenticated"),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*SupabaseClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	return claims, nil
}

// Resolve validates token and loads the caller's profile.
func (s *SessionService) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.Resolve")
	defer span.End()

	claims, err := s.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, claims.Subject)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, &domain.ErrUnauthorized{Message: "Perfil não encontrado"}
		}
		return nil, err
	}
	if profile.Status == "inativo" {
		return nil, &domain.ErrForbidden{Action: "usuário inativo"}
	}

	email := profile.Email
	if email == "" {
		email = claims.Email
	}
	return &domain.Session{
		UserID:          claims.Subject,
		Email:           email,
		FullName:        profile.FullName,
		Role:            domain.NormalizeRole(profile.Role),
		PermissionLevel: profile.PermissionLevel,
		AccessToken:     token,
	}, nil
}

func (s *SessionService) profileKey(id string) string {
	return fmt.Sprintf("profile:%d:%s", s.epoch.Load(), id)
}

func (s *SessionService) profile(ctx context.Context, id string) (*domain.Profile, error) {
	key := s.profileKey(id)
	if p, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("profiles")
		return &p, nil
	}
	s.metrics.IncrCacheMiss("profiles")

	p, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, *p)
	return p, nil
}

// Run drops cached profiles when the profiles table changes.
func (s *SessionService) Run(ctx context.Context, notifier port.ChangeNotifier) {
	events, cancel := notifier.Subscribe("profiles")
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.RecordID != "" {
				s.cache.Delete(s.profileKey(ev.RecordID))
				continue
			}
			s.epoch.Add(1)
		}
	}
}
