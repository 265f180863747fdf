package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/cache"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

type mockProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	calls    int
}

func (m *mockProfileStore) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.profiles[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: id}
	}
	return &p, nil
}

func signToken(t *testing.T, secret, subject, audience string, exp time.Time) string {
	t.Helper()
	claims := service.SupabaseClaims{
		Email: subject + "@agencia.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func newSessionService(profiles *mockProfileStore) *service.SessionService {
	return service.NewSessionService(testJWTSecret, profiles, cache.New[domain.Profile](time.Minute), newFakeClock(t0), observability.NewMetrics(), zap.NewNop())
}

func TestResolve_ValidToken(t *testing.T) {
	profiles := &mockProfileStore{profiles: map[string]domain.Profile{
		"user-1": {ID: "user-1", FullName: "Ana", Role: " Designer ", Status: "ativo"},
	}}
	svc := newSessionService(profiles)
	token := signToken(t, testJWTSecret, "user-1", "authenticated", t0.Add(time.Hour))

	sess, err := svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if sess.UserID != "user-1" || sess.Role != "designer" || sess.Email != "user-1@agencia.com" || sess.AccessToken != token {
		t.Errorf("unexpected session %+v", sess)
	}

	if _, err := svc.Resolve(context.Background(), token); err != nil {
		t.Fatal(err)
	}
	if profiles.calls != 1 {
		t.Errorf("expected cached profile, got %d loads", profiles.calls)
	}
}

func TestResolve_RejectsBadTokens(t *testing.T) {
	profiles := &mockProfileStore{profiles: map[string]domain.Profile{"user-1": {ID: "user-1"}}}
	svc := newSessionService(profiles)

	cases := map[string]string{
		"wrong secret": signToken(t, "another-secret-another-secret-another", "user-1", "authenticated", t0.Add(time.Hour)),
		"expired":      signToken(t, testJWTSecret, "user-1", "authenticated", t0.Add(-time.Minute)),
		"audience":     signToken(t, testJWTSecret, "user-1", "anon", t0.Add(time.Hour)),
		"no subject":   signToken(t, testJWTSecret, "", "authenticated", t0.Add(time.Hour)),
		"garbage":      "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Resolve(context.Background(), token)
			var ue *domain.ErrUnauthorized
			if !errors.As(err, &ue) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
	if profiles.calls != 0 {
		t.Error("invalid tokens must not reach the profile store")
	}
}

func TestResolve_ProfileStates(t *testing.T) {
	profiles := &mockProfileStore{profiles: map[string]domain.Profile{
		"gone": {ID: "gone", Status: "inativo"},
	}}
	svc := newSessionService(profiles)

	_, err := svc.Resolve(context.Background(), signToken(t, testJWTSecret, "gone", "authenticated", t0.Add(time.Hour)))
	var fe *domain.ErrForbidden
	if !errors.As(err, &fe) {
		t.Errorf("expected ErrForbidden for inactive user, got %v", err)
	}

	_, err = svc.Resolve(context.Background(), signToken(t, testJWTSecret, "ghost", "authenticated", t0.Add(time.Hour)))
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) {
		t.Errorf("expected ErrUnauthorized for missing profile, got %v", err)
	}
}

func TestSessionRun_DropsChangedProfile(t *testing.T) {
	profiles := &mockProfileStore{profiles: map[string]domain.Profile{
		"user-1": {ID: "user-1", Role: "designer"},
	}}
	svc := newSessionService(profiles)
	hub := newHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx, hub)
	waitFor(t, func() bool { return hub.Count() == 1 })

	token := signToken(t, testJWTSecret, "user-1", "authenticated", t0.Add(time.Hour))
	if _, err := svc.Resolve(ctx, token); err != nil {
		t.Fatal(err)
	}

	profiles.mu.Lock()
	profiles.profiles["user-1"] = domain.Profile{ID: "user-1", Role: "admin"}
	profiles.mu.Unlock()
	hub.Publish(domain.ChangeEvent{Table: "profiles", Type: "UPDATE", RecordID: "user-1"})

	waitFor(t, func() bool {
		sess, err := svc.Resolve(ctx, token)
		return err == nil && sess.Role == "admin"
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
