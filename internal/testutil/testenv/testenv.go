// Package testenv runs the fully wired BFA against the in-memory Supabase
// fake, with a controllable clock and signed access tokens.
package testenv

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/app"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/config"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/testutil/fakerest"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	JWTSecret     = "test-jwt-secret"
	WebhookSecret = "test-webhook-secret"
)

// Seeded ids.
const (
	StatusBacklog    = "st-backlog"
	StatusApproval   = "st-approval"
	StatusProduction = "st-prod"
	StatusReview     = "st-review"
	StatusDone       = "st-done"
	TypePost         = "ty-post"
	OriginInstagram  = "or-insta"
)

// Clock is a manual service.Clock. Ticks are delivered by Fire.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t, ticks: make(chan time.Time, 1)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *Clock) Tick(time.Duration) (<-chan time.Time, func()) {
	return c.ticks, func() {}
}

// Fire advances the clock by d and delivers one tick.
func (c *Clock) Fire(d time.Duration) {
	c.Advance(d)
	c.ticks <- c.Now()
}

// Env is one isolated BFA instance.
type Env struct {
	Backend *fakerest.Server
	App     *app.App
	Clock   *Clock
	Metrics *observability.Metrics
	Config  *config.Config
}

// Start is the initial clock time: 2026-10-15 09:00 in São Paulo.
var Start = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// New builds an Env. mutate can adjust the config before wiring.
func New(t *testing.T, mutate ...func(*config.Config)) *Env {
	t.Helper()

	backend := fakerest.New()
	t.Cleanup(backend.Close)
	backend.Unique("role_permissions", "role", "resource")
	backend.Unique("statuses", "name")
	backend.Serial("demands", "sequence_number")
	seed(backend)

	clock := NewClock(Start)
	backend.Now = clock.Now

	cfg := &config.Config{
		CORSOrigins:       []string{"http://localhost:5173"},
		HTTPTimeout:       5 * time.Second,
		MaxRetries:        1,
		InitialBackoff:    time.Millisecond,
		MaxConcurrency:    4,
		CacheTTL:          time.Minute,
		CacheBackend:      "memory",
		SupabaseURL:       backend.URL,
		SupabaseAnonKey:   "anon-key",
		SupabaseJWTSecret: JWTSecret,
		WebhookSecret:     WebhookSecret,
		StorageBackend:    "supabase",
		Timezone:          "America/Sao_Paulo",
		AutosaveDelay:     20 * time.Millisecond,
	}
	for _, m := range mutate {
		m(cfg)
	}

	metrics := observability.NewMetrics()
	a, err := app.New(cfg, app.Deps{
		HTTPClient: backend.Client(),
		Clock:      clock,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("wire app: %v", err)
	}
	a.Start(context.Background())
	t.Cleanup(func() { a.Shutdown(time.Second) })

	return &Env{Backend: backend, App: a, Clock: clock, Metrics: metrics, Config: cfg}
}

var _ service.Clock = (*Clock)(nil)

func seed(b *fakerest.Server) {
	b.Seed("statuses",
		fakerest.Row{"id": StatusBacklog, "name": "Backlog", "order_index": 0, "kind": "backlog", "color": "#64748b"},
		fakerest.Row{"id": StatusApproval, "name": "Aguardando aprovação", "order_index": 1, "kind": "approval"},
		fakerest.Row{"id": StatusProduction, "name": "Em produção", "order_index": 2, "kind": "production"},
		fakerest.Row{"id": StatusReview, "name": "Revisão", "order_index": 3, "kind": "review"},
		fakerest.Row{"id": StatusDone, "name": "Concluído", "order_index": 4, "kind": "completed"},
	)
	b.Seed("types", fakerest.Row{"id": TypePost, "name": "Post", "color": "#f97316"})
	b.Seed("origins", fakerest.Row{"id": OriginInstagram, "name": "Instagram"})
}

// AddUser inserts an active profile.
func (e *Env) AddUser(id, name, role string) {
	e.Backend.Seed("profiles", fakerest.Row{
		"id": id, "full_name": name, "email": id + "@agencia.com", "role": role, "status": "ativo",
	})
}

// Grant upserts a matrix row.
func (e *Env) Grant(role, resource string, view, edit, del bool) {
	e.Backend.Seed("role_permissions", fakerest.Row{
		"role": role, "resource": resource, "can_view": view, "can_manage": edit, "can_delete": del,
	})
}

// Token signs an access token for userID valid for an hour of clock time.
func (e *Env) Token(t *testing.T, userID string) string {
	t.Helper()
	now := e.Clock.Now()
	claims := service.SupabaseClaims{
		Email: userID + "@agencia.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

// Do sends a JSON request through the router.
func (e *Env) Do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.App.Handler.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals a recorder body into v.
func Decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

// Expect fails the test when the status code differs.
func Expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}
