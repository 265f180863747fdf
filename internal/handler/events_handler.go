package handler

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sseKeepAlive = 25 * time.Second

// ============================================================
// Server-sent events
// ============================================================

type sseStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// newSSEStream writes the event-stream headers. Streams outlive the
// server write timeout, so the deadline is cleared.
func newSSEStream(w http.ResponseWriter) *sseStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	_ = rc.Flush()
	return &sseStream{w: w, rc: rc}
}

func (s *sseStream) send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

func eventsHandler(notifier port.ChangeNotifier, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tables []string
		for _, t := range strings.Split(r.URL.Query().Get("tables"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				tables = append(tables, t)
			}
		}

		events, cancel := notifier.Subscribe(tables...)
		defer cancel()

		clientID := uuid.NewString()
		stream := newSSEStream(w)
		if err := stream.send("connected", map[string]any{"client_id": clientID, "tables": tables}); err != nil {
			return
		}

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := stream.send("change", ev); err != nil {
					logger.Debug("events: client write failed", zap.String("client_id", clientID), zap.Error(err))
					return
				}
			case <-keepAlive.C:
				if err := stream.ping(); err != nil {
					return
				}
			}
		}
	}
}

// ============================================================
// Database webhooks
// ============================================================

const webhookSecretHeader = "X-Webhook-Secret"

// dbChangePayload is the body Supabase database webhooks send.
type dbChangePayload struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Schema    string         `json:"schema"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

func (p dbChangePayload) recordID() string {
	for _, rec := range []map[string]any{p.Record, p.OldRecord} {
		if id, ok := rec["id"].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

func webhookHandler(notifier port.ChangeNotifier, secret string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			writeError(w, http.StatusServiceUnavailable, "webhook não configurado")
			return
		}
		got := r.Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logger.Warn("webhook: bad secret", zap.String("remote_addr", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "segredo inválido")
			return
		}

		var p dbChangePayload
		if !decodeJSON(w, r, &p) {
			return
		}
		if p.Table == "" {
			writeError(w, http.StatusBadRequest, "tabela ausente")
			return
		}

		ev := domain.ChangeEvent{Table: p.Table, Type: strings.ToUpper(p.Type), RecordID: p.recordID()}
		notifier.Publish(ev)
		logger.Debug("webhook: change published",
			zap.String("table", ev.Table),
			zap.String("type", ev.Type),
			zap.String("record_id", ev.RecordID),
		)
		w.WriteHeader(http.StatusNoContent)
	}
}
