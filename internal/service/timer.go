package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var timerTracer = otel.Tracer("service/timer")

// Clock abstracts wall time so tests can drive the timer deterministically.
type Clock interface {
	Now() time.Time
	// Tick returns a channel that fires every d and a func that stops it.
	Tick(d time.Duration) (<-chan time.Time, func())
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Tick(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// ============================================================
// Elapsed time
// ============================================================

// Elapsed is the live production time of a demand.
type Elapsed struct {
	Seconds   int64  `json:"seconds"`
	Formatted string `json:"formatted"`
	IsRunning bool   `json:"is_running"`
}

// SessionSeconds is the whole seconds between start and now, never negative.
func SessionSeconds(startedAt, now time.Time) int64 {
	d := now.Sub(startedAt)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// ComputeElapsed returns accumulated time plus the open session, if any.
// It has no side effects and never touches storage.
func ComputeElapsed(status domain.Status, startedAt *time.Time, accumulated int64, now time.Time) Elapsed {
	running := status.IsProduction()
	secs := accumulated
	if running && startedAt != nil {
		secs += SessionSeconds(*startedAt, now)
	}
	return Elapsed{
		Seconds:   secs,
		Formatted: FormatHMS(secs),
		IsRunning: running,
	}
}

// ElapsedOf is ComputeElapsed over a joined demand row.
func ElapsedOf(d *domain.Demand, now time.Time) Elapsed {
	var st domain.Status
	if d.Status != nil {
		st = *d.Status
	}
	return ComputeElapsed(st, d.ProductionStartedAt, d.AccumulatedTime, now)
}

// FormatHMS renders seconds as zero-padded HH:MM:SS. Hours do not wrap.
func FormatHMS(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// ============================================================
// Live timer stream
// ============================================================

// TimerWatcher recomputes a demand's elapsed time once per second while
// it is in production.
type TimerWatcher struct {
	demands  port.DemandStore
	notifier port.ChangeNotifier
	clock    Clock
	logger   *zap.Logger
}

// NewTimerWatcher creates a watcher.
func NewTimerWatcher(demands port.DemandStore, notifier port.ChangeNotifier, clock Clock, logger *zap.Logger) *TimerWatcher {
	return &TimerWatcher{demands: demands, notifier: notifier, clock: clock, logger: logger}
}

// Current returns the elapsed time of a demand right now.
func (w *TimerWatcher) Current(ctx context.Context, demandID string) (*Elapsed, error) {
	ctx, span := timerTracer.Start(ctx, "TimerWatcher.Current")
	defer span.End()

	d, err := w.demands.GetDemand(ctx, demandID)
	if err != nil {
		return nil, err
	}
	e := ElapsedOf(d, w.clock.Now())
	return &e, nil
}

// Watch emits the elapsed time immediately and then once per second while
// the demand stays in production. A change to the demands table triggers a
// re-fetch; when the demand leaves production the final value is emitted
// and Watch returns. It also returns when ctx is done or emit fails.
func (w *TimerWatcher) Watch(ctx context.Context, demandID string, emit func(Elapsed) error) error {
	events, cancel := w.notifier.Subscribe("demands")
	defer cancel()

	d, err := w.demands.GetDemand(ctx, demandID)
	if err != nil {
		return err
	}
	current := ElapsedOf(d, w.clock.Now())
	if err := emit(current); err != nil {
		return err
	}
	if !current.IsRunning {
		return nil
	}

	ticks, stop := w.clock.Tick(time.Second)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticks:
			if err := emit(ElapsedOf(d, w.clock.Now())); err != nil {
				return err
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.RecordID != "" && ev.RecordID != demandID {
				continue
			}
			fresh, err := w.demands.GetDemand(ctx, demandID)
			if err != nil {
				w.logger.Warn("timer: refetch failed", zap.String("demand_id", demandID), zap.Error(err))
				continue
			}
			d = fresh
			current = ElapsedOf(d, w.clock.Now())
			if !current.IsRunning {
				return emit(current)
			}
		}
	}
}
