package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

const autosaveTimeout = 10 * time.Second

var autosaveFields = map[string]bool{
	"title":       true,
	"description": true,
	"caption":     true,
}

// AutosaveField reports whether field is saved through the debouncer.
func AutosaveField(field string) bool {
	return autosaveFields[field]
}

// SaveFunc persists one field value.
type SaveFunc func(ctx context.Context, sess *domain.Session, demandID, field, value string) error

type pendingSave struct {
	gen   uint64
	value string
	sess  *domain.Session
	timer *time.Timer
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Autosaver coalesces edits per (demand, field): only the last value
// queued within the delay window is saved. Every edit takes a fresh
// generation; a flush whose generation is no longer the latest is dropped,
// so an older value can never overwrite a newer one. Per-key state is
// dropped once the latest edit of a key has been flushed.
type Autosaver struct {
	delay   time.Duration
	save    SaveFunc
	metrics *observability.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pendingSave
	gens    map[string]uint64
	locks   map[string]*keyLock
	wg      sync.WaitGroup
}

// NewAutosaver creates a debouncer that calls save after delay.
func NewAutosaver(delay time.Duration, save SaveFunc, metrics *observability.Metrics, logger *zap.Logger) *Autosaver {
	return &Autosaver{
		delay:   delay,
		save:    save,
		metrics: metrics,
		logger:  logger,
		pending: make(map[string]*pendingSave),
		gens:    make(map[string]uint64),
		locks:   make(map[string]*keyLock),
	}
}

func autosaveKey(demandID, field string) string {
	return demandID + "/" + field
}

// Queue schedules value to be saved, replacing any value still waiting
// for the same key. It returns the generation assigned to the edit.
func (a *Autosaver) Queue(sess *domain.Session, demandID, field, value string) (uint64, error) {
	if demandID == "" {
		return 0, &domain.ErrValidation{Field: "id", Message: "demanda é obrigatória"}
	}
	if !AutosaveField(field) {
		return 0, &domain.ErrValidation{Field: "field", Message: "campo não suporta salvamento automático"}
	}

	key := autosaveKey(demandID, field)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	gen := a.seq
	a.gens[key] = gen

	if prev, ok := a.pending[key]; ok && prev.timer.Stop() {
		a.wg.Done()
	}

	a.wg.Add(1)
	p := &pendingSave{gen: gen, value: value, sess: sess}
	p.timer = time.AfterFunc(a.delay, func() { a.flush(demandID, field, gen) })
	a.pending[key] = p
	return gen, nil
}

func (a *Autosaver) flush(demandID, field string, gen uint64) {
	defer a.wg.Done()
	key := autosaveKey(demandID, field)

	a.mu.Lock()
	p, ok := a.pending[key]
	if !ok || p.gen != gen {
		a.mu.Unlock()
		a.metrics.IncrAutosave("stale")
		return
	}
	delete(a.pending, key)
	lock := a.acquire(key)
	a.mu.Unlock()

	// One save per key at a time, so a slow older save cannot land after
	// a newer one.
	lock.Lock()
	defer a.release(key, gen, lock)

	if !a.isLatest(key, gen) {
		a.metrics.IncrAutosave("stale")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
	defer cancel()

	if err := a.save(ctx, p.sess, demandID, field, p.value); err != nil {
		a.metrics.IncrAutosave("error")
		a.logger.Warn("autosave failed",
			zap.String("demand_id", demandID),
			zap.String("field", field),
			zap.Uint64("generation", gen),
			zap.Error(err),
		)
		return
	}
	a.metrics.IncrAutosave("saved")
}

// acquire must be called with a.mu held.
func (a *Autosaver) acquire(key string) *keyLock {
	l, ok := a.locks[key]
	if !ok {
		l = &keyLock{}
		a.locks[key] = l
	}
	l.refs++
	return l
}

func (a *Autosaver) release(key string, gen uint64, l *keyLock) {
	l.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(a.locks, key)
	}
	if _, waiting := a.pending[key]; !waiting && a.gens[key] == gen {
		delete(a.gens, key)
	}
}

// tracked returns how many keys still hold generation or lock state.
func (a *Autosaver) tracked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.gens) + len(a.locks)
}

func (a *Autosaver) isLatest(key string, gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gens[key] == gen
}

// Pending returns the number of edits waiting for their delay.
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush saves every waiting edit now and blocks until all saves finish.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	for _, p := range a.pending {
		if p.timer.Stop() {
			p.timer.Reset(0)
		}
	}
	a.mu.Unlock()
	a.wg.Wait()
}
