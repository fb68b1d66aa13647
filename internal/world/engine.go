// Package world owns the store, the simulation clock and the tick scheduler.
//
// A tick reads every entity, recomputes positions parent-first, resolves
// cyclic attributes and writes the whole result back in one batch, so readers
// never observe a half-applied tick.
package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentic-research/orrery/api"
	"github.com/agentic-research/orrery/internal/vfs"
	"github.com/agentic-research/orrery/internal/worldfile"
)

// State is the scheduler state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// ErrInvalidTimeWarp rejects NaN and infinite warps.
var ErrInvalidTimeWarp = errors.New("time warp must be finite")

// Event describes a completed tick or import.
type Event struct {
	Generation uint64
	Time       time.Time
	TimeWarp   float64
	// Err joins the per-entity failures of the tick, if any.
	Err error
}

// Observer is notified after each successful batch write.
type Observer interface {
	OnTick(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnTick(ev Event) { f(ev) }

// Option configures an Engine.
type Option func(*Engine)

// WithTimeWarp sets the initial time warp (default 1).
func WithTimeWarp(w float64) Option {
	return func(e *Engine) { e.warp.Store(math.Float64bits(w)) }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithWallClock sets the source used to seed an absent simulation clock.
func WithWallClock(now func() time.Time) Option {
	return func(e *Engine) { e.wall = now }
}

// Engine drives a world stored in a vfs.Store.
type Engine struct {
	store *vfs.Store
	log   *slog.Logger
	wall  func() time.Time

	// tickMu serializes every mutation: tick, init, import and entity
	// writes from callers.
	tickMu     sync.Mutex
	warp       atomic.Uint64
	generation atomic.Uint64

	obsMu     sync.RWMutex
	observers []Observer

	runMu  sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// New wraps store. Call Init before the first tick.
func New(store *vfs.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   slog.Default(),
		wall:  time.Now,
	}
	e.warp.Store(math.Float64bits(1))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying store for read access.
func (e *Engine) Store() *vfs.Store {
	return e.store
}

// Config reads the world configuration. Fields absent from the stored
// record keep their defaults.
func (e *Engine) Config() (api.Config, error) {
	cfg := api.DefaultConfig()
	if err := e.store.ReadInto(api.ConfigPath, &cfg); err != nil {
		return api.Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return api.Config{}, err
	}
	return cfg, nil
}

// Time reads the simulation clock.
func (e *Engine) Time() (time.Time, error) {
	v, err := e.store.ReadStructured(api.TimePath)
	if err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("read clock: expected a timestamp string, got %T", v)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// TimeWarp returns the current warp factor.
func (e *Engine) TimeWarp() float64 {
	return math.Float64frombits(e.warp.Load())
}

// SetTimeWarp changes how much simulated time one tick covers. Zero pauses
// the clock; negative values run it backwards.
func (e *Engine) SetTimeWarp(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTimeWarp, w)
	}
	e.warp.Store(math.Float64bits(w))
	e.log.Info("time warp changed", "warp", w)
	return nil
}

// Generation counts completed ticks and imports.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// Observe registers o for tick notifications.
func (e *Engine) Observe(o Observer) {
	e.obsMu.Lock()
	e.observers = append(e.observers, o)
	e.obsMu.Unlock()
}

func (e *Engine) notify(ev Event) {
	e.obsMu.RLock()
	obs := make([]Observer, len(e.observers))
	copy(obs, e.observers)
	e.obsMu.RUnlock()
	for _, o := range obs {
		o.OnTick(ev)
	}
}

// Step returns the simulated time covered by one tick.
func Step(ticksPerSecond, warp float64) time.Duration {
	return time.Duration(math.Round(float64(time.Second) * warp / ticksPerSecond))
}

// Start launches the tick scheduler at TicksPerSecond. Calling Start on a
// running engine is a no-op. Cancelling ctx stops the scheduler as Stop does
// but without waiting.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.runningLocked() {
		return nil
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	interval := time.Duration(float64(time.Second) / cfg.TicksPerSecond)
	if interval <= 0 {
		return fmt.Errorf("%w: tick interval %v at %v ticks per second", api.ErrInvalidConfig, interval, cfg.TicksPerSecond)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	e.stopCh, e.done = stop, done
	go e.run(ctx, interval, stop, done)
	e.log.Info("world started", "interval", interval, "warp", e.TimeWarp())
	return nil
}

func (e *Engine) run(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := e.Tick(); err != nil {
				e.log.Warn("tick failed", "generation", e.Generation(), "err", err)
			}
		}
	}
}

// Stop halts the scheduler and waits for an in-flight tick to finish.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.done == nil {
		return
	}
	close(e.stopCh)
	<-e.done
	e.stopCh, e.done = nil, nil
	e.log.Info("world stopped", "generation", e.Generation())
}

// State reports whether the scheduler is running.
func (e *Engine) State() State {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.runningLocked() {
		return Running
	}
	return Stopped
}

func (e *Engine) runningLocked() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Export serializes the store between ticks.
func (e *Engine) Export() (string, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return worldfile.Export(e.store)
}

// Import replaces the whole store with the contents of a world file.
func (e *Engine) Import(data string) error {
	next, err := worldfile.Import(data)
	if err != nil {
		return err
	}
	e.tickMu.Lock()
	e.store.Replace(next)
	gen := e.generation.Add(1)
	e.tickMu.Unlock()

	ev := Event{Generation: gen, TimeWarp: e.TimeWarp()}
	if now, err := e.Time(); err == nil {
		ev.Time = now
	}
	e.log.Info("world imported", "generation", gen, "nodes", e.store.Len())
	e.notify(ev)
	return nil
}
