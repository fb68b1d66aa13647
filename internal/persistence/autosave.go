package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentic-research/orrery/internal/world"
)

// Source is the part of the world engine an AutoSaver reads.
type Source interface {
	Export() (string, error)
	Time() (time.Time, error)
	Generation() uint64
}

// AutoSaver snapshots a world at most once per interval while it is dirty.
// Ticks mark it dirty through OnTick, so a run of N ticks inside one
// interval costs a single export.
//
// Call Start to begin the coalescing goroutine and Close to stop it and save
// one last time if anything changed.
type AutoSaver struct {
	db    *DB
	src   Source
	label string
	keep  int

	mu      sync.Mutex
	dirty   bool
	saveErr error // last save error, readable via LastError()
	tick    *time.Ticker
	stopCh  chan struct{}
	done    chan struct{}
	stopped bool
}

// NewAutoSaver saves src under label, keeping the newest keep snapshots
// (all of them when keep is zero).
func NewAutoSaver(db *DB, src Source, label string, keep int) *AutoSaver {
	return &AutoSaver{
		db:     db,
		src:    src,
		label:  label,
		keep:   keep,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins the coalescing goroutine. Safe to call more than once.
func (a *AutoSaver) Start(interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tick != nil || a.stopped {
		return
	}
	a.tick = time.NewTicker(interval)
	go a.coalesceLoop()
}

func (a *AutoSaver) coalesceLoop() {
	defer close(a.done)
	for {
		select {
		case <-a.tick.C:
			a.mu.Lock()
			if !a.dirty {
				a.mu.Unlock()
				continue
			}
			a.dirty = false
			a.mu.Unlock()
			if err := a.save(); err != nil {
				a.mu.Lock()
				a.saveErr = err
				a.mu.Unlock()
				slog.Warn("autosave failed", "label", a.label, "err", err)
			}
		case <-a.stopCh:
			return
		}
	}
}

// OnTick marks the saver dirty. It makes AutoSaver a world.Observer.
func (a *AutoSaver) OnTick(world.Event) {
	a.RequestSave()
}

// RequestSave marks the saver dirty. Non-blocking.
func (a *AutoSaver) RequestSave() {
	a.mu.Lock()
	a.dirty = true
	a.mu.Unlock()
}

// FlushNow saves synchronously regardless of the dirty flag.
func (a *AutoSaver) FlushNow() error {
	a.mu.Lock()
	a.dirty = false
	a.mu.Unlock()
	return a.save()
}

// LastError returns the last error from the coalescing goroutine.
func (a *AutoSaver) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveErr
}

// Close stops the goroutine and performs a final save if dirty.
func (a *AutoSaver) Close() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	wasDirty := a.dirty
	a.dirty = false
	started := a.tick != nil
	if started {
		a.tick.Stop()
		close(a.stopCh)
	}
	a.mu.Unlock()

	if started {
		<-a.done
	}
	if wasDirty {
		return a.save()
	}
	return nil
}

func (a *AutoSaver) save() error {
	data, err := a.src.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	now, err := a.src.Time()
	if err != nil {
		return err
	}
	ctx := context.Background()
	snap, err := a.db.Save(ctx, a.label, now, a.src.Generation(), data)
	if err != nil {
		return err
	}
	if a.keep > 0 {
		if _, err := a.db.Prune(ctx, a.label, a.keep); err != nil {
			return err
		}
	}
	slog.Debug("autosaved", "id", snap.ID, "generation", snap.Generation, "size", snap.Size)
	return nil
}
