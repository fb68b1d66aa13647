package world

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/agentic-research/orrery/api"
	"github.com/agentic-research/orrery/internal/entity"
	"github.com/agentic-research/orrery/internal/orbit"
)

var (
	// ErrNoParent is returned for an orbiting entity with no ancestor body.
	ErrNoParent = errors.New("orbiting entity has no parent body")
	// ErrParentFailed is returned for an entity that depends on its parent
	// when the nearest ancestor record cannot be decoded.
	ErrParentFailed = errors.New("parent record cannot be decoded")
)

// EntityError attributes a failure to one entity.
type EntityError struct {
	Path string
	Err  error
}

func (e *EntityError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *EntityError) Unwrap() error { return e.Err }

// Tick advances the clock by one step and recomputes every entity. Entities
// that fail keep their stored record and are reported in the joined error;
// all others are still written.
func (e *Engine) Tick() error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	cfg, err := e.Config()
	if err != nil {
		return err
	}
	now, err := e.Time()
	if err != nil {
		return err
	}
	warp := e.TimeWarp()
	next := now.Add(Step(cfg.TicksPerSecond, warp))

	paths, err := e.ListAll()
	if err != nil {
		return err
	}
	updates, entErr := e.advanceAll(paths, cfg, next)
	updates[api.TimePath] = formatTime(next)
	if err := e.store.WriteBatch(updates); err != nil {
		return fmt.Errorf("write tick: %w", err)
	}

	gen := e.generation.Add(1)
	e.notify(Event{Generation: gen, Time: next, TimeWarp: warp, Err: entErr})
	return entErr
}

// advanceAll computes the new record of every entity in paths at now. paths
// must list parents before children.
func (e *Engine) advanceAll(paths []string, cfg api.Config, now time.Time) (map[string]any, error) {
	bodies := make(map[string]entity.Obj, len(paths))
	failed := make(map[string]bool)
	updates := make(map[string]any, len(paths)+1)
	var errs []error
	for _, p := range paths {
		obj, err := e.ReadEntity(p)
		if err != nil {
			failed[p] = true
			errs = append(errs, &EntityError{Path: p, Err: err})
			continue
		}
		bodies[p] = obj
		parent, err := parentOf(p, bodies, failed)
		if err != nil && needsParent(obj) {
			errs = append(errs, &EntityError{Path: p, Err: err})
			continue
		}
		if err := advance(obj, parent, cfg, now); err != nil {
			errs = append(errs, &EntityError{Path: p, Err: err})
			continue
		}
		rec, err := entity.Encode(obj)
		if err != nil {
			errs = append(errs, &EntityError{Path: p, Err: err})
			continue
		}
		updates[api.ObjectPath(p)] = rec
	}
	return updates, errors.Join(errs...)
}

// advance recomputes obj at now. obj is only modified when every step
// succeeds, so a failed entity still presents its stored position to its
// children.
func advance(obj entity.Obj, parent entity.Obj, cfg api.Config, now time.Time) error {
	b := obj.Common()

	pos := b.Position
	if obj.HasOrbit() {
		if parent == nil {
			return ErrNoParent
		}
		mu := cfg.GravitationalConstant * parent.Common().Mass
		off, err := b.Orbit.Elements().Offset(mu, now)
		if err != nil {
			return fmt.Errorf("orbit: %w", err)
		}
		pos = parent.Common().Position.Add(off)
	}

	var angle float64
	if b.Axis != nil {
		period, err := axisPeriod(obj, parent, cfg)
		if err != nil {
			return err
		}
		angle = b.Axis.Angle
		if b.Axis.Epoch != nil {
			angle = orbit.AxisAngle(now, *b.Axis.Epoch, period)
		}
	}

	state, err := resolveState(obj, cfg, now)
	if err != nil {
		return err
	}

	b.Position = pos
	if b.Axis != nil {
		b.Axis.Angle = angle
	}
	b.State = state
	return nil
}

// axisPeriod returns the rotation period in seconds, computing synchronous
// periods from the orbit.
func axisPeriod(obj, parent entity.Obj, cfg api.Config) (float64, error) {
	b := obj.Common()
	if !b.Axis.Period.Synchronous {
		return b.Axis.Period.Seconds, nil
	}
	if !obj.HasOrbit() || parent == nil {
		return 0, entity.ErrSynchronousUnresolved
	}
	return orbit.SynchronousPeriod(b.Orbit.SMA, cfg.GravitationalConstant*parent.Common().Mass), nil
}

// resolveState evaluates the named cycles, plus the magnitude and luminosity
// of stars.
func resolveState(obj entity.Obj, cfg api.Config, now time.Time) (map[string]float64, error) {
	b := obj.Common()
	var state map[string]float64
	if len(b.Cycles) > 0 {
		state = make(map[string]float64, len(b.Cycles))
		names := make([]string, 0, len(b.Cycles))
		for name := range b.Cycles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v, err := b.Cycles[name].Resolve(now)
			if err != nil {
				return nil, fmt.Errorf("cycle %q: %w", name, err)
			}
			state[name] = v
		}
	}

	switch o := obj.(type) {
	case *entity.Star:
		mag, err := o.AbsMag.Resolve(now)
		if err != nil {
			return nil, fmt.Errorf("absmag: %w", err)
		}
		if state == nil {
			state = make(map[string]float64, 2)
		}
		state["absmag"] = mag
		state["luminosity"] = entity.Luminosity(mag, cfg.LuminosityConstant)
	case *entity.Root, *entity.Planet:
	default:
		return nil, fmt.Errorf("unsupported entity type %T", obj)
	}
	return state, nil
}

// parentOf returns the nearest ancestor of p holding a record. It fails
// with ErrParentFailed when that record could not be decoded.
func parentOf(p string, bodies map[string]entity.Obj, failed map[string]bool) (entity.Obj, error) {
	for {
		dir, ok := parentPath(p)
		if !ok {
			return nil, nil
		}
		if b, ok := bodies[dir]; ok {
			return b, nil
		}
		if failed[dir] {
			return nil, fmt.Errorf("%w: %s", ErrParentFailed, dir)
		}
		p = dir
	}
}

// needsParent reports whether obj's update reads its parent body.
func needsParent(obj entity.Obj) bool {
	b := obj.Common()
	return obj.HasOrbit() || (b.Axis != nil && b.Axis.Period.Synchronous)
}

// Init prepares a world for ticking: it seeds the config and clock when
// absent, moves "at" epochs forward to the clock, resolves synchronous axis
// periods and seeds missing axis epochs.
func (e *Engine) Init() error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	updates := make(map[string]any)

	cfg := api.DefaultConfig()
	if e.store.Exists(api.ConfigPath) {
		var err error
		if cfg, err = e.Config(); err != nil {
			return err
		}
	} else {
		updates[api.ConfigPath] = cfg
	}

	var now time.Time
	if e.store.Exists(api.TimePath) {
		var err error
		if now, err = e.Time(); err != nil {
			return err
		}
	} else {
		now = e.wall().UTC()
		updates[api.TimePath] = formatTime(now)
	}

	paths, err := e.ListAll()
	if err != nil {
		return err
	}
	bodies := make(map[string]entity.Obj, len(paths))
	failed := make(map[string]bool)
	var errs []error
	for _, p := range paths {
		obj, err := e.ReadEntity(p)
		if err != nil {
			failed[p] = true
			errs = append(errs, &EntityError{Path: p, Err: err})
			continue
		}
		bodies[p] = obj
		parent, err := parentOf(p, bodies, failed)
		if err != nil && needsParent(obj) {
			errs = append(errs, &EntityError{Path: p, Err: err})
			continue
		}
		changed, err := prepare(obj, parent, cfg, now)
		if err != nil {
			errs = append(errs, &EntityError{Path: p, Err: err})
		}
		if !changed {
			continue
		}
		rec, err := entity.Encode(obj)
		if err != nil {
			errs = append(errs, &EntityError{Path: p, Err: err})
			continue
		}
		updates[api.ObjectPath(p)] = rec
	}

	if err := e.store.WriteBatch(updates); err != nil {
		return fmt.Errorf("write init: %w", err)
	}
	e.log.Info("world initialized", "time", now, "entities", len(paths))
	return errors.Join(errs...)
}

// prepare normalizes obj's epochs to now. It reports whether obj changed;
// a partial change is still reported alongside the error.
func prepare(obj, parent entity.Obj, cfg api.Config, now time.Time) (bool, error) {
	b := obj.Common()
	changed := false

	if obj.HasOrbit() && b.Orbit.Top == nil {
		at := now
		if b.Orbit.At != nil {
			if parent == nil {
				return changed, ErrNoParent
			}
			mna, err := b.Orbit.Elements().AdvanceMNA(cfg.GravitationalConstant*parent.Common().Mass, now)
			if err != nil {
				return changed, fmt.Errorf("orbit: %w", err)
			}
			b.Orbit.MNA = mna
		}
		b.Orbit.At = &at
		changed = true
	}

	if b.Axis != nil {
		if b.Axis.Period.Synchronous {
			period, err := axisPeriod(obj, parent, cfg)
			if err != nil {
				return changed, err
			}
			b.Axis.Period = entity.Period{Seconds: period}
			changed = true
		}
		if b.Axis.Epoch == nil {
			epoch := now
			b.Axis.Epoch = &epoch
			changed = true
		}
	}
	return changed, nil
}
