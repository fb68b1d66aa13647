package world

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/agentic-research/orrery/api"
	"github.com/agentic-research/orrery/internal/entity"
	"github.com/agentic-research/orrery/internal/vfs"
)

// ErrNoLightSpeed is returned by LightTime when the config's speed of light
// is zero.
var ErrNoLightSpeed = errors.New("speed of light is not configured")

// ReadEntity decodes the record at logical path p.
func (e *Engine) ReadEntity(p string) (entity.Obj, error) {
	data, err := e.store.Read(api.ObjectPath(p))
	if err != nil {
		return nil, err
	}
	obj, err := entity.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return obj, nil
}

// WriteEntity stores obj at logical path p. It waits for an in-flight tick.
func (e *Engine) WriteEntity(p string, obj entity.Obj) error {
	rec, err := entity.Encode(obj)
	if err != nil {
		return err
	}
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.store.WriteStructured(api.ObjectPath(p), rec)
}

// ListAll returns every entity path, each parent before its children and
// siblings in name order.
func (e *Engine) ListAll() ([]string, error) {
	var paths []string
	err := e.store.Walk(api.ObjectsDir, func(p string, info vfs.Info) error {
		if info.Kind != vfs.KindFile {
			return nil
		}
		if logical, ok := api.LogicalPath(p); ok {
			paths = append(paths, logical)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool {
		return slices.Compare(strings.Split(paths[i], "/"), strings.Split(paths[j], "/")) < 0
	})
	return paths, nil
}

// ListChildren returns the logical paths of the immediate children of p:
// the subdirectories of its entity directory.
func (e *Engine) ListChildren(p string) ([]string, error) {
	dir := api.EntityDir(p)
	names, err := e.store.List(dir)
	if err != nil {
		return nil, err
	}
	prefix := strings.Trim(p, "/")
	var out []string
	for _, name := range names {
		if name == api.ObjectFile || !e.store.IsDirectory(dir+"/"+name) {
			continue
		}
		if prefix == "" {
			out = append(out, name)
		} else {
			out = append(out, prefix+"/"+name)
		}
	}
	return out, nil
}

// ListAllOrderedBySemiMajorAxis returns every entity path by ascending
// semi-major axis. Entities without an orbit come last; ties keep the
// order of ListAll.
func (e *Engine) ListAllOrderedBySemiMajorAxis() ([]string, error) {
	paths, err := e.ListAll()
	if err != nil {
		return nil, err
	}
	type keyed struct {
		path  string
		orbit bool
		sma   float64
	}
	items := make([]keyed, 0, len(paths))
	for _, p := range paths {
		obj, err := e.ReadEntity(p)
		if err != nil {
			return nil, err
		}
		k := keyed{path: p, orbit: obj.HasOrbit()}
		if k.orbit {
			k.sma = obj.Common().Orbit.SMA
		}
		items = append(items, k)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.orbit != b.orbit {
			return a.orbit
		}
		return a.orbit && a.sma < b.sma
	})
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out, nil
}

// LightTime is the light travel time between the current positions of two
// entities.
func (e *Engine) LightTime(from, to string) (time.Duration, error) {
	cfg, err := e.Config()
	if err != nil {
		return 0, err
	}
	if cfg.SpeedOfLight == 0 {
		return 0, ErrNoLightSpeed
	}
	a, err := e.ReadEntity(from)
	if err != nil {
		return 0, err
	}
	b, err := e.ReadEntity(to)
	if err != nil {
		return 0, err
	}
	d := a.Common().Position.Sub(b.Common().Position).Mag()
	return time.Duration(d / cfg.SpeedOfLight * float64(time.Second)), nil
}

// parentPath returns the logical parent of p, or false at the top level.
func parentPath(p string) (string, bool) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", false
	}
	return p[:i], true
}
