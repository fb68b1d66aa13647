package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentic-research/orrery/api"
	"github.com/agentic-research/orrery/internal/entity"
	"github.com/agentic-research/orrery/internal/world"
)

// World method names.
const (
	MethodReadEntity   = "world.readEntity"
	MethodWriteEntity  = "world.writeEntity"
	MethodListChildren = "world.listChildren"
	MethodListAll      = "world.listAll"
	MethodTick         = "world.tick"
	MethodStart        = "world.start"
	MethodStop         = "world.stop"
	MethodStatus       = "world.status"
	MethodSetTimeWarp  = "world.setTimeWarp"
	MethodExport       = "world.export"
	MethodImport       = "world.import"
	MethodQuery        = "world.query"
	MethodLightTime    = "world.lightTime"
)

// PathParams names one entity.
type PathParams struct {
	Path string `json:"path"`
}

// WriteParams carries an entity record.
type WriteParams struct {
	Path   string          `json:"path"`
	Record json.RawMessage `json:"record"`
}

// ListParams selects the ListAll ordering.
type ListParams struct {
	BySemiMajorAxis bool `json:"bySemiMajorAxis,omitempty"`
}

// QueryParams runs a JSONPath selector against an entity record.
type QueryParams struct {
	Path     string `json:"path"`
	Selector string `json:"selector"`
}

// LightTimeParams names two entities.
type LightTimeParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WarpParams sets the time warp.
type WarpParams struct {
	TimeWarp float64 `json:"timeWarp"`
}

// ImportParams carries a world file.
type ImportParams struct {
	Data string `json:"data"`
}

// TickResult reports one tick. Failures lists entities that kept their
// previous state.
type TickResult struct {
	Generation uint64    `json:"generation"`
	Time       time.Time `json:"time"`
	Failures   []string  `json:"failures,omitempty"`
}

// Status is the engine's clock and run state.
type Status struct {
	State      string     `json:"state"`
	Generation uint64     `json:"generation"`
	Time       time.Time  `json:"time"`
	TimeWarp   float64    `json:"timeWarp"`
	Config     api.Config `json:"config"`
}

// LightTimeResult is a light travel time.
type LightTimeResult struct {
	Seconds float64 `json:"seconds"`
}

func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, fmt.Errorf("decode params: %w", err)
	}
	return v, nil
}

// WorldHandlers exposes eng's control surface. Start runs the tick loop
// under ctx, so it outlives the request that started it.
func WorldHandlers(ctx context.Context, eng *world.Engine) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		MethodReadEntity: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[PathParams](raw)
			if err != nil {
				return nil, err
			}
			obj, err := eng.ReadEntity(p.Path)
			if err != nil {
				return nil, err
			}
			return entity.Encode(obj)
		},
		MethodWriteEntity: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[WriteParams](raw)
			if err != nil {
				return nil, err
			}
			obj, err := entity.Decode(p.Record)
			if err != nil {
				return nil, err
			}
			return nil, eng.WriteEntity(p.Path, obj)
		},
		MethodListChildren: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[PathParams](raw)
			if err != nil {
				return nil, err
			}
			return eng.ListChildren(p.Path)
		},
		MethodListAll: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[ListParams](raw)
			if err != nil {
				return nil, err
			}
			if p.BySemiMajorAxis {
				return eng.ListAllOrderedBySemiMajorAxis()
			}
			return eng.ListAll()
		},
		MethodTick: func(context.Context, json.RawMessage) (any, error) {
			failures, err := tickFailures(eng.Tick())
			if err != nil {
				return nil, err
			}
			now, err := eng.Time()
			if err != nil {
				return nil, err
			}
			return TickResult{Generation: eng.Generation(), Time: now, Failures: failures}, nil
		},
		MethodStart: func(context.Context, json.RawMessage) (any, error) {
			return nil, eng.Start(ctx)
		},
		MethodStop: func(context.Context, json.RawMessage) (any, error) {
			eng.Stop()
			return nil, nil
		},
		MethodStatus: func(context.Context, json.RawMessage) (any, error) {
			return status(eng)
		},
		MethodSetTimeWarp: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[WarpParams](raw)
			if err != nil {
				return nil, err
			}
			return nil, eng.SetTimeWarp(p.TimeWarp)
		},
		MethodExport: func(context.Context, json.RawMessage) (any, error) {
			return eng.Export()
		},
		MethodImport: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[ImportParams](raw)
			if err != nil {
				return nil, err
			}
			return nil, eng.Import(p.Data)
		},
		MethodQuery: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[QueryParams](raw)
			if err != nil {
				return nil, err
			}
			return eng.Store().Query(api.ObjectPath(p.Path), p.Selector)
		},
		MethodLightTime: func(_ context.Context, raw json.RawMessage) (any, error) {
			p, err := decode[LightTimeParams](raw)
			if err != nil {
				return nil, err
			}
			d, err := eng.LightTime(p.From, p.To)
			if err != nil {
				return nil, err
			}
			return LightTimeResult{Seconds: d.Seconds()}, nil
		},
	}
}

func status(eng *world.Engine) (Status, error) {
	cfg, err := eng.Config()
	if err != nil {
		return Status{}, err
	}
	now, err := eng.Time()
	if err != nil {
		return Status{}, err
	}
	return Status{
		State:      eng.State().String(),
		Generation: eng.Generation(),
		Time:       now,
		TimeWarp:   eng.TimeWarp(),
		Config:     cfg,
	}, nil
}

// tickFailures splits a tick error into per-entity messages. Any other
// error is returned as is.
func tickFailures(err error) ([]string, error) {
	if err == nil {
		return nil, nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		var ee *world.EntityError
		if !errors.As(e, &ee) {
			return nil, err
		}
		out = append(out, ee.Error())
	}
	return out, nil
}

// Client is the typed caller side of the world methods.
type Client struct {
	b *Bridge
}

// NewClient wraps b.
func NewClient(b *Bridge) *Client {
	return &Client{b: b}
}

// ReadEntity returns the record at logical path p.
func (c *Client) ReadEntity(ctx context.Context, p string) (json.RawMessage, error) {
	var rec json.RawMessage
	err := c.b.Invoke(ctx, MethodReadEntity, PathParams{Path: p}, &rec)
	return rec, err
}

// WriteEntity replaces the record at logical path p.
func (c *Client) WriteEntity(ctx context.Context, p string, rec json.RawMessage) error {
	return c.b.Invoke(ctx, MethodWriteEntity, WriteParams{Path: p, Record: rec}, nil)
}

// ListChildren lists the immediate children of p.
func (c *Client) ListChildren(ctx context.Context, p string) ([]string, error) {
	var out []string
	err := c.b.Invoke(ctx, MethodListChildren, PathParams{Path: p}, &out)
	return out, err
}

// ListAll lists every entity, optionally by semi-major axis.
func (c *Client) ListAll(ctx context.Context, bySMA bool) ([]string, error) {
	var out []string
	err := c.b.Invoke(ctx, MethodListAll, ListParams{BySemiMajorAxis: bySMA}, &out)
	return out, err
}

// Tick advances the world once.
func (c *Client) Tick(ctx context.Context) (TickResult, error) {
	var out TickResult
	err := c.b.Invoke(ctx, MethodTick, nil, &out)
	return out, err
}

// Start starts the tick loop.
func (c *Client) Start(ctx context.Context) error {
	return c.b.Invoke(ctx, MethodStart, nil, nil)
}

// Stop stops the tick loop.
func (c *Client) Stop(ctx context.Context) error {
	return c.b.Invoke(ctx, MethodStop, nil, nil)
}

// Status reports the engine's clock and run state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.b.Invoke(ctx, MethodStatus, nil, &out)
	return out, err
}

// SetTimeWarp changes the time warp.
func (c *Client) SetTimeWarp(ctx context.Context, w float64) error {
	return c.b.Invoke(ctx, MethodSetTimeWarp, WarpParams{TimeWarp: w}, nil)
}

// Export returns the world file.
func (c *Client) Export(ctx context.Context) (string, error) {
	var out string
	err := c.b.Invoke(ctx, MethodExport, nil, &out)
	return out, err
}

// Import replaces the world with a world file.
func (c *Client) Import(ctx context.Context, data string) error {
	return c.b.Invoke(ctx, MethodImport, ImportParams{Data: data}, nil)
}

// Query evaluates a JSONPath selector against the record at p.
func (c *Client) Query(ctx context.Context, p, selector string) ([]any, error) {
	var out []any
	err := c.b.Invoke(ctx, MethodQuery, QueryParams{Path: p, Selector: selector}, &out)
	return out, err
}

// LightTime is the light travel time between two entities.
func (c *Client) LightTime(ctx context.Context, from, to string) (time.Duration, error) {
	var out LightTimeResult
	if err := c.b.Invoke(ctx, MethodLightTime, LightTimeParams{From: from, To: to}, &out); err != nil {
		return 0, err
	}
	return time.Duration(out.Seconds * float64(time.Second)), nil
}
