// Package scenario builds worlds from HCL definitions.
//
// A scenario nests bodies the way they orbit:
//
//	body "root" "sun" {
//	  mass = 1.9891e30
//	  body "planet" "earth" {
//	    orbit { sma = 1.496e11 ecc = 0.0167 }
//	  }
//	}
//
// and may set the clock and the world config at the top level.
package scenario

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/agentic-research/orrery/api"
	"github.com/agentic-research/orrery/internal/cycle"
	"github.com/agentic-research/orrery/internal/entity"
	"github.com/agentic-research/orrery/internal/vfs"
	"github.com/agentic-research/orrery/internal/vmath"
)

//go:embed default.hcl
var defaultSource []byte

// DefaultName is the file name reported for the embedded scenario.
const DefaultName = "default.hcl"

type file struct {
	Time   *string      `hcl:"time,optional"`
	Config *configBlock `hcl:"config,block"`
	Bodies []bodyBlock  `hcl:"body,block"`
}

type configBlock struct {
	TicksPerSecond        *float64 `hcl:"ticks_per_second,optional"`
	SpeedOfLight          *float64 `hcl:"speed_of_light,optional"`
	GravitationalConstant *float64 `hcl:"gravitational_constant,optional"`
	LuminosityConstant    *float64 `hcl:"luminosity_constant,optional"`
	InitialTarget         *string  `hcl:"initial_target,optional"`
}

type bodyBlock struct {
	Kind string `hcl:"kind,label"`
	Name string `hcl:"name,label"`

	Title       string    `hcl:"title,optional"`
	Designation string    `hcl:"designation,optional"`
	Position    []float64 `hcl:"position,optional"`
	Mass        float64   `hcl:"mass,optional"`
	Radius      float64   `hcl:"radius,optional"`
	Albedo      *float64  `hcl:"albedo,optional"`
	Cycles      cty.Value `hcl:"cycles,optional"`

	AbsMag   cty.Value `hcl:"absmag,optional"`
	Spectral string    `hcl:"spectral,optional"`
	Texture  string    `hcl:"texture,optional"`
	Subtype  string    `hcl:"subtype,optional"`

	Orbit  *orbitBlock `hcl:"orbit,block"`
	Axis   *axisBlock  `hcl:"axis,block"`
	Bodies []bodyBlock `hcl:"body,block"`
}

type orbitBlock struct {
	SMA        float64 `hcl:"sma"`
	Ecc        float64 `hcl:"ecc,optional"`
	MNA        float64 `hcl:"mna,optional"`
	Inc        float64 `hcl:"inc,optional"`
	LAN        float64 `hcl:"lan,optional"`
	AOP        float64 `hcl:"aop,optional"`
	Retrograde bool    `hcl:"retrograde,optional"`
	At         *string `hcl:"at,optional"`
	Top        *string `hcl:"top,optional"`
}

type axisBlock struct {
	Tilt   float64   `hcl:"tilt,optional"`
	Period cty.Value `hcl:"period,optional"`
	Epoch  *string   `hcl:"epoch,optional"`
	RA     float64   `hcl:"ra,optional"`
}

// Default builds the embedded solar system.
func Default() (*vfs.Store, error) {
	return Parse(defaultSource, DefaultName)
}

// DefaultSource returns the embedded scenario text.
func DefaultSource() []byte {
	out := make([]byte, len(defaultSource))
	copy(out, defaultSource)
	return out
}

// Load reads and builds the scenario at path.
func Load(path string) (*vfs.Store, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(src, path)
}

// Format returns src in canonical HCL layout.
func Format(src []byte) []byte {
	return hclwrite.Format(src)
}

// Parse builds a store from scenario source. filename is used in
// diagnostics only.
func Parse(src []byte, filename string) (*vfs.Store, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse scenario: %w", diags)
	}
	var doc file
	if diags := gohcl.DecodeBody(f.Body, nil, &doc); diags.HasErrors() {
		return nil, fmt.Errorf("decode scenario: %w", diags)
	}
	return doc.build()
}

func (doc *file) build() (*vfs.Store, error) {
	s := vfs.NewEmpty()

	cfg := api.DefaultConfig()
	if c := doc.Config; c != nil {
		setIf(&cfg.TicksPerSecond, c.TicksPerSecond)
		setIf(&cfg.SpeedOfLight, c.SpeedOfLight)
		setIf(&cfg.GravitationalConstant, c.GravitationalConstant)
		setIf(&cfg.LuminosityConstant, c.LuminosityConstant)
		setIf(&cfg.InitialTarget, c.InitialTarget)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.WriteStructured(api.ConfigPath, cfg); err != nil {
		return nil, err
	}

	if doc.Time != nil {
		t, err := parseTime("time", *doc.Time)
		if err != nil {
			return nil, err
		}
		if err := s.WriteStructured(api.TimePath, t.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}

	if err := writeBodies(s, "", doc.Bodies); err != nil {
		return nil, err
	}
	return s, nil
}

func writeBodies(s *vfs.Store, parent string, bodies []bodyBlock) error {
	seen := make(map[string]bool, len(bodies))
	for i := range bodies {
		b := &bodies[i]
		p := b.Name
		if parent != "" {
			p = parent + "/" + b.Name
		}
		if b.Name == "" || b.Name == api.ObjectFile {
			return fmt.Errorf("body %q: invalid name", p)
		}
		if seen[b.Name] {
			return fmt.Errorf("body %q: declared twice", p)
		}
		seen[b.Name] = true

		obj, err := b.entity()
		if err != nil {
			return fmt.Errorf("body %q: %w", p, err)
		}
		rec, err := entity.Encode(obj)
		if err != nil {
			return fmt.Errorf("body %q: %w", p, err)
		}
		if err := s.WriteStructured(api.ObjectPath(p), rec); err != nil {
			return err
		}
		if err := writeBodies(s, p, b.Bodies); err != nil {
			return err
		}
	}
	return nil
}

func (b *bodyBlock) entity() (entity.Obj, error) {
	base := entity.Base{
		Name:        b.Title,
		Designation: b.Designation,
		Mass:        b.Mass,
		Radius:      b.Radius,
		Albedo:      entity.DefaultAlbedo,
	}
	if base.Name == "" {
		base.Name = b.Name
	}
	if b.Albedo != nil {
		base.Albedo = *b.Albedo
	}
	if len(b.Position) > 0 {
		if len(b.Position) != 3 {
			return nil, fmt.Errorf("position needs 3 components, got %d", len(b.Position))
		}
		base.Position = vmath.Vec3{X: b.Position[0], Y: b.Position[1], Z: b.Position[2]}
	}

	var err error
	if base.Cycles, err = cycleMap(b.Cycles); err != nil {
		return nil, err
	}
	if b.Orbit != nil {
		if base.Orbit, err = b.Orbit.record(); err != nil {
			return nil, err
		}
	}
	if b.Axis != nil {
		if base.Axis, err = b.Axis.record(); err != nil {
			return nil, err
		}
	}

	switch entity.Kind(b.Kind) {
	case entity.KindRoot:
		if b.Orbit != nil {
			return nil, fmt.Errorf("a root body cannot orbit")
		}
		return &entity.Root{Base: base}, nil
	case entity.KindStar:
		mag, err := cycleValue(b.AbsMag)
		if err != nil {
			return nil, fmt.Errorf("absmag: %w", err)
		}
		return &entity.Star{Base: base, AbsMag: mag, Spectral: b.Spectral, Texture: b.Texture}, nil
	case entity.KindPlanet:
		return &entity.Planet{Base: base, Texture: b.Texture, Subtype: b.Subtype}, nil
	default:
		return nil, &entity.KindError{Kind: entity.Kind(b.Kind)}
	}
}

func (o *orbitBlock) record() (*entity.Orbit, error) {
	if o.At != nil && o.Top != nil {
		return nil, fmt.Errorf("orbit: at and top are mutually exclusive")
	}
	rec := &entity.Orbit{
		SMA:        o.SMA,
		Ecc:        o.Ecc,
		MNA:        o.MNA,
		Inc:        o.Inc,
		LAN:        o.LAN,
		AOP:        o.AOP,
		Retrograde: o.Retrograde,
	}
	var err error
	if rec.At, err = parseTimePtr("orbit.at", o.At); err != nil {
		return nil, err
	}
	if rec.Top, err = parseTimePtr("orbit.top", o.Top); err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *axisBlock) record() (*entity.Axis, error) {
	rec := &entity.Axis{Tilt: a.Tilt, RA: a.RA}
	switch {
	case a.Period.IsNull():
	case a.Period.Type().Equals(cty.String):
		if a.Period.AsString() != "synchronous" {
			return nil, fmt.Errorf("axis.period: unknown value %q", a.Period.AsString())
		}
		rec.Period = entity.Period{Synchronous: true}
	case a.Period.Type().Equals(cty.Number):
		f, _ := a.Period.AsBigFloat().Float64()
		rec.Period = entity.Period{Seconds: f}
	default:
		return nil, fmt.Errorf("axis.period: expected a number or \"synchronous\"")
	}
	var err error
	if rec.Epoch, err = parseTimePtr("axis.epoch", a.Epoch); err != nil {
		return nil, err
	}
	return rec, nil
}

// cycleValue converts an HCL expression value to a cycle via its JSON form.
func cycleValue(v cty.Value) (cycle.Value, error) {
	if v.IsNull() {
		return cycle.Value{}, nil
	}
	if !v.IsWhollyKnown() {
		return cycle.Value{}, fmt.Errorf("value is not known")
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return cycle.Value{}, err
	}
	c, err := cycle.Parse(data)
	if err != nil {
		return cycle.Value{}, err
	}
	return cycle.Of(c), nil
}

func cycleMap(v cty.Value) (map[string]cycle.Value, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.CanIterateElements() || !(v.Type().IsObjectType() || v.Type().IsMapType()) {
		return nil, fmt.Errorf("cycles: expected an object")
	}
	out := make(map[string]cycle.Value, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		c, err := cycleValue(ev)
		if err != nil {
			return nil, fmt.Errorf("cycles.%s: %w", k.AsString(), err)
		}
		out[k.AsString()] = c
	}
	return out, nil
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func parseTimePtr(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

