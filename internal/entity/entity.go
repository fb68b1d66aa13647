// Package entity defines the simulated bodies stored under /home/objects.
//
// A record is a JSON object whose "type" field selects the variant. Decode
// and Encode are the only places that branch on the tag; everything else
// works through the Obj interface or an exhaustive type switch.
package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentic-research/orrery/internal/cycle"
	"github.com/agentic-research/orrery/internal/orbit"
	"github.com/agentic-research/orrery/internal/vmath"
)

// Kind is the stored discriminant.
type Kind string

const (
	KindRoot   Kind = "root"
	KindStar   Kind = "star"
	KindPlanet Kind = "planet"
)

// DefaultAlbedo applies when a record omits albedo.
const DefaultAlbedo = 0.09

// KindError reports an unknown or missing type tag.
type KindError struct {
	Kind Kind
}

func (e *KindError) Error() string {
	if e.Kind == "" {
		return "entity record has no type"
	}
	return fmt.Sprintf("unknown entity type %q", e.Kind)
}

// ErrSynchronousUnresolved is returned when a synchronous axis period is read
// before the engine has resolved it.
var ErrSynchronousUnresolved = errors.New("synchronous axis period not resolved")

// Obj is implemented by *Root, *Star and *Planet.
type Obj interface {
	Kind() Kind
	Common() *Base
	HasOrbit() bool
}

// Base holds the fields every body carries.
type Base struct {
	Name        string     `json:"name"`
	Designation string     `json:"designation,omitempty"`
	Position    vmath.Vec3 `json:"position"`
	Axis        *Axis      `json:"axis,omitempty"`
	Orbit       *Orbit     `json:"orbit,omitempty"`
	Mass        float64    `json:"mass"`
	Radius      float64    `json:"radius"`
	Albedo      float64    `json:"albedo"`

	// Cycles are named time-varying attributes; their values at the current
	// clock are kept in State.
	Cycles map[string]cycle.Value `json:"cycles,omitempty"`
	State  map[string]float64     `json:"state,omitempty"`
}

func (b *Base) Common() *Base { return b }

func (b *Base) HasOrbit() bool { return b.Orbit != nil }

// Root is the coordinate origin of a hierarchy. It never orbits.
type Root struct {
	Base
}

func (*Root) Kind() Kind { return KindRoot }

func (*Root) HasOrbit() bool { return false }

// Star is a self-luminous body.
type Star struct {
	Base
	// AbsMag is the absolute magnitude; it may vary over time.
	AbsMag   cycle.Value `json:"absmag"`
	Spectral string      `json:"spectral,omitempty"`
	Texture  string      `json:"texture,omitempty"`
}

func (*Star) Kind() Kind { return KindStar }

// Planet is any non-luminous body: planets, moons, stations.
type Planet struct {
	Base
	Texture string `json:"texture,omitempty"`
	Subtype string `json:"subtype,omitempty"`
}

func (*Planet) Kind() Kind { return KindPlanet }

// Axis describes a body's rotation.
type Axis struct {
	Tilt   float64    `json:"tilt"`
	Period Period     `json:"period"`
	Epoch  *time.Time `json:"epoch,omitempty"`
	RA     float64    `json:"ra"`
	// Angle is the current rotation about the axis in degrees, written by
	// the engine every tick.
	Angle float64 `json:"angle"`
}

// Period is a rotation period in seconds, or the literal "synchronous".
type Period struct {
	Seconds     float64
	Synchronous bool
}

const synchronous = "synchronous"

func (p Period) MarshalJSON() ([]byte, error) {
	if p.Synchronous {
		return json.Marshal(synchronous)
	}
	return json.Marshal(p.Seconds)
}

func (p *Period) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != synchronous {
			return fmt.Errorf("axis period: unknown value %q", s)
		}
		*p = Period{Synchronous: true}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("axis period: %w", err)
	}
	*p = Period{Seconds: f}
	return nil
}

// Orbit holds the Keplerian elements of a body around its parent. Exactly
// one of At (epoch of MNA) and Top (time of periapsis) is set.
type Orbit struct {
	SMA        float64    `json:"sma"`
	Ecc        float64    `json:"ecc"`
	MNA        float64    `json:"mna"`
	Inc        float64    `json:"inc"`
	LAN        float64    `json:"lan"`
	AOP        float64    `json:"aop"`
	Retrograde bool       `json:"retrograde,omitempty"`
	At         *time.Time `json:"at,omitempty"`
	Top        *time.Time `json:"top,omitempty"`
}

// Elements converts the record to solver input.
func (o *Orbit) Elements() orbit.Elements {
	el := orbit.Elements{
		SMA:        o.SMA,
		Ecc:        o.Ecc,
		MNA:        o.MNA,
		Inc:        o.Inc,
		LAN:        o.LAN,
		AOP:        o.AOP,
		Retrograde: o.Retrograde,
	}
	switch {
	case o.Top != nil:
		el.Epoch = *o.Top
		el.AtPeriapsis = true
	case o.At != nil:
		el.Epoch = *o.At
	}
	return el
}
