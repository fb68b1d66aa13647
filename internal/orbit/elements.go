package orbit

import (
	"math"
	"time"

	"github.com/agentic-research/orrery/internal/vmath"
)

// Elements are the classical orbital elements. Angles are in degrees.
type Elements struct {
	SMA        float64 // semi-major axis, m
	Ecc        float64
	MNA        float64 // mean anomaly at Epoch when the epoch is not periapsis
	Inc        float64
	LAN        float64
	AOP        float64
	Retrograde bool

	// Epoch is the reference time. When AtPeriapsis is set it is the time
	// of periapsis passage and MNA is ignored.
	Epoch       time.Time
	AtPeriapsis bool
}

func (el Elements) validate(mu float64) error {
	if el.Ecc < 0 || el.Ecc >= 1 || math.IsNaN(el.Ecc) {
		return ErrUnboundOrbit
	}
	if !(el.SMA > 0) || !(mu > 0) {
		return ErrDegenerate
	}
	return nil
}

// MeanAnomaly returns M in radians at now. It grows without wrapping and is
// negated for retrograde orbits.
func (el Elements) MeanAnomaly(now time.Time, period float64) float64 {
	m := 2 * math.Pi * now.Sub(el.Epoch).Seconds() / period
	if !el.AtPeriapsis {
		m += vmath.Radians(el.MNA)
	}
	if el.Retrograde {
		m = -m
	}
	return m
}

// OffsetAt returns the position relative to the parent at mean anomaly M
// (radians).
func (el Elements) OffsetAt(mean float64) (vmath.Vec3, error) {
	if el.Ecc < 0 || el.Ecc >= 1 || math.IsNaN(el.Ecc) {
		return vmath.Vec3{}, ErrUnboundOrbit
	}
	e, err := SolveKepler(mean, el.Ecc)
	if err != nil {
		return vmath.Vec3{}, err
	}
	nu := TrueAnomaly(e, el.Ecc)
	r := Radius(el.SMA, el.Ecc, nu)
	p := vmath.Vec3{X: r * math.Cos(nu), Y: r * math.Sin(nu)}
	return p.
		RotateZ(-vmath.Radians(el.LAN)).
		RotateX(-vmath.Radians(el.Inc)).
		RotateZ(-vmath.Radians(el.AOP)), nil
}

// Offset returns the position relative to the parent at now, where mu is
// the parent's gravitational parameter.
func (el Elements) Offset(mu float64, now time.Time) (vmath.Vec3, error) {
	if err := el.validate(mu); err != nil {
		return vmath.Vec3{}, err
	}
	return el.OffsetAt(el.MeanAnomaly(now, Period(el.SMA, mu)))
}

// AdvanceMNA moves the mean anomaly at epoch forward to now and returns it
// wrapped into [0, 360) degrees.
func (el Elements) AdvanceMNA(mu float64, now time.Time) (float64, error) {
	if err := el.validate(mu); err != nil {
		return 0, err
	}
	elapsed := now.Sub(el.Epoch).Seconds()
	return vmath.WrapDegrees(el.MNA + 360*elapsed/Period(el.SMA, mu)), nil
}

// AxisAngle is the rotation of a body about its axis at now, in degrees in
// [0, 360). A zero period yields zero.
func AxisAngle(now, epoch time.Time, period float64) float64 {
	if period == 0 || math.IsNaN(period) {
		return 0
	}
	return vmath.WrapDegrees(360 * now.Sub(epoch).Seconds() / period)
}
