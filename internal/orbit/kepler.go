// Package orbit turns Keplerian elements into positions relative to a parent
// body. The model is strictly two-body: every offset is recomputed from the
// elements and the clock, never integrated.
package orbit

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Tolerance is the |ΔE| below which the Kepler solver stops.
	Tolerance = 1e-6
	// MaxIterations caps the Newton-Raphson loop.
	MaxIterations = 64
)

var (
	// ErrUnboundOrbit rejects parabolic and hyperbolic trajectories.
	ErrUnboundOrbit = errors.New("eccentricity must be in [0, 1)")
	// ErrDegenerate is returned for a non-positive semi-major axis or
	// gravitational parameter.
	ErrDegenerate = errors.New("semi-major axis and gravitational parameter must be positive")
)

// ConvergenceError is returned when the Kepler solver exhausts
// MaxIterations.
type ConvergenceError struct {
	Ecc        float64
	Mean       float64
	Iterations int
	Last       float64 // last |ΔE|
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("kepler solve did not converge: e=%g M=%g after %d iterations (|ΔE|=%g)",
		e.Ecc, e.Mean, e.Iterations, e.Last)
}

// SolveKepler returns the eccentric anomaly E satisfying E - e·sin E = M,
// seeded at E = M.
func SolveKepler(mean, ecc float64) (float64, error) {
	if ecc < 0 || ecc >= 1 || math.IsNaN(ecc) {
		return 0, fmt.Errorf("%w: e=%g", ErrUnboundOrbit, ecc)
	}
	e := mean
	var delta float64
	for i := 0; i < MaxIterations; i++ {
		delta = (e - ecc*math.Sin(e) - mean) / (1 - ecc*math.Cos(e))
		e -= delta
		if math.Abs(delta) < Tolerance {
			return e, nil
		}
	}
	return 0, &ConvergenceError{Ecc: ecc, Mean: mean, Iterations: MaxIterations, Last: math.Abs(delta)}
}

// TrueAnomaly converts an eccentric anomaly to the true anomaly ν.
func TrueAnomaly(eccAnomaly, ecc float64) float64 {
	return 2 * math.Atan2(
		math.Sqrt(1+ecc)*math.Sin(eccAnomaly/2),
		math.Sqrt(1-ecc)*math.Cos(eccAnomaly/2),
	)
}

// Radius is the distance from the focus at true anomaly nu.
func Radius(sma, ecc, nu float64) float64 {
	return sma * (1 - ecc*ecc) / (1 + ecc*math.Cos(nu))
}

// Period is the orbital period in seconds from Kepler's third law, with mu
// the parent's gravitational parameter G·M.
func Period(sma, mu float64) float64 {
	return 2 * math.Pi * math.Sqrt(sma*sma*sma/mu)
}

// SynchronousPeriod is the rotation period of a tidally locked body: equal to
// its orbital period.
func SynchronousPeriod(sma, mu float64) float64 {
	return Period(sma, mu)
}
