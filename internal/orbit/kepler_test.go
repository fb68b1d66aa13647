package orbit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/orrery/internal/vmath"
)

func TestSolveKepler_Accuracy(t *testing.T) {
	for _, ecc := range []float64{0, 0.0167, 0.5, 0.9} {
		for i := 0; i < 64; i++ {
			mean := 2 * math.Pi * float64(i) / 64
			e, err := SolveKepler(mean, ecc)
			require.NoError(t, err, "e=%g M=%g", ecc, mean)
			assert.Less(t, math.Abs(e-ecc*math.Sin(e)-mean), 1e-6, "e=%g M=%g", ecc, mean)
		}
	}
}

func TestSolveKepler_Unbound(t *testing.T) {
	for _, ecc := range []float64{1, 1.5, -0.1, math.NaN()} {
		_, err := SolveKepler(1, ecc)
		assert.ErrorIs(t, err, ErrUnboundOrbit, "e=%g", ecc)
	}
}

func TestSolveKepler_NonConvergenceIsReported(t *testing.T) {
	_, err := SolveKepler(math.Inf(1), 0.5)
	var ce *ConvergenceError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, MaxIterations, ce.Iterations)
}

func TestOffsetAt_ApsisRadius(t *testing.T) {
	const sma = 1.496e11
	for _, ecc := range []float64{0, 0.0167, 0.5, 0.9} {
		el := Elements{SMA: sma, Ecc: ecc, Inc: 12, LAN: 40, AOP: 70}

		peri, err := el.OffsetAt(0)
		require.NoError(t, err)
		assert.InEpsilon(t, sma*(1-ecc), peri.Mag(), 1e-9, "periapsis e=%g", ecc)

		apo, err := el.OffsetAt(math.Pi)
		require.NoError(t, err)
		assert.InEpsilon(t, sma*(1+ecc), apo.Mag(), 1e-9, "apoapsis e=%g", ecc)
	}
}

func TestOffsetAt_RotationOrder(t *testing.T) {
	// With no rotations periapsis lies on +X.
	el := Elements{SMA: 10, Ecc: 0}
	p, err := el.OffsetAt(0)
	require.NoError(t, err)
	assert.InDelta(t, 10, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)

	// A 90° ascending node swings periapsis to -Y.
	el.LAN = 90
	p, err = el.OffsetAt(0)
	require.NoError(t, err)
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, -10, p.Y, 1e-9)

	// Inclination then tilts that point out of the plane.
	el.Inc = 90
	p, err = el.OffsetAt(0)
	require.NoError(t, err)
	assert.InDelta(t, 0, p.Y, 1e-9)
	assert.InDelta(t, 10, p.Z, 1e-9)
}

func TestPeriod_Earth(t *testing.T) {
	mu := 6.674e-11 * 1.9891e30
	days := Period(1.496e11, mu) / 86400
	assert.InDelta(t, 365.2, days, 0.5)
	assert.Equal(t, Period(1.496e11, mu), SynchronousPeriod(1.496e11, mu))
}

func TestMeanAnomaly(t *testing.T) {
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	period := 100.0

	el := Elements{MNA: 90, Epoch: epoch}
	assert.InDelta(t, math.Pi/2, el.MeanAnomaly(epoch, period), 1e-12)
	assert.InDelta(t, math.Pi/2+math.Pi, el.MeanAnomaly(epoch.Add(50*time.Second), period), 1e-12)

	// Not wrapped.
	assert.InDelta(t, math.Pi/2+6*math.Pi, el.MeanAnomaly(epoch.Add(300*time.Second), period), 1e-9)

	// Periapsis epochs ignore MNA.
	el.AtPeriapsis = true
	assert.InDelta(t, 0, el.MeanAnomaly(epoch, period), 1e-12)

	el.Retrograde = true
	assert.InDelta(t, -math.Pi, el.MeanAnomaly(epoch.Add(50*time.Second), period), 1e-12)
}

func TestOffset_Validation(t *testing.T) {
	now := time.Now()
	_, err := Elements{SMA: 1, Ecc: 1}.Offset(1, now)
	assert.ErrorIs(t, err, ErrUnboundOrbit)

	_, err = Elements{SMA: 0}.Offset(1, now)
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = Elements{SMA: 1}.Offset(0, now)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestOffset_FullPeriodReturns(t *testing.T) {
	epoch := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	mu := 3.986e14
	el := Elements{SMA: 3.844e8, Ecc: 0.0549, Inc: 5.1, LAN: 125, AOP: 318, MNA: 135, Epoch: epoch}
	period := Period(el.SMA, mu)

	start, err := el.Offset(mu, epoch)
	require.NoError(t, err)
	later, err := el.Offset(mu, epoch.Add(time.Duration(period*float64(time.Second))))
	require.NoError(t, err)
	assert.InDelta(t, 0, start.Sub(later).Mag()/el.SMA, 1e-6)
}

func TestAdvanceMNA(t *testing.T) {
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	mu := 4 * math.Pi * math.Pi // period of 1 s for sma 1
	el := Elements{SMA: 1, MNA: 350, Epoch: epoch}

	got, err := el.AdvanceMNA(mu, epoch.Add(2500*time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 170, got, 1e-6)

	// The advanced element reproduces the original position.
	want, err := el.Offset(mu, epoch.Add(2500*time.Millisecond))
	require.NoError(t, err)
	moved := Elements{SMA: 1, MNA: got, Epoch: epoch.Add(2500 * time.Millisecond)}
	have, err := moved.Offset(mu, epoch.Add(2500*time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 0, want.Sub(have).Mag(), 1e-6)
}

func TestAxisAngle(t *testing.T) {
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 90, AxisAngle(epoch.Add(25*time.Second), epoch, 100), 1e-9)
	assert.InDelta(t, 270, AxisAngle(epoch.Add(-25*time.Second), epoch, 100), 1e-9)
	assert.InDelta(t, 36, AxisAngle(epoch.Add(110*time.Second), epoch, 100), 1e-9)
	assert.Zero(t, AxisAngle(epoch.Add(time.Hour), epoch, 0))
	assert.Equal(t, vmath.WrapDegrees(360), 0.0)
}
