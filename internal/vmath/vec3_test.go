package vmath

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatePreservesMagnitude(t *testing.T) {
	v := Vec3{3, 4, 12}
	for _, angle := range []float64{0, 0.3, math.Pi / 2, math.Pi, -2.1} {
		assert.InDelta(t, 13.0, v.RotateX(angle).Mag(), 1e-12)
		assert.InDelta(t, 13.0, v.RotateZ(angle).Mag(), 1e-12)
	}
}

func TestRotateQuarterTurns(t *testing.T) {
	x := Vec3{1, 0, 0}
	got := x.RotateZ(math.Pi / 2)
	assert.InDelta(t, 0, got.X, 1e-15)
	assert.InDelta(t, 1, got.Y, 1e-15)

	y := Vec3{0, 1, 0}
	got = y.RotateX(math.Pi / 2)
	assert.InDelta(t, 0, got.Y, 1e-15)
	assert.InDelta(t, 1, got.Z, 1e-15)
}

func TestVec3JSON(t *testing.T) {
	data, err := json.Marshal(Vec3{1, -2.5, 3e11})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,-2.5,3e11]`, string(data))

	var v Vec3
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Equal(t, Vec3{1, -2.5, 3e11}, v)

	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &v))
}

func TestWrapDegrees(t *testing.T) {
	assert.Equal(t, 10.0, WrapDegrees(370))
	assert.Equal(t, 350.0, WrapDegrees(-10))
	assert.Equal(t, 0.0, WrapDegrees(720))
	assert.InDelta(t, math.Pi, Radians(180), 1e-15)
	assert.InDelta(t, 90, Degrees(math.Pi/2), 1e-12)
}
