// Package vmath holds the float64 vector math used by the orbital engine.
package vmath

import (
	"encoding/json"
	"fmt"
	"math"
)

// Vec3 is a float64 3D vector. It serializes as a [x, y, z] array.
type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{a.X * s, a.Y * s, a.Z * s}
}

func (a Vec3) Dot(b Vec3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func (a Vec3) MagSq() float64 {
	return a.Dot(a)
}

func (a Vec3) Mag() float64 {
	return math.Sqrt(a.MagSq())
}

// RotateX rotates a by angle radians about the X axis (right-handed).
func (a Vec3) RotateX(angle float64) Vec3 {
	s, c := math.Sincos(angle)
	return Vec3{a.X, a.Y*c - a.Z*s, a.Y*s + a.Z*c}
}

// RotateZ rotates a by angle radians about the Z axis (right-handed).
func (a Vec3) RotateZ(angle float64) Vec3 {
	s, c := math.Sincos(angle)
	return Vec3{a.X*c - a.Y*s, a.X*s + a.Y*c, a.Z}
}

func (a Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", a.X, a.Y, a.Z)
}

func (a Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{a.X, a.Y, a.Z})
}

func (a *Vec3) UnmarshalJSON(data []byte) error {
	var arr [3]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("vec3: %w", err)
	}
	a.X, a.Y, a.Z = arr[0], arr[1], arr[2]
	return nil
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// WrapDegrees maps deg into [0, 360).
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	if w >= 360 {
		w = 0
	}
	return w
}
