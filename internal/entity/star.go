package entity

import (
	"math"
	"regexp"
)

// RGB is a color with components in [0, 1].
type RGB [3]float64

// Gray is used for spectral types no pattern matches.
var Gray = RGB{0.5, 0.5, 0.5}

// First match wins, so the more specific patterns come first.
var spectralColors = []struct {
	pattern *regexp.Regexp
	color   RGB
}{
	{regexp.MustCompile(`^D`), RGB{0.75, 0.8, 1}},
	{regexp.MustCompile(`^W`), RGB{0.55, 0.65, 1}},
	{regexp.MustCompile(`^O`), RGB{0.61, 0.69, 1}},
	{regexp.MustCompile(`^B`), RGB{0.67, 0.75, 1}},
	{regexp.MustCompile(`^A`), RGB{0.79, 0.84, 1}},
	{regexp.MustCompile(`^F`), RGB{0.97, 0.97, 1}},
	{regexp.MustCompile(`^G`), RGB{1, 0.96, 0.92}},
	{regexp.MustCompile(`^K`), RGB{1, 0.82, 0.63}},
	{regexp.MustCompile(`^M`), RGB{1, 0.8, 0.44}},
	{regexp.MustCompile(`^[LTY]`), RGB{0.6, 0.3, 0.3}},
}

// Color derives the star's color from its spectral type. The table is
// consulted on every call.
func (s *Star) Color() RGB {
	for _, entry := range spectralColors {
		if entry.pattern.MatchString(s.Spectral) {
			return entry.color
		}
	}
	return Gray
}

// Luminosity converts an absolute magnitude to watts given the zero-point
// luminosity l0.
func Luminosity(absMag, l0 float64) float64 {
	return l0 * math.Pow(10, -0.4*absMag)
}
