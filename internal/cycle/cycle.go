// Package cycle evaluates time-varying scalar descriptors against the
// simulation clock. Evaluation is pure: the same descriptor and time always
// yield the same value.
package cycle

import (
	"errors"
	"fmt"
	"time"
)

// Cycle is a declarative scalar that may vary with simulation time.
type Cycle interface {
	Resolve(now time.Time) (float64, error)
}

// ErrZeroPeriod is returned when a linear cycle's period resolves to zero.
var ErrZeroPeriod = errors.New("cycle period is zero")

// DescriptorError reports an unrecognized descriptor tag.
type DescriptorError struct {
	Tag string
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("unknown cycle descriptor %q", e.Tag)
}

// Constant is a plain scalar.
type Constant float64

func (c Constant) Resolve(time.Time) (float64, error) {
	return float64(c), nil
}

// Fixed is a constant kept as an explicit tag so its provenance survives a
// round trip.
type Fixed struct {
	Value float64
}

func (f Fixed) Resolve(time.Time) (float64, error) {
	return f.Value, nil
}

// Linear grows as min + (elapsed/period)*max where elapsed is measured in
// seconds since Epoch. It does not wrap.
type Linear struct {
	Min    Cycle
	Max    Cycle
	Period Cycle
	Epoch  time.Time
}

func (l Linear) Resolve(now time.Time) (float64, error) {
	lo, err := resolve(l.Min, now)
	if err != nil {
		return 0, fmt.Errorf("linear min: %w", err)
	}
	hi, err := resolve(l.Max, now)
	if err != nil {
		return 0, fmt.Errorf("linear max: %w", err)
	}
	period, err := resolve(l.Period, now)
	if err != nil {
		return 0, fmt.Errorf("linear period: %w", err)
	}
	if period == 0 {
		return 0, ErrZeroPeriod
	}
	elapsed := now.Sub(l.Epoch).Seconds()
	return lo + (elapsed/period)*hi, nil
}

// Sum adds the resolved values of its elements.
type Sum []Cycle

func (s Sum) Resolve(now time.Time) (float64, error) {
	var total float64
	for i, c := range s {
		v, err := resolve(c, now)
		if err != nil {
			return 0, fmt.Errorf("sum[%d]: %w", i, err)
		}
		total += v
	}
	return total, nil
}

// resolve treats a nil cycle as zero.
func resolve(c Cycle, now time.Time) (float64, error) {
	if c == nil {
		return 0, nil
	}
	return c.Resolve(now)
}
