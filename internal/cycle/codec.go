package cycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Parse decodes a JSON descriptor: a number, a tagged object, or a list of
// descriptors.
func Parse(data []byte) (Cycle, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty cycle descriptor")
	}
	switch data[0] {
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return nil, fmt.Errorf("cycle list: %w", err)
		}
		sum := make(Sum, 0, len(parts))
		for i, p := range parts {
			c, err := Parse(p)
			if err != nil {
				return nil, fmt.Errorf("cycle list[%d]: %w", i, err)
			}
			sum = append(sum, c)
		}
		return sum, nil
	case '{':
		return parseTagged(data)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("cycle scalar: %w", err)
		}
		return Constant(f), nil
	}
}

type taggedDescriptor struct {
	Type   string          `json:"type"`
	Value  float64         `json:"value"`
	Min    json.RawMessage `json:"min,omitempty"`
	Max    json.RawMessage `json:"max,omitempty"`
	Period json.RawMessage `json:"period,omitempty"`
	Epoch  time.Time       `json:"epoch"`
}

func parseTagged(data []byte) (Cycle, error) {
	var d taggedDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("cycle descriptor: %w", err)
	}
	switch d.Type {
	case "fixed":
		return Fixed{Value: d.Value}, nil
	case "linear":
		l := Linear{Epoch: d.Epoch}
		var err error
		if l.Min, err = parseOptional(d.Min); err != nil {
			return nil, fmt.Errorf("linear min: %w", err)
		}
		if l.Max, err = parseOptional(d.Max); err != nil {
			return nil, fmt.Errorf("linear max: %w", err)
		}
		if d.Period == nil {
			return nil, fmt.Errorf("linear cycle requires a period")
		}
		if l.Period, err = Parse(d.Period); err != nil {
			return nil, fmt.Errorf("linear period: %w", err)
		}
		return l, nil
	default:
		return nil, &DescriptorError{Tag: d.Type}
	}
}

func parseOptional(data json.RawMessage) (Cycle, error) {
	if data == nil {
		return Constant(0), nil
	}
	return Parse(data)
}

// Encode renders a cycle back into its JSON descriptor.
func Encode(c Cycle) ([]byte, error) {
	v, err := descriptor(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func descriptor(c Cycle) (any, error) {
	switch c := c.(type) {
	case nil:
		return 0.0, nil
	case Constant:
		return float64(c), nil
	case Fixed:
		return map[string]any{"type": "fixed", "value": c.Value}, nil
	case Linear:
		lo, err := descriptor(c.Min)
		if err != nil {
			return nil, err
		}
		hi, err := descriptor(c.Max)
		if err != nil {
			return nil, err
		}
		period, err := descriptor(c.Period)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":   "linear",
			"min":    lo,
			"max":    hi,
			"period": period,
			"epoch":  c.Epoch.UTC().Format(time.RFC3339Nano),
		}, nil
	case Sum:
		out := make([]any, 0, len(c))
		for _, part := range c {
			v, err := descriptor(part)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot encode cycle of type %T", c)
	}
}

// Value embeds a Cycle in JSON records.
type Value struct {
	Cycle
}

// Of wraps c for use in a record.
func Of(c Cycle) Value {
	return Value{Cycle: c}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return Encode(v.Cycle)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	c, err := Parse(data)
	if err != nil {
		return err
	}
	v.Cycle = c
	return nil
}

// Resolve evaluates the wrapped cycle; an empty Value resolves to zero.
func (v Value) Resolve(now time.Time) (float64, error) {
	return resolve(v.Cycle, now)
}
