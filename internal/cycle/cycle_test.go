package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

func TestParse_Forms(t *testing.T) {
	now := epoch.Add(50 * time.Second)

	tests := []struct {
		name string
		src  string
		want float64
	}{
		{"scalar", `4.5`, 4.5},
		{"negative scalar", `-2`, -2},
		{"fixed", `{"type":"fixed","value":7}`, 7},
		{"linear", `{"type":"linear","min":1,"max":2,"period":100,"epoch":"2000-01-01T12:00:00Z"}`, 2},
		{"sum", `[1, {"type":"fixed","value":2}, 3]`, 6},
		{"empty sum", `[]`, 0},
		{"nested period", `{"type":"linear","min":0,"max":10,"period":[25,25],"epoch":"2000-01-01T12:00:00Z"}`, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			got, err := c.Resolve(now)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParse_UnknownTag(t *testing.T) {
	_, err := Parse([]byte(`{"type":"sine","value":1}`))
	var de *DescriptorError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "sine", de.Tag)

	// Unknown tags nested inside a list surface the same error.
	_, err = Parse([]byte(`[1, {"type":"bogus"}]`))
	assert.ErrorAs(t, err, &de)
}

func TestParse_Malformed(t *testing.T) {
	for _, src := range []string{``, `"str"`, `{"type":"linear","min":1}`, `[1,`} {
		_, err := Parse([]byte(src))
		assert.Error(t, err, src)
	}
}

func TestLinear_DoesNotWrap(t *testing.T) {
	l := Linear{Min: Constant(0), Max: Constant(1), Period: Constant(10), Epoch: epoch}

	v, err := l.Resolve(epoch.Add(35 * time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 3.5, v, 1e-12)

	v, err = l.Resolve(epoch.Add(-5 * time.Second))
	require.NoError(t, err)
	assert.InDelta(t, -0.5, v, 1e-12)
}

func TestLinear_ZeroPeriod(t *testing.T) {
	l := Linear{Min: Constant(1), Max: Constant(1), Period: Sum{Constant(1), Constant(-1)}, Epoch: epoch}
	_, err := l.Resolve(epoch)
	assert.ErrorIs(t, err, ErrZeroPeriod)
}

func TestResolve_Deterministic(t *testing.T) {
	c, err := Parse([]byte(`[2, {"type":"linear","min":1,"max":3,"period":7,"epoch":"2000-01-01T12:00:00Z"}]`))
	require.NoError(t, err)
	now := epoch.Add(90 * time.Minute)

	first, err := c.Resolve(now)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Resolve(now)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEncode_PreservesProvenance(t *testing.T) {
	src := Sum{
		Constant(1.5),
		Fixed{Value: 2},
		Linear{Min: Constant(0), Max: Fixed{Value: 4}, Period: Constant(60), Epoch: epoch},
	}
	data, err := Encode(src)
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, src, back)
}

func TestValue_JSON(t *testing.T) {
	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte(`{"type":"fixed","value":3}`)))
	assert.Equal(t, Fixed{Value: 3}, v.Cycle)

	data, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"fixed","value":3}`, string(data))

	var empty Value
	got, err := empty.Resolve(epoch)
	require.NoError(t, err)
	assert.Zero(t, got)
}
