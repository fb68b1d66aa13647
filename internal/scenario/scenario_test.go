package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/orrery/api"
	"github.com/agentic-research/orrery/internal/cycle"
	"github.com/agentic-research/orrery/internal/entity"
	"github.com/agentic-research/orrery/internal/vfs"
	"github.com/agentic-research/orrery/internal/vmath"
	"github.com/agentic-research/orrery/internal/world"
)

func read(t *testing.T, s *vfs.Store, logical string) entity.Obj {
	t.Helper()
	data, err := s.Read(api.ObjectPath(logical))
	require.NoError(t, err)
	obj, err := entity.Decode(data)
	require.NoError(t, err)
	return obj
}

func TestDefault(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	for _, p := range []string{"sun", "sun/earth", "sun/earth/moon", "sun/mars", "mira"} {
		assert.True(t, s.Exists(api.ObjectPath(p)), p)
	}

	var cfg api.Config
	require.NoError(t, s.ReadInto(api.ConfigPath, &cfg))
	assert.Equal(t, 20.0, cfg.TicksPerSecond)
	assert.Equal(t, "sun/earth", cfg.InitialTarget)

	var clock string
	require.NoError(t, s.ReadInto(api.TimePath, &clock))
	assert.Equal(t, "2000-01-01T12:00:00Z", clock)

	sun := read(t, s, "sun")
	assert.Equal(t, entity.KindRoot, sun.Kind())
	assert.Equal(t, 0.0, sun.Common().Albedo)

	moon := read(t, s, "sun/earth/moon")
	require.NotNil(t, moon.Common().Axis)
	assert.True(t, moon.Common().Axis.Period.Synchronous)

	earth := read(t, s, "sun/earth")
	assert.Contains(t, earth.Common().Cycles, "cloud_cover")

	mira, ok := read(t, s, "mira").(*entity.Star)
	require.True(t, ok)
	assert.Equal(t, "M7IIIe", mira.Spectral)
	assert.Equal(t, vmath.Vec3{X: 2.8e18, Z: -9.1e17}, mira.Position)
	sum, ok := mira.AbsMag.Cycle.(cycle.Sum)
	require.True(t, ok)
	assert.Len(t, sum, 2)
}

func TestParse_Minimal(t *testing.T) {
	src := `
body "root" "sol" {
  mass = 2e30

  body "planet" "rock" {
    title = "Rock"
    orbit {
      sma = 1e11
      top = "2001-02-03T04:05:06Z"
    }
    axis {
      period = 3600
      epoch  = "2001-02-03T04:05:06Z"
    }
  }
}
`
	s, err := Parse([]byte(src), "mini.hcl")
	require.NoError(t, err)
	assert.False(t, s.Exists(api.TimePath))

	var cfg api.Config
	require.NoError(t, s.ReadInto(api.ConfigPath, &cfg))
	assert.Equal(t, api.DefaultConfig(), cfg)

	sol := read(t, s, "sol")
	assert.Equal(t, "sol", sol.Common().Name)
	assert.Equal(t, entity.DefaultAlbedo, sol.Common().Albedo)

	rock := read(t, s, "sol/rock")
	o := rock.Common().Orbit
	require.NotNil(t, o)
	require.NotNil(t, o.Top)
	assert.Nil(t, o.At)
	assert.True(t, o.Top.Equal(time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)))
	assert.Equal(t, 3600.0, rock.Common().Axis.Period.Seconds)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"syntax":        `body "root" {`,
		"unknown kind":  `body "nebula" "x" {}`,
		"root orbit":    `body "root" "x" { orbit { sma = 1 } }`,
		"duplicate":     "body \"root\" \"x\" {}\nbody \"root\" \"x\" {}",
		"bad position":  `body "planet" "x" { position = [1, 2] }`,
		"bad time":      `time = "yesterday"`,
		"both epochs":   `body "planet" "x" { orbit { sma = 1 at = "2000-01-01T00:00:00Z" top = "2000-01-01T00:00:00Z" } }`,
		"bad period":    `body "planet" "x" { axis { period = "often" } }`,
		"bad cycle":     `body "planet" "x" { cycles = { a = { type = "sine" } } }`,
		"bad config":    `config { ticks_per_second = 0 }`,
		"missing sma":   `body "planet" "x" { orbit { ecc = 0.1 } }`,
		"reserved name": `body "planet" "object" {}`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), name+".hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.hcl")
	require.NoError(t, os.WriteFile(path, DefaultSource(), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.Exists(api.ObjectPath("sun/mars")))

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormat(t *testing.T) {
	got := Format([]byte("body \"root\" \"x\" {\nmass=1\n}\n"))
	assert.Equal(t, "body \"root\" \"x\" {\n  mass = 1\n}\n", string(got))
}

func TestDefault_Runs(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	e := world.New(s, world.WithTimeWarp(3600))
	require.NoError(t, e.Init())
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Tick())
	}

	earth, err := e.ReadEntity("sun/earth")
	require.NoError(t, err)
	moon, err := e.ReadEntity("sun/earth/moon")
	require.NoError(t, err)
	d := moon.Common().Position.Sub(earth.Common().Position).Mag()
	assert.InDelta(t, 3.844e8, d, 3.844e8*0.06)
	assert.False(t, moon.Common().Axis.Period.Synchronous)
	assert.InDelta(t, 0.67, earth.Common().State["cloud_cover"], 1e-12)

	mira, err := e.ReadEntity("mira")
	require.NoError(t, err)
	assert.Contains(t, mira.Common().State, "luminosity")
}
