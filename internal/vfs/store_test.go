package vfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Dir{
		"etc": Dir{
			"config": Data{Value: map[string]any{"ticksPerSecond": 20}},
			"motd":   Text("hello\n"),
		},
		"home": Dir{
			"objects": Dir{
				"sun": Dir{
					"object": Data{Value: map[string]any{"type": "root", "name": "Sun"}},
					"earth": Dir{
						"object": Data{Value: map[string]any{"type": "planet", "name": "Earth"}},
					},
				},
			},
		},
		"current": Link("/home/objects/sun"),
		"rel":     Link("home/objects"),
	})
	require.NoError(t, err)
	return s
}

func TestNew_FlattensDeclaration(t *testing.T) {
	s := newTestStore(t)

	for _, p := range []string{"/", "/etc", "/etc/config", "/home/objects/sun/earth/object"} {
		assert.True(t, s.Exists(p), p)
	}
	assert.True(t, s.IsDirectory("/home/objects/sun"))
	assert.False(t, s.IsDirectory("/etc/motd"))
}

func TestRead(t *testing.T) {
	s := newTestStore(t)

	data, err := s.Read("/etc/motd")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	_, err = s.Read("/etc")
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrIsDir)
	assert.Equal(t, "read", pe.Op)

	_, err = s.Read("/nope")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestReadStructured(t *testing.T) {
	s := newTestStore(t)

	v, err := s.ReadStructured("/home/objects/sun/object")
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Sun", m["name"])

	// Raw text that is not JSON is viewed as a string.
	v, err = s.ReadStructured("/etc/motd")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", v)

	// Raw text that is JSON converts to its structured form.
	require.NoError(t, s.Write("/etc/raw.json", []byte(`{"a":1}`)))
	v, err = s.ReadStructured("/etc/raw.json")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, v)
}

func TestWrite_MaterializesAncestors(t *testing.T) {
	s := NewEmpty()
	require.NoError(t, s.WriteStructured("/a/b/c/object", map[string]int{"x": 1}))

	assert.True(t, s.IsDirectory("/a"))
	assert.True(t, s.IsDirectory("/a/b"))
	assert.True(t, s.IsDirectory("/a/b/c"))

	var got map[string]int
	require.NoError(t, s.ReadInto("/a/b/c/object", &got))
	assert.Equal(t, 1, got["x"])
}

func TestWrite_OverwritesFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("/etc/motd", []byte("bye")))
	data, err := s.Read("/etc/motd")
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))
}

func TestWrite_OntoDirectoryIsIgnored(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("/etc", []byte("clobber")))
	assert.True(t, s.IsDirectory("/etc"))
	names, err := s.List("/etc")
	require.NoError(t, err)
	assert.Equal(t, []string{"config", "motd"}, names)
}

func TestWrite_BelowFileFails(t *testing.T) {
	s := newTestStore(t)
	err := s.Write("/etc/motd/inner", []byte("x"))
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestWrite_ThroughLink(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteStructured("/current/mars/object", map[string]string{"type": "planet"}))
	assert.True(t, s.Exists("/home/objects/sun/mars/object"))
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	names, err := s.List("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"current", "etc", "home", "rel"}, names)

	names, err = s.List("/current")
	require.NoError(t, err)
	assert.Equal(t, []string{"earth", "object"}, names)

	names, err = s.List("/rel")
	require.NoError(t, err)
	assert.Equal(t, []string{"sun"}, names)

	_, err = s.List("/etc/motd")
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrNotDir)

	_, err = s.List("/missing")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestResolve(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Resolve("/current/earth/object")
	require.NoError(t, err)
	assert.Equal(t, "/home/objects/sun/earth/object", p)

	p, err = s.Resolve("/rel/sun/../sun/earth")
	require.NoError(t, err)
	assert.Equal(t, "/home/objects/sun/earth", p)

	// Absent paths resolve to themselves.
	p, err = s.Resolve("/no/such/path")
	require.NoError(t, err)
	assert.Equal(t, "/no/such/path", p)
}

func TestResolve_LinkCycle(t *testing.T) {
	s := NewEmpty()
	require.NoError(t, s.Symlink("/b", "/a"))
	require.NoError(t, s.Symlink("/a", "/b"))

	_, err := s.Resolve("/a")
	var lce *LinkCycleError
	require.True(t, errors.As(err, &lce))
	assert.Equal(t, MaxLinkHops, lce.Hops)

	_, err = s.Read("/a/x")
	assert.ErrorAs(t, err, &lce)
	assert.False(t, s.Exists("/a"))
}

func TestResolve_LongChainWithinBound(t *testing.T) {
	s := NewEmpty()
	require.NoError(t, s.Write("/target", []byte("ok")))
	prev := "/target"
	for i := 0; i < MaxLinkHops; i++ {
		link := "/l" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		require.NoError(t, s.Symlink(prev, link))
		prev = link
	}
	data, err := s.Read(prev)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestSymlink_Readlink(t *testing.T) {
	s := newTestStore(t)
	target, err := s.Readlink("/current")
	require.NoError(t, err)
	assert.Equal(t, "/home/objects/sun", target)

	assert.ErrorIs(t, s.Symlink("/x", "/current"), ErrExist)

	info, err := s.Lstat("/current")
	require.NoError(t, err)
	assert.Equal(t, KindLink, info.Kind)

	info, err = s.Stat("/current")
	require.NoError(t, err)
	assert.Equal(t, KindDir, info.Kind)
}

func TestWriteBatch(t *testing.T) {
	s := newTestStore(t)
	err := s.WriteBatch(map[string]any{
		"/etc/time":                      "2000-01-01T12:00:00Z",
		"/home/objects/sun/earth/object": map[string]any{"type": "planet", "name": "Terra"},
	})
	require.NoError(t, err)

	var name struct{ Name string }
	require.NoError(t, s.ReadInto("/home/objects/sun/earth/object", &name))
	assert.Equal(t, "Terra", name.Name)

	// A path below a file fails before anything is written.
	err = s.WriteBatch(map[string]any{
		"/a/first":         1,
		"/etc/motd/broken": 2,
	})
	assert.ErrorIs(t, err, ErrNotDir)
	assert.False(t, s.Exists("/a/first"))

	// Unencodable values fail before anything is written.
	err = s.WriteBatch(map[string]any{"/b": func() {}})
	assert.Error(t, err)
	assert.False(t, s.Exists("/b"))
}

func TestWriteBatch_NestedTargets(t *testing.T) {
	s := newTestStore(t)

	err := s.WriteBatch(map[string]any{
		"/a":   1,
		"/a/b": 2,
	})
	assert.ErrorIs(t, err, ErrNotDir)
	assert.False(t, s.Exists("/a"))
	assert.False(t, s.Exists("/a/b"))

	// Nesting is detected after links resolve.
	err = s.WriteBatch(map[string]any{
		"/home/objects/sun/earth": 1,
		"/current/earth/object":   2,
	})
	assert.ErrorIs(t, err, ErrNotDir)
	assert.True(t, s.IsDirectory("/home/objects/sun/earth"))
	var rec map[string]any
	require.NoError(t, s.ReadInto("/home/objects/sun/earth/object", &rec))
	assert.Equal(t, "Earth", rec["name"])
}

func TestWalk(t *testing.T) {
	s := newTestStore(t)
	var seen []string
	require.NoError(t, s.Walk("/home", func(p string, info Info) error {
		seen = append(seen, p)
		return nil
	}))
	assert.Equal(t, []string{
		"/home",
		"/home/objects",
		"/home/objects/sun",
		"/home/objects/sun/earth",
		"/home/objects/sun/earth/object",
		"/home/objects/sun/object",
	}, seen)
}

func TestDumpLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Mkdir("/var/empty"))

	loaded, err := Load(s.Dump())
	require.NoError(t, err)
	assert.Equal(t, s.Dump(), loaded.Dump())
	assert.True(t, loaded.IsDirectory("/var/empty"))

	target, err := loaded.Readlink("/current")
	require.NoError(t, err)
	assert.Equal(t, "/home/objects/sun", target)
}

func TestLoad_RejectsOrphans(t *testing.T) {
	_, err := Load([]Entry{
		{Path: "/", Kind: "dir"},
		{Path: "/a/b", Kind: "file"},
	})
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestReplace(t *testing.T) {
	s := newTestStore(t)
	other := NewEmpty()
	require.NoError(t, other.Write("/only", []byte("1")))

	s.Replace(other)
	assert.True(t, s.Exists("/only"))
	assert.False(t, s.Exists("/etc"))
}

func TestQuery(t *testing.T) {
	s := NewEmpty()
	require.NoError(t, s.WriteStructured("/obj", map[string]any{
		"orbit": map[string]any{"sma": 1.5e11, "ecc": 0.0167},
	}))

	got, err := s.Query("/obj", "$.orbit.ecc")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.0167, got[0], 1e-12)

	_, err = s.Query("/obj", "$[")
	assert.Error(t, err)
}
