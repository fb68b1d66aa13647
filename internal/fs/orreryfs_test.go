package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/agentic-research/orrery/internal/vfs"
)

func newTestFS(t *testing.T) *OrreryFS {
	t.Helper()
	store, err := vfs.New(vfs.Dir{
		"etc": vfs.Dir{
			"motd": vfs.Text("clear skies\n"),
		},
		"home": vfs.Dir{
			"objects": vfs.Dir{
				"sun": vfs.Dir{
					"object": vfs.Data{Value: map[string]any{"type": "root"}},
				},
			},
		},
		"current": vfs.Link("/home/objects/sun"),
		"loop":    vfs.Link("/loop"),
	})
	require.NoError(t, err)
	return NewOrreryFS(store)
}

func TestOrreryFS_Open(t *testing.T) {
	ofs := newTestFS(t)

	tests := []struct {
		name    string
		path    string
		flags   int
		wantErr int
	}{
		{name: "file", path: "/etc/motd", wantErr: 0},
		{name: "through link", path: "/current/object", wantErr: 0},
		{name: "missing", path: "/nope", wantErr: -fuse.ENOENT},
		{name: "directory", path: "/etc", wantErr: -fuse.EISDIR},
		{name: "write", path: "/etc/motd", flags: fuse.O_RDWR, wantErr: -fuse.EROFS},
		{name: "link cycle", path: "/loop/x", wantErr: -fuse.ELOOP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCode, _ := ofs.Open(tt.path, tt.flags)
			assert.Equal(t, tt.wantErr, errCode)
		})
	}
}

func TestOrreryFS_Getattr(t *testing.T) {
	ofs := newTestFS(t)

	var st fuse.Stat_t
	require.Equal(t, 0, ofs.Getattr("/", &st, 0))
	assert.Equal(t, uint32(fuse.S_IFDIR|0o555), st.Mode)

	st = fuse.Stat_t{}
	require.Equal(t, 0, ofs.Getattr("/etc/motd", &st, 0))
	assert.Equal(t, uint32(fuse.S_IFREG|0o444), st.Mode)
	assert.Equal(t, int64(len("clear skies\n")), st.Size)

	st = fuse.Stat_t{}
	require.Equal(t, 0, ofs.Getattr("/current", &st, 0))
	assert.Equal(t, uint32(fuse.S_IFLNK|0o777), st.Mode)

	assert.Equal(t, -fuse.ENOENT, ofs.Getattr("/missing", &st, 0))
}

func TestOrreryFS_Readdir(t *testing.T) {
	ofs := newTestFS(t)

	var names []string
	fill := func(name string, _ *fuse.Stat_t, _ int64) bool {
		names = append(names, name)
		return true
	}
	require.Equal(t, 0, ofs.Readdir("/", fill, 0, 0))
	assert.Equal(t, []string{".", "..", "current", "etc", "home", "loop"}, names)

	names = nil
	require.Equal(t, 0, ofs.Readdir("/current", fill, 0, 0))
	assert.Equal(t, []string{".", "..", "object"}, names)

	assert.Equal(t, -fuse.ENOTDIR, ofs.Readdir("/etc/motd", fill, 0, 0))
	assert.Equal(t, -fuse.ENOENT, ofs.Readdir("/missing", fill, 0, 0))
}

func TestOrreryFS_Read(t *testing.T) {
	ofs := newTestFS(t)

	buf := make([]byte, 5)
	n := ofs.Read("/etc/motd", buf, 0, 0)
	assert.Equal(t, 5, n)
	assert.Equal(t, "clear", string(buf[:n]))

	n = ofs.Read("/etc/motd", buf, 6, 0)
	assert.Equal(t, "skies", string(buf[:n]))

	assert.Equal(t, 0, ofs.Read("/etc/motd", buf, 100, 0))
	assert.Equal(t, -fuse.EISDIR, ofs.Read("/etc", buf, 0, 0))
}

func TestOrreryFS_Readlink(t *testing.T) {
	ofs := newTestFS(t)

	code, target := ofs.Readlink("/current")
	assert.Equal(t, 0, code)
	assert.Equal(t, "home/objects/sun", target)

	code, _ = ofs.Readlink("/etc/motd")
	assert.Equal(t, -fuse.EINVAL, code)

	code, _ = ofs.Readlink("/missing")
	assert.Equal(t, -fuse.ENOENT, code)
}

func TestOrreryFS_Statfs(t *testing.T) {
	ofs := newTestFS(t)
	var st fuse.Statfs_t
	require.Equal(t, 0, ofs.Statfs("/", &st))
	assert.Equal(t, uint64(ofs.Store.Len()), st.Files)
}
