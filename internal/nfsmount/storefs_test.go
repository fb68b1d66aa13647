package nfsmount

import (
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/orrery/internal/vfs"
)

func newTestStore(t *testing.T) *vfs.Store {
	t.Helper()
	s, err := vfs.New(vfs.Dir{
		"etc": vfs.Dir{
			"time": vfs.Data{Value: "2000-01-01T12:00:00Z"},
		},
		"home": vfs.Dir{
			"objects": vfs.Dir{
				"sun": vfs.Dir{
					"object": vfs.Data{Value: map[string]any{"type": "root", "name": "Sun"}},
					"earth": vfs.Dir{
						"object": vfs.Data{Value: map[string]any{"type": "planet", "name": "Earth"}},
					},
				},
			},
		},
		"current": vfs.Link("/home/objects/sun/earth"),
	})
	require.NoError(t, err)
	return s
}

func newTestFS(t *testing.T) *StoreFS {
	return NewStoreFS(newTestStore(t), func() ([]byte, error) {
		return []byte(`{"generation":3}`), nil
	})
}

func TestStatRoot(t *testing.T) {
	sfs := newTestFS(t)
	info, err := sfs.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "/", info.Name())
}

func TestStatFileAndDir(t *testing.T) {
	sfs := newTestFS(t)

	info, err := sfs.Stat("/home/objects/sun/object")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, "object", info.Name())
	assert.Equal(t, os.FileMode(0o444), info.Mode())
	assert.True(t, info.Size() > 0)

	info, err = sfs.Stat("home/objects")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = sfs.Stat("/nope")
	assert.True(t, os.IsNotExist(err))
}

func TestStatusFile(t *testing.T) {
	sfs := newTestFS(t)

	info, err := sfs.Stat("/" + StatusFile)
	require.NoError(t, err)
	assert.Equal(t, int64(len(`{"generation":3}`)), info.Size())

	f, err := sfs.Open(StatusFile)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"generation":3}`, string(data))

	// Without a status func the file does not exist.
	plain := NewStoreFS(newTestStore(t), nil)
	_, err = plain.Stat("/" + StatusFile)
	assert.True(t, os.IsNotExist(err))
}

func TestReadDir(t *testing.T) {
	sfs := newTestFS(t)

	infos, err := sfs.ReadDir("/")
	require.NoError(t, err)
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	assert.Equal(t, []string{StatusFile, "current", "etc", "home"}, names)

	infos, err = sfs.ReadDir("/home/objects/sun")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "earth", infos[0].Name())
	assert.True(t, infos[0].IsDir())
	assert.Equal(t, "object", infos[1].Name())

	// Listing through a link lists the target.
	infos, err = sfs.ReadDir("/current")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "object", infos[0].Name())

	_, err = sfs.ReadDir("/etc/time")
	assert.ErrorIs(t, err, vfs.ErrNotDir)
}

func TestOpenRead(t *testing.T) {
	sfs := newTestFS(t)

	f, err := sfs.Open("/current/object")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Earth"`)

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, string(data[:4]), string(buf))

	pos, err := f.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)-2), pos)

	_, err = sfs.Open("/home")
	assert.ErrorIs(t, err, vfs.ErrIsDir)
}

func TestLinks(t *testing.T) {
	sfs := newTestFS(t)

	info, err := sfs.Lstat("/current")
	require.NoError(t, err)
	assert.Equal(t, os.ModeSymlink, info.Mode()&os.ModeType)

	target, err := sfs.Readlink("/current")
	require.NoError(t, err)
	assert.Equal(t, "home/objects/sun/earth", target)

	_, err = sfs.Readlink("/etc/time")
	assert.Error(t, err)
}

func TestReadOnly(t *testing.T) {
	sfs := newTestFS(t)

	_, err := sfs.Create("/new")
	assert.ErrorIs(t, err, errReadOnly)
	_, err = sfs.OpenFile("/etc/time", os.O_RDWR, 0)
	assert.ErrorIs(t, err, errReadOnly)
	assert.ErrorIs(t, sfs.Remove("/etc/time"), errReadOnly)
	assert.ErrorIs(t, sfs.Rename("/etc/time", "/etc/t"), errReadOnly)
	assert.ErrorIs(t, sfs.MkdirAll("/x", 0o755), errReadOnly)
	assert.ErrorIs(t, sfs.Symlink("/etc", "/e"), errReadOnly)

	f, err := sfs.Open("/etc/time")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, errReadOnly)
}

func TestContentIsCopiedAtOpen(t *testing.T) {
	store := newTestStore(t)
	sfs := NewStoreFS(store, nil)

	f, err := sfs.Open("/etc/time")
	require.NoError(t, err)
	require.NoError(t, store.WriteStructured("/etc/time", "2001-01-01T00:00:00Z"))

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2000")
}

func TestChroot(t *testing.T) {
	sfs := newTestFS(t)
	sub, err := sfs.Chroot("/home/objects")
	require.NoError(t, err)

	info, err := sub.Stat("/sun/object")
	require.NoError(t, err)
	assert.Equal(t, "object", info.Name())
}

func TestServerLifecycle(t *testing.T) {
	srv, err := NewServer(newTestFS(t), "")
	require.NoError(t, err)
	assert.Greater(t, srv.Port(), 0)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.NoError(t, srv.Close())
}

func TestMountArgs(t *testing.T) {
	args, err := mountArgs("linux", 2049, "/mnt/orrery")
	require.NoError(t, err)
	assert.Equal(t, []string{"sudo", "mount", "-t", "nfs", "-o",
		"port=2049,mountport=2049,vers=3,tcp,local_lock=all,nolock,ro",
		"localhost:/", "/mnt/orrery"}, args)

	args, err = mountArgs("darwin", 1234, "/Volumes/orrery")
	require.NoError(t, err)
	assert.Contains(t, args[5], "rdonly")
	assert.Contains(t, args[5], "port=1234")

	_, err = mountArgs("plan9", 1, "/n")
	assert.Error(t, err)
}
