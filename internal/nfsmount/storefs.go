// Package nfsmount serves a read-only view of the world store over NFS.
// StoreFS adapts vfs.Store to billy.Filesystem for willscott/go-nfs.
package nfsmount

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/orrery/internal/vfs"
	"github.com/agentic-research/orrery/internal/vpath"
)

var errReadOnly = errors.New("read-only filesystem")

// StatusFile is the virtual file at the mount root holding StatusFunc's
// output.
const StatusFile = "_status.json"

// StatusFunc renders the contents of StatusFile. It runs on every open.
type StatusFunc func() ([]byte, error)

// StoreFS adapts a vfs.Store to billy.Filesystem.
type StoreFS struct {
	store     *vfs.Store
	status    StatusFunc
	mountTime time.Time
}

// NewStoreFS creates a billy.Filesystem backed by store. status may be nil,
// in which case no StatusFile is shown.
func NewStoreFS(store *vfs.Store, status StatusFunc) *StoreFS {
	return &StoreFS{
		store:     store,
		status:    status,
		mountTime: time.Now(),
	}
}

// --- billy.Basic ---

func (fs *StoreFS) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

func (fs *StoreFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *StoreFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)

	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}

	if fs.isStatus(filename) {
		data, err := fs.status()
		if err != nil {
			return nil, &os.PathError{Op: "open", Path: filename, Err: err}
		}
		return newSnapshotFile(StatusFile, data), nil
	}

	// The content is copied at open so a tick mid-read cannot tear it.
	data, err := fs.store.Read(filename)
	if err != nil {
		return nil, err
	}
	return newSnapshotFile(filename, data), nil
}

func (fs *StoreFS) Stat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	if info, ok := fs.virtualInfo(filename); ok {
		return info, nil
	}
	info, err := fs.store.Stat(filename)
	if err != nil {
		return nil, err
	}
	fi := fs.fileInfo(info)
	fi.name = vpath.Base(filename)
	return fi, nil
}

func (fs *StoreFS) Rename(oldpath, newpath string) error {
	return errReadOnly
}

func (fs *StoreFS) Remove(filename string) error {
	return errReadOnly
}

func (fs *StoreFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *StoreFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *StoreFS) ReadDir(path string) ([]os.FileInfo, error) {
	path = cleanPath(path)

	resolved, err := fs.store.Resolve(path)
	if err != nil {
		return nil, err
	}
	names, err := fs.store.List(resolved)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(names)+1)
	if resolved == vpath.Root && fs.status != nil {
		info, _ := fs.virtualInfo(vpath.Join(vpath.Root, StatusFile))
		infos = append(infos, info)
	}
	for _, name := range names {
		child, err := fs.store.Lstat(vpath.Join(resolved, name))
		if err != nil {
			// Removed between List and Lstat by an import.
			if errors.Is(err, vfs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		infos = append(infos, fs.fileInfo(child))
	}
	return infos, nil
}

func (fs *StoreFS) MkdirAll(filename string, perm os.FileMode) error {
	return errReadOnly
}

// --- billy.Symlink ---

func (fs *StoreFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	if info, ok := fs.virtualInfo(filename); ok {
		return info, nil
	}
	info, err := fs.store.Lstat(filename)
	if err != nil {
		return nil, err
	}
	return fs.fileInfo(info), nil
}

func (fs *StoreFS) Symlink(target, link string) error {
	return errReadOnly
}

// Readlink returns the link target relative to the link's directory, so the
// link keeps pointing inside the mount wherever the client mounts it.
func (fs *StoreFS) Readlink(link string) (string, error) {
	link = cleanPath(link)
	target, err := fs.store.Readlink(link)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		return target, nil
	}
	rel, err := filepath.Rel(vpath.Dir(link), target)
	if err != nil {
		return "", &os.PathError{Op: "readlink", Path: link, Err: err}
	}
	return rel, nil
}

// --- billy.Chroot ---

func (fs *StoreFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *StoreFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *StoreFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// --- internals ---

func (fs *StoreFS) isStatus(path string) bool {
	return fs.status != nil && path == vpath.Join(vpath.Root, StatusFile)
}

// virtualInfo describes the root and StatusFile, which the store does not
// hold.
func (fs *StoreFS) virtualInfo(path string) (*staticFileInfo, bool) {
	switch {
	case path == vpath.Root:
		return &staticFileInfo{
			name:    "/",
			mode:    os.ModeDir | 0o555,
			modTime: fs.mountTime,
		}, true
	case fs.isStatus(path):
		var size int64
		if data, err := fs.status(); err == nil {
			size = int64(len(data))
		}
		return &staticFileInfo{
			name:    StatusFile,
			size:    size,
			mode:    0o444,
			modTime: time.Now(),
		}, true
	}
	return nil, false
}

// fileInfo converts a store node description to os.FileInfo.
func (fs *StoreFS) fileInfo(info vfs.Info) *staticFileInfo {
	var mode os.FileMode
	switch info.Kind {
	case vfs.KindDir:
		mode = os.ModeDir | 0o555
	case vfs.KindLink:
		mode = os.ModeSymlink | 0o777
	default:
		mode = 0o444
	}
	modTime := info.ModTime
	if modTime.IsZero() {
		modTime = fs.mountTime
	}
	size := info.Size
	if info.Kind == vfs.KindLink {
		size = int64(len(info.Target))
	}
	return &staticFileInfo{
		name:    vpath.Base(info.Path),
		size:    size,
		mode:    mode,
		modTime: modTime,
	}
}

// cleanPath normalizes a billy path to a clean absolute path.
func cleanPath(path string) string {
	return vpath.Clean(path)
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*StoreFS)(nil)
	_ billy.Capable    = (*StoreFS)(nil)
	_ billy.File       = (*snapshotFile)(nil)
)
