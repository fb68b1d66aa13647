// Package fs mounts a read-only view of the world store through FUSE.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/agentic-research/orrery/internal/vfs"
	"github.com/agentic-research/orrery/internal/vpath"
)

// OrreryFS implements the FUSE interface from cgofuse over a vfs.Store.
// Directories map to directories, files to regular files and links to
// symlinks.
type OrreryFS struct {
	fuse.FileSystemBase
	Store     *vfs.Store
	mountTime fuse.Timespec
}

func NewOrreryFS(store *vfs.Store) *OrreryFS {
	return &OrreryFS{
		Store:     store,
		mountTime: fuse.NewTimespec(time.Now()),
	}
}

// errno maps store errors to negated FUSE error codes.
func errno(err error) int {
	var lce *vfs.LinkCycleError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotExist):
		return -fuse.ENOENT
	case errors.Is(err, vfs.ErrNotDir):
		return -fuse.ENOTDIR
	case errors.Is(err, vfs.ErrIsDir):
		return -fuse.EISDIR
	case errors.As(err, &lce):
		return -fuse.ELOOP
	}
	return -fuse.EIO
}

// Open accepts read-only opens of files.
func (fs *OrreryFS) Open(path string, flags int) (int, uint64) {
	if flags&(fuse.O_WRONLY|fuse.O_RDWR|fuse.O_APPEND|fuse.O_CREAT|fuse.O_TRUNC) != 0 {
		return -fuse.EROFS, 0
	}
	info, err := fs.Store.Stat(path)
	if err != nil {
		return errno(err), 0
	}
	if info.Kind == vfs.KindDir {
		return -fuse.EISDIR, 0
	}
	return 0, 0
}

// Opendir accepts directories only.
func (fs *OrreryFS) Opendir(path string) (int, uint64) {
	info, err := fs.Store.Stat(path)
	if err != nil {
		return errno(err), 0
	}
	if info.Kind != vfs.KindDir {
		return -fuse.ENOTDIR, 0
	}
	return 0, 0
}

// Getattr describes the node at path without following a final link.
func (fs *OrreryFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	info, err := fs.Store.Lstat(path)
	if err != nil {
		return errno(err)
	}
	fs.fill(stat, info)
	return 0
}

func (fs *OrreryFS) fill(stat *fuse.Stat_t, info vfs.Info) {
	ts := fs.mountTime
	if !info.ModTime.IsZero() {
		ts = fuse.NewTimespec(info.ModTime)
	}
	stat.Atim = ts
	stat.Mtim = ts
	stat.Ctim = ts
	stat.Birthtim = fs.mountTime

	switch info.Kind {
	case vfs.KindDir:
		stat.Mode = fuse.S_IFDIR | 0o555
		stat.Nlink = 2
	case vfs.KindLink:
		stat.Mode = fuse.S_IFLNK | 0o777
		stat.Nlink = 1
		stat.Size = int64(len(info.Target))
	default:
		stat.Mode = fuse.S_IFREG | 0o444
		stat.Nlink = 1
		stat.Size = info.Size
	}
}

// Readdir lists a directory, following links to it.
func (fs *OrreryFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	resolved, err := fs.Store.Resolve(path)
	if err != nil {
		return errno(err)
	}
	names, err := fs.Store.List(resolved)
	if err != nil {
		return errno(err)
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, name := range names {
		info, err := fs.Store.Lstat(vpath.Join(resolved, name))
		if err != nil {
			continue
		}
		var st fuse.Stat_t
		fs.fill(&st, info)
		if !fill(name, &st, 0) {
			break
		}
	}
	return 0
}

// Read copies file content at ofst into buff.
func (fs *OrreryFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	content, err := fs.Store.Read(path)
	if err != nil {
		return errno(err)
	}
	if ofst >= int64(len(content)) {
		return 0
	}
	return copy(buff, content[ofst:])
}

// Readlink returns a link target relative to the link's directory, so it
// stays inside the mount.
func (fs *OrreryFS) Readlink(path string) (int, string) {
	target, err := fs.Store.Readlink(path)
	if err != nil {
		var pe *vfs.PathError
		if errors.As(err, &pe) && !errors.Is(err, vfs.ErrNotExist) {
			return -fuse.EINVAL, ""
		}
		return errno(err), ""
	}
	if !filepath.IsAbs(target) {
		return 0, target
	}
	rel, err := filepath.Rel(vpath.Dir(path), target)
	if err != nil {
		return -fuse.EIO, ""
	}
	return 0, rel
}

// Statfs reports a read-only filesystem holding the store's node count.
func (fs *OrreryFS) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 4096
	stat.Frsize = 4096
	stat.Files = uint64(fs.Store.Len())
	stat.Namemax = 255
	stat.Flag = 1 // ST_RDONLY
	return 0
}

// Mount serves fs at mountpoint until ctx is cancelled.
func Mount(ctx context.Context, fs *OrreryFS, mountpoint string) error {
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("mountpoint: %w", err)
	}
	host := fuse.NewFileSystemHost(fs)
	host.SetCapReaddirPlus(true)

	done := make(chan bool, 1)
	go func() {
		done <- host.Mount(mountpoint, []string{"-o", "ro", "-o", "fsname=orrery"})
	}()

	select {
	case ok := <-done:
		if !ok {
			return fmt.Errorf("mount %s failed", mountpoint)
		}
		return nil
	case <-ctx.Done():
		host.Unmount()
		<-done
		return nil
	}
}
