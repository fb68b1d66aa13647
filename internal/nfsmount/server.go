package nfsmount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"runtime"

	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// HandleCacheSize bounds the number of file handles the NFS layer keeps
// resolvable between requests.
const HandleCacheSize = 4096

// Server is a running NFS listener over a billy filesystem.
type Server struct {
	ln  net.Listener
	log *slog.Logger
}

// NewServer listens on addr (127.0.0.1 on an ephemeral port when empty) and
// serves fsys until Close.
func NewServer(fsys billy.Filesystem, addr string) (*Server, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nfs listen %s: %w", addr, err)
	}
	s := &Server{ln: ln, log: slog.With("component", "nfs", "addr", ln.Addr().String())}

	handler := nfshelper.NewCachingHandler(nfshelper.NewNullAuthHandler(fsys), HandleCacheSize)
	go s.serve(handler)
	return s, nil
}

func (s *Server) serve(handler nfs.Handler) {
	err := nfs.Serve(s.ln, handler)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Error("serve stopped", "err", err)
		return
	}
	s.log.Debug("serve stopped")
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Port returns the listening TCP port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops accepting NFS connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

// mountArgs returns the privileged mount invocation for a read-only NFSv3
// mount of localhost:port on goos.
func mountArgs(goos string, port int, mountpoint string) ([]string, error) {
	var opts string
	switch goos {
	case "darwin":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,locallocks,noresvport,rdonly", port, port)
	case "linux":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,local_lock=all,nolock,ro", port, port)
	default:
		return nil, fmt.Errorf("nfs mount: unsupported OS %q", goos)
	}
	return []string{"sudo", "mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint}, nil
}

// Mount attaches the server on port at mountpoint. It shells out to the
// system mount command and needs sudo.
func Mount(ctx context.Context, port int, mountpoint string) error {
	args, err := mountArgs(runtime.GOOS, port, mountpoint)
	if err != nil {
		return err
	}
	return runCmd(ctx, "mount", args)
}

// Unmount detaches mountpoint. On macOS diskutil is tried first since it
// needs no sudo for user mounts.
func Unmount(ctx context.Context, mountpoint string) error {
	if runtime.GOOS == "darwin" {
		if err := exec.CommandContext(ctx, "diskutil", "unmount", mountpoint).Run(); err == nil {
			return nil
		}
	}
	return runCmd(ctx, "unmount", []string{"sudo", "umount", mountpoint})
}

func runCmd(ctx context.Context, op string, args []string) error {
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w\n%s", op, args[len(args)-1], err, out)
	}
	return nil
}
