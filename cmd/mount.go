package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	orreryfs "github.com/agentic-research/orrery/internal/fs"
	"github.com/agentic-research/orrery/internal/nfsmount"
	"github.com/agentic-research/orrery/internal/world"
)

var (
	mountBackend string
	mountListen  string
	mountServe   bool
	mountList    bool
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Run the world and mount a read-only view of its store",
	Long: `Mount runs the world in real time and exposes the store as a read-only
filesystem: directories for entities, an "object" file per body, /etc/config
and /etc/time.

The nfs backend (default) serves NFSv3 on --listen and mounts it with the
system mount command; --serve-only skips the mount and prints the port. The
fuse backend mounts through cgofuse.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if mountList {
			return printMounts(cmd)
		}
		if len(args) == 0 && !(mountBackend == "nfs" && mountServe) {
			return fmt.Errorf("mountpoint required")
		}
		mountPoint := ""
		if len(args) == 1 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			mountPoint = abs
		}

		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, source, err := openWorld(s)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := eng.Start(ctx); err != nil {
			return err
		}
		defer eng.Stop()

		meta := &MountMetadata{
			PID:        os.Getpid(),
			Source:     source,
			MountPoint: mountPoint,
			Backend:    mountBackend,
			Timestamp:  time.Now(),
		}

		switch mountBackend {
		case "nfs":
			return mountNFS(ctx, cmd, eng, meta)
		case "fuse":
			if err := os.MkdirAll(mountPoint, 0o755); err != nil {
				return err
			}
			if err := saveMountMetadata(mountPoint, meta); err != nil {
				slog.Warn("mount metadata not saved", "err", err)
			}
			defer removeMountMetadata(mountPoint)
			fmt.Fprintf(cmd.OutOrStdout(), "Mounting orrery at %s (fuse)...\n", mountPoint)
			return orreryfs.Mount(ctx, orreryfs.NewOrreryFS(eng.Store()), mountPoint)
		default:
			return fmt.Errorf("unknown backend %q (want nfs or fuse)", mountBackend)
		}
	},
}

const unmountTimeout = 30 * time.Second

func mountNFS(ctx context.Context, cmd *cobra.Command, eng *world.Engine, meta *MountMetadata) error {
	sfs := nfsmount.NewStoreFS(eng.Store(), statusJSON(eng))
	srv, err := nfsmount.NewServer(sfs, mountListen)
	if err != nil {
		return err
	}
	defer srv.Close()
	meta.Port = srv.Port()

	if meta.MountPoint == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "NFS server listening on port %d\n", srv.Port())
		<-ctx.Done()
		return nil
	}

	if err := os.MkdirAll(meta.MountPoint, 0o755); err != nil {
		return err
	}
	if !mountServe {
		if err := nfsmount.Mount(ctx, srv.Port(), meta.MountPoint); err != nil {
			return err
		}
		defer func() {
			// ctx is already cancelled here.
			uctx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
			defer cancel()
			if err := nfsmount.Unmount(uctx, meta.MountPoint); err != nil {
				slog.Error("unmount failed", "mountpoint", meta.MountPoint, "err", err)
			}
		}()
	}
	if err := saveMountMetadata(meta.MountPoint, meta); err != nil {
		slog.Warn("mount metadata not saved", "err", err)
	}
	defer removeMountMetadata(meta.MountPoint)

	fmt.Fprintf(cmd.OutOrStdout(), "Mounted orrery at %s (nfs port %d)\n", meta.MountPoint, srv.Port())
	<-ctx.Done()
	return nil
}

// statusJSON renders the engine clock for the mount's status file.
func statusJSON(eng *world.Engine) nfsmount.StatusFunc {
	return func() ([]byte, error) {
		now, err := eng.Time()
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(map[string]any{
			"time":       now,
			"timeWarp":   eng.TimeWarp(),
			"generation": eng.Generation(),
			"state":      eng.State().String(),
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

func printMounts(cmd *cobra.Command) error {
	mounts, err := listActiveMounts()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MOUNTPOINT\tBACKEND\tPORT\tPID\tSOURCE\tSINCE")
	for _, m := range mounts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			m.MountPoint, m.Backend, m.Port, m.PID, m.Source, humanize.Time(m.Timestamp))
	}
	return tw.Flush()
}

func init() {
	mountCmd.Flags().StringVar(&mountBackend, "backend", "nfs", "nfs or fuse")
	mountCmd.Flags().StringVar(&mountListen, "listen", "", "NFS listen address (default: ephemeral localhost port)")
	mountCmd.Flags().BoolVar(&mountServe, "serve-only", false, "serve NFS without calling mount")
	mountCmd.Flags().BoolVar(&mountList, "list", false, "list active mounts")
	rootCmd.AddCommand(mountCmd)
}
