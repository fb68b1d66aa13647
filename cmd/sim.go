package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentic-research/orrery/internal/control"
	"github.com/agentic-research/orrery/internal/persistence"
	"github.com/agentic-research/orrery/internal/settings"
	"github.com/agentic-research/orrery/internal/world"
	"github.com/agentic-research/orrery/internal/worldfile"
)

var (
	tickCount int
	tickOut   string
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Advance the world a number of ticks and export it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tickCount < 1 {
			return fmt.Errorf("--count must be at least 1")
		}
		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, _, err := openWorld(s)
		if err != nil {
			return err
		}
		for i := 0; i < tickCount; i++ {
			if err := eng.Tick(); err != nil {
				if _, ok := splitEntityErrors(err); !ok {
					return err
				}
				slog.Warn("tick had failures", "generation", eng.Generation(), "err", err)
			}
		}
		now, err := eng.Time()
		if err != nil {
			return err
		}
		slog.Info("ticked", "count", tickCount, "time", now)
		data, err := eng.Export()
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), tickOut, []byte(data))
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the initialized world as a world file",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, _, err := openWorld(s)
		if err != nil {
			return err
		}
		data, err := eng.Export()
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), exportOut, []byte(data))
	},
}

var importLabel string

var importCmd = &cobra.Command{
	Use:   "import <world-file>",
	Short: "Validate a world file and store it as a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		store, err := worldfile.Import(string(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		eng := world.New(store)
		now, err := eng.Time()
		if err != nil {
			return err
		}

		db, err := persistence.Open(s.SnapshotPath())
		if err != nil {
			return err
		}
		defer db.Close()
		snap, err := db.Save(cmd.Context(), importLabel, now, 0, string(raw))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
		return nil
	},
}

var (
	runResume bool
	runLabel  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the world in real time until interrupted",
	Long: `Run ticks the world at its configured rate until SIGINT or SIGTERM.
While running it publishes the clock to the control block, snapshots the world
periodically when autosave is enabled, and applies time_warp edits to the
settings file as they happen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWorld(ctx, cmd)
	},
}

func runWorld(ctx context.Context, cmd *cobra.Command) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	var db *persistence.DB
	if s.Autosave.Enabled || runResume {
		if db, err = persistence.Open(s.SnapshotPath()); err != nil {
			return err
		}
		defer db.Close()
	}

	eng, source, err := openWorld(s)
	if err != nil {
		return err
	}
	if runResume {
		snap, data, err := db.Latest(ctx, runLabel)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			slog.Info("no snapshot to resume", "label", runLabel)
		case err != nil:
			return err
		default:
			if err := eng.Import(data); err != nil {
				return fmt.Errorf("resume %s: %w", snap.ID, err)
			}
			source = "snapshot " + snap.ID
		}
	}

	ctrl, err := control.OpenOrCreate(s.ControlPath())
	if err != nil {
		return err
	}
	defer ctrl.Close()
	eng.Observe(ctrl)

	if s.Autosave.Enabled {
		interval, err := s.AutosaveInterval()
		if err != nil {
			return err
		}
		saver := persistence.NewAutoSaver(db, eng, runLabel, s.Autosave.Keep)
		eng.Observe(saver)
		saver.Start(interval)
		defer func() {
			if err := saver.Close(); err != nil {
				slog.Error("final snapshot failed", "err", err)
			}
		}()
	}

	settings.Watch(viper.GetViper(), func(next settings.Settings) {
		if next.TimeWarp == eng.TimeWarp() {
			return
		}
		if err := eng.SetTimeWarp(next.TimeWarp); err != nil {
			slog.Warn("time warp not applied", "err", err)
		}
	})

	if err := eng.Start(ctx); err != nil {
		return err
	}
	slog.Info("running", "source", source, "control", ctrl.Path())
	fmt.Fprintf(cmd.OutOrStdout(), "running %s (Ctrl-C to stop)\n", source)

	<-ctx.Done()
	eng.Stop()
	slog.Info("stopped", "generation", eng.Generation())
	return nil
}

func init() {
	tickCmd.Flags().IntVarP(&tickCount, "count", "n", 1, "number of ticks")
	tickCmd.Flags().StringVarP(&tickOut, "out", "o", "", "write the world file here instead of stdout")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write the world file here instead of stdout")
	importCmd.Flags().StringVar(&importLabel, "label", "default", "snapshot label")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume from the latest snapshot")
	runCmd.Flags().StringVar(&runLabel, "label", "default", "snapshot label")
	rootCmd.AddCommand(tickCmd, exportCmd, importCmd, runCmd)
}
