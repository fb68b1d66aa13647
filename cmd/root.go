package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentic-research/orrery/internal/settings"
)

// Version is stamped at build time.
var Version = "dev"

var (
	cfgFile   string
	worldPath string
)

var rootCmd = &cobra.Command{
	Use:   "orrery",
	Short: "Orrery: a path-addressed orbital simulation",
	Long: `Orrery keeps a world of stars, planets and moons in a path-addressed store
and advances it on a fixed tick from Keplerian elements.

One-shot commands load the world from --world (a world file), or else from
the configured scenario, or else from the built-in solar system.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "settings file (default ./orrery.toml or ~/orrery.toml)")
	pf.StringVarP(&worldPath, "world", "w", "", "world file to load instead of a scenario")
	pf.String("scenario", "", "HCL scenario to load (default: built-in solar system)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("data-dir", "", "directory for snapshots and the control block")
	pf.Float64("time-warp", 0, "simulated seconds per wall-clock second")
}

func initConfig() {
	pf := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("scenario", pf.Lookup("scenario"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = viper.BindPFlag("time_warp", pf.Lookup("time-warp"))

	if err := settings.Configure(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

// setupLogging installs the default slog handler at the configured level.
// Logs go to stderr so stdout stays clean for command output.
func setupLogging(cmd *cobra.Command, _ []string) error {
	s, err := settings.Load(viper.GetViper())
	if err != nil {
		return err
	}
	level, err := s.Level()
	if err != nil {
		return err
	}
	h := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
