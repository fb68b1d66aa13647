package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/agentic-research/orrery/internal/scenario"
	"github.com/agentic-research/orrery/internal/settings"
	"github.com/agentic-research/orrery/internal/vfs"
	"github.com/agentic-research/orrery/internal/world"
	"github.com/agentic-research/orrery/internal/worldfile"
)

func loadSettings() (settings.Settings, error) {
	return settings.Load(viper.GetViper())
}

// loadStore builds the initial store: --world, then the configured scenario,
// then the built-in scenario.
func loadStore(s settings.Settings) (*vfs.Store, string, error) {
	switch {
	case worldPath != "":
		data, err := os.ReadFile(worldPath)
		if err != nil {
			return nil, "", fmt.Errorf("read world file: %w", err)
		}
		store, err := worldfile.Import(string(data))
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", worldPath, err)
		}
		return store, worldPath, nil
	case s.Scenario != "":
		store, err := scenario.Load(s.Scenario)
		return store, s.Scenario, err
	default:
		store, err := scenario.Default()
		return store, "built-in", err
	}
}

// openWorld loads and initializes a world engine. Per-entity init failures
// are logged; the affected bodies keep their stored state.
func openWorld(s settings.Settings) (*world.Engine, string, error) {
	store, source, err := loadStore(s)
	if err != nil {
		return nil, "", err
	}
	eng := world.New(store,
		world.WithTimeWarp(s.TimeWarp),
		world.WithLogger(slog.Default()),
	)
	if err := eng.Init(); err != nil {
		if _, failures := splitEntityErrors(err); !failures {
			return nil, "", err
		}
		slog.Warn("some bodies failed to initialize", "err", err)
	}
	return eng, source, nil
}

// splitEntityErrors reports whether err consists only of per-entity
// failures.
func splitEntityErrors(err error) ([]error, bool) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		if _, ok := e.(*world.EntityError); !ok {
			return nil, false
		}
	}
	return errs, true
}

// writeOutput writes data to path, or to stdout when path is "" or "-".
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
