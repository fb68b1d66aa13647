// Package settings holds operator settings: which scenario to run, how fast,
// where snapshots go. World physics lives in the store's /etc/config, not
// here.
//
// Values come from an orrery.toml file, ORRERY_* environment variables and
// command-line flags, in viper's usual precedence.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// FileName is the settings file looked up in the working and home
// directories.
const FileName = "orrery.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ORRERY"

// AutosaveSettings controls periodic snapshots.
type AutosaveSettings struct {
	Enabled  bool   `mapstructure:"enabled" toml:"enabled"`
	Interval string `mapstructure:"interval" toml:"interval"`
	Keep     int    `mapstructure:"keep" toml:"keep"`
}

// Settings holds all operator configuration for a session.
type Settings struct {
	// Scenario is an HCL world definition; empty runs the built-in one.
	Scenario string  `mapstructure:"scenario" toml:"scenario"`
	TimeWarp float64 `mapstructure:"time_warp" toml:"time_warp"`
	LogLevel string  `mapstructure:"log_level" toml:"log_level"`
	// DataDir holds the snapshot database and the control block.
	DataDir  string           `mapstructure:"data_dir" toml:"data_dir"`
	Autosave AutosaveSettings `mapstructure:"autosave" toml:"autosave"`
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid settings")

// Default returns the built-in settings.
func Default() Settings {
	dir := ".orrery"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".orrery")
	}
	return Settings{
		TimeWarp: 1,
		LogLevel: "info",
		DataDir:  dir,
		Autosave: AutosaveSettings{
			Enabled:  true,
			Interval: "30s",
			Keep:     10,
		},
	}
}

// SetDefaults registers Default() with v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("scenario", d.Scenario)
	v.SetDefault("time_warp", d.TimeWarp)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("autosave.enabled", d.Autosave.Enabled)
	v.SetDefault("autosave.interval", d.Autosave.Interval)
	v.SetDefault("autosave.keep", d.Autosave.Keep)
}

// Configure points v at cfgFile, or at orrery.toml in the working or home
// directory when cfgFile is empty, and enables ORRERY_* overrides. A missing
// settings file is not an error.
func Configure(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks values that would otherwise fail later.
func (s Settings) Validate() error {
	if math.IsNaN(s.TimeWarp) || math.IsInf(s.TimeWarp, 0) {
		return fmt.Errorf("%w: time_warp must be finite", ErrInvalid)
	}
	if _, err := s.Level(); err != nil {
		return err
	}
	if s.Autosave.Enabled {
		if _, err := s.AutosaveInterval(); err != nil {
			return err
		}
	}
	if s.Autosave.Keep < 0 {
		return fmt.Errorf("%w: autosave.keep must not be negative", ErrInvalid)
	}
	return nil
}

// Level parses LogLevel.
func (s Settings) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	return l, nil
}

// AutosaveInterval parses Autosave.Interval.
func (s Settings) AutosaveInterval() (time.Duration, error) {
	d, err := time.ParseDuration(s.Autosave.Interval)
	if err != nil {
		return 0, fmt.Errorf("%w: autosave.interval: %v", ErrInvalid, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: autosave.interval must be positive", ErrInvalid)
	}
	return d, nil
}

// SnapshotPath is the snapshot database inside DataDir.
func (s Settings) SnapshotPath() string {
	return filepath.Join(s.DataDir, "snapshots.db")
}

// ControlPath is the control block inside DataDir.
func (s Settings) ControlPath() string {
	return filepath.Join(s.DataDir, "control")
}

// Save writes s to path as TOML, creating parent directories as needed.
func Save(path string, s Settings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Watch reloads the settings whenever the settings file changes and passes
// each valid result to fn. Invalid edits are logged and skipped. Without a
// settings file there is nothing to watch.
func Watch(v *viper.Viper, fn func(Settings)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		s, err := Load(v)
		if err != nil {
			slog.Warn("settings reload rejected", "file", ev.Name, "err", err)
			return
		}
		slog.Info("settings reloaded", "file", ev.Name)
		fn(s)
	})
	v.WatchConfig()
}
