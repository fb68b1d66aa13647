// Package api holds the record types and well-known paths shared by the
// engine, the mount views and external callers.
package api

import (
	"errors"
	"fmt"
	"strings"
)

// Well-known store paths.
const (
	// ObjectsDir is the directory every entity record lives under.
	ObjectsDir = "/home/objects"
	// ObjectFile is the name of the record file inside an entity directory.
	ObjectFile = "object"
	// ConfigPath holds the world Config.
	ConfigPath = "/etc/config"
	// TimePath holds the simulation clock as an RFC 3339 timestamp.
	TimePath = "/etc/time"
)

// Config is the world configuration persisted at ConfigPath.
type Config struct {
	// TicksPerSecond is the number of ticks per wall-clock second.
	TicksPerSecond float64 `json:"ticksPerSecond"`
	// SpeedOfLight in m/s.
	SpeedOfLight float64 `json:"speedOfLight"`
	// GravitationalConstant in m³/(kg·s²).
	GravitationalConstant float64 `json:"gravitationalConstant"`
	// LuminosityConstant is the zero-point luminosity (W) of the absolute
	// magnitude scale.
	LuminosityConstant float64 `json:"luminosityConstant"`
	// InitialTarget is the logical entity path a viewer focuses on first.
	InitialTarget string `json:"initialTarget"`
}

// DefaultConfig returns the configuration used when a world declares none.
func DefaultConfig() Config {
	return Config{
		TicksPerSecond:        20,
		SpeedOfLight:          299792458,
		GravitationalConstant: 6.674e-11,
		LuminosityConstant:    3.0128e28,
		InitialTarget:         "sun",
	}
}

// MaxTicksPerSecond is the highest tick rate whose interval is still at
// least one nanosecond.
const MaxTicksPerSecond = 1e9

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the fields the engine divides by.
func (c Config) Validate() error {
	if !(c.TicksPerSecond > 0) || c.TicksPerSecond > MaxTicksPerSecond {
		return fmt.Errorf("%w: ticksPerSecond must be in (0, %g], got %v", ErrInvalidConfig, float64(MaxTicksPerSecond), c.TicksPerSecond)
	}
	if !(c.GravitationalConstant > 0) {
		return fmt.Errorf("%w: gravitationalConstant must be positive, got %v", ErrInvalidConfig, c.GravitationalConstant)
	}
	if c.SpeedOfLight < 0 || c.LuminosityConstant < 0 {
		return fmt.Errorf("%w: negative physical constant", ErrInvalidConfig)
	}
	return nil
}

// ObjectPath maps a logical entity path such as "sun/earth" to the store path
// of its record, "/home/objects/sun/earth/object".
func ObjectPath(logical string) string {
	return EntityDir(logical) + "/" + ObjectFile
}

// EntityDir maps a logical entity path to its directory in the store.
func EntityDir(logical string) string {
	logical = strings.Trim(logical, "/")
	if logical == "" {
		return ObjectsDir
	}
	return ObjectsDir + "/" + logical
}

// LogicalPath is the inverse of ObjectPath. It reports false for paths that
// are not entity records.
func LogicalPath(objectPath string) (string, bool) {
	rest, ok := strings.CutPrefix(objectPath, ObjectsDir+"/")
	if !ok {
		return "", false
	}
	logical, ok := strings.CutSuffix(rest, "/"+ObjectFile)
	if !ok || logical == "" {
		return "", false
	}
	return logical, true
}
