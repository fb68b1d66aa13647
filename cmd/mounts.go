package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// MountMetadata records a running mount so `orrery mount --list` can find it.
type MountMetadata struct {
	PID        int       `json:"pid"`
	Source     string    `json:"source"`
	MountPoint string    `json:"mount_point"`
	Backend    string    `json:"backend"`
	Port       int       `json:"port,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// mountsDir holds one metadata file per active mount.
func mountsDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "orrery")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// metadataName derives a stable file name from the mount point.
// Format: basename-hash (e.g. "sky-a1b2c3.meta.json")
func metadataName(mountPoint string) string {
	hash := sha256.Sum256([]byte(mountPoint))
	return filepath.Base(mountPoint) + "-" + hex.EncodeToString(hash[:3]) + ".meta.json"
}

func metadataPath(mountPoint string) (string, error) {
	dir, err := mountsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, metadataName(mountPoint)), nil
}

func saveMountMetadata(mountPoint string, meta *MountMetadata) error {
	p, err := metadataPath(mountPoint)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func loadMountMetadata(mountPoint string) (*MountMetadata, error) {
	p, err := metadataPath(mountPoint)
	if err != nil {
		return nil, err
	}
	return readMetadata(p)
}

func removeMountMetadata(mountPoint string) {
	if p, err := metadataPath(mountPoint); err == nil {
		_ = os.Remove(p)
	}
}

func readMetadata(p string) (*MountMetadata, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var meta MountMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// listActiveMounts returns the mounts whose owning process is still alive.
// Metadata left behind by dead processes is removed.
func listActiveMounts() ([]*MountMetadata, error) {
	dir, err := mountsDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var mounts []*MountMetadata
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		meta, err := readMetadata(p)
		if err != nil {
			continue
		}
		if !isProcessRunning(meta.PID) {
			_ = os.Remove(p)
			continue
		}
		mounts = append(mounts, meta)
	}
	return mounts, nil
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Send signal 0 to check if alive.
	return process.Signal(syscall.Signal(0)) == nil
}
