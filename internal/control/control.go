// Package control publishes the world clock through a memory-mapped page so
// out-of-process readers (renderers, dashboards) can follow ticks without a
// round trip through the engine.
package control

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/agentic-research/orrery/internal/world"
)

const (
	ControlSize = 4096       // 1 page
	Magic       = 0x4F525259 // 'ORRY'
	Version     = 1
)

// Block is the layout of the mapped page. Readers in other languages rely
// on the field offsets.
type Block struct {
	Magic   uint32
	Version uint32
	// Seq is odd while a write is in progress.
	Seq        uint64
	Generation uint64
	SimTime    int64  // unix nanoseconds
	TimeWarp   uint64 // float64 bits
	Padding    [ControlSize - 40]byte
}

// Snapshot is one consistent reading of the block.
type Snapshot struct {
	Generation uint64
	Time       time.Time
	TimeWarp   float64
}

// Controller manages the memory-mapped control file.
type Controller struct {
	path string
	file *os.File
	data []byte
	ptr  *Block
}

// OpenOrCreate opens or creates a control file at the given path.
func OpenOrCreate(path string) (*Controller, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open control file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	if info.Size() < ControlSize {
		if err := f.Truncate(ControlSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, ControlSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	ptr := (*Block)(unsafe.Pointer(&data[0]))

	switch {
	case ptr.Magic == 0:
		ptr.Magic = Magic
		ptr.Version = Version
	case ptr.Magic != Magic:
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("invalid magic: %x", ptr.Magic)
	case ptr.Version != Version:
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("unsupported control version %d", ptr.Version)
	}

	return &Controller{
		path: path,
		file: f,
		data: data,
		ptr:  ptr,
	}, nil
}

// Path returns the control file path.
func (c *Controller) Path() string { return c.path }

// Generation returns the last published generation.
func (c *Controller) Generation() uint64 {
	return atomic.LoadUint64(&c.ptr.Generation)
}

// Publish writes s. There must be a single writer per control file.
func (c *Controller) Publish(s Snapshot) {
	seq := atomic.AddUint64(&c.ptr.Seq, 1) // odd: writing
	atomic.StoreInt64(&c.ptr.SimTime, s.Time.UnixNano())
	atomic.StoreUint64(&c.ptr.TimeWarp, math.Float64bits(s.TimeWarp))
	atomic.StoreUint64(&c.ptr.Generation, s.Generation)
	atomic.StoreUint64(&c.ptr.Seq, seq+1)
}

// Read returns a consistent snapshot, retrying while a write is in
// progress.
func (c *Controller) Read() Snapshot {
	for {
		before := atomic.LoadUint64(&c.ptr.Seq)
		if before&1 == 1 {
			continue
		}
		s := Snapshot{
			Generation: atomic.LoadUint64(&c.ptr.Generation),
			Time:       time.Unix(0, atomic.LoadInt64(&c.ptr.SimTime)).UTC(),
			TimeWarp:   math.Float64frombits(atomic.LoadUint64(&c.ptr.TimeWarp)),
		}
		if atomic.LoadUint64(&c.ptr.Seq) == before {
			return s
		}
	}
}

// OnTick publishes every tick, making the controller a world.Observer.
func (c *Controller) OnTick(ev world.Event) {
	c.Publish(Snapshot{Generation: ev.Generation, Time: ev.Time, TimeWarp: ev.TimeWarp})
}

// Sync flushes the page to the file.
func (c *Controller) Sync() error {
	return unix.Msync(c.data, unix.MS_SYNC)
}

// Close unmaps and closes the control file.
func (c *Controller) Close() error {
	if err := unix.Munmap(c.data); err != nil {
		return err
	}
	return c.file.Close()
}

var _ world.Observer = (*Controller)(nil)
