package vfs

import (
	"errors"
	"fmt"
	"io/fs"
)

// MaxLinkHops bounds link resolution. A chain longer than this is reported
// as a LinkCycleError.
const MaxLinkHops = 32

// PathError records the failed operation and the path it was applied to.
// It is io/fs.PathError so os.IsNotExist and friends work for mount views.
type PathError = fs.PathError

var (
	ErrNotExist = fs.ErrNotExist
	ErrExist    = fs.ErrExist
	ErrIsDir    = errors.New("is a directory")
	ErrNotDir   = errors.New("not a directory")
)

// LinkCycleError is returned when resolving a path follows more than
// MaxLinkHops links.
type LinkCycleError struct {
	Path string
	Hops int
}

func (e *LinkCycleError) Error() string {
	return fmt.Sprintf("resolve %s: link chain exceeds %d hops", e.Path, e.Hops)
}

func pathErr(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}
