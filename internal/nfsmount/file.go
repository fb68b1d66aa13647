package nfsmount

import "bytes"

// snapshotFile is a billy.File over the bytes a path held when it was
// opened. Later ticks do not change an open handle.
type snapshotFile struct {
	*bytes.Reader
	name string
}

func newSnapshotFile(name string, data []byte) *snapshotFile {
	return &snapshotFile{Reader: bytes.NewReader(data), name: name}
}

func (f *snapshotFile) Name() string { return f.name }

func (f *snapshotFile) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *snapshotFile) Truncate(int64) error      { return errReadOnly }
func (f *snapshotFile) Lock() error               { return nil }
func (f *snapshotFile) Unlock() error             { return nil }
func (f *snapshotFile) Close() error              { return nil }
