package worldfile

import (
	"testing"

	"github.com/agentic-research/orrery/internal/vfs"
)

func FuzzImport(f *testing.F) {
	s := vfs.NewEmpty()
	if err := s.WriteStructured("/etc/time", "2000-01-01T12:00:00Z"); err != nil {
		f.Fatal(err)
	}
	valid, err := Export(s)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add(Header(Version))
	f.Add("space world file (format version 2)\n")
	f.Add("")

	f.Fuzz(func(t *testing.T, data string) {
		store, err := Import(data)
		if err != nil {
			return
		}
		// A store that imports must export again.
		if _, err := Export(store); err != nil {
			t.Fatalf("re-export: %v", err)
		}
	})
}
