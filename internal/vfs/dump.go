package vfs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/agentic-research/orrery/internal/vpath"
)

// Entry is the serialized form of a single node. Structured files keep their
// JSON inline; raw files carry their bytes verbatim.
type Entry struct {
	Path    string          `json:"path"`
	Kind    string          `json:"kind"`
	JSON    json.RawMessage `json:"json,omitempty"`
	Raw     []byte          `json:"raw,omitempty"`
	Target  string          `json:"target,omitempty"`
	ModTime time.Time       `json:"mtime"`
}

// Dump returns every node in path order.
func (s *Store) Dump() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.nodes))
	for p := range s.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]Entry, 0, len(paths))
	for _, p := range paths {
		n := s.nodes[p]
		e := Entry{Path: p, Kind: n.kind.String(), ModTime: n.modTime}
		switch n.kind {
		case KindFile:
			buf := make([]byte, len(n.data))
			copy(buf, n.data)
			if n.structured {
				e.JSON = buf
			} else {
				e.Raw = buf
			}
		case KindLink:
			e.Target = n.target
		case KindDir:
		}
		out = append(out, e)
	}
	return out
}

// Load rebuilds a store from a dump. Entries are applied in path order so
// parents always precede children.
func Load(entries []Entry) (*Store, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	s := NewEmpty()
	for _, e := range sorted {
		p := vpath.Clean(e.Path)
		if p != e.Path {
			return nil, fmt.Errorf("load: path %q is not normalized", e.Path)
		}
		if p != vpath.Root {
			parent, ok := s.nodes[vpath.Dir(p)]
			if !ok || parent.kind != KindDir {
				return nil, pathErr("load", p, ErrNotDir)
			}
		}
		n := &node{path: p, modTime: e.ModTime}
		switch e.Kind {
		case "dir":
			n.kind = KindDir
		case "file":
			n.kind = KindFile
			if e.JSON != nil {
				n.data = []byte(e.JSON)
				n.structured = true
			} else {
				n.data = e.Raw
				if n.data == nil {
					n.data = []byte{}
				}
			}
		case "link":
			n.kind = KindLink
			n.target = e.Target
		default:
			return nil, fmt.Errorf("load %s: unknown node kind %q", p, e.Kind)
		}
		s.insert(n)
	}
	return s, nil
}
