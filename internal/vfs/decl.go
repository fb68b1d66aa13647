package vfs

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/agentic-research/orrery/internal/vpath"
)

// Decl is a node in a nested store declaration passed to New.
type Decl interface {
	declare(s *Store, p string) error
}

// Dir declares a directory and its children by name.
type Dir map[string]Decl

// Text declares a file with raw content.
type Text string

// Data declares a file with structured content.
type Data struct {
	Value any
}

// Link declares a link to Target.
type Link string

func (d Dir) declare(s *Store, p string) error {
	p = vpath.Clean(p)
	if n, ok := s.nodes[p]; ok && n.kind != KindDir {
		return pathErr("declare", p, ErrExist)
	}
	if _, ok := s.nodes[p]; !ok {
		s.insert(&node{path: p, kind: KindDir})
	}
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" || name == "." || name == ".." {
			return pathErr("declare", vpath.Join(p, name), fmt.Errorf("invalid name %q", name))
		}
		if err := d[name].declare(s, vpath.Join(p, name)); err != nil {
			return err
		}
	}
	return nil
}

func (t Text) declare(s *Store, p string) error {
	s.insert(&node{path: vpath.Clean(p), kind: KindFile, data: []byte(t)})
	return nil
}

func (d Data) declare(s *Store, p string) error {
	data, err := json.Marshal(d.Value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	s.insert(&node{path: vpath.Clean(p), kind: KindFile, data: data, structured: true})
	return nil
}

func (l Link) declare(s *Store, p string) error {
	s.insert(&node{path: vpath.Clean(p), kind: KindLink, target: string(l)})
	return nil
}
