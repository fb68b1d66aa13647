// Package vfs is the path-addressed store that holds the whole world:
// config, clock and every entity record live here as Files under a tree of
// Directories, with Links as aliases.
//
// The store is a flat map from normalized absolute path to node. A directory
// "contains" a path only because that path exists with the directory as its
// prefix; every write materializes the missing ancestor directories so the
// prefix discipline always holds.
package vfs

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/orrery/internal/vpath"
)

// Kind discriminates the three node variants.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindLink:
		return "link"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// node is the stored primitive. Data is set for files, Target for links.
type node struct {
	id         uint32
	path       string
	kind       Kind
	data       []byte
	structured bool // content was written as a structured value
	target     string
	modTime    time.Time
}

// Info is a read-only view of a node handed out to callers.
type Info struct {
	Path       string
	Kind       Kind
	Size       int64
	Structured bool
	Target     string
	ModTime    time.Time
}

func (n *node) info() Info {
	return Info{
		Path:       n.path,
		Kind:       n.kind,
		Size:       int64(len(n.data)),
		Structured: n.structured,
		Target:     n.target,
		ModTime:    n.modTime,
	}
}

// Store is safe for concurrent readers and a single writer at a time.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*node

	// Roaring bitmap index: directory path → set of child node ids.
	// List is O(children) instead of a prefix scan over every key.
	children map[string]*roaring.Bitmap
	idToPath []string
	nextID   uint32

	now func() time.Time
}

// NewEmpty returns a store holding only the root directory.
func NewEmpty() *Store {
	s := &Store{
		nodes:    make(map[string]*node),
		children: make(map[string]*roaring.Bitmap),
		now:      time.Now,
	}
	s.insert(&node{path: vpath.Root, kind: KindDir})
	return s
}

// New builds a store from a nested declaration. Every directory is created
// empty and then populated by registering its declared children as full
// paths.
func New(root Dir) (*Store, error) {
	s := NewEmpty()
	if err := root.declare(s, vpath.Root); err != nil {
		return nil, err
	}
	return s, nil
}

// SetClock overrides the modification-time source. Times are stored in UTC
// so they survive a JSON round trip unchanged.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// insert registers n and indexes it under its parent.
// Must be called with s.mu held (or before the store is shared).
func (s *Store) insert(n *node) {
	if old, ok := s.nodes[n.path]; ok {
		n.id = old.id
	} else {
		n.id = s.nextID
		s.nextID++
		for uint32(len(s.idToPath)) <= n.id {
			s.idToPath = append(s.idToPath, "")
		}
		s.idToPath[n.id] = n.path
	}
	if n.modTime.IsZero() && s.now != nil {
		n.modTime = s.now().UTC()
	}
	s.nodes[n.path] = n
	if n.kind == KindDir {
		if _, ok := s.children[n.path]; !ok {
			s.children[n.path] = roaring.New()
		}
	}
	if n.path != vpath.Root {
		parent := vpath.Dir(n.path)
		bm, ok := s.children[parent]
		if !ok {
			bm = roaring.New()
			s.children[parent] = bm
		}
		bm.Add(n.id)
	}
}

// resolveLocked follows links segment by segment until it reaches a non-link
// node or an absent path. Relative link targets are interpreted against the
// link's parent directory.
func (s *Store) resolveLocked(p string) (string, error) {
	orig := vpath.Clean(p)
	p = orig
	hops := 0
	for {
		segs := vpath.Split(p)
		cur := vpath.Root
		redirected := false
		for i, seg := range segs {
			cur = vpath.Join(cur, seg)
			n, ok := s.nodes[cur]
			if !ok {
				return p, nil
			}
			if n.kind != KindLink {
				continue
			}
			hops++
			if hops > MaxLinkHops {
				return "", &LinkCycleError{Path: orig, Hops: MaxLinkHops}
			}
			target := n.target
			if len(target) == 0 || target[0] != '/' {
				target = vpath.Join(vpath.Dir(cur), target)
			}
			p = vpath.Join(append([]string{target}, segs[i+1:]...)...)
			redirected = true
			break
		}
		if !redirected {
			return p, nil
		}
	}
}

// Resolve follows link chains to the terminal path.
func (s *Store) Resolve(p string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(p)
}

// lookupLocked resolves p and returns the terminal node (nil if absent).
func (s *Store) lookupLocked(p string) (string, *node, error) {
	resolved, err := s.resolveLocked(p)
	if err != nil {
		return "", nil, err
	}
	return resolved, s.nodes[resolved], nil
}

// Read returns a copy of the raw content of the file at p.
func (s *Store) Read(p string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.fileLocked("read", p)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

func (s *Store) fileLocked(op, p string) (*node, error) {
	resolved, n, err := s.lookupLocked(p)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, pathErr(op, resolved, ErrNotExist)
	}
	if n.kind == KindDir {
		return nil, pathErr(op, resolved, ErrIsDir)
	}
	return n, nil
}

// ReadStructured returns the structured view of the file at p.
// Raw files that do not parse as JSON are viewed as a single string value.
func (s *Store) ReadStructured(p string) (any, error) {
	s.mu.RLock()
	n, err := s.fileLocked("read", p)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	data, structured, path := n.data, n.structured, n.path
	s.mu.RUnlock()

	v, err := oj.Parse(data)
	if err != nil {
		if !structured {
			return string(data), nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// ReadInto decodes the file at p into v.
func (s *Store) ReadInto(p string, v any) error {
	data, err := s.Read(p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", vpath.Clean(p), err)
	}
	return nil
}

// Write stores raw content at p.
func (s *Store) Write(p string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(p, buf, false)
}

// WriteStructured stores v as structured content at p.
func (s *Store) WriteStructured(p string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", vpath.Clean(p), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(p, data, true)
}

// WriteBatch stores every value structurally under a single lock. Values are
// encoded and every target is checked before anything is written, so a
// failing batch leaves the store untouched. A batch in which one path lies
// below another fails with ErrNotDir.
func (s *Store) WriteBatch(values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	paths := make([]string, 0, len(values))
	for p, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", vpath.Clean(p), err)
		}
		encoded[p] = data
		paths = append(paths, p)
	}
	sort.Strings(paths)

	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		resolved, err := s.prepareWriteLocked(p)
		if err != nil {
			return err
		}
		targets[resolved] = struct{}{}
	}
	for t := range targets {
		for _, anc := range vpath.Ancestors(t) {
			if _, ok := targets[anc]; ok {
				return pathErr("write", t, ErrNotDir)
			}
		}
	}
	for _, p := range paths {
		if err := s.writeLocked(p, encoded[p], true); err != nil {
			return err
		}
	}
	return nil
}

// prepareWriteLocked resolves p and checks that a write can land there
// without mutating anything.
func (s *Store) prepareWriteLocked(p string) (string, error) {
	resolved, err := s.resolveLocked(p)
	if err != nil {
		return "", err
	}
	for _, anc := range vpath.Ancestors(resolved) {
		if n, ok := s.nodes[anc]; ok && n.kind == KindFile {
			return "", pathErr("write", anc, ErrNotDir)
		}
	}
	return resolved, nil
}

// writeLocked creates or overwrites the file at p. Writing onto an existing
// directory is silently ignored.
func (s *Store) writeLocked(p string, data []byte, structured bool) error {
	resolved, err := s.prepareWriteLocked(p)
	if err != nil {
		return err
	}
	if n, ok := s.nodes[resolved]; ok {
		if n.kind == KindDir {
			return nil
		}
		n.data = data
		n.structured = structured
		n.modTime = s.now().UTC()
		return nil
	}
	s.mkdirAllLocked(vpath.Dir(resolved))
	s.insert(&node{path: resolved, kind: KindFile, data: data, structured: structured})
	return nil
}

// mkdirAllLocked materializes p and every missing ancestor as directories.
// Callers must have checked that no ancestor is a file.
func (s *Store) mkdirAllLocked(p string) {
	for _, anc := range append(vpath.Ancestors(p), vpath.Clean(p)) {
		if _, ok := s.nodes[anc]; !ok {
			s.insert(&node{path: anc, kind: KindDir})
		}
	}
}

// Mkdir creates the directory p and any missing ancestors.
func (s *Store) Mkdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved, err := s.prepareWriteLocked(p)
	if err != nil {
		return err
	}
	if n, ok := s.nodes[resolved]; ok {
		if n.kind != KindDir {
			return pathErr("mkdir", resolved, ErrExist)
		}
		return nil
	}
	s.mkdirAllLocked(resolved)
	return nil
}

// Symlink creates a link at link pointing to target. The link path itself is
// not resolved; its ancestors are materialized as directories.
func (s *Store) Symlink(target, link string) error {
	link = vpath.Clean(link)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[link]; ok {
		return pathErr("symlink", link, ErrExist)
	}
	parent, err := s.prepareWriteLocked(vpath.Dir(link))
	if err != nil {
		return err
	}
	if n, ok := s.nodes[parent]; ok && n.kind == KindFile {
		return pathErr("symlink", parent, ErrNotDir)
	}
	s.mkdirAllLocked(parent)
	s.insert(&node{path: vpath.Join(parent, vpath.Base(link)), kind: KindLink, target: target})
	return nil
}

// Readlink returns the target of the link at p without following it.
func (s *Store) Readlink(p string) (string, error) {
	p = vpath.Clean(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[p]
	if !ok {
		return "", pathErr("readlink", p, ErrNotExist)
	}
	if n.kind != KindLink {
		return "", pathErr("readlink", p, fmt.Errorf("not a link"))
	}
	return n.target, nil
}

// List returns the sorted names of the immediate children of directory p.
func (s *Store) List(p string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resolved, n, err := s.lookupLocked(p)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, pathErr("list", resolved, ErrNotExist)
	}
	if n.kind != KindDir {
		return nil, pathErr("list", resolved, ErrNotDir)
	}
	return s.childNamesLocked(resolved), nil
}

func (s *Store) childNamesLocked(dir string) []string {
	bm, ok := s.children[dir]
	if !ok {
		return []string{}
	}
	names := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		id := it.Next()
		if int(id) < len(s.idToPath) && s.idToPath[id] != "" {
			names = append(names, vpath.Base(s.idToPath[id]))
		}
	}
	sort.Strings(names)
	return names
}

// Exists reports whether p resolves to a node.
func (s *Store) Exists(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, n, err := s.lookupLocked(p)
	return err == nil && n != nil
}

// IsDirectory reports whether p resolves to a directory.
func (s *Store) IsDirectory(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, n, err := s.lookupLocked(p)
	return err == nil && n != nil && n.kind == KindDir
}

// Stat describes the node p resolves to.
func (s *Store) Stat(p string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resolved, n, err := s.lookupLocked(p)
	if err != nil {
		return Info{}, err
	}
	if n == nil {
		return Info{}, pathErr("stat", resolved, ErrNotExist)
	}
	return n.info(), nil
}

// Lstat describes the node stored at p without following a final link.
func (s *Store) Lstat(p string) (Info, error) {
	p = vpath.Clean(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	parent, err := s.resolveLocked(vpath.Dir(p))
	if err != nil {
		return Info{}, err
	}
	n, ok := s.nodes[vpath.Join(parent, vpath.Base(p))]
	if !ok {
		return Info{}, pathErr("lstat", p, ErrNotExist)
	}
	return n.info(), nil
}

// WalkFunc is called for every node visited by Walk.
type WalkFunc func(p string, info Info) error

// Walk visits root and every node below it in sorted depth-first order.
// Links are reported, not followed.
func (s *Store) Walk(root string, fn WalkFunc) error {
	root = vpath.Clean(root)
	s.mu.RLock()
	infos := s.walkLocked(root, nil)
	s.mu.RUnlock()
	for _, in := range infos {
		if err := fn(in.Path, in); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) walkLocked(p string, acc []Info) []Info {
	n, ok := s.nodes[p]
	if !ok {
		return acc
	}
	acc = append(acc, n.info())
	if n.kind != KindDir {
		return acc
	}
	for _, name := range s.childNamesLocked(p) {
		acc = s.walkLocked(vpath.Join(p, name), acc)
	}
	return acc
}

// Len returns the number of stored nodes, the root included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Replace atomically swaps the contents of s with those of other. other must
// not be used afterwards.
func (s *Store) Replace(other *Store) {
	other.mu.Lock()
	nodes, children, idToPath, nextID := other.nodes, other.children, other.idToPath, other.nextID
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nodes
	s.children = children
	s.idToPath = idToPath
	s.nextID = nextID
}
