// Package vpath holds the pure path helpers shared by the store, the world
// engine and the mount views. Paths are absolute and '/'-separated; "." is a
// no-op segment and ".." pops the previous one.
package vpath

import (
	"path"
	"strings"
)

// Root is the normalized root path.
const Root = "/"

// Split returns the non-empty segments of p without interpreting "." or "..".
// E.g. "/a/./b/" → ["a", ".", "b"]
func Split(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Join concatenates elements and normalizes the result. The result always
// begins with "/" and never ends with "/" unless it is the root.
// E.g. Join("/a", "b/../c") → "/a/c"
func Join(elem ...string) string {
	return path.Clean("/" + strings.Join(elem, "/"))
}

// Clean normalizes a single path.
func Clean(p string) string {
	return Join(p)
}

// Dir returns the parent of p. The parent of the root is the root.
func Dir(p string) string {
	return path.Dir(Clean(p))
}

// Base returns the last segment of p, or "/" for the root.
func Base(p string) string {
	return path.Base(Clean(p))
}

// IsRoot reports whether p normalizes to the root.
func IsRoot(p string) bool {
	return Clean(p) == Root
}

// Within reports whether p lies strictly below dir.
func Within(p, dir string) bool {
	p, dir = Clean(p), Clean(dir)
	if dir == Root {
		return p != Root
	}
	return strings.HasPrefix(p, dir+"/")
}

// ChildOf returns the immediate child segment of dir that contains p,
// or "" when p is not below dir.
// E.g. ChildOf("/a/b/c", "/a") → "b"
func ChildOf(p, dir string) string {
	if !Within(p, dir) {
		return ""
	}
	p, dir = Clean(p), Clean(dir)
	rest := strings.TrimPrefix(p, dir)
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

// Ancestors returns every proper ancestor of p from the root down,
// excluding p itself.
// E.g. Ancestors("/a/b/c") → ["/", "/a", "/a/b"]
func Ancestors(p string) []string {
	p = Clean(p)
	if p == Root {
		return nil
	}
	segs := Split(p)
	out := make([]string, 0, len(segs))
	out = append(out, Root)
	for i := 1; i < len(segs); i++ {
		out = append(out, "/"+strings.Join(segs[:i], "/"))
	}
	return out
}

// Depth returns the number of segments in the normalized path.
func Depth(p string) int {
	return len(Split(Clean(p)))
}
