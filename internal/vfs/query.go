package vfs

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// Query evaluates a JSONPath expression against the structured view of the
// file at p.
func (s *Store) Query(p, selector string) ([]any, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	root, err := s.ReadStructured(p)
	if err != nil {
		return nil, err
	}
	return x.Get(root), nil
}
