// Package worldfile reads and writes the portable world file: a one-line
// ASCII header followed by a zlib-compressed JSON dump of the store, with
// every compressed byte carried as the character of the same code point.
package worldfile

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/agentic-research/orrery/internal/vfs"
)

// Version is the format version written by Export.
const Version = 1

const (
	headerPrefix = "space world file (format version "
	headerSuffix = ")\n"
)

// ErrEncoding is returned when the body holds a character above U+00FF.
var ErrEncoding = errors.New("world file body is not byte-encoded")

// HeaderError reports a missing or malformed header line.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string {
	return "invalid world file header: " + e.Reason
}

// VersionError reports a well-formed header naming an unsupported version.
type VersionError struct {
	Version int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported world file version %d (want %d)", e.Version, Version)
}

// document is the JSON payload inside the compressed body.
type document struct {
	Entries []vfs.Entry `json:"entries"`
}

// Header returns the header line for version v.
func Header(v int) string {
	return headerPrefix + strconv.Itoa(v) + headerSuffix
}

// Export serializes the whole store.
func Export(s *vfs.Store) (string, error) {
	payload, err := json.Marshal(document{Entries: s.Dump()})
	if err != nil {
		return "", fmt.Errorf("encode dump: %w", err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}

	var out strings.Builder
	out.Grow(len(headerPrefix) + len(headerSuffix) + 2*buf.Len())
	out.WriteString(Header(Version))
	for _, b := range buf.Bytes() {
		out.WriteRune(rune(b))
	}
	return out.String(), nil
}

// Import parses a world file and rebuilds the store it describes.
func Import(data string) (*vfs.Store, error) {
	body, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, len(body))
	for i, r := range body {
		if r > 0xFF {
			return nil, fmt.Errorf("%w: U+%04X at offset %d", ErrEncoding, r, i)
		}
		raw = append(raw, byte(r))
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	defer func() { _ = zr.Close() }()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode dump: %w", err)
	}
	s, err := vfs.Load(doc.Entries)
	if err != nil {
		return nil, fmt.Errorf("rebuild store: %w", err)
	}
	return s, nil
}

// parseHeader validates the header line and returns the body after it.
func parseHeader(data string) (string, error) {
	rest, ok := strings.CutPrefix(data, headerPrefix)
	if !ok {
		return "", &HeaderError{Reason: "missing prefix"}
	}
	end := strings.Index(rest, headerSuffix)
	if end < 0 {
		return "", &HeaderError{Reason: "unterminated version"}
	}
	v, err := strconv.Atoi(rest[:end])
	if err != nil || v < 0 {
		return "", &HeaderError{Reason: fmt.Sprintf("bad version %q", rest[:end])}
	}
	if v != Version {
		return "", &VersionError{Version: v}
	}
	return rest[end+len(headerSuffix):], nil
}
