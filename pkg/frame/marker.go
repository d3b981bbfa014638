package frame

import (
	"bytes"
	"encoding/hex"
	"strings"
)

// NotFound is returned by FindFirst when the marker does not occur.
const NotFound = -1

// Marker is a fixed byte signature that starts or ends an image inside a raw
// stream. Markers are chosen per session since the right one depends on the
// capture tool and mode that produced the stream.
type Marker []byte

var (
	// SOI is the JPEG start-of-image marker.
	SOI = Marker{0xFF, 0xD8}
	// EOI is the JPEG end-of-image marker.
	EOI = Marker{0xFF, 0xD9}
	// MJPEGStart is SOI followed by the first byte of the next segment marker.
	MJPEGStart = Marker{0xFF, 0xD8, 0xFF}
	// RaspividSignature begins every frame of raspivid's MJPEG output.
	RaspividSignature = Marker{0xFF, 0xD8, 0xFF, 0xDB, 0x00, 0x84, 0x00}
)

func (m Marker) String() string {
	return strings.ToUpper(hex.EncodeToString(m))
}

// MarshalText encodes the marker as hex so it reads naturally in config files.
func (m Marker) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts hex with optional spaces, e.g. "FF D8 FF".
func (m *Marker) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(strings.ReplaceAll(string(text), " ", ""))
	if err != nil {
		return err
	}
	*m = b
	return nil
}

// FindFirst returns the leftmost index at or after from where m occurs in
// haystack, or NotFound.
func FindFirst(haystack []byte, m Marker, from int) int {
	if len(m) == 0 || from < 0 || from+len(m) > len(haystack) {
		return NotFound
	}
	i := bytes.Index(haystack[from:], m)
	if i < 0 {
		return NotFound
	}
	return from + i
}

// CountAll returns the number of non-overlapping occurrences of m in haystack.
func CountAll(haystack []byte, m Marker) int {
	count := 0
	for i := FindFirst(haystack, m, 0); i != NotFound; i = FindFirst(haystack, m, i+len(m)) {
		count++
	}
	return count
}
