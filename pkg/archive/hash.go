package archive

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ImageHash is the fixed-width form of a Discord image hash: the 32 hex
// characters collapse into 16 bytes, with the animated "a_" prefix carried
// as a flag instead of stored text.
type ImageHash struct {
	Bytes    [16]byte
	Animated bool
}

// ParseImageHash parses the wire form of an image hash. An empty string is
// the absent hash and yields a nil result without error.
func ParseImageHash(s string) (*ImageHash, error) {
	if s == "" {
		return nil, nil
	}
	h := &ImageHash{}
	if strings.HasPrefix(s, "a_") {
		h.Animated = true
		s = s[2:]
	}
	if len(s) != hex.EncodedLen(len(h.Bytes)) {
		return nil, fmt.Errorf("image hash %q: unexpected length", s)
	}
	if _, err := hex.Decode(h.Bytes[:], []byte(s)); err != nil {
		return nil, fmt.Errorf("image hash %q: %w", s, err)
	}
	return h, nil
}

// String restores the wire form, including the animated prefix.
func (h *ImageHash) String() string {
	if h == nil {
		return ""
	}
	s := hex.EncodeToString(h.Bytes[:])
	if h.Animated {
		return "a_" + s
	}
	return s
}
