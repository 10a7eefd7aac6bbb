package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns prefix followed by the first n hex digits of a random UUID,
// e.g. New("cs_", 12) -> "cs_3f9a0c1b2d4e".
func New(prefix string, n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return prefix + hex[:n]
}
