package world

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLen bounds world names in bytes after normalisation.
const MaxNameLen = 64

// DefaultName returns the name the generate dialog used to propose.
func DefaultName(seed int64) string {
	return fmt.Sprintf("world_seed_%d", seed)
}

// NormalizeName trims and NFC-normalises a world name. Names are compared and
// stored in this form so that visually identical names collide.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(norm.NFC.String(name))
	if n == "" {
		return "", fmt.Errorf("world name is empty")
	}
	if len(n) > MaxNameLen {
		return "", fmt.Errorf("world name longer than %d bytes", MaxNameLen)
	}
	if strings.ContainsRune(n, 0) {
		return "", fmt.Errorf("world name contains NUL")
	}
	return n, nil
}
