package renamer

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFileNameLength = 255

// ErrInvalidFileName is returned for names that are empty or too long once
// sanitized.
var ErrInvalidFileName = errors.New("invalid file name (1-255 characters)")

// reserved are characters no target file system accepts in a name.
const reserved = `/\:*?"<>|`

// SanitizeFileName replaces path separators, reserved and control characters
// with underscores and trims surrounding spaces and dots.
func SanitizeFileName(name string) (string, error) {
	var b strings.Builder

	for _, r := range name {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			continue
		case strings.ContainsRune(reserved, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(strings.TrimSpace(b.String()), ".")

	if out == "" || utf8.RuneCountInString(out) > maxFileNameLength {
		return "", ErrInvalidFileName
	}

	return out, nil
}

// ApplyPrefix puts the user's prefix in front of name, unless it is already
// there.
func ApplyPrefix(prefix, name string) string {
	if prefix == "" || strings.HasPrefix(name, prefix) {
		return name
	}

	return prefix + name
}
