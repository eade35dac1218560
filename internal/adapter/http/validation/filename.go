// Package validation provides upload validation: filename sanitization for
// Content-Disposition headers and an input-type allowlist.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxFilenameLength is the common filesystem limit.
const maxFilenameLength = 255

// dangerousChars can cause HTTP header injection or path traversal when a
// client-supplied filename is echoed into headers or paths.
var dangerousChars = map[rune]bool{
	'"':  true,
	'\\': true,
	'/':  true,
	':':  true,
	'\n': true,
	'\r': true,
}

// SanitizeFilename makes a client filename safe for Content-Disposition
// headers and file paths. Dangerous and control characters become
// underscores, Unicode is preserved, overlong names are truncated keeping
// the extension, and empty input becomes "file".
func SanitizeFilename(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if r < 32 || r == 127 || dangerousChars[r] {
			sb.WriteRune('_')
		} else {
			sb.WriteRune(r)
		}
	}

	result := strings.TrimSpace(sb.String())
	if strings.Trim(result, "_") == "" {
		return "file"
	}
	if len(result) > maxFilenameLength {
		result = truncatePreservingExtension(result)
	}
	return result
}

func truncatePreservingExtension(name string) string {
	ext := filepath.Ext(name)
	if len(ext) == 0 || len(ext) >= maxFilenameLength {
		return truncateToBytes(name, maxFilenameLength)
	}
	base := name[:len(name)-len(ext)]
	return truncateToBytes(base, maxFilenameLength-len(ext)) + ext
}

// truncateToBytes cuts a UTF-8 string at a rune boundary at or before
// maxBytes.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.ValidString(s[:maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// ContentDisposition returns a safe Content-Disposition header value for the
// given filename.
func ContentDisposition(filename string, inline bool) string {
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	return fmt.Sprintf("%s; filename=%q", disposition, SanitizeFilename(filename))
}
