package server

import (
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameLen = 255

// SanitizeFilename removes potentially dangerous characters from filenames
// before they are stored or echoed back in Content-Disposition.
func SanitizeFilename(filename string) string {
	// Remove path separators
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	// Remove control characters, including null bytes
	filename = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, filename)

	// Trim spaces and dots from start/end
	filename = strings.Trim(filename, " .")

	if len(filename) > maxFilenameLen {
		ext := filepath.Ext(filename)
		if len(ext) > 16 {
			ext = ""
		}
		base := filename[:maxFilenameLen-len(ext)]
		for !utf8.ValidString(base) {
			base = base[:len(base)-1]
		}
		filename = base + ext
	}

	if filename == "" {
		filename = "unnamed"
	}
	return filename
}

// normalizeMediaType strips parameters from the client-supplied type and
// falls back to the extension, then to application/octet-stream.
func normalizeMediaType(filename, clientType string) string {
	if mt, _, err := mime.ParseMediaType(clientType); err == nil && mt != "" {
		return mt
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}
