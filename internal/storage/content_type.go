package storage

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// allowedImageTypes are the photo formats accepted for listing uploads.
// Matches what the vision provider accepts.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// IsAllowedImageType reports whether ct is an accepted photo MIME type.
// Parameters (e.g. "; charset=") are ignored.
func IsAllowedImageType(ct string) bool {
	base, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return allowedImageTypes[base]
}

// DetectContentType sniffs the MIME type from the first bytes of data,
// falling back to the filename extension when sniffing is inconclusive or
// no data is available.
func DetectContentType(data []byte, filename string) string {
	byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if len(data) == 0 {
		if byExt != "" {
			return byExt
		}
		return "application/octet-stream"
	}
	ct := http.DetectContentType(data)
	if ct == "application/octet-stream" && byExt != "" {
		return byExt
	}
	return ct
}
