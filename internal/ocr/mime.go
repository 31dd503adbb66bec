package ocr

import (
	"net/http"
	"path/filepath"
	"strings"
)

// DefaultMimeType is used for extensions the table does not know.
const DefaultMimeType = "image/jpeg"

var extToMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

var mimeToExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
	"image/webp": ".webp",
}

// MimeTypeFromFileName maps a file extension to an image MIME type.
func MimeTypeFromFileName(name string) string {
	if mime, ok := extToMime[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return DefaultMimeType
}

// ExtensionForMimeType returns the canonical extension for an image MIME type, or "".
func ExtensionForMimeType(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mimeToExt[mime]
}

// IsImageExtension reports whether name carries one of the known image extensions.
func IsImageExtension(name string) bool {
	_, ok := extToMime[strings.ToLower(filepath.Ext(name))]
	return ok
}

// DetectImageType sniffs data and returns its image MIME type. net/http does
// not sniff TIFF, so its magic numbers are checked here.
func DetectImageType(data []byte) (string, bool) {
	if isTIFF(data) {
		return "image/tiff", true
	}
	sniffed := http.DetectContentType(data)
	if ExtensionForMimeType(sniffed) != "" {
		return sniffed, true
	}
	return sniffed, false
}

func isTIFF(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return string(data[:4]) == "II*\x00" || string(data[:4]) == "MM\x00*"
}
