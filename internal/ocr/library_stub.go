//go:build !tesseractlib

package ocr

const libraryAvailable = false

func (b *LibraryBackend) recognize(string) (string, error) {
	return "", ConfigError("library backend", "built without tesseract library support")
}
