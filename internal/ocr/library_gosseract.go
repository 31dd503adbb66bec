//go:build tesseractlib

package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

const libraryAvailable = true

func (b *LibraryBackend) recognize(path string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(b.cfg.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetVariable("tessedit_char_whitelist", b.cfg.Whitelist); err != nil {
		return "", fmt.Errorf("set whitelist: %w", err)
	}
	if err := client.SetVariable("tessedit_char_blacklist", b.cfg.Blacklist); err != nil {
		return "", fmt.Errorf("set blacklist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(b.cfg.PSM)); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return client.Text()
}
