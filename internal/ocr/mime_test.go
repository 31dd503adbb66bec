package ocr

import "testing"

func TestMimeTypeFromFileName(t *testing.T) {
	tests := map[string]string{
		"a.jpg":      "image/jpeg",
		"a.JPEG":     "image/jpeg",
		"a.png":      "image/png",
		"a.gif":      "image/gif",
		"a.bmp":      "image/bmp",
		"a.tif":      "image/tiff",
		"a.tiff":     "image/tiff",
		"a.webp":     "image/webp",
		"a.pdf":      DefaultMimeType,
		"noext":      DefaultMimeType,
		"/tmp/x.Png": "image/png",
	}
	for name, want := range tests {
		if got := MimeTypeFromFileName(name); got != want {
			t.Errorf("MimeTypeFromFileName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestExtensionForMimeType(t *testing.T) {
	if got := ExtensionForMimeType("image/png; charset=binary"); got != ".png" {
		t.Fatalf("expected .png, got %q", got)
	}
	if got := ExtensionForMimeType("text/plain"); got != "" {
		t.Fatalf("expected empty extension, got %q", got)
	}
}

func TestDetectImageType(t *testing.T) {
	if mime, ok := DetectImageType(samplePNG(t, 4, 4)); !ok || mime != "image/png" {
		t.Fatalf("expected image/png, got %q %v", mime, ok)
	}
	if mime, ok := DetectImageType([]byte("II*\x00rest")); !ok || mime != "image/tiff" {
		t.Fatalf("expected image/tiff, got %q %v", mime, ok)
	}
	if _, ok := DetectImageType([]byte("plain text")); ok {
		t.Fatal("expected text to be rejected")
	}
}
