package ocr

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaterialize_CreatesAndReleases(t *testing.T) {
	dir := t.TempDir()
	g := NewTempFiles(dir, quietLogger())

	tf, err := g.Materialize([]byte("payload"), "captcha.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(tf.Path()) != dir {
		t.Fatalf("file created outside temp dir: %s", tf.Path())
	}
	if !strings.HasSuffix(tf.Path(), "-captcha.jpg") {
		t.Fatalf("expected original name to be kept, got %s", tf.Path())
	}
	data, err := os.ReadFile(tf.Path())
	if err != nil || string(data) != "payload" {
		t.Fatalf("unexpected content %q err=%v", data, err)
	}

	tf.Release()
	if _, err := os.Stat(tf.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	tf.Release()
}

func TestMaterialize_UniqueNames(t *testing.T) {
	g := NewTempFiles(t.TempDir(), quietLogger())
	a, err := g.Materialize([]byte("a"), "same.png")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := g.Materialize([]byte("b"), "same.png")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()
	if a.Path() == b.Path() {
		t.Fatalf("expected distinct paths, both %s", a.Path())
	}
}

func TestMaterialize_EmptyData(t *testing.T) {
	dir := t.TempDir()
	g := NewTempFiles(dir, quietLogger())

	_, err := g.Materialize(nil, "x.png")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Fatalf("expected no files, got %v", names)
	}
}

func TestMaterialize_ExtensionFromContent(t *testing.T) {
	g := NewTempFiles(t.TempDir(), quietLogger())
	tf, err := g.Materialize(samplePNG(t, 4, 4), "upload")
	if err != nil {
		t.Fatal(err)
	}
	defer tf.Release()
	if filepath.Ext(tf.Path()) != ".png" {
		t.Fatalf("expected .png extension, got %s", tf.Path())
	}
}

func TestMaterialize_SanitizesName(t *testing.T) {
	dir := t.TempDir()
	g := NewTempFiles(dir, quietLogger())
	tf, err := g.Materialize([]byte("x"), "../../etc/pass wd.png")
	if err != nil {
		t.Fatal(err)
	}
	defer tf.Release()
	if filepath.Dir(tf.Path()) != dir {
		t.Fatalf("name escaped the temp dir: %s", tf.Path())
	}
	if !strings.HasSuffix(tf.Path(), "-pass_wd.png") {
		t.Fatalf("unexpected sanitized name: %s", tf.Path())
	}
}

func TestMaterializeBase64_Empty(t *testing.T) {
	dir := t.TempDir()
	g := NewTempFiles(dir, quietLogger())

	for _, in := range []string{"", "   ", "data:image/png;base64,"} {
		_, err := g.MaterializeBase64(in, "")
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("input %q: expected invalid input, got %v", in, err)
		}
		if Message(err) != "Base64 image data is required and cannot be empty" {
			t.Fatalf("input %q: unexpected message %q", in, Message(err))
		}
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Fatalf("expected no files, got %v", names)
	}
}

func TestMaterializeBase64_Invalid(t *testing.T) {
	dir := t.TempDir()
	g := NewTempFiles(dir, quietLogger())

	for _, in := range []string{"not base64!!", "data:image/png;base64", "@@@@"} {
		_, err := g.MaterializeBase64(in, "")
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("input %q: expected invalid input, got %v", in, err)
		}
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Fatalf("expected no files, got %v", names)
	}
}

func TestMaterializeBase64_DataURI(t *testing.T) {
	g := NewTempFiles(t.TempDir(), quietLogger())
	raw := []byte("not really a gif")
	uri := "data:image/gif;base64," + base64.StdEncoding.EncodeToString(raw)

	tf, err := g.MaterializeBase64(uri, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tf.Release()
	if filepath.Ext(tf.Path()) != ".gif" {
		t.Fatalf("expected extension from data URI, got %s", tf.Path())
	}
	data, _ := os.ReadFile(tf.Path())
	if string(data) != string(raw) {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestDecodeBase64Image_Unpadded(t *testing.T) {
	data, mime, err := DecodeBase64Image(base64.RawStdEncoding.EncodeToString([]byte("ab")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "ab" || mime != "" {
		t.Fatalf("unexpected result %q %q", data, mime)
	}
}
