package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestObjectName(t *testing.T) {
	a := &Archive{bucket: "captchas", prefix: "samples", now: func() time.Time {
		return time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	}}
	got := a.ObjectName("tesseract", "abc", "image/png")
	if got != "samples/tesseract/2025/03/abc.png" {
		t.Fatalf("unexpected object name %s", got)
	}
	if a.objectName("captchas/"+got) != got {
		t.Fatal("bucket prefix not stripped")
	}
}

func TestGetFileExtension(t *testing.T) {
	for ct, want := range map[string]string{
		"image/jpeg":      ".jpg",
		"image/png":       ".png",
		"image/webp":      ".webp",
		"application/pdf": ".bin",
		"":                ".bin",
	} {
		if got := GetFileExtension(ct); got != want {
			t.Fatalf("GetFileExtension(%q) = %q, want %q", ct, got, want)
		}
	}
}

func TestNilArchive(t *testing.T) {
	var a *Archive
	if _, err := a.SaveSample(context.Background(), "tesseract", "id", []byte("x"), "image/png"); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("expected ErrNoStorage, got %v", err)
	}
	if a.Bucket() != "" {
		t.Fatal("expected empty bucket")
	}
}

func TestGetPresignedURL(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	a := &Archive{client: client, bucket: "captchas", prefix: "samples", now: time.Now}

	u, err := a.GetPresignedURL(context.Background(), "captchas/samples/tesseract/2025/03/abc.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("GetPresignedURL() error = %v", err)
	}
	if !strings.Contains(u, "/captchas/samples/tesseract/2025/03/abc.png?") {
		t.Fatalf("unexpected object path in %s", u)
	}
	if !strings.Contains(u, "X-Amz-Signature=") || !strings.Contains(u, "X-Amz-Expires=900") {
		t.Fatalf("expected a signed URL, got %s", u)
	}

	var nilArchive *Archive
	if _, err := nilArchive.GetPresignedURL(context.Background(), "x", time.Minute); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("expected ErrNoStorage, got %v", err)
	}
}
