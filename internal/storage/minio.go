package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facturaIA/captcha-ocr-service/internal/ocr"
)

var ErrNoStorage = errors.New("storage not available")

// Options configures the sample archive.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region defaults to us-east-1; a known region lets presigning skip the
	// bucket location lookup.
	Region string
	// Prefix is prepended to every object name.
	Prefix string
}

// Archive stores submitted captcha samples in a MinIO/S3 bucket. A nil
// *Archive is valid and reports ErrNoStorage.
type Archive struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

// Open creates the client and verifies the bucket exists.
func Open(ctx context.Context, opts Options) (*Archive, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("no storage configuration")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", opts.Bucket)
	}
	return &Archive{client: client, bucket: opts.Bucket, prefix: strings.Trim(opts.Prefix, "/"), now: time.Now}, nil
}

// Bucket returns the bucket samples are written to.
func (a *Archive) Bucket() string {
	if a == nil {
		return ""
	}
	return a.bucket
}

// ObjectName builds the object path: {prefix}/{backend}/YYYY/MM/{id}{ext}.
func (a *Archive) ObjectName(backend, id, contentType string) string {
	now := a.now()
	name := fmt.Sprintf("%s/%d/%02d/%s%s", backend, now.Year(), now.Month(), id, GetFileExtension(contentType))
	if a.prefix != "" {
		name = a.prefix + "/" + name
	}
	return name
}

// SaveSample uploads data and returns "<bucket>/<object>".
func (a *Archive) SaveSample(ctx context.Context, backend, id string, data []byte, contentType string) (string, error) {
	if a == nil || a.client == nil {
		return "", ErrNoStorage
	}
	if contentType == "" {
		contentType, _ = ocr.DetectImageType(data)
	}
	objectName := a.ObjectName(backend, id, contentType)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload sample: %w", err)
	}
	return a.bucket + "/" + objectName, nil
}

// GetPresignedURL generates a presigned URL for viewing a sample. objectPath
// may carry the "<bucket>/" prefix returned by SaveSample.
func (a *Archive) GetPresignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	if a == nil || a.client == nil {
		return "", ErrNoStorage
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, a.objectName(objectPath), ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// objectName strips the bucket prefix if present
func (a *Archive) objectName(objectPath string) string {
	return strings.TrimPrefix(objectPath, a.bucket+"/")
}

// GetFileExtension extracts file extension from content type
func GetFileExtension(contentType string) string {
	if ext := ocr.ExtensionForMimeType(contentType); ext != "" {
		return ext
	}
	return ".bin"
}
