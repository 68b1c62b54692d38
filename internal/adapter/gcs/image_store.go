// Package gcs stores pin photos in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

// PublicHost serves objects of publicly readable buckets.
const PublicHost = "https://storage.googleapis.com"

// ImageStore implements domain.ImageStore on a GCS bucket.
type ImageStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed image store.
func New(client *storage.Client, bucket string) (*ImageStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &ImageStore{client: client, bucket: bucket}, nil
}

// Upload writes r to the named object and returns its public URL.
func (s *ImageStore) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("object name is required")
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	w.CacheControl = "public, max-age=3600"
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return publicURL(s.bucket, name), nil
}

// Delete removes the object behind publicURL. A missing object is not an error.
func (s *ImageStore) Delete(ctx context.Context, publicURL string) error {
	name, err := objectName(s.bucket, publicURL)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

// CheckReadiness verifies the bucket is reachable.
func (s *ImageStore) CheckReadiness(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s unreachable: %w", s.bucket, err)
	}
	return nil
}

func (s *ImageStore) Close() error {
	return s.client.Close()
}

func publicURL(bucket, name string) string {
	return PublicHost + "/" + bucket + "/" + url.PathEscape(name)
}

func objectName(bucket, publicURL string) (string, error) {
	escaped, ok := strings.CutPrefix(publicURL, PublicHost+"/"+bucket+"/")
	if !ok || escaped == "" {
		return "", fmt.Errorf("image url %q is not in bucket %s", publicURL, bucket)
	}
	name, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("image url %q: %w", publicURL, err)
	}
	return name, nil
}
