package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrImageNotFound is returned by Open for unknown object names.
var ErrImageNotFound = errors.New("image not found")

// Image is a stored object.
type Image struct {
	ContentType string
	Data        []byte
}

// ImageStore implements domain.ImageStore in memory. Public URLs are
// baseURL + "/" + name; the HTTP layer serves them through Open.
type ImageStore struct {
	baseURL string
	maxSize int64

	mu     sync.RWMutex
	images map[string]Image
}

// NewImageStore creates a store that rejects objects larger than maxSize
// bytes. A non-positive maxSize disables the check.
func NewImageStore(baseURL string, maxSize int64) *ImageStore {
	return &ImageStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxSize: maxSize,
		images:  make(map[string]Image),
	}
}

func (s *ImageStore) Upload(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if s.maxSize > 0 && int64(buf.Len()) > s.maxSize {
		return "", fmt.Errorf("image exceeds %d bytes", s.maxSize)
	}

	s.mu.Lock()
	s.images[name] = Image{ContentType: contentType, Data: buf.Bytes()}
	s.mu.Unlock()

	return s.baseURL + "/" + name, nil
}

// Delete removes the object behind publicURL. Unknown URLs are ignored.
func (s *ImageStore) Delete(_ context.Context, publicURL string) error {
	name, ok := strings.CutPrefix(publicURL, s.baseURL+"/")
	if !ok {
		return fmt.Errorf("image url %q is not served by this store", publicURL)
	}
	s.mu.Lock()
	delete(s.images, name)
	s.mu.Unlock()
	return nil
}

// Open returns a stored object by name.
func (s *ImageStore) Open(name string) (Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[name]
	if !ok {
		return Image{}, ErrImageNotFound
	}
	return img, nil
}
