package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// maxObjectBytes caps how much of an object Fetch reads.
const maxObjectBytes = 32 << 20

var (
	// ErrNotFound is returned when no object exists for a URL.
	ErrNotFound = errors.New("object not found")

	// ErrForeignURL is returned for URLs this store did not issue.
	ErrForeignURL = errors.New("url does not belong to this store")

	// ErrUnsupportedType is returned for content types that are not page images.
	ErrUnsupportedType = errors.New("unsupported image content type")

	// ErrTooLarge is returned when an object exceeds maxObjectBytes.
	ErrTooLarge = errors.New("object too large")
)

// Object is a stored image read back into memory.
type Object struct {
	Data        []byte
	ContentType string
}

// Store puts page images and reads them back by URL.
type Store interface {
	// Put stores the contents of r under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)

	// Fetch reads the object behind a URL returned by Put.
	Fetch(ctx context.Context, url string) (*Object, error)
}

// extensions maps accepted image types to the extension used in keys.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// NewKey returns a fresh object key for an image of pageID.
func NewKey(pageID uuid.UUID, contentType string) (string, error) {
	ext, ok := extensions[normalizeType(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return "pages/" + pageID.String() + "/" + uuid.New().String() + ext, nil
}

// IsSupportedType reports whether contentType is an accepted page image type.
func IsSupportedType(contentType string) bool {
	_, ok := extensions[normalizeType(contentType)]
	return ok
}

// contentTypeForKey infers the content type from a key's extension.
func contentTypeForKey(key string) string {
	ext := strings.ToLower(path.Ext(key))
	for ct, e := range extensions {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}

func normalizeType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// objectURL joins the public base URL and key.
func objectURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}

// keyFromURL extracts the key from a URL issued under baseURL.
func keyFromURL(baseURL, url string) (string, error) {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", ErrForeignURL
	}
	key := strings.TrimPrefix(url, prefix)
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// validateKey rejects empty keys and keys that would escape the store root.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.HasPrefix(key, "../") || key == ".." {
		return fmt.Errorf("%w: invalid key %q", ErrForeignURL, key)
	}
	return nil
}

// readLimited reads r fully, failing with ErrTooLarge past maxObjectBytes.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxObjectBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxObjectBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
