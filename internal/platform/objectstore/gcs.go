package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/phrazzld/pagescan/internal/platform/logger"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore opens a client for bucket. With no options the client uses
// application default credentials. publicBaseURL defaults to the bucket's
// storage.googleapis.com address.
func NewGCSStore(
	ctx context.Context,
	bucket, publicBaseURL string,
	log *slog.Logger,
	opts ...option.ClientOption,
) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com/" + bucket
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GCSStore{
		client:  client,
		bucket:  bucket,
		baseURL: publicBaseURL,
		logger:  log.With("component", "gcs_object_store", "bucket", bucket),
	}, nil
}

// Put implements Store.Put.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object: %w", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("object stored",
		"key", key,
		"content_type", contentType,
		"bytes", n)
	return objectURL(s.baseURL, key), nil
}

// Fetch implements Store.Fetch.
func (s *GCSStore) Fetch(ctx context.Context, url string) (*Object, error) {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return nil, err
	}
	rd, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	defer func() { _ = rd.Close() }()

	data, err := readLimited(rd)
	if err != nil {
		return nil, err
	}
	contentType := rd.Attrs.ContentType
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	return &Object{Data: data, ContentType: contentType}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
