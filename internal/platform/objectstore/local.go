package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// LocalStore keeps objects as files under a directory.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed. publicBaseURL is where Handler is
// mounted, e.g. "http://localhost:8080/files".
func NewLocalStore(dir, publicBaseURL string, log *slog.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("storage dir cannot be empty")
	}
	if publicBaseURL == "" {
		return nil, errors.New("public base url cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &LocalStore{
		dir:     dir,
		baseURL: publicBaseURL,
		logger:  log.With("component", "local_object_store"),
	}, nil
}

// Put implements Store.Put. The file is written to a temporary name first
// and renamed into place.
func (s *LocalStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to move object into place: %w", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("object stored",
		"key", key,
		"content_type", contentType,
		"bytes", n)
	return objectURL(s.baseURL, key), nil
}

// Fetch implements Store.Fetch.
func (s *LocalStore) Fetch(ctx context.Context, url string) (*Object, error) {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := readLimited(f)
	if err != nil {
		return nil, err
	}
	return &Object{Data: data, ContentType: contentTypeForKey(key)}, nil
}

// Handler serves stored objects. Mount it with the path of publicBaseURL
// stripped. Directories answer 404, so keys can only be fetched by name.
func (s *LocalStore) Handler() http.Handler {
	return http.FileServer(objectsOnly{http.Dir(s.dir)})
}

// objectsOnly is an http.FileSystem that refuses to open directories.
type objectsOnly struct {
	fs http.FileSystem
}

func (o objectsOnly) Open(name string) (http.File, error) {
	f, err := o.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
