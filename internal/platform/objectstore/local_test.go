package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (*LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://localhost:8080/files", nil)
	require.NoError(t, err)
	return s, dir
}

func TestNewLocalStore_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewLocalStore("", "http://localhost/files", nil)
	assert.Error(t, err)
	_, err = NewLocalStore(t.TempDir(), "", nil)
	assert.Error(t, err)
}

func TestLocalStore_PutFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, dir := newLocal(t)

	url, err := s.Put(ctx, "pages/p1/img.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/pages/p1/img.jpg", url)

	onDisk, err := os.ReadFile(filepath.Join(dir, "pages", "p1", "img.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(onDisk))

	obj, err := s.Fetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), obj.Data)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	entries, err := os.ReadDir(filepath.Join(dir, "pages", "p1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be gone")
}

func TestLocalStore_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, _ := newLocal(t)

	_, err := s.Put(ctx, "../escape.jpg", "image/jpeg", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrForeignURL)

	_, err = s.Fetch(ctx, "http://localhost:8080/files/pages/missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Fetch(ctx, "https://elsewhere.example/pages/a.jpg")
	assert.ErrorIs(t, err, ErrForeignURL)
}

func TestLocalStore_Handler(t *testing.T) {
	t.Parallel()

	s, _ := newLocal(t)
	_, err := s.Put(context.Background(), "pages/p1/img.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.StripPrefix("/files", s.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/pages/p1/img.png")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
}

func TestLocalStore_HandlerHidesDirectories(t *testing.T) {
	t.Parallel()

	s, _ := newLocal(t)
	_, err := s.Put(context.Background(), "pages/p1/img.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	h := s.Handler()
	for _, path := range []string{"/", "/pages/", "/pages/p1/", "/pages/p1"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.NotContains(t, rr.Body.String(), "p1", path)
		assert.NotContains(t, rr.Body.String(), "img.png", path)
	}
}
