package blob

import (
	"bytes"
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

	"github.com/joescharf/pmdash/internal/auth"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newTestStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "http://localhost:8080/", maxSize, nil)
	require.NoError(t, err)
	return s
}

func TestPut_Image(t *testing.T) {
	s := newTestStore(t, 0)
	obj, err := s.Put(context.Background(), "user-1", "screens/login.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(obj.Path, "user-1/"))
	assert.True(t, strings.HasSuffix(obj.Path, "-login.png"))
	assert.Equal(t, "login.png", obj.Name)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(len(pngHeader)), obj.Size)
	assert.Equal(t, "http://localhost:8080/files/"+obj.Path, obj.URL)

	rel, ok := s.PathFromURL(obj.URL)
	require.True(t, ok)
	assert.Equal(t, obj.Path, rel)
}

func TestPut_Text(t *testing.T) {
	s := newTestStore(t, 0)
	obj, err := s.Put(context.Background(), "user-1", "notes.txt", strings.NewReader("steps to reproduce\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.ContentType, "text/plain"))
}

func TestPut_Rejects(t *testing.T) {
	s := newTestStore(t, 64)
	ctx := context.Background()

	_, err := s.Put(ctx, "", "a.png", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = s.Put(ctx, "user-1", "big.png", bytes.NewReader(append(pngHeader, make([]byte, 100)...)))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = s.Put(ctx, "user-1", "tool.exe", bytes.NewReader([]byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff")))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = s.Put(ctx, "user-1", "page.html", strings.NewReader("<html><body>hi</body></html>"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = s.Put(ctx, "../etc", "a.png", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = s.Put(ctx, "user-1", "", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrInvalidPath)

	entries, err := os.ReadDir(filepath.Join(s.root, "user-1"))
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")
}

func TestOpenAndDelete(t *testing.T) {
	s := newTestStore(t, 0)
	obj, err := s.Put(context.Background(), "user-1", "a.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	f, meta, err := s.Open(obj.Path)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "a.png", meta.Name)

	require.NoError(t, s.Delete(obj.Path))
	_, _, err = s.Open(obj.Path)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(obj.Path), "deleting twice is fine")

	_, _, err = s.Open("../outside")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestHandler(t *testing.T) {
	s := newTestStore(t, 0)
	obj, err := s.Put(context.Background(), "user-1", "a.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("GET /files/{path...}", s.Handler())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/files/"+obj.Path, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngHeader, w.Body.Bytes())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/files/user-1/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
