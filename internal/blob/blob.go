// Package blob stores uploaded files (QA attachments, screenshots, avatars)
// on the local filesystem under per-user paths.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"

	"github.com/joescharf/pmdash/internal/auth"
)

// DefaultMaxSize is the per-file upload limit.
const DefaultMaxSize int64 = 10 << 20

var (
	ErrTooLarge        = errors.New("file exceeds the upload size limit")
	ErrUnsupportedType = errors.New("file type not allowed")
	ErrNotFound        = errors.New("file not found")
	ErrInvalidPath     = errors.New("invalid file path")
)

// Object describes a stored file.
type Object struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// Store keeps blobs under a root directory and hands out public URLs
// rooted at baseURL + "/files/".
type Store struct {
	root    string
	baseURL string
	maxSize int64
	logger  *slog.Logger
}

// NewStore creates root if needed. maxSize <= 0 selects DefaultMaxSize.
func NewStore(root, baseURL string, maxSize int64, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize, logger: logger}, nil
}

// MaxSize is the configured upload limit in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Put stores r as <userID>/<ulid>-<name>. The content is sniffed and must be
// an image, PDF, Word document or plain text.
func (s *Store) Put(ctx context.Context, userID, name string, r io.Reader) (*Object, error) {
	if userID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if !validSegment(userID) {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidPath, userID)
	}
	base := cleanName(name)
	if base == "" {
		return nil, fmt.Errorf("%w: file name %q", ErrInvalidPath, name)
	}

	dir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create user dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, io.LimitReader(&ctxReader{ctx: ctx, r: r}, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if n > s.maxSize {
		return nil, fmt.Errorf("%w (%d MB)", ErrTooLarge, s.maxSize>>20)
	}

	mt, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("detect type: %w", err)
	}
	if !Allowed(mt, filepath.Ext(base)) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	rel := path.Join(userID, strings.ToLower(ulid.Make().String())+"-"+base)
	if err := os.Rename(tmpPath, filepath.Join(s.root, filepath.FromSlash(rel))); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	s.logger.Info("blob stored", "path", rel, "size", n, "type", mt.String())
	return &Object{Path: rel, Name: base, ContentType: mt.String(), Size: n, URL: s.URL(rel)}, nil
}

// Allowed reports whether a sniffed type with the given file extension is
// accepted for upload.
func Allowed(mt *mimetype.MIME, ext string) bool {
	ext = strings.ToLower(ext)
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return true
		case m.Is("application/pdf"),
			m.Is("application/msword"),
			m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
			return true
		case m.Is("text/plain"):
			return ext == ".txt" || ext == ""
		case m.Is("application/x-ole-storage"):
			return ext == ".doc"
		case m.Is("application/zip"):
			return ext == ".docx"
		}
	}
	return false
}

// Open returns the file at rel and its metadata.
func (s *Store) Open(rel string) (*os.File, *Object, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat blob: %w", err)
	}
	mt, err := mimetype.DetectFile(full)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("detect type: %w", err)
	}
	obj := &Object{Path: rel, Name: displayName(rel), ContentType: mt.String(), Size: info.Size(), URL: s.URL(rel)}
	return f, obj, nil
}

// Delete removes the file at rel. Deleting a missing file is not an error.
func (s *Store) Delete(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// URL is the public address of rel.
func (s *Store) URL(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/files/" + strings.Join(parts, "/")
}

// PathFromURL recovers the stored path from a URL issued by this store.
func (s *Store) PathFromURL(u string) (string, bool) {
	rest, ok := strings.CutPrefix(u, s.baseURL+"/files/")
	if !ok {
		return "", false
	}
	rel, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return rel, true
}

// Handler serves GET requests for "{path...}" relative to the files prefix.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := r.PathValue("path")
		f, obj, err := s.Open(rel)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidPath):
			http.NotFound(w, r)
			return
		case err != nil:
			s.logger.Error("serve blob", "path", rel, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", obj.ContentType)
		http.ServeContent(w, r, obj.Name, time.Time{}, f)
	})
}

func (s *Store) resolve(rel string) (string, error) {
	if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := strings.TrimSpace(path.Base(name))
	if !validSegment(base) || strings.HasPrefix(base, ".") {
		return ""
	}
	return base
}

// displayName strips the ulid prefix from a stored file name.
func displayName(rel string) string {
	base := path.Base(rel)
	if _, after, ok := strings.Cut(base, "-"); ok {
		return after
	}
	return base
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
