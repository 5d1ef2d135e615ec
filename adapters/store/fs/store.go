package storefs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-pdfbridge/bridge"
)

const (
	defaultContentType = "application/pdf"
	dirMode            = 0o755
)

// Store keeps generated documents on disk under Root, each next to a JSON
// metadata sidecar.
type Store struct {
	Root     string
	FileMode os.FileMode
	Now      func() time.Time
}

var _ bridge.ArtifactStore = (*Store)(nil)

// NewStore creates a filesystem-backed document store.
func NewStore(root string) *Store {
	return &Store{Root: root, FileMode: bridge.DefaultFileMode, Now: time.Now}
}

// Put writes a document atomically under key. The previous document, if any,
// is replaced only once the new one is fully on disk.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta bridge.ArtifactMeta) (bridge.ArtifactRef, error) {
	pathOnDisk, err := s.keyPath(key)
	if err != nil {
		return bridge.ArtifactRef{}, err
	}
	if r == nil {
		return bridge.ArtifactRef{}, bridge.NewError(bridge.KindValidation, "artifact reader is required", nil)
	}

	if err := os.MkdirAll(filepath.Dir(pathOnDisk), dirMode); err != nil {
		return bridge.ArtifactRef{}, bridge.NewError(bridge.KindIO, "create artifact directory failed", err)
	}

	size, err := bridge.WriteFile(ctx, pathOnDisk, r, s.FileMode)
	if err != nil {
		return bridge.ArtifactRef{}, err
	}

	meta.Size = size
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.ContentType == "" {
		meta.ContentType = contentTypeFor(pathOnDisk)
	}
	if meta.Filename == "" {
		meta.Filename = filepath.Base(pathOnDisk)
	}

	if err := s.writeMeta(ctx, pathOnDisk, meta); err != nil {
		_ = os.Remove(pathOnDisk)
		return bridge.ArtifactRef{}, err
	}

	return bridge.ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads a document and its metadata.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, bridge.ArtifactMeta, error) {
	_ = ctx
	pathOnDisk, err := s.keyPath(key)
	if err != nil {
		return nil, bridge.ArtifactMeta{}, err
	}

	file, err := os.Open(pathOnDisk)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bridge.ArtifactMeta{}, bridge.NewError(bridge.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return nil, bridge.ArtifactMeta{}, bridge.NewError(bridge.KindIO, "open artifact failed", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, bridge.ArtifactMeta{}, bridge.NewError(bridge.KindIO, "stat artifact failed", err)
	}

	meta := s.completeMeta(pathOnDisk, info)
	return file, meta, nil
}

// Stat returns the metadata of a stored document without opening it.
func (s *Store) Stat(ctx context.Context, key string) (bridge.ArtifactMeta, error) {
	_ = ctx
	pathOnDisk, err := s.keyPath(key)
	if err != nil {
		return bridge.ArtifactMeta{}, err
	}

	info, err := os.Stat(pathOnDisk)
	if err != nil {
		if os.IsNotExist(err) {
			return bridge.ArtifactMeta{}, bridge.NewError(bridge.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return bridge.ArtifactMeta{}, bridge.NewError(bridge.KindIO, "stat artifact failed", err)
	}
	return s.completeMeta(pathOnDisk, info), nil
}

// Delete removes a document and its metadata. Missing documents are not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	pathOnDisk, err := s.keyPath(key)
	if err != nil {
		return err
	}
	for _, target := range []string{pathOnDisk, metaPath(pathOnDisk)} {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return bridge.NewError(bridge.KindIO, "delete artifact failed", err)
		}
	}
	return nil
}

func (s *Store) keyPath(key string) (string, error) {
	if s == nil {
		return "", bridge.NewError(bridge.KindInternal, "store is nil", nil)
	}
	if s.Root == "" {
		return "", bridge.NewError(bridge.KindValidation, "store root is required", nil)
	}
	if key == "" {
		return "", bridge.NewError(bridge.KindValidation, "artifact key is required", nil)
	}
	return s.resolvePath(key)
}

func (s *Store) resolvePath(key string) (string, error) {
	clean := path.Clean("/" + key)
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" || rel == "." {
		return "", bridge.NewError(bridge.KindValidation, "invalid artifact key", nil)
	}
	if strings.HasSuffix(rel, metaSuffix) {
		return "", bridge.NewError(bridge.KindValidation, "artifact key uses the reserved metadata suffix", nil)
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", bridge.NewError(bridge.KindIO, "resolve store root failed", err)
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", bridge.NewError(bridge.KindValidation, "artifact key escapes root", nil)
	}
	return target, nil
}

func (s *Store) writeMeta(ctx context.Context, pathOnDisk string, meta bridge.ArtifactMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return bridge.NewError(bridge.KindInternal, "encode artifact metadata failed", err)
	}
	_, err = bridge.WriteFile(ctx, metaPath(pathOnDisk), bytes.NewReader(payload), s.FileMode)
	return err
}

func (s *Store) readMeta(pathOnDisk string) bridge.ArtifactMeta {
	data, err := os.ReadFile(metaPath(pathOnDisk))
	if err != nil {
		return bridge.ArtifactMeta{}
	}
	var meta bridge.ArtifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return bridge.ArtifactMeta{}
	}
	return meta
}

// completeMeta reads the sidecar and fills fields it lacks from the file.
func (s *Store) completeMeta(pathOnDisk string, info os.FileInfo) bridge.ArtifactMeta {
	meta := s.readMeta(pathOnDisk)
	if meta.ContentType == "" {
		meta.ContentType = contentTypeFor(pathOnDisk)
	}
	if meta.Filename == "" {
		meta.Filename = filepath.Base(pathOnDisk)
	}
	if meta.Size == 0 {
		meta.Size = info.Size()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = info.ModTime()
	}
	return meta
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

const metaSuffix = ".meta.json"

func metaPath(pathOnDisk string) string {
	return pathOnDisk + metaSuffix
}

func contentTypeFor(pathOnDisk string) string {
	if ct := mime.TypeByExtension(filepath.Ext(pathOnDisk)); ct != "" {
		return ct
	}
	return defaultContentType
}
