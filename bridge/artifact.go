package bridge

import (
	"context"
	"io"
	"time"
)

// ArtifactMeta captures stored document metadata.
type ArtifactMeta struct {
	ContentType  string
	Size         int64
	Filename     string
	RequestID    string
	TemplateHash string
	CreatedAt    time.Time
}

// ArtifactRef references a stored document.
type ArtifactRef struct {
	Key  string
	Meta ArtifactMeta
}

// ArtifactStore stores generated documents under caller-chosen keys.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error)
	Stat(ctx context.Context, key string) (ArtifactMeta, error)
	Delete(ctx context.Context, key string) error
}
