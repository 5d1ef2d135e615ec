package query

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-pdfbridge/bridge"
)

// DocumentMetadataHandler returns stored document metadata.
type DocumentMetadataHandler struct {
	Store bridge.ArtifactStore
}

func NewDocumentMetadataHandler(store bridge.ArtifactStore) *DocumentMetadataHandler {
	return &DocumentMetadataHandler{Store: store}
}

func (h *DocumentMetadataHandler) Query(ctx context.Context, msg DocumentMetadata) (bridge.ArtifactRef, error) {
	if h == nil || h.Store == nil {
		return bridge.ArtifactRef{}, errors.New("artifact store is required", errors.CategoryInternal).
			WithTextCode("STORE_REQUIRED")
	}
	meta, err := h.Store.Stat(ctx, msg.ArtifactKey)
	if err != nil {
		return bridge.ArtifactRef{}, bridge.AsGoError(err)
	}
	return bridge.ArtifactRef{Key: msg.ArtifactKey, Meta: meta}, nil
}
