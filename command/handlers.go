package command

import (
	"bytes"
	"context"
	"strings"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-pdfbridge/bridge"
)

// DocumentRenderer renders a single request.
type DocumentRenderer interface {
	Render(ctx context.Context, req bridge.Request) (bridge.Rendition, error)
}

// GenerateDocumentHandler renders documents and delivers them to a file, the
// artifact store or the caller.
type GenerateDocumentHandler struct {
	Renderer DocumentRenderer
	Store    bridge.ArtifactStore
}

func NewGenerateDocumentHandler(renderer DocumentRenderer, store bridge.ArtifactStore) *GenerateDocumentHandler {
	return &GenerateDocumentHandler{Renderer: renderer, Store: store}
}

func (h *GenerateDocumentHandler) Execute(ctx context.Context, msg GenerateDocument) error {
	if h == nil || h.Renderer == nil {
		return errors.New("document renderer is required", errors.CategoryInternal).
			WithTextCode("RENDERER_REQUIRED")
	}
	if strings.TrimSpace(msg.ArtifactKey) != "" && h.Store == nil {
		return errors.New("artifact store is not configured", errors.CategoryValidation).
			WithTextCode("STORE_REQUIRED")
	}

	rendition, err := h.Renderer.Render(ctx, msg.Request)
	if err != nil {
		return bridge.AsGoError(err)
	}

	result := GenerateResult{
		RequestID:    rendition.RequestID,
		TemplateHash: rendition.TemplateHash,
		Size:         int64(len(rendition.Document)),
	}
	switch {
	case strings.TrimSpace(msg.OutputPath) != "":
		if _, err := bridge.WriteFile(ctx, msg.OutputPath, bytes.NewReader(rendition.Document), bridge.DefaultFileMode); err != nil {
			return bridge.AsGoError(err)
		}
		result.Path = msg.OutputPath
	case strings.TrimSpace(msg.ArtifactKey) != "":
		ref, err := h.Store.Put(ctx, msg.ArtifactKey, bytes.NewReader(rendition.Document), bridge.ArtifactMeta{
			ContentType:  "application/pdf",
			RequestID:    rendition.RequestID,
			TemplateHash: rendition.TemplateHash,
		})
		if err != nil {
			return bridge.AsGoError(err)
		}
		result.Artifact = &ref
	default:
		result.Document = rendition.Document
	}

	if msg.Result != nil {
		*msg.Result = result
	}
	if res := gcmd.ResultFromContext[GenerateResult](ctx); res != nil {
		res.Store(result)
	}
	return nil
}

// DeleteDocumentHandler removes stored documents.
type DeleteDocumentHandler struct {
	Store bridge.ArtifactStore
}

func NewDeleteDocumentHandler(store bridge.ArtifactStore) *DeleteDocumentHandler {
	return &DeleteDocumentHandler{Store: store}
}

func (h *DeleteDocumentHandler) Execute(ctx context.Context, msg DeleteDocument) error {
	if h == nil || h.Store == nil {
		return errors.New("artifact store is required", errors.CategoryInternal).
			WithTextCode("STORE_REQUIRED")
	}
	if err := h.Store.Delete(ctx, msg.ArtifactKey); err != nil {
		return bridge.AsGoError(err)
	}
	return nil
}
