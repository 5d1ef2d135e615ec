package query

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// DocumentMetadata requests the metadata of a stored document.
type DocumentMetadata struct {
	ArtifactKey string
}

func (DocumentMetadata) Type() string { return "pdf:metadata" }

func (msg DocumentMetadata) Validate() error {
	if strings.TrimSpace(msg.ArtifactKey) == "" {
		return errors.New("artifact key is required", errors.CategoryValidation).
			WithTextCode("ARTIFACT_KEY_REQUIRED")
	}
	return nil
}
