package command

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-pdfbridge/bridge"
)

// GenerateDocument renders one pdfme request. The document is written to
// OutputPath, stored under ArtifactKey, or returned in the result when
// neither is set.
type GenerateDocument struct {
	Request     bridge.Request
	OutputPath  string
	ArtifactKey string
	Result      *GenerateResult
}

// GenerateResult describes a rendered document.
type GenerateResult struct {
	RequestID    string
	TemplateHash string
	Size         int64
	Document     []byte
	Path         string
	Artifact     *bridge.ArtifactRef
}

func (GenerateDocument) Type() string { return "pdf:generate" }

func (msg GenerateDocument) Validate() error {
	if msg.Request.Template.Schemas == nil {
		return errors.New("template schemas are required", errors.CategoryValidation).
			WithTextCode("SCHEMAS_REQUIRED")
	}
	if strings.TrimSpace(msg.OutputPath) != "" && strings.TrimSpace(msg.ArtifactKey) != "" {
		return errors.New("output path and artifact key are mutually exclusive", errors.CategoryValidation).
			WithTextCode("OUTPUT_CONFLICT")
	}
	return nil
}

// DeleteDocument removes a stored document.
type DeleteDocument struct {
	ArtifactKey string
}

func (DeleteDocument) Type() string { return "pdf:delete" }

func (msg DeleteDocument) Validate() error {
	if strings.TrimSpace(msg.ArtifactKey) == "" {
		return errors.New("artifact key is required", errors.CategoryValidation).
			WithTextCode("ARTIFACT_KEY_REQUIRED")
	}
	return nil
}
