package bridge

import (
	"context"
	"errors"
)

// Schema maps field names to placement/field descriptors. The bridge never
// interprets descriptor contents.
type Schema map[string]any

// Template describes a document layout: a base document plus an ordered
// sequence of field schemas. Extra holds any other top-level keys, passed
// through to the renderer untouched.
type Template struct {
	BasePDF BasePDF
	Schemas []Schema
	Extra   map[string]any
}

// BlankPDF describes a generated blank base page, in millimeters.
type BlankPDF struct {
	Width   float64    `json:"width"`
	Height  float64    `json:"height"`
	Padding [4]float64 `json:"padding"`
}

// BasePDF references the base document. At most one of Data, Ref and Blank
// is set; the zero value means "no base document".
type BasePDF struct {
	Data  []byte
	Ref   string
	Blank *BlankPDF
}

// IsZero reports whether no base document is referenced.
func (b BasePDF) IsZero() bool {
	return len(b.Data) == 0 && b.Ref == "" && b.Blank == nil
}

// InputRecord maps template field names to the scalar value rendered into
// that field.
type InputRecord map[string]any

// InputSet is an ordered list of input records, typically one per output
// page or document instance.
type InputSet []InputRecord

// Request pairs one template with one input set.
type Request struct {
	Template Template `json:"template"`
	Inputs   InputSet `json:"inputs"`
}

// Result is the outcome of one request when several are generated together.
// Exactly one of Document and Err is set.
type Result struct {
	Document []byte
	Err      error
}

// OK reports whether the request produced a document.
func (r Result) OK() bool {
	return r.Err == nil
}

// Payload holds the serialized exchange form of a request.
type Payload struct {
	Template string
	Inputs   string
}

// Engine runs the external renderer for a serialized payload.
type Engine interface {
	Render(ctx context.Context, payload Payload) ([]byte, error)
}

// EngineFunc adapts a function to an Engine.
type EngineFunc func(ctx context.Context, payload Payload) ([]byte, error)

func (f EngineFunc) Render(ctx context.Context, payload Payload) ([]byte, error) {
	if f == nil {
		return nil, errors.New("pdf engine func is nil")
	}
	return f(ctx, payload)
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
