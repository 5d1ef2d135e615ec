package bridge

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	basePDFKey = "basePdf"
	schemasKey = "schemas"

	pdfDataURIPrefix = "data:application/pdf;base64,"
)

// MarshalJSON encodes the template in the renderer's wire form.
func (t Template) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(t.Extra)+2)
	for key, value := range t.Extra {
		if key == basePDFKey || key == schemasKey {
			return nil, fmt.Errorf("extra template field %q collides with a recognized field", key)
		}
		fields[key] = value
	}
	fields[basePDFKey] = t.BasePDF
	if t.Schemas == nil {
		fields[schemasKey] = []Schema{}
	} else {
		fields[schemasKey] = t.Schemas
	}
	return encodeJSON(fields)
}

// UnmarshalJSON decodes the renderer's wire form. Numbers decode as float64,
// matching the renderer's number model.
func (t *Template) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Template
	if raw, ok := fields[basePDFKey]; ok {
		if err := json.Unmarshal(raw, &out.BasePDF); err != nil {
			return fmt.Errorf("basePdf: %w", err)
		}
		delete(fields, basePDFKey)
	}
	if raw, ok := fields[schemasKey]; ok {
		if err := json.Unmarshal(raw, &out.Schemas); err != nil {
			return fmt.Errorf("schemas: %w", err)
		}
		delete(fields, schemasKey)
	}
	if len(fields) > 0 {
		out.Extra = make(map[string]any, len(fields))
		for key, raw := range fields {
			var value any
			if err := json.Unmarshal(raw, &value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			out.Extra[key] = value
		}
	}

	*t = out
	return nil
}

// MarshalJSON encodes the base document reference: an empty string, a pdf
// data URI, a verbatim string reference, or a blank page descriptor.
func (b BasePDF) MarshalJSON() ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	switch {
	case b.Blank != nil:
		return encodeJSON(b.Blank)
	case len(b.Data) > 0:
		return encodeJSON(pdfDataURIPrefix + base64.StdEncoding.EncodeToString(b.Data))
	default:
		return encodeJSON(b.Ref)
	}
}

// UnmarshalJSON decodes a base document reference. A pdf data URI decodes
// into Data, any other string into Ref.
func (b *BasePDF) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*b = BasePDF{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var blank BlankPDF
		if err := json.Unmarshal(trimmed, &blank); err != nil {
			return err
		}
		*b = BasePDF{Blank: &blank}
		return nil
	}

	var ref string
	if err := json.Unmarshal(trimmed, &ref); err != nil {
		return err
	}
	if encoded, ok := strings.CutPrefix(ref, pdfDataURIPrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("invalid pdf data URI: %w", err)
		}
		*b = BasePDF{Data: decoded}
		return nil
	}
	*b = BasePDF{Ref: ref}
	return nil
}

func (b BasePDF) validate() error {
	set := 0
	if len(b.Data) > 0 {
		set++
	}
	if b.Ref != "" {
		set++
	}
	if b.Blank != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("base pdf must set at most one of data, ref or blank")
	}
	return nil
}

// ValidateTemplate checks the structure the renderer relies on: a schemas
// sequence without nil entries, a single base document reference and no
// extra field shadowing a recognized one. Schema contents are not inspected.
func ValidateTemplate(tpl Template) error {
	if tpl.Schemas == nil {
		return NewError(KindSerialization, "template schemas are required", nil)
	}
	for i, schema := range tpl.Schemas {
		if schema == nil {
			return NewError(KindSerialization, fmt.Sprintf("template schema %d is nil", i), nil)
		}
	}
	if err := tpl.BasePDF.validate(); err != nil {
		return NewError(KindSerialization, "invalid base pdf", err)
	}
	for key := range tpl.Extra {
		if key == basePDFKey || key == schemasKey {
			return NewError(KindSerialization, fmt.Sprintf("extra template field %q collides with a recognized field", key), nil)
		}
	}
	return nil
}

// HashTemplate returns the hex SHA-256 digest of a serialized template. It is
// meant for log correlation and artifact metadata.
func HashTemplate(serialized string) string {
	sum := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(sum[:])
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
