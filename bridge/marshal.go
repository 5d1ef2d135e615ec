package bridge

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxSafeInteger is the largest integer the renderer's number type holds exactly.
const maxSafeInteger = 1<<53 - 1

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	jsonNumberType    = reflect.TypeFor[json.Number]()
)

// Marshal serializes a template and input set into the exchange format. It
// is deterministic: identical structures always produce identical strings.
// Values the format cannot carry without loss fail with KindSerialization.
func Marshal(tpl Template, inputs InputSet) (Payload, error) {
	if err := ValidateTemplate(tpl); err != nil {
		return Payload{}, err
	}

	w := newWalker()
	if tpl.BasePDF.Blank != nil {
		if err := w.check(basePDFKey, reflect.ValueOf(*tpl.BasePDF.Blank)); err != nil {
			return Payload{}, err
		}
	}
	if tpl.BasePDF.Ref != "" && !utf8.ValidString(tpl.BasePDF.Ref) {
		return Payload{}, serializationError(basePDFKey, "string is not valid UTF-8")
	}
	if err := w.check(schemasKey, reflect.ValueOf(tpl.Schemas)); err != nil {
		return Payload{}, err
	}
	for key, value := range tpl.Extra {
		if err := w.check(key, reflect.ValueOf(value)); err != nil {
			return Payload{}, err
		}
	}
	if inputs == nil {
		inputs = InputSet{}
	}
	if err := w.check("inputs", reflect.ValueOf(inputs)); err != nil {
		return Payload{}, err
	}

	tplJSON, err := encodeJSON(tpl)
	if err != nil {
		return Payload{}, NewError(KindSerialization, "template cannot be serialized", err)
	}
	inputsJSON, err := encodeJSON(inputs)
	if err != nil {
		return Payload{}, NewError(KindSerialization, "inputs cannot be serialized", err)
	}

	return Payload{Template: string(tplJSON), Inputs: string(inputsJSON)}, nil
}

// Unmarshal decodes an exchange payload back into a template and input set.
func Unmarshal(payload Payload) (Template, InputSet, error) {
	var tpl Template
	if err := json.Unmarshal([]byte(payload.Template), &tpl); err != nil {
		return Template{}, nil, NewError(KindSerialization, "template cannot be decoded", err)
	}
	var inputs InputSet
	if err := json.Unmarshal([]byte(payload.Inputs), &inputs); err != nil {
		return Template{}, nil, NewError(KindSerialization, "inputs cannot be decoded", err)
	}
	return tpl, inputs, nil
}

type visitKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

// walker rejects values the JSON encoder would drop, coerce or fail on.
type walker struct {
	active map[visitKey]struct{}
}

func newWalker() *walker {
	return &walker{active: make(map[visitKey]struct{})}
}

func (w *walker) check(path string, v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}

	typ := v.Type()
	if typ == jsonNumberType {
		return checkNumberLiteral(path, v.String())
	}
	// Custom marshalers own their encoding.
	if typ.Implements(jsonMarshalerType) || typ.Implements(textMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return nil
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return serializationError(path, "string is not valid UTF-8")
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n := v.Int(); n > maxSafeInteger || n < -maxSafeInteger {
			return serializationError(path, fmt.Sprintf("integer %d exceeds the exact integer range", n))
		}
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n := v.Uint(); n > maxSafeInteger {
			return serializationError(path, fmt.Sprintf("integer %d exceeds the exact integer range", n))
		}
		return nil
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return serializationError(path, "non-finite number")
		}
		return nil
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.check(path, v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		key := visitKey{ptr: v.Pointer(), typ: typ}
		if err := w.enter(path, key); err != nil {
			return err
		}
		defer w.leave(key)
		return w.check(path, v.Elem())
	case reflect.Map:
		if typ.Key().Kind() != reflect.String {
			return serializationError(path, fmt.Sprintf("map key type %s is not a string", typ.Key()))
		}
		if v.IsNil() {
			return nil
		}
		key := visitKey{ptr: v.Pointer(), typ: typ}
		if err := w.enter(path, key); err != nil {
			return err
		}
		defer w.leave(key)
		iter := v.MapRange()
		for iter.Next() {
			if err := w.check(joinPath(path, iter.Key().String()), iter.Value()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.Uint8 {
			return serializationError(path, "raw byte slices are not supported; encode binary data explicitly")
		}
		if v.IsNil() {
			return nil
		}
		key := visitKey{ptr: v.Pointer(), len: v.Len(), typ: typ}
		if err := w.enter(path, key); err != nil {
			return err
		}
		defer w.leave(key)
		return w.checkElements(path, v)
	case reflect.Array:
		return w.checkElements(path, v)
	case reflect.Struct:
		return w.checkStruct(path, v)
	default:
		return serializationError(path, fmt.Sprintf("unsupported value of type %s", typ))
	}
}

func (w *walker) checkElements(path string, v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := w.check(path+"["+strconv.Itoa(i)+"]", v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) checkStruct(path string, v reflect.Value) error {
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() && !field.Anonymous {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}
		if field.Anonymous && field.Tag.Get("json") == "" {
			if err := w.check(path, v.Field(i)); err != nil {
				return err
			}
			continue
		}
		if err := w.check(joinPath(path, name), v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) enter(path string, key visitKey) error {
	if _, ok := w.active[key]; ok {
		return serializationError(path, "reference cycle")
	}
	w.active[key] = struct{}{}
	return nil
}

func (w *walker) leave(key visitKey) {
	delete(w.active, key)
}

func checkNumberLiteral(path, literal string) error {
	if literal == "" {
		return serializationError(path, "empty number literal")
	}
	if strings.ContainsAny(literal, ".eE") {
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil || math.IsInf(f, 0) {
			return serializationError(path, fmt.Sprintf("invalid number literal %q", literal))
		}
		return nil
	}
	n, err := strconv.ParseInt(literal, 10, 64)
	if err != nil || n > maxSafeInteger || n < -maxSafeInteger {
		return serializationError(path, fmt.Sprintf("integer %s exceeds the exact integer range", literal))
	}
	return nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func serializationError(path, reason string) *Error {
	return NewError(KindSerialization, fmt.Sprintf("value at %s cannot be serialized: %s", path, reason), nil)
}
