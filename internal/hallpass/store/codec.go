package store

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode converts a typed value into a Document using its JSON field names.
// Fields tagged omitempty that hold zero values are left out, so Encode
// output is safe to use with Merge.
func Encode(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a snapshot into T and validates it against T's
// `validate` tags. The snapshot id fills the "id" field when the document
// body does not carry one.
func Decode[T any](snap Snapshot) (T, error) {
	var out T
	data := snap.Data
	if _, ok := data["id"]; !ok && snap.ID != "" {
		data = CloneDocument(data)
		data["id"] = snap.ID
	}
	b, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", snap.ID, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w: %v", snap.ID, ErrInvalidDocument, err)
	}
	if err := validate.Struct(out); err != nil {
		return out, fmt.Errorf("decode %s: %w: %v", snap.ID, ErrInvalidDocument, err)
	}
	return out, nil
}

// DecodeAll decodes every snapshot, failing on the first invalid one.
func DecodeAll[T any](snaps []Snapshot) ([]T, error) {
	out := make([]T, 0, len(snaps))
	for _, s := range snaps {
		v, err := Decode[T](s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CloneDocument returns a shallow copy of d.
func CloneDocument(d Document) Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Normalize round-trips a value through JSON so it compares equal to values
// read back from storage (numbers become float64, slices become []any).
func Normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Matches reports whether doc satisfies every predicate.
func Matches(doc Document, preds []Predicate) bool {
	for _, p := range preds {
		got, ok := doc[p.Field]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(Normalize(got), Normalize(p.Value)) {
			return false
		}
	}
	return true
}
