package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf clients send and receive google.protobuf.Struct messages whose
// fields mirror the JSON bodies, so both encodings share one set of
// request and response types.

// decodeRequest fills v from a JSON or protobuf request body.
func decodeRequest(r *http.Request, v any) error {
	if isProtobuf(r) {
		var st structpb.Struct
		if err := readProto(r, &st); err != nil {
			return fmt.Errorf("decode protobuf body: %w", err)
		}
		return fromStruct(&st, v)
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json body: %w", err)
	}
	return nil
}

func fromStruct(st *structpb.Struct, v any) error {
	b, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
