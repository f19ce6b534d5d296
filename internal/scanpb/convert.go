package scanpb

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Encode converts any JSON-marshalable value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("struct message must be a JSON object: %w", err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from a Struct using the JSON field names of v.
func Decode(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// InsertRequest is the Insert message.
type InsertRequest struct {
	Scope      string `json:"store_scope"`
	Payload    string `json:"payload"`
	Symbology  string `json:"symbology,omitempty"`
	CapturedAt string `json:"captured_at,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`
	Origin     string `json:"origin,omitempty"`
}

// DeleteRequest is the Delete message.
type DeleteRequest struct {
	Scope  string `json:"store_scope"`
	ID     string `json:"id"`
	Actor  string `json:"actor,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// ListRequest is the List message.
type ListRequest struct {
	Scope  string `json:"store_scope"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// ClearRequest is the Clear message.
type ClearRequest struct {
	Scope  string `json:"store_scope"`
	Actor  string `json:"actor,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// ClearResponse is the Clear reply.
type ClearResponse struct {
	Deleted int64 `json:"deleted"`
}
