package roles

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC names of the role service. Messages are google.protobuf.Struct
// carrying the same JSON documents as the HTTP API.
const (
	ServiceName       = "tallyboard.roles.v1.RoleService"
	ResolveRoleMethod = "/" + ServiceName + "/ResolveRole"
)

// EncodeStruct converts a JSON-tagged value into a protobuf Struct.
func EncodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("roles: encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("roles: encode: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("roles: encode: %w", err)
	}
	return s, nil
}

// DecodeStruct fills v from a protobuf Struct produced by EncodeStruct.
func DecodeStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("roles: decode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
