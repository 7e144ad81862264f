package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// decode copies the fields of req into dst using its json tags. An empty
// request leaves dst untouched.
func decode(req *structpb.Struct, dst any) error {
	if len(req.GetFields()) == 0 {
		return nil
	}
	raw, err := protojson.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// encode converts a json-tagged value into a Struct message.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return out, nil
}

// encodeEvent renders an event as a Struct carrying its kind.
func encodeEvent(ev domain.Event) (*structpb.Struct, error) {
	raw, err := domain.MarshalEvent(ev)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Kind(), err)
	}
	return out, nil
}
