package grpcserver

import (
	"encoding/json"
	"fmt"
)

// Codec encodes gRPC messages as JSON. Both the server and BlogServiceClient
// force it, so the plain Go message types below travel without generated
// protobuf code.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("in internal/grpcserver/codec.go/Marshal(): error while `json.Marshal()` calling: %w", err)
	}

	return data, nil
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return "json"
}
