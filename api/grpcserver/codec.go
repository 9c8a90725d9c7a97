package grpcserver

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// JSONCodec carries the plain Go request and response structs of this
// package over gRPC.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
