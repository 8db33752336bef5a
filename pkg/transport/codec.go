package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName names the JSON codec that ServerOptions and DialOptions
// force onto the Connect stream (grpc.ForceServerCodec / grpc.ForceCodec)
// instead of depending on protoc-generated bindings. grpc still supplies
// framing, flow control, keepalive, and the stream lifecycle; only the
// per-message encoding changes.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	env, ok := v.(*Envelope)
	if !ok {
		return nil, fmt.Errorf("transport: jsonCodec.Marshal: unsupported type %T", v)
	}
	return json.Marshal(env)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	env, ok := v.(*Envelope)
	if !ok {
		return fmt.Errorf("transport: jsonCodec.Unmarshal: unsupported type %T", v)
	}
	return json.Unmarshal(data, env)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}
