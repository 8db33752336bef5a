package transport

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"

	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// clientStreamDesc describes the Connect RPC from the caller's side. It
// must match the StreamName used in ServiceDesc.
var clientStreamDesc = grpc.StreamDesc{
	StreamName:    connectMethod,
	ServerStreams: true,
	ClientStreams: true,
}

// DialOptions returns the grpc.DialOption that forces the JSON codec on
// every call made over the connection, mirroring ServerOptions.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}))}
}

// Conn is the executor-side half of the Connect stream: a thin wrapper that
// sends wire messages as Envelopes and decodes received Envelopes back into
// wire messages. It implements wire.PeerHandle so executor code can be
// tested against the same interface the Coordinator uses.
type Conn struct {
	mu     sync.Mutex
	stream grpc.ClientStream
	addr   string
}

// Dial opens a Connect stream against addr using cc, an already-established
// grpc.ClientConn (the caller owns dial options, retry/backoff policy, and
// connection lifecycle; Dial only opens the stream).
func Dial(ctx context.Context, cc *grpc.ClientConn, addr string) (*Conn, error) {
	stream, err := cc.NewStream(ctx, &clientStreamDesc, fmt.Sprintf("/%s/%s", serviceName, connectMethod))
	if err != nil {
		return nil, fmt.Errorf("transport: opening connect stream: %w", err)
	}
	return &Conn{stream: stream, addr: addr}, nil
}

func (c *Conn) Address() string {
	return c.addr
}

// Send encodes msg as an Envelope and writes it to the stream. Safe for
// concurrent use.
func (c *Conn) Send(msg any) error {
	env, err := Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.SendMsg(env)
}

// Recv blocks for the next message from the driver. It is only ever called
// from the single receive loop goroutine, so it needs no locking of its
// own.
func (c *Conn) Recv() (any, error) {
	var env Envelope
	if err := c.stream.RecvMsg(&env); err != nil {
		return nil, err
	}
	return Decode(&env)
}

// CloseSend half-closes the stream, signalling the driver that no further
// messages will be sent.
func (c *Conn) CloseSend() error {
	return c.stream.CloseSend()
}

var _ wire.PeerHandle = (*Conn)(nil)
