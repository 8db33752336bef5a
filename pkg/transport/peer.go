package transport

import (
	"sync"

	"google.golang.org/grpc"

	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// streamPeer adapts a gRPC bidirectional stream into a wire.PeerHandle.
// The stream itself is the peer handle described by the component design:
// it carries only an address, never a reference back to the Coordinator,
// so the two sides cannot form a reference cycle.
type streamPeer struct {
	mu     sync.Mutex
	stream grpc.ServerStream
	addr   string
}

func newStreamPeer(stream grpc.ServerStream, addr string) *streamPeer {
	return &streamPeer{stream: stream, addr: addr}
}

func (p *streamPeer) Address() string {
	return p.addr
}

// Send encodes msg and writes it to the stream. gRPC streams are not safe
// for concurrent SendMsg calls from multiple goroutines, so this is
// serialized with a mutex; the Coordinator and the Launch Pump worker can
// both hold a reference to the same peer.
func (p *streamPeer) Send(msg any) error {
	env, err := Encode(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream.SendMsg(env)
}

var _ wire.PeerHandle = (*streamPeer)(nil)
