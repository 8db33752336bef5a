package transport

import (
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/fluxcompute/schedulerbackend/pkg/coordinator"
	"github.com/fluxcompute/schedulerbackend/pkg/log"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// serviceName and connectMethod name the single bidi-streaming RPC used for
// the whole Connect protocol. There is no .proto/.pb.go for this service:
// the ServiceDesc below is built by hand, and Envelope carries the wire
// messages as JSON rather than as protobuf-generated types.
const (
	serviceName   = "schedulerbackend.ConnectService"
	connectMethod = "Connect"
)

// ConnectServer is implemented by Server and registered against the
// manually-built ServiceDesc below.
type ConnectServer interface {
	connect(stream grpc.ServerStream) error
}

// ServiceDesc is passed to grpc.Server.RegisterService. HandlerType only
// needs to be an interface the registered implementation satisfies; the
// actual dispatch happens through the StreamDesc's Handler closure.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ConnectServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: connectMethod,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(ConnectServer).connect(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// Server is the gRPC-facing half of the transport: one connect() call per
// inbound executor stream, each running in the goroutine grpc spins up for
// it. All state mutation happens by submitting events to coord; Server
// itself holds none.
type Server struct {
	coord *coordinator.Coordinator
}

// NewServer returns a Server that forwards inbound wire messages to coord.
func NewServer(coord *coordinator.Coordinator) *Server {
	return &Server{coord: coord}
}

// Register attaches the Connect service to gs. The JSON codec is forced by
// ServerOptions, which must be passed to grpc.NewServer when gs is built.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// ServerOptions returns the grpc.ServerOption that forces every RPC on the
// server to use the JSON codec, regardless of what the client negotiates.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(jsonCodec{})}
}

func remoteAddr(stream grpc.ServerStream) string {
	if p, ok := peer.FromContext(stream.Context()); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

func (s *Server) connect(stream grpc.ServerStream) error {
	addr := remoteAddr(stream)
	p := newStreamPeer(stream, addr)
	streamLog := log.WithAddress(addr)
	streamLog.Info().Msg("executor stream opened")

	for {
		var env Envelope
		if err := stream.RecvMsg(&env); err != nil {
			if err == io.EOF {
				streamLog.Info().Msg("executor stream closed cleanly")
				_ = s.coord.NotifyPeerTerminated(p)
			} else {
				streamLog.Warn().Err(err).Msg("executor stream closed unexpectedly")
				_ = s.coord.NotifyPeerDisconnected(addr)
			}
			return nil
		}

		msg, err := Decode(&env)
		if err != nil {
			streamLog.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}

		if err := s.dispatch(msg, p, addr); err != nil {
			streamLog.Error().Err(err).Msg("failed to submit decoded message to coordinator")
		}
	}
}

func (s *Server) dispatch(msg any, p wire.PeerHandle, addr string) error {
	switch m := msg.(type) {
	case wire.RegisterExecutor:
		return s.coord.RegisterExecutor(m, p, addr)
	case wire.StatusUpdate:
		return s.coord.StatusUpdateFromPeer(m)
	default:
		return fmt.Errorf("transport: unexpected message type %T from executor", m)
	}
}

var _ ConnectServer = (*Server)(nil)
