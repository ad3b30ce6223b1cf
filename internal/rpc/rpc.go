// Package rpc implements the RPC control plane (spec component C9): a
// request/reply surface, separate from the DDS bus, that always exposes a
// "<name>.ping" handler plus whatever domain ops a service instance
// registers. Requests are dispatched on the same strand lane the rest of
// that service's work runs on, so an RPC call serializes against SDK calls
// and ingress dispatch exactly like a bus-originated one does.
package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/strand"
)

// Request is the {op, args} envelope a caller sends.
type Request struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args"`
}

// Reply is the {status, result} envelope returned to the caller. Status is
// "OK" whenever the transport/handler lookup succeeded; a business failure
// is conveyed inside Result, not as a transport error (spec.md §4.9).
type Reply struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result"`
}

// Handler processes one RPC op's args and returns its result fields.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Server is one RPC control-plane instance: a named service bound to a
// strand, with a registered op -> Handler table.
type Server struct {
	name      string
	swVersion string
	domainID  int
	strand    *strand.Strand

	handlers map[string]Handler
	grpcSrv  *grpc.Server
}

// New returns a Server for the given service name, registering its
// "<name>.ping" handler immediately per spec.md §4.9.
func New(name, swVersion string, domainID int, lane *strand.Strand) *Server {
	s := &Server{
		name:      name,
		swVersion: swVersion,
		domainID:  domainID,
		strand:    lane,
		handlers:  make(map[string]Handler),
	}
	s.Register(name+".ping", s.ping)
	return s
}

// Register binds op to h, last-write-wins, matching the handler registry's
// registration contract.
func (s *Server) Register(op string, h Handler) {
	s.handlers[op] = h
}

func (s *Server) ping(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{
		"service":    s.name,
		"sw_version": s.swVersion,
		"domain":     s.domainID,
		"ts_ms":      time.Now().UnixMilli(),
	}, nil
}

// Start binds a gRPC server coded with the JSON control-plane codec to addr
// and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}

	s.grpcSrv = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	s.grpcSrv.RegisterService(&serviceDesc, s)

	logging.Op().Info("rpc control plane listening", "service", s.name, "addr", addr)
	go func() {
		if err := s.grpcSrv.Serve(lis); err != nil {
			logging.Op().Error("rpc server stopped", "service", s.name, "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the gRPC server, if started.
func (s *Server) Stop() {
	if s.grpcSrv != nil {
		s.grpcSrv.GracefulStop()
	}
}

// Call looks up req.Op and runs it on the server's strand, waiting for the
// result (or ctx cancellation). This is the single method the service
// descriptor below exposes over gRPC.
func (s *Server) Call(ctx context.Context, req *Request) (*Reply, error) {
	h, ok := s.handlers[req.Op]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown op %q", req.Op)
	}

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	posted := s.strand.Post(func() {
		result, err := h(ctx, req.Args)
		done <- outcome{result, err}
	})
	if !posted {
		return nil, status.Error(codes.Unavailable, "rpc strand rejected the call")
	}

	select {
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	case o := <-done:
		if o.err != nil {
			return &Reply{Status: "OK", Result: map[string]any{"error": o.err.Error()}}, nil
		}
		return &Reply{Status: "OK", Result: o.result}, nil
	}
}

// serviceDesc is the hand-built grpc.ServiceDesc standing in for generated
// protoc-gen-go-grpc stubs: one unary method, "Call", coded with jsonCodec
// instead of protobuf.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "workstation.rpc.ControlPlane",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    callHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/rpc/rpc.go",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/workstation.rpc.ControlPlane/Call"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.Call(ctx, req.(*Request))
	}
	return interceptor(ctx, in, info, handler)
}
