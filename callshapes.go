package g2rpc

import (
	"context"

	"github.com/crazyfrankie/g2rpc/metadata"
	"github.com/crazyfrankie/g2rpc/status"
)

// ServerStream is the handle a StreamHandler uses to exchange messages
// with the client for any of the three streaming call shapes
// (client-streaming, server-streaming, bidi). A unary call never sees
// this interface; it goes through MethodHandler instead.
type ServerStream interface {
	Context() context.Context
	SetHeader(metadata.MD) error
	SetTrailer(metadata.MD)
	SendMsg(v any) error
	RecvMsg(v any) error
}

type serverStream struct {
	call *ServerCall
}

func (s *serverStream) Context() context.Context { return s.call.Context() }
func (s *serverStream) SetHeader(md metadata.MD) error { return s.call.SendHeader(md) }
func (s *serverStream) SetTrailer(md metadata.MD) { s.call.SetTrailer(md) }
func (s *serverStream) SendMsg(v any) error { return s.call.SendMsg(v) }
func (s *serverStream) RecvMsg(v any) error { return s.call.RecvMsg(v) }

// runUnary drives the Unary call shape: receive exactly one message,
// invoke the handler, send exactly one reply, then end the call with
// whatever status the handler returned.
func runUnary(call *ServerCall, srv any, desc *MethodDesc) error {
	var reqReceived bool
	dec := func(v any) error {
		if reqReceived {
			return status.Error(status.Internal, "g2rpc: unary handler attempted to decode more than one request message")
		}
		reqReceived = true
		return call.RecvMsg(v)
	}

	reply, err := desc.Handler(srv, call.Context(), dec)
	if err != nil {
		return call.End(err)
	}
	if sendErr := call.SendMsg(reply); sendErr != nil {
		return call.End(sendErr)
	}
	return call.End(nil)
}

// runStream drives any of the three streaming call shapes. The handler
// is trusted to call RecvMsg until it sees io.EOF (for client-streaming
// input) and to call SendMsg as many times as the shape allows (zero or
// more for server-streaming output); runStream's job is only to end the
// call with the handler's returned status once it returns.
func runStream(call *ServerCall, srv any, desc *StreamDesc) error {
	stream := &serverStream{call: call}
	err := desc.Handler(srv, stream)
	return call.End(err)
}

// unimplementedMethod builds a MethodDesc dispatched when no service/method
// matches the request path; it is shaped as a MethodDesc purely so the
// unary call path can drive it uniformly, and names the offending path in
// its UNIMPLEMENTED status the way a real registered method would name
// its own failures.
func unimplementedMethod(path string) MethodDesc {
	return MethodDesc{
		MethodName: "",
		Handler: func(_ any, ctx context.Context, _ func(any) error) (any, error) {
			return nil, status.Errorf(status.Unimplemented, "The server does not implement the method %s", path)
		},
	}
}
