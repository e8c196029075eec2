package g2rpc

import (
	"context"
	"fmt"
	"reflect"

	"github.com/crazyfrankie/g2rpc/internal/grpclog"
)

// MethodHandler processes a unary RPC. dec unmarshals the request message
// of the caller-known type into whatever dst RecvMsg-style value the
// generated code passes it.
type MethodHandler func(srv any, ctx context.Context, dec func(any) error) (any, error)

// StreamHandler processes a streaming RPC (any of client-streaming,
// server-streaming, or bidi) by driving stream.RecvMsg/SendMsg itself.
type StreamHandler func(srv any, stream ServerStream) error

// MethodDesc represents a unary RPC method's specification.
type MethodDesc struct {
	MethodName string
	Handler    MethodHandler
}

// StreamDesc represents a streaming RPC method's specification.
type StreamDesc struct {
	StreamName    string
	Handler       StreamHandler
	ClientStreams bool
	ServerStreams bool
}

// ServiceDesc represents an RPC service's specification, generated
// alongside the service's message types.
type ServiceDesc struct {
	ServiceName string
	// HandlerType is a pointer to the service interface the registered
	// implementation must satisfy.
	HandlerType any
	Methods     []MethodDesc
	Streams     []StreamDesc
	Metadata    any
}

type service struct {
	serviceImpl any
	methods     map[string]*MethodDesc
	streams     map[string]*StreamDesc
	mdata       any
}

// ServiceRegistrar wraps a single method that supports service
// registration, so generated code can register against any type
// implementing it rather than depending directly on *Server.
type ServiceRegistrar interface {
	RegisterService(desc *ServiceDesc, impl any)
}

// RegisterService registers a service and its implementation to the
// server. It must be called before Serve; calling it afterward, or
// registering the same service name twice, is a programming error and
// fails fast.
func (s *Server) RegisterService(sd *ServiceDesc, impl any) {
	if impl != nil {
		ht := reflect.TypeOf(sd.HandlerType).Elem()
		st := reflect.TypeOf(impl)
		if !st.Implements(ht) {
			grpclog.Fatalf("g2rpc: Server.RegisterService found the handler of type %v that does not satisfy %v", st, ht)
		}
	}
	s.register(sd, impl)
}

func (s *Server) register(sd *ServiceDesc, impl any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateUnbound && s.state != stateBound {
		grpclog.Fatalf("g2rpc: Server.RegisterService(%q) called after Serve", sd.ServiceName)
	}
	if _, ok := s.services[sd.ServiceName]; ok {
		grpclog.Fatalf("g2rpc: Server.RegisterService found duplicate service registration for %q", sd.ServiceName)
	}

	svc := &service{
		serviceImpl: impl,
		methods:     make(map[string]*MethodDesc, len(sd.Methods)),
		streams:     make(map[string]*StreamDesc, len(sd.Streams)),
		mdata:       sd.Metadata,
	}
	for i := range sd.Methods {
		d := &sd.Methods[i]
		svc.methods[d.MethodName] = d
	}
	for i := range sd.Streams {
		d := &sd.Streams[i]
		svc.streams[d.StreamName] = d
	}
	if s.services == nil {
		s.services = make(map[string]*service)
	}
	s.services[sd.ServiceName] = svc
}

// MethodInfo contains the information of an RPC including its method
// name and type, exposed for reflection/introspection callers.
type MethodInfo struct {
	Name           string
	IsClientStream bool
	IsServerStream bool
}

// ServiceInfo contains unary/streaming information about a registered
// service.
type ServiceInfo struct {
	Methods  []MethodInfo
	Metadata any
}

// GetServiceInfo returns a map from service name to ServiceInfo for all
// currently registered services.
func (s *Server) GetServiceInfo() map[string]ServiceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ServiceInfo, len(s.services))
	for name, svc := range s.services {
		info := ServiceInfo{Metadata: svc.mdata}
		for m := range svc.methods {
			info.Methods = append(info.Methods, MethodInfo{Name: m})
		}
		for m, d := range svc.streams {
			info.Methods = append(info.Methods, MethodInfo{
				Name:           m,
				IsClientStream: d.ClientStreams,
				IsServerStream: d.ServerStreams,
			})
		}
		out[name] = info
	}
	return out
}

// lookupMethod resolves a service name and method name (the two halves
// of a "/package.Service/Method" path) to its registered service, and
// either a unary MethodDesc or a StreamDesc, whichever was registered
// under that name.
func (s *Server) lookupMethod(serviceName, methodName string) (*service, *MethodDesc, *StreamDesc, error) {
	s.mu.Lock()
	svc, ok := s.services[serviceName]
	s.mu.Unlock()
	if !ok {
		return nil, nil, nil, fmt.Errorf("g2rpc: unknown service %s", serviceName)
	}
	if md, ok := svc.methods[methodName]; ok {
		return svc, md, nil, nil
	}
	if sd, ok := svc.streams[methodName]; ok {
		return svc, nil, sd, nil
	}
	return nil, nil, nil, fmt.Errorf("g2rpc: unknown method %s in service %s", methodName, serviceName)
}
