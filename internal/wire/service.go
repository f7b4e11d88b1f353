package wire

import (
	"context"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/torosent/streamload/internal/session"
)

// Service is the server side of VideoStreamingService.
type Service interface {
	// StreamVideoChunks calls send once per chunk, in order. Returning an
	// error ends the stream with that status.
	StreamVideoChunks(ctx context.Context, req session.Request, send func(session.Chunk) error) error
	GetServerHealth(ctx context.Context) (Health, error)
}

// Register exposes impl on s under the embedded service schema.
func Register(s grpc.ServiceRegistrar, impl Service) {
	sc := mustSchema()
	serviceDesc := grpc.ServiceDesc{
		ServiceName: sc.Service.GetFullyQualifiedName(),
		HandlerType: (*Service)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: sc.Health.GetName(),
				Handler:    healthHandler(sc),
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    sc.Stream.GetName(),
				Handler:       streamHandler(sc),
				ServerStreams: true,
			},
		},
		Metadata: protoFile,
	}
	s.RegisterService(&serviceDesc, impl)
}

func streamHandler(sc *Schema) grpc.StreamHandler {
	return func(srv interface{}, stream grpc.ServerStream) error {
		in := dynamic.NewMessage(sc.Stream.GetInputType())
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		req, err := decodeRequest(in)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "stream request: %v", err)
		}
		send := func(c session.Chunk) error {
			out, err := encodeChunk(sc, c)
			if err != nil {
				return err
			}
			return stream.SendMsg(out)
		}
		return srv.(Service).StreamVideoChunks(stream.Context(), req, send)
	}
}

func healthHandler(sc *Schema) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := dynamic.NewMessage(sc.Health.GetInputType())
		if err := dec(req); err != nil {
			return nil, err
		}
		invoke := func(ctx context.Context, _ interface{}) (interface{}, error) {
			h, err := srv.(Service).GetServerHealth(ctx)
			if err != nil {
				return nil, err
			}
			return encodeHealth(sc, h)
		}
		if interceptor == nil {
			return invoke(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: sc.FullMethod(sc.Health),
		}
		return interceptor(ctx, req, info, invoke)
	}
}
