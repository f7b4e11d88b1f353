package wire

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"

	"github.com/torosent/streamload/internal/session"
)

// ChunkStream is the client view of one StreamVideoChunks call.
type ChunkStream struct {
	cs      grpc.ClientStream
	schema  *Schema
	reqSize int
}

// OpenChunkStream sends req and returns the stream of chunks.
func OpenChunkStream(ctx context.Context, conn grpc.ClientConnInterface, req session.Request) (*ChunkStream, error) {
	sc := mustSchema()
	msg, err := encodeRequest(sc, req)
	if err != nil {
		return nil, err
	}
	desc := &grpc.StreamDesc{StreamName: sc.Stream.GetName(), ServerStreams: true}
	cs, err := conn.NewStream(ctx, desc, sc.FullMethod(sc.Stream))
	if err != nil {
		return nil, err
	}
	wireMsg := protoadapt.MessageV2Of(msg)
	if err := cs.SendMsg(wireMsg); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &ChunkStream{cs: cs, schema: sc, reqSize: proto.Size(wireMsg)}, nil
}

// RequestSize is the encoded size of the request that opened the stream.
func (s *ChunkStream) RequestSize() int { return s.reqSize }

// Recv returns the next chunk, io.EOF when the video ended normally, or the
// stream's terminal status error.
func (s *ChunkStream) Recv() (session.Chunk, error) {
	out := dynamic.NewMessage(s.schema.Stream.GetOutputType())
	if err := s.cs.RecvMsg(protoadapt.MessageV2Of(out)); err != nil {
		if errors.Is(err, io.EOF) {
			return session.Chunk{}, io.EOF
		}
		return session.Chunk{}, err
	}
	c, err := decodeChunk(out)
	if err != nil {
		return session.Chunk{}, fmt.Errorf("decode chunk: %w", err)
	}
	return c, nil
}

// GetServerHealth calls the unary health RPC.
func GetServerHealth(ctx context.Context, conn grpc.ClientConnInterface) (Health, error) {
	sc := mustSchema()
	req := dynamic.NewMessage(sc.Health.GetInputType())
	resp := dynamic.NewMessage(sc.Health.GetOutputType())
	if err := conn.Invoke(ctx, sc.FullMethod(sc.Health), protoadapt.MessageV2Of(req), protoadapt.MessageV2Of(resp)); err != nil {
		return Health{}, err
	}
	return decodeHealth(resp)
}
