// Package wire carries stream requests and chunks over gRPC.
//
// The service schema is an embedded .proto file parsed at startup; messages
// are dynamic protobuf messages converted to and from the session types, so
// no generated code is needed.
package wire

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
)

const (
	protoFile   = "video_streaming.proto"
	serviceName = "videostreaming.VideoStreamingService"

	streamMethodName = "StreamVideoChunks"
	healthMethodName = "GetServerHealth"
)

//go:embed video_streaming.proto
var protoSource string

// Schema holds the parsed service descriptors.
type Schema struct {
	File    *desc.FileDescriptor
	Service *desc.ServiceDescriptor
	Stream  *desc.MethodDescriptor
	Health  *desc.MethodDescriptor
}

var (
	schemaOnce sync.Once
	schema     *Schema
	schemaErr  error
)

// LoadSchema parses the embedded proto once.
func LoadSchema() (*Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = parseSchema(protoSource)
	})
	return schema, schemaErr
}

func mustSchema() *Schema {
	s, err := LoadSchema()
	if err != nil {
		panic(fmt.Sprintf("wire: embedded schema: %v", err))
	}
	return s
}

func parseSchema(src string) (*Schema, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{protoFile: src}),
	}
	files, err := parser.ParseFiles(protoFile)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", protoFile, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no descriptors parsed from %s", protoFile)
	}
	file := files[0]
	svc := file.FindService(serviceName)
	if svc == nil {
		return nil, fmt.Errorf("service %s not found in %s", serviceName, protoFile)
	}
	stream := svc.FindMethodByName(streamMethodName)
	health := svc.FindMethodByName(healthMethodName)
	if stream == nil || health == nil {
		return nil, fmt.Errorf("service %s is missing %s or %s", serviceName, streamMethodName, healthMethodName)
	}
	if !stream.IsServerStreaming() || stream.IsClientStreaming() {
		return nil, fmt.Errorf("%s must be server-streaming", streamMethodName)
	}
	return &Schema{File: file, Service: svc, Stream: stream, Health: health}, nil
}

// FullMethod is the gRPC path of a method, e.g.
// /videostreaming.VideoStreamingService/StreamVideoChunks.
func (s *Schema) FullMethod(m *desc.MethodDescriptor) string {
	return fmt.Sprintf("/%s/%s", s.Service.GetFullyQualifiedName(), m.GetName())
}
