package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// StreamAttributes describe one stream request on a span.
type StreamAttributes struct {
	Target   string
	NodeID   string
	VideoID  string
	Quality  string
	ClientID string
}

func (a StreamAttributes) keyValues() []attribute.KeyValue {
	kvs := []attribute.KeyValue{attribute.String("rpc.system", "grpc")}
	add := func(key, value string) {
		if value != "" {
			kvs = append(kvs, attribute.String(key, value))
		}
	}
	add("server.address", a.Target)
	add("streamload.node_id", a.NodeID)
	add("streamload.video_id", a.VideoID)
	add("streamload.quality", a.Quality)
	add("streamload.client_id", a.ClientID)
	return kvs
}

// StartClientStreamSpan starts the driver-side span for one stream and
// returns a context whose outgoing gRPC metadata carries the trace.
func StartClientStreamSpan(ctx context.Context, tracer trace.Tracer, attrs StreamAttributes, propagate bool) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "stream.client",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs.keyValues()...),
	)
	if propagate {
		md, _ := metadata.FromOutgoingContext(ctx)
		md = md.Copy()
		InjectGRPCMetadata(ctx, md)
		ctx = metadata.NewOutgoingContext(ctx, md)
	}
	return ctx, span
}

// StartSessionSpan starts the server-side span for one session, continuing
// any trace carried in the incoming gRPC metadata.
func StartSessionSpan(ctx context.Context, tracer trace.Tracer, attrs StreamAttributes) (context.Context, trace.Span) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = ExtractGRPCMetadata(ctx, md)
	}
	return tracer.Start(ctx, "stream.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs.keyValues()...),
	)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// grpcMetadataCarrier adapts grpc metadata.MD to the OTel TextMapCarrier interface.
type grpcMetadataCarrier metadata.MD

func (c grpcMetadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c grpcMetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c grpcMetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectGRPCMetadata injects W3C trace context into gRPC metadata.
func InjectGRPCMetadata(ctx context.Context, md metadata.MD) {
	otel.GetTextMapPropagator().Inject(ctx, grpcMetadataCarrier(md))
}

// ExtractGRPCMetadata returns ctx carrying the remote span context found in md.
func ExtractGRPCMetadata(ctx context.Context, md metadata.MD) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, grpcMetadataCarrier(md))
}
