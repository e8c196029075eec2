package otelstats

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/crazyfrankie/g2rpc/metadata"
	"github.com/crazyfrankie/g2rpc/stats"
)

type callContextKey struct{}

type callContext struct {
	inMessages  int64
	outMessages int64
	metricAttrs []attribute.KeyValue
	record      bool
}

// serverHandler implements stats.Handler for server-side tracing and
// metrics.
type serverHandler struct {
	*config
	tracer trace.Tracer

	duration metric.Float64Histogram
	inSize   metric.Int64Histogram
	outSize  metric.Int64Histogram
	inMsg    metric.Int64Histogram
	outMsg   metric.Int64Histogram
}

// NewServerHandler creates a stats.Handler that reports tracing and
// metrics for every RPC dispatched through a Server.
func NewServerHandler(opts ...Option) stats.Handler {
	c := newConfig(opts)
	h := &serverHandler{config: c}

	h.tracer = c.TracerProvider.Tracer(ScopeName)
	meter := c.MeterProvider.Meter(ScopeName)

	var err error
	if h.duration, err = meter.Float64Histogram(
		"rpc.server.duration",
		metric.WithDescription("Measures the duration of inbound RPC."),
		metric.WithUnit("ms"),
	); err != nil {
		otel.Handle(err)
	}
	if h.inSize, err = meter.Int64Histogram(
		"rpc.server.request.size",
		metric.WithDescription("Measures size of RPC request messages (uncompressed)."),
		metric.WithUnit("By"),
	); err != nil {
		otel.Handle(err)
	}
	if h.outSize, err = meter.Int64Histogram(
		"rpc.server.response.size",
		metric.WithDescription("Measures size of RPC response messages (uncompressed)."),
		metric.WithUnit("By"),
	); err != nil {
		otel.Handle(err)
	}
	if h.inMsg, err = meter.Int64Histogram(
		"rpc.server.requests_per_rpc",
		metric.WithDescription("Measures the number of messages received per RPC."),
		metric.WithUnit("{count}"),
	); err != nil {
		otel.Handle(err)
	}
	if h.outMsg, err = meter.Int64Histogram(
		"rpc.server.responses_per_rpc",
		metric.WithDescription("Measures the number of messages sent per RPC."),
		metric.WithUnit("{count}"),
	); err != nil {
		otel.Handle(err)
	}

	return h
}

// TagRPC starts the span for an RPC and attaches tracking state to ctx.
func (h *serverHandler) TagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = Extract(ctx, md, h.Propagators)
	}

	name, attrs := parseFullMethod(info.FullMethodName)
	attrs = append(attrs, attribute.String("rpc.system", "g2rpc"))

	record := h.Filter(ctx, info)
	if record {
		opts := append([]trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		}, h.SpanStartOptions...)
		ctx, _ = h.tracer.Start(ctx, name, opts...)
	}

	cc := &callContext{metricAttrs: attrs, record: record}
	return context.WithValue(ctx, callContextKey{}, cc)
}

// HandleRPC processes one RPC lifecycle event.
func (h *serverHandler) HandleRPC(ctx context.Context, rs stats.RPCStats) {
	cc, _ := ctx.Value(callContextKey{}).(*callContext)
	if cc != nil && !cc.record {
		return
	}
	span := trace.SpanFromContext(ctx)

	switch rs := rs.(type) {
	case *stats.InPayload:
		var messageID int64
		if cc != nil {
			messageID = atomic.AddInt64(&cc.inMessages, 1)
			h.inSize.Record(ctx, int64(rs.Length), metric.WithAttributes(cc.metricAttrs...))
		}
		if h.ReceivedEvent && span.IsRecording() {
			span.AddEvent("message", trace.WithAttributes(
				attribute.String("message.type", "RECEIVED"),
				attribute.Int64("message.id", messageID),
				attribute.Int("message.uncompressed_size", rs.Length),
			))
		}
	case *stats.OutPayload:
		var messageID int64
		if cc != nil {
			messageID = atomic.AddInt64(&cc.outMessages, 1)
			h.outSize.Record(ctx, int64(rs.Length), metric.WithAttributes(cc.metricAttrs...))
		}
		if h.SentEvent && span.IsRecording() {
			span.AddEvent("message", trace.WithAttributes(
				attribute.String("message.type", "SENT"),
				attribute.Int64("message.id", messageID),
				attribute.Int("message.uncompressed_size", rs.Length),
			))
		}
	case *stats.End:
		if cc != nil {
			h.inMsg.Record(ctx, cc.inMessages, metric.WithAttributes(cc.metricAttrs...))
			h.outMsg.Record(ctx, cc.outMessages, metric.WithAttributes(cc.metricAttrs...))
			elapsed := rs.EndTime.Sub(rs.BeginTime)
			h.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(cc.metricAttrs...))
		}
		if span.IsRecording() {
			if rs.Error != nil {
				span.RecordError(rs.Error)
				span.SetStatus(codes.Error, rs.Error.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
		}
		span.End()
	}
}

// TagConn attaches nothing extra; connection-level spans are not
// recorded, since HTTP/2 connections long outlive any single trace.
func (h *serverHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

// HandleConn is a no-op: connection lifecycle is not traced.
func (h *serverHandler) HandleConn(context.Context, stats.ConnStats) {}

func parseFullMethod(fullMethod string) (string, []attribute.KeyValue) {
	name := strings.TrimPrefix(fullMethod, "/")
	var attrs []attribute.KeyValue
	if pos := strings.LastIndex(name, "/"); pos >= 0 {
		attrs = []attribute.KeyValue{
			attribute.String("rpc.service", name[:pos]),
			attribute.String("rpc.method", name[pos+1:]),
		}
	}
	return name, attrs
}
