package otelstats

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/propagation"

	"github.com/crazyfrankie/g2rpc/metadata"
)

// metadataSupplier adapts metadata.MD to propagation.TextMapCarrier so an
// OpenTelemetry propagator can read/write trace context through it
// without knowing about gRPC metadata at all.
type metadataSupplier struct {
	md *metadata.MD
}

var _ propagation.TextMapCarrier = &metadataSupplier{}

func (s *metadataSupplier) Get(key string) string {
	vals := s.md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (s *metadataSupplier) Set(key, value string) {
	s.md.Set(strings.ToLower(key), value)
}

func (s *metadataSupplier) Keys() []string {
	return s.md.Keys()
}

// Extract pulls whatever trace context propagators can find out of md
// into ctx.
func Extract(ctx context.Context, md metadata.MD, propagators propagation.TextMapPropagator) context.Context {
	return propagators.Extract(ctx, &metadataSupplier{md: &md})
}

// Inject writes ctx's trace context into md using propagators.
func Inject(ctx context.Context, md metadata.MD, propagators propagation.TextMapPropagator) {
	propagators.Inject(ctx, &metadataSupplier{md: &md})
}
