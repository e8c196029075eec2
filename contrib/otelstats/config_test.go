package otelstats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/g2rpc/contrib/otelstats"
	"github.com/crazyfrankie/g2rpc/stats"
)

func TestNewServerHandlerWithoutFilterTagsRPC(t *testing.T) {
	h := otelstats.NewServerHandler()
	require.NotNil(t, h)

	// TagRPC must not panic when no filter was configured, and must
	// return a usable context.
	ctx := h.TagRPC(context.Background(), &stats.RPCTagInfo{FullMethodName: "/svc/Method"})
	assert.NotNil(t, ctx)
}

func TestWithMessageEventsProducesUsableHandler(t *testing.T) {
	// Constructing a handler with the option must not panic and must
	// produce a usable handler.
	h := otelstats.NewServerHandler(otelstats.WithMessageEvents(false))
	assert.NotNil(t, h)
}
