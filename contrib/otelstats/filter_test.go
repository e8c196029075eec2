package otelstats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crazyfrankie/g2rpc/contrib/otelstats"
	"github.com/crazyfrankie/g2rpc/stats"
)

func TestAcceptAll(t *testing.T) {
	f := otelstats.AcceptAll()
	assert.True(t, f(context.Background(), &stats.RPCTagInfo{FullMethodName: "/svc/Method"}))
}

func TestRejectAll(t *testing.T) {
	f := otelstats.RejectAll()
	assert.False(t, f(context.Background(), &stats.RPCTagInfo{FullMethodName: "/svc/Method"}))
}

func TestMethodPrefixFilter(t *testing.T) {
	f := otelstats.MethodPrefixFilter("/health", "/debug")

	assert.True(t, f(context.Background(), &stats.RPCTagInfo{FullMethodName: "/health/Check"}))
	assert.True(t, f(context.Background(), &stats.RPCTagInfo{FullMethodName: "/debug/Vars"}))
	assert.False(t, f(context.Background(), &stats.RPCTagInfo{FullMethodName: "/svc/Method"}))
}

func TestNotInvertsFilter(t *testing.T) {
	f := otelstats.Not(otelstats.MethodPrefixFilter("/health"))

	assert.False(t, f(context.Background(), &stats.RPCTagInfo{FullMethodName: "/health/Check"}))
	assert.True(t, f(context.Background(), &stats.RPCTagInfo{FullMethodName: "/svc/Method"}))
}
