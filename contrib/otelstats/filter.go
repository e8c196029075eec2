package otelstats

import (
	"context"
	"strings"

	"github.com/crazyfrankie/g2rpc/stats"
)

// Filter is a predicate used to determine whether a given call should be
// traced. A Filter must be concurrency safe.
type Filter func(ctx context.Context, info *stats.RPCTagInfo) bool

// AcceptAll returns a Filter that accepts all calls.
func AcceptAll() Filter {
	return func(context.Context, *stats.RPCTagInfo) bool { return true }
}

// RejectAll returns a Filter that rejects all calls.
func RejectAll() Filter {
	return func(context.Context, *stats.RPCTagInfo) bool { return false }
}

// MethodPrefixFilter returns a Filter that accepts calls whose full
// method name has any of the given prefixes.
func MethodPrefixFilter(prefixes ...string) Filter {
	return func(_ context.Context, info *stats.RPCTagInfo) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(info.FullMethodName, prefix) {
				return true
			}
		}
		return false
	}
}

// Not returns a Filter that accepts calls rejected by the given filter.
func Not(filter Filter) Filter {
	return func(ctx context.Context, info *stats.RPCTagInfo) bool {
		return !filter(ctx, info)
	}
}
