package g2rpc

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/crazyfrankie/g2rpc/credentials"
	"github.com/crazyfrankie/g2rpc/keepalive"
	"github.com/crazyfrankie/g2rpc/stats"
)

func msToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

const (
	defaultServerMaxReceiveMessageSize = 4 * 1024 * 1024 // 4 MiB
	defaultServerMaxSendMessageSize    = math.MaxInt32   // effectively unbounded
	defaultMaxConcurrentStreams        = 0               // 0 means http2 package default
	defaultMaxFrameSize                = 0
)

type serverOption struct {
	creds        credentials.TransportCredentials
	statsHandler stats.Handler

	maxReceiveMessageSize int
	maxSendMessageSize    int
	maxConcurrentStreams  uint32
	maxFrameSize          uint32

	preferredSendEncoding string

	keepalive keepalive.ServerParameters
	enforce   keepalive.EnforcementPolicy

	workerPool *workerPoolOptions
}

type workerPoolOptions struct {
	enabled        bool
	size           int
	minSize        int
	maxSize        int
	queueSize      int
	adjustInterval int64 // nanoseconds, to avoid importing time twice pointlessly
}

func defaultServerOption() *serverOption {
	return &serverOption{
		creds:                 credentials.Insecure(),
		maxReceiveMessageSize: defaultServerMaxReceiveMessageSize,
		maxSendMessageSize:    defaultServerMaxSendMessageSize,
		keepalive:             keepalive.DefaultServerParameters,
		enforce:               keepalive.DefaultEnforcementPolicy,
	}
}

// ServerOption configures a Server at construction time.
type ServerOption func(*serverOption)

// WithTransportCredentials sets the credentials used to secure incoming
// connections. The default is credentials.Insecure().
func WithTransportCredentials(creds credentials.TransportCredentials) ServerOption {
	return func(o *serverOption) { o.creds = creds }
}

// WithAutocertTLS secures incoming connections with a certificate
// obtained automatically via ACME for any host accepted by hostPolicy,
// caching issued certificates under cacheDir across restarts.
func WithAutocertTLS(cacheDir string, hostPolicy autocert.HostPolicy) ServerOption {
	return func(o *serverOption) { o.creds = credentials.NewAutocertTLS(cacheDir, hostPolicy) }
}

// WithStatsHandler registers a stats.Handler invoked around every RPC and
// connection lifecycle event.
func WithStatsHandler(h stats.Handler) ServerOption {
	return func(o *serverOption) { o.statsHandler = h }
}

// WithMaxReceiveMessageSize sets the maximum message size, in bytes, the
// server will accept from a client. -1 means no limit.
func WithMaxReceiveMessageSize(n int) ServerOption {
	return func(o *serverOption) {
		if n < 0 {
			o.maxReceiveMessageSize = 0
			return
		}
		o.maxReceiveMessageSize = n
	}
}

// WithMaxSendMessageSize sets the maximum message size, in bytes, the
// server will send to a client. -1 means no limit.
func WithMaxSendMessageSize(n int) ServerOption {
	return func(o *serverOption) {
		if n < 0 {
			o.maxSendMessageSize = 0
			return
		}
		o.maxSendMessageSize = n
	}
}

// WithMaxConcurrentStreams bounds the number of concurrent HTTP/2 streams
// the server allows per connection.
func WithMaxConcurrentStreams(n uint32) ServerOption {
	return func(o *serverOption) { o.maxConcurrentStreams = n }
}

// WithMaxFrameSize bounds the HTTP/2 frame size advertised to peers.
func WithMaxFrameSize(n uint32) ServerOption {
	return func(o *serverOption) { o.maxFrameSize = n }
}

// WithPreferredSendEncoding sets the compression algorithm the server
// prefers to use for outgoing messages, subject to the client advertising
// support for it via grpc-accept-encoding. The empty string (the
// default) means identity.
func WithPreferredSendEncoding(name string) ServerOption {
	return func(o *serverOption) { o.preferredSendEncoding = name }
}

// WithKeepaliveParams sets the server's own ping cadence and ack timeout.
func WithKeepaliveParams(p keepalive.ServerParameters) ServerOption {
	return func(o *serverOption) { o.keepalive = p }
}

// WithKeepaliveEnforcementPolicy sets the policy enforced against pings
// arriving from a peer.
func WithKeepaliveEnforcementPolicy(p keepalive.EnforcementPolicy) ServerOption {
	return func(o *serverOption) { o.enforce = p }
}

// WithWorkerPool enables dispatching call handlers through a bounded,
// dynamically-sized goroutine pool instead of one goroutine per stream.
// The pool starts with size/4 workers (at least 1) and scales between
// that count and size*2 under load.
func WithWorkerPool(size int) ServerOption {
	return func(o *serverOption) {
		wp := &workerPoolOptions{
			enabled:        true,
			size:           size,
			minSize:        size / 4,
			maxSize:        size * 2,
			queueSize:      10000,
			adjustInterval: int64(5 * time.Second),
		}
		if wp.minSize < 1 {
			wp.minSize = 1
		}
		o.workerPool = wp
	}
}

// optionKeys are the grpc.-prefixed wire names recognized by
// ParseOptions, mirroring the options a generated config file would set
// by name rather than by Go function call.
const (
	optMaxConcurrentStreams = "grpc.max_concurrent_streams"
	optMaxFrameSize         = "grpc.max_frame_size"
	optKeepaliveTimeMs      = "grpc.keepalive_time_ms"
	optKeepaliveTimeoutMs   = "grpc.keepalive_timeout_ms"
	optMaxSendMessageLength = "grpc.max_send_message_length"
	optMaxReceiveMessageLen = "grpc.max_receive_message_length"
)

// ParseOptions builds ServerOptions from a map keyed by the grpc.-prefixed
// wire option names. An unrecognized key is a construction error, since
// silently ignoring a typo'd option would be worse than failing fast.
func ParseOptions(raw map[string]any) ([]ServerOption, error) {
	var opts []ServerOption
	for k, v := range raw {
		switch k {
		case optMaxConcurrentStreams:
			n, err := asInt(v)
			if err != nil {
				return nil, fmt.Errorf("g2rpc: option %s: %w", k, err)
			}
			opts = append(opts, WithMaxConcurrentStreams(uint32(n)))
		case optMaxFrameSize:
			n, err := asInt(v)
			if err != nil {
				return nil, fmt.Errorf("g2rpc: option %s: %w", k, err)
			}
			opts = append(opts, WithMaxFrameSize(uint32(n)))
		case optKeepaliveTimeMs:
			n, err := asInt(v)
			if err != nil {
				return nil, fmt.Errorf("g2rpc: option %s: %w", k, err)
			}
			opts = append(opts, withKeepaliveTimeMs(n))
		case optKeepaliveTimeoutMs:
			n, err := asInt(v)
			if err != nil {
				return nil, fmt.Errorf("g2rpc: option %s: %w", k, err)
			}
			opts = append(opts, withKeepaliveTimeoutMs(n))
		case optMaxSendMessageLength:
			n, err := asInt(v)
			if err != nil {
				return nil, fmt.Errorf("g2rpc: option %s: %w", k, err)
			}
			opts = append(opts, WithMaxSendMessageSize(n))
		case optMaxReceiveMessageLen:
			n, err := asInt(v)
			if err != nil {
				return nil, fmt.Errorf("g2rpc: option %s: %w", k, err)
			}
			opts = append(opts, WithMaxReceiveMessageSize(n))
		default:
			return nil, fmt.Errorf("g2rpc: unknown server option %q", k)
		}
	}
	return opts, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("value %v is not a number", v)
	}
}

func withKeepaliveTimeMs(ms int) ServerOption {
	return func(o *serverOption) { o.keepalive.Time = msToDuration(ms) }
}

func withKeepaliveTimeoutMs(ms int) ServerOption {
	return func(o *serverOption) { o.keepalive.Timeout = msToDuration(ms) }
}
