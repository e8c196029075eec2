// Package keepalive defines the server-side keepalive parameters for a
// long-lived gRPC/HTTP2 connection: a cadence for the server's own
// pings, a grace period before it gives up, and an enforcement policy
// against pings arriving too quickly from the peer.
package keepalive

import "time"

// ServerParameters configures how the server pings idle connections and
// how long it waits for those pings to be answered, mirroring the
// grpc.keepalive_time_ms and grpc.keepalive_timeout_ms wire options.
type ServerParameters struct {
	// Time is how long the connection may be idle before a keepalive
	// ping is sent. Zero means use the default (2 hours).
	Time time.Duration
	// Timeout is how long to wait for a ping ack before the connection
	// is considered dead. Zero means use the default (20 seconds).
	Timeout time.Duration
}

// DefaultServerParameters mirrors the wire default of
// keepaliveTimeMs=7200000, keepaliveTimeoutMs=20000.
var DefaultServerParameters = ServerParameters{
	Time:    2 * time.Hour,
	Timeout: 20 * time.Second,
}

// EnforcementPolicy bounds how frequently a peer is allowed to send
// keepalive pings before the server tears down the connection as abusive.
type EnforcementPolicy struct {
	// MinTime is the minimum allowed interval between two client pings.
	MinTime time.Duration
	// PermitWithoutStream, if true, allows pings even when there are no
	// active streams on the connection.
	PermitWithoutStream bool
}

// DefaultEnforcementPolicy matches common gRPC server defaults: pings
// closer together than 5 minutes are considered abusive, and without an
// active stream, any ping is refused.
var DefaultEnforcementPolicy = EnforcementPolicy{
	MinTime:             5 * time.Minute,
	PermitWithoutStream: false,
}
