// Package resolver parses server bind targets into concrete addresses:
// a bare host:port, a DNS-scheme target, or a Unix domain socket path.
package resolver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Network identifies the transport a resolved Address binds on.
type Network string

const (
	NetworkTCP  Network = "tcp"
	NetworkUnix Network = "unix"
)

// Address is one concrete endpoint a Server can bind a listener to.
type Address struct {
	Network Network
	// Addr is the dial/listen string appropriate for Network: "host:port"
	// for tcp, a filesystem path for unix.
	Addr string
}

const (
	defaultSecurePort   = "443"
	defaultInsecurePort = "80"
)

// Parse interprets target per the grammar:
//
//	host:port          -> tcp, used as-is
//	:port              -> tcp, wildcard host
//	host               -> tcp, port defaults to 443 (secure) or 80 (insecure)
//	port               -> tcp, treated as localhost:port
//	dns:host[:port]     -> tcp, "dns:" scheme stripped
//	dns:///host[:port]  -> tcp, "dns://" scheme stripped
//	unix:/path/to/sock -> unix domain socket at the given path
//	unix:relative/path -> unix domain socket at a relative path
//	unix:///abs/path   -> unix domain socket; path MUST be absolute
//
// secure selects the default port used when target names a bare host
// with no port: 443 when the server's credentials require transport
// security, 80 otherwise, mirroring how an HTTPS vs. plain HTTP listener
// would pick its default port.
func Parse(target string, secure bool) (Address, error) {
	if target == "" {
		return Address{}, fmt.Errorf("resolver: empty target")
	}

	if rest, ok := cutPrefix(target, "unix://"); ok {
		if !strings.HasPrefix(rest, "/") {
			return Address{}, fmt.Errorf("resolver: unix:// target %q must be an absolute path", target)
		}
		return Address{Network: NetworkUnix, Addr: rest}, nil
	}
	if rest, ok := cutPrefix(target, "unix:"); ok {
		return Address{Network: NetworkUnix, Addr: rest}, nil
	}
	if rest, ok := cutPrefix(target, "dns:///"); ok {
		target = rest
	} else if rest, ok := cutPrefix(target, "dns:"); ok {
		target = rest
	}

	if port, err := strconv.Atoi(target); err == nil {
		return Address{Network: NetworkTCP, Addr: net.JoinHostPort("localhost", strconv.Itoa(port))}, nil
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		// A bare host with no port is legal; net.SplitHostPort rejects
		// it, so fall back to the appropriate scheme default.
		if strings.Contains(err.Error(), "missing port") {
			host = target
			port = defaultInsecurePort
			if secure {
				port = defaultSecurePort
			}
		} else {
			return Address{}, fmt.Errorf("resolver: invalid target %q: %w", target, err)
		}
	}
	if port == "" {
		return Address{}, fmt.Errorf("resolver: target %q has no port", target)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return Address{}, fmt.Errorf("resolver: invalid port in target %q: %w", target, err)
	}

	// Re-bracket literal IPv6 hosts so the round trip through
	// net.JoinHostPort is stable for callers that log or compare Addr.
	addr := net.JoinHostPort(host, port)
	return Address{Network: NetworkTCP, Addr: addr}, nil
}

// ParseAll parses a comma-separated list of targets, supporting a server
// that binds multiple ports in one call.
func ParseAll(targets string, secure bool) ([]Address, error) {
	parts := strings.Split(targets, ",")
	out := make([]Address, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		addr, err := Parse(p, secure)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolver: no targets in %q", targets)
	}
	return out, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
