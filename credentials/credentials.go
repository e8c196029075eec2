// Package credentials configures the transport security a Server
// listener requires, behind a small interface so an insecure listener
// and a TLS listener share the same Server.Bind path.
package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

var timeZero time.Time

// TransportCredentials decides whether and how a raw net.Conn is wrapped
// before HTTP/2 framing begins.
type TransportCredentials interface {
	// ServerHandshake wraps conn if TLS is required, returning the
	// conn to use (possibly conn itself) and the negotiated ALPN
	// protocol, if any.
	ServerHandshake(ctx context.Context, conn net.Conn) (net.Conn, string, error)
	// Secure reports whether this credentials implementation requires
	// transport encryption.
	Secure() bool
}

// Insecure returns TransportCredentials that performs no handshake.
func Insecure() TransportCredentials { return insecure{} }

type insecure struct{}

func (insecure) ServerHandshake(_ context.Context, conn net.Conn) (net.Conn, string, error) {
	return conn, "", nil
}
func (insecure) Secure() bool { return false }

// NewTLS returns TransportCredentials backed by cfg. cfg.NextProtos is
// forced to include "h2" if unset, since HTTP/2 ALPN negotiation depends
// on it.
func NewTLS(cfg *tls.Config) TransportCredentials {
	cfg = cfg.Clone()
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"h2"}
	}
	return &tlsCreds{cfg: cfg}
}

type tlsCreds struct {
	cfg *tls.Config
}

func (c *tlsCreds) Secure() bool { return true }

func (c *tlsCreds) ServerHandshake(ctx context.Context, conn net.Conn) (net.Conn, string, error) {
	server := tls.Server(conn, c.cfg)
	if deadline, ok := ctx.Deadline(); ok {
		_ = server.SetDeadline(deadline)
		defer server.SetDeadline(timeZero)
	}
	if err := server.Handshake(); err != nil {
		return nil, "", fmt.Errorf("credentials: TLS handshake: %w", err)
	}
	return server, server.ConnectionState().NegotiatedProtocol, nil
}

// LoadServerTLS builds a tls.Config from a certificate/key pair on disk,
// defaulting the cipher suite allowlist from GRPC_SSL_CIPHER_SUITES when
// that environment variable is set, and the client-cert trust root from
// GRPC_SSL_CLIENT_CA_FILE_PATH when mutual TLS is wanted.
func LoadServerTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("credentials: load key pair: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2"},
		MinVersion:   tls.VersionTLS12,
	}
	if suites := os.Getenv("GRPC_SSL_CIPHER_SUITES"); suites != "" {
		cfg.CipherSuites = parseCipherSuites(suites)
	}
	if caFile := os.Getenv("GRPC_SSL_CLIENT_CA_FILE_PATH"); caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("credentials: read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("credentials: no certificates found in %s", caFile)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// NewAutocertTLS builds TransportCredentials backed by an ACME-issued
// certificate for one of hostPolicy's hosts, renewed automatically by
// mgr as it approaches expiry. cacheDir, if non-empty, persists issued
// certificates across restarts.
func NewAutocertTLS(cacheDir string, hostPolicy autocert.HostPolicy) TransportCredentials {
	mgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: hostPolicy,
	}
	if cacheDir != "" {
		mgr.Cache = autocert.DirCache(cacheDir)
	}
	return NewTLS(mgr.TLSConfig())
}

func parseCipherSuites(csv string) []uint16 {
	named := map[string]uint16{}
	for _, s := range tls.CipherSuites() {
		named[s.Name] = s.ID
	}
	var out []uint16
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ':' {
			if i > start {
				if id, ok := named[csv[start:i]]; ok {
					out = append(out, id)
				}
			}
			start = i + 1
		}
	}
	return out
}
