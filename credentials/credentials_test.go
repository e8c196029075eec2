package credentials_test

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/g2rpc/credentials"
)

func TestInsecureHandshakeIsPassthrough(t *testing.T) {
	c := credentials.Insecure()
	assert.False(t, c.Secure())

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn, proto, err := c.ServerHandshake(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, server, conn)
	assert.Equal(t, "", proto)
}

func TestNewTLSIsSecure(t *testing.T) {
	c := credentials.NewTLS(&tls.Config{})
	assert.True(t, c.Secure())
}

func TestLoadServerTLSRejectsMissingFiles(t *testing.T) {
	_, err := credentials.LoadServerTLS("/nonexistent/cert.pem", "/nonexistent/key.pem")
	assert.Error(t, err)
}

func TestLoadServerTLSAppliesClientCAFromEnv(t *testing.T) {
	certPEM, keyPEM := generateSelfSignedPEM(t)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	caPath := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caPath, certPEM, 0o600))

	t.Setenv("GRPC_SSL_CLIENT_CA_FILE_PATH", caPath)
	defer os.Unsetenv("GRPC_SSL_CLIENT_CA_FILE_PATH")

	cfg, err := credentials.LoadServerTLS(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
	assert.NotNil(t, cfg.ClientCAs)
}

func TestLoadServerTLSRejectsBadCAFile(t *testing.T) {
	certPEM, keyPEM := generateSelfSignedPEM(t)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	caPath := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caPath, []byte("not a pem file"), 0o600))

	t.Setenv("GRPC_SSL_CLIENT_CA_FILE_PATH", caPath)
	defer os.Unsetenv("GRPC_SSL_CLIENT_CA_FILE_PATH")

	_, err := credentials.LoadServerTLS(certPath, keyPath)
	assert.Error(t, err)
}

func TestTLSHandshakeHonorsContextDeadline(t *testing.T) {
	certPEM, keyPEM := generateSelfSignedPEM(t)
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	c := credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}})

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// The client side never speaks TLS, so the handshake blocks until the
	// deadline set from ctx expires the connection.
	_, _, err = c.ServerHandshake(ctx, server)
	assert.Error(t, err)
}

// generateSelfSignedPEM returns a throwaway self-signed cert/key pair PEM
// pair for exercising file-based TLS config loading.
func generateSelfSignedPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	certPEM, keyPEM, err := newSelfSignedCert()
	require.NoError(t, err)
	return certPEM, keyPEM
}
