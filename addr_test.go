package g2rpc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddrTCP(t *testing.T) {
	a, err := parseAddr("10.0.0.5:4321")
	require.NoError(t, err)
	tcp, ok := a.(*net.TCPAddr)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", tcp.IP.String())
	assert.Equal(t, 4321, tcp.Port)
}

func TestParseAddrInvalidReturnsError(t *testing.T) {
	_, err := parseAddr("not-an-addr")
	assert.Error(t, err)
}

func TestAtoiOrZero(t *testing.T) {
	assert.Equal(t, 1234, atoiOrZero("1234"))
	assert.Equal(t, 0, atoiOrZero("abc"))
	assert.Equal(t, 0, atoiOrZero(""))
}
