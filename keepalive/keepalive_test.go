package keepalive_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crazyfrankie/g2rpc/keepalive"
)

func TestDefaultServerParameters(t *testing.T) {
	assert.Equal(t, 2*time.Hour, keepalive.DefaultServerParameters.Time)
	assert.Equal(t, 20*time.Second, keepalive.DefaultServerParameters.Timeout)
}

func TestDefaultEnforcementPolicy(t *testing.T) {
	assert.Equal(t, 5*time.Minute, keepalive.DefaultEnforcementPolicy.MinTime)
	assert.False(t, keepalive.DefaultEnforcementPolicy.PermitWithoutStream)
}
