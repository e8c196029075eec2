package g2rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServerOption(t *testing.T) {
	o := defaultServerOption()
	assert.False(t, o.creds.Secure())
	assert.Equal(t, defaultServerMaxReceiveMessageSize, o.maxReceiveMessageSize)
	assert.Equal(t, defaultServerMaxSendMessageSize, o.maxSendMessageSize)
}

func TestWithMaxReceiveMessageSizeNegativeMeansUnbounded(t *testing.T) {
	o := defaultServerOption()
	WithMaxReceiveMessageSize(-1)(o)
	assert.Equal(t, 0, o.maxReceiveMessageSize)
}

func TestWithWorkerPoolDerivesMinAndMax(t *testing.T) {
	o := defaultServerOption()
	WithWorkerPool(8)(o)
	require.NotNil(t, o.workerPool)
	assert.True(t, o.workerPool.enabled)
	assert.Equal(t, 2, o.workerPool.minSize)
	assert.Equal(t, 16, o.workerPool.maxSize)
}

func TestWithWorkerPoolClampsMinSizeToOne(t *testing.T) {
	o := defaultServerOption()
	WithWorkerPool(1)(o)
	assert.Equal(t, 1, o.workerPool.minSize)
}

func TestAsInt(t *testing.T) {
	n, err := asInt(42)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = asInt(int32(7))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = asInt(float64(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = asInt("nope")
	assert.Error(t, err)
}

func TestParseOptionsAppliesRecognizedKeys(t *testing.T) {
	opts, err := ParseOptions(map[string]any{
		"grpc.max_concurrent_streams": 100,
		"grpc.keepalive_time_ms":      float64(30000),
	})
	require.NoError(t, err)
	require.Len(t, opts, 2)

	o := defaultServerOption()
	for _, opt := range opts {
		opt(o)
	}
	assert.Equal(t, uint32(100), o.maxConcurrentStreams)
	assert.Equal(t, 30*time.Second, o.keepalive.Time)
}

func TestParseOptionsRejectsUnknownKey(t *testing.T) {
	_, err := ParseOptions(map[string]any{"grpc.not_a_real_option": 1})
	assert.Error(t, err)
}

func TestParseOptionsRejectsNonNumericValue(t *testing.T) {
	_, err := ParseOptions(map[string]any{"grpc.max_frame_size": "big"})
	assert.Error(t, err)
}
