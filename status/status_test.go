package status_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/g2rpc/metadata"
	"github.com/crazyfrankie/g2rpc/status"
)

func TestOKStatusHasNilError(t *testing.T) {
	s := status.New(status.OK, "")
	assert.NoError(t, s.Err())
}

func TestErrorRoundTripsThroughFromError(t *testing.T) {
	err := status.Errorf(status.NotFound, "widget %d missing", 42)

	got := status.FromError(err)
	assert.Equal(t, status.NotFound, got.Code())
	assert.Equal(t, "widget 42 missing", got.Details())
}

func TestFromErrorOnPlainErrorFallsBackToUnknown(t *testing.T) {
	got := status.FromError(errors.New("boom"))
	assert.Equal(t, status.Unknown, got.Code())
	assert.Equal(t, "boom", got.Details())
}

func TestFromErrorOnNilIsOK(t *testing.T) {
	got := status.FromError(nil)
	assert.Equal(t, status.OK, got.Code())
}

func TestFromCauseOnlyAppliesDefaultWhenUnknown(t *testing.T) {
	plain := status.FromCause(errors.New("timed out"), status.DeadlineExceeded)
	assert.Equal(t, status.DeadlineExceeded, plain.Code())

	tagged := status.FromCause(status.Error(status.PermissionDenied, "nope"), status.DeadlineExceeded)
	assert.Equal(t, status.PermissionDenied, tagged.Code())
}

func TestFromCode(t *testing.T) {
	assert.Equal(t, status.OK, status.FromCode(nil))
	assert.Equal(t, status.Unknown, status.FromCode(errors.New("x")))
	assert.Equal(t, status.Aborted, status.FromCode(status.Error(status.Aborted, "x")))
}

// customErr exercises the err.code/err.details/err.metadata carrier
// convention on a user-defined error type, independent of
// status.New/status.Error.
type customErr struct {
	code status.Code
	msg  string
	md   metadata.MD
}

func (e *customErr) Error() string           { return e.msg }
func (e *customErr) Code() status.Code        { return e.code }
func (e *customErr) Details() string          { return e.msg }
func (e *customErr) Metadata() metadata.MD    { return e.md }

func TestFromErrorAppliesCarrierConvention(t *testing.T) {
	err := &customErr{code: status.FailedPrecondition, msg: "precondition failed", md: metadata.Pairs("retry-after", "5")}

	got := status.FromError(err)
	require.Equal(t, status.FailedPrecondition, got.Code())
	assert.Equal(t, "precondition failed", got.Details())
	assert.Equal(t, []string{"5"}, got.Metadata().Get("retry-after"))
}

func TestWithMetadataPreservesCodeAndDetails(t *testing.T) {
	s := status.New(status.Internal, "oops").WithMetadata(metadata.Pairs("a", "b"))
	assert.Equal(t, status.Internal, s.Code())
	assert.Equal(t, "oops", s.Details())
	assert.Equal(t, []string{"b"}, s.Metadata().Get("a"))
}

func TestCodeStringUnknownCodeFallsBackToNumeric(t *testing.T) {
	c := status.Code(99)
	assert.Equal(t, fmt.Sprintf("CODE(%d)", 99), c.String())
}

func TestNilStatusMethodsAreSafe(t *testing.T) {
	var s *status.Status
	assert.Equal(t, status.OK, s.Code())
	assert.Equal(t, "", s.Details())
	assert.Equal(t, metadata.MD{}, s.Metadata())
}
