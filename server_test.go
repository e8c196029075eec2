package g2rpc

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/g2rpc/internal/framer"
	"github.com/crazyfrankie/g2rpc/mem"
)

type echoServer struct{}

type echoRequest struct {
	Val int `json:"val"`
}

type echoReply struct {
	Val int `json:"val"`
}

func echoHandler(srv any, ctx context.Context, dec func(any) error) (any, error) {
	var req echoRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return &echoReply{Val: req.Val * 2}, nil
}

func newEchoRequest(t *testing.T, val int) *http.Request {
	t.Helper()
	var body bytes.Buffer
	payload := []byte(`{"val":` + itoa(val) + `}`)
	require.NoError(t, framer.Encode(&body, false, payload))

	r := httptest.NewRequest(http.MethodPost, "/test.Echo/Say", &body)
	r.Header.Set("Content-Type", "application/grpc+json")
	return r
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

func TestServerDispatchesUnaryCall(t *testing.T) {
	srv := NewServer()
	srv.RegisterService(&ServiceDesc{
		ServiceName: "test.Echo",
		HandlerType: (*any)(nil),
		Methods: []MethodDesc{
			{MethodName: "Say", Handler: echoHandler},
		},
	}, echoServer{})

	w := httptest.NewRecorder()
	r := newEchoRequest(t, 21)

	srv.dispatch(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get(http.TrailerPrefix+"Grpc-Status"))

	dec := framer.NewDecoder(w.Body, mem.DefaultBufferPool(), 0)
	frame, err := dec.Read()
	require.NoError(t, err)
	assert.JSONEq(t, `{"val":42}`, string(frame.Payload.Materialize()))
}

func TestServerDispatchUnknownServiceReturnsUnimplemented(t *testing.T) {
	srv := NewServer()

	w := httptest.NewRecorder()
	r := newEchoRequest(t, 1)
	r.URL.Path = "/no.Such/Method"

	srv.dispatch(w, r)

	assert.Equal(t, "12", w.Header().Get(http.TrailerPrefix+"Grpc-Status"))
	assert.Equal(t, "The server does not implement the method /no.Such/Method",
		w.Header().Get(http.TrailerPrefix+"Grpc-Message"))
}

func TestServerDispatchBadContentTypeReturnsUnsupportedMediaType(t *testing.T) {
	srv := NewServer()

	w := httptest.NewRecorder()
	r := newEchoRequest(t, 1)
	r.Header.Set("Content-Type", "application/not-grpc")

	srv.dispatch(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Empty(t, w.Header().Get(http.TrailerPrefix+"Grpc-Status"))
}

func TestServerDispatchMissingContentTypeReturnsUnsupportedMediaType(t *testing.T) {
	srv := NewServer()

	w := httptest.NewRecorder()
	r := newEchoRequest(t, 1)
	r.Header.Del("Content-Type")

	srv.dispatch(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestServerDispatchMalformedPathReturnsBadRequest(t *testing.T) {
	srv := NewServer()

	w := httptest.NewRecorder()
	r := newEchoRequest(t, 1)
	r.URL.Path = "/no-slash"

	srv.dispatch(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterServiceMakesMethodLookupable(t *testing.T) {
	srv := NewServer()
	sd := &ServiceDesc{ServiceName: "test.Echo", HandlerType: (*any)(nil), Methods: []MethodDesc{{MethodName: "Say", Handler: echoHandler}}}
	srv.RegisterService(sd, echoServer{})

	assert.NotPanics(t, func() {
		svc, _, _, err := srv.lookupMethod("test.Echo", "Say")
		require.NoError(t, err)
		require.NotNil(t, svc)
	})
}

func TestGetServiceInfoReportsRegisteredMethods(t *testing.T) {
	srv := NewServer()
	srv.RegisterService(&ServiceDesc{
		ServiceName: "test.Echo",
		HandlerType: (*any)(nil),
		Methods:     []MethodDesc{{MethodName: "Say", Handler: echoHandler}},
	}, echoServer{})

	info := srv.GetServiceInfo()
	require.Contains(t, info, "test.Echo")
	require.Len(t, info["test.Echo"].Methods, 1)
	assert.Equal(t, "Say", info["test.Echo"].Methods[0].Name)
}
