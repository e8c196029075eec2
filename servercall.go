package g2rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crazyfrankie/g2rpc/codec"
	"github.com/crazyfrankie/g2rpc/internal/compressor"
	"github.com/crazyfrankie/g2rpc/internal/framer"
	"github.com/crazyfrankie/g2rpc/mem"
	"github.com/crazyfrankie/g2rpc/metadata"
	"github.com/crazyfrankie/g2rpc/peer"
	"github.com/crazyfrankie/g2rpc/stats"
	"github.com/crazyfrankie/g2rpc/status"
)

const contentTypePrefix = "application/grpc"

// ServerCall is the per-RPC state machine: one value of ServerCall exists
// for the lifetime of a single HTTP/2 stream carrying one gRPC call, be
// it unary or one leg of a streaming call. It owns header/trailer
// emission, message framing, compression, and the deadline derived from
// grpc-timeout.
type ServerCall struct {
	w   http.ResponseWriter
	r   *http.Request
	dec *framer.Decoder

	fullMethod string
	codec      codec.Codec
	comp       compressor.Filter
	sendComp   string

	recvLimit int
	sendLimit int

	ctx    context.Context
	cancel context.CancelFunc
	statsH stats.Handler
	begin  time.Time

	mu         sync.Mutex
	headerSent bool
	trailer    metadata.MD
	finished   bool
}

// newServerCall builds a ServerCall from an inbound HTTP/2 request,
// parsing the deadline, negotiating compression, and converting headers
// to Metadata.
func newServerCall(w http.ResponseWriter, r *http.Request, fullMethod string, c codec.Codec, opt *serverOption, sh stats.Handler) (*ServerCall, error) {
	md, err := metadata.FromHTTPHeader(r.Header)
	if err != nil {
		return nil, status.Errorf(status.Internal, "g2rpc: bad metadata: %v", err)
	}

	filt, md, err := compressor.ReceiveMetadata(md, opt.preferredSendEncoding)
	if err != nil {
		return nil, status.Errorf(status.Unimplemented, "%v", err)
	}

	ctx := metadata.NewIncomingContext(r.Context(), md)
	ctx = peer.NewContext(ctx, peerFromRequest(r))

	var cancel context.CancelFunc
	var hasDeadline bool
	if raw := md.Get("grpc-timeout"); len(raw) > 0 {
		d, perr := parseTimeout(raw[0])
		if perr != nil {
			return nil, status.Errorf(status.OutOfRange, "Invalid deadline")
		}
		ctx, cancel = context.WithTimeout(ctx, d)
		hasDeadline = true
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	var sendComp string
	if filt.Send != nil {
		sendComp = filt.Send.Name()
	}

	if sh != nil {
		ctx = sh.TagRPC(ctx, &stats.RPCTagInfo{FullMethodName: fullMethod})
	}

	sc := &ServerCall{
		w:          w,
		r:          r,
		dec:        framer.NewDecoder(r.Body, mem.DefaultBufferPool(), opt.maxReceiveMessageSize),
		fullMethod: fullMethod,
		codec:      c,
		comp:       filt,
		sendComp:   sendComp,
		recvLimit:  opt.maxReceiveMessageSize,
		sendLimit:  opt.maxSendMessageSize,
		ctx:        ctx,
		cancel:     cancel,
		statsH:     sh,
		begin:      time.Now(),
		trailer:    metadata.MD{},
	}

	if sh != nil {
		sh.HandleRPC(ctx, &stats.Begin{BeginTime: sc.begin})
	}
	if hasDeadline {
		go sc.watchDeadline()
	}
	return sc, nil
}

// watchDeadline races the call's context against normal completion,
// mirroring the per-stream deadline goroutine a real gRPC server runs
// alongside the handler: it blocks on ctx.Done() and, if the context
// ends because the deadline actually fired (rather than End having
// already cancelled it), force-ends the call with DEADLINE_EXCEEDED so a
// handler that never checks ctx is still cut off on time.
func (c *ServerCall) watchDeadline() {
	<-c.ctx.Done()
	if c.ctx.Err() != context.DeadlineExceeded {
		return
	}
	_ = c.End(status.Error(status.DeadlineExceeded, "Deadline exceeded"))
}

// ctxError reports the call's context error as a gRPC status error, or
// nil if the context is still live. RecvMsg and SendMsg consult it first
// so that once a deadline fires or the call is cancelled, further I/O
// becomes a no-op instead of racing the trailers the deadline watcher or
// End is writing.
func (c *ServerCall) ctxError() error {
	switch c.ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return status.Error(status.DeadlineExceeded, "Deadline exceeded")
	default:
		return status.Error(status.Canceled, c.ctx.Err().Error())
	}
}

func peerFromRequest(r *http.Request) *peer.Peer {
	p := &peer.Peer{}
	if a, err := parseAddr(r.RemoteAddr); err == nil {
		p.Addr = a
	}
	if r.TLS != nil {
		p.AuthInfo = &peer.AuthInfo{State: *r.TLS}
	}
	return p
}

// parseTimeout parses the grpc-timeout header grammar: a decimal value
// immediately followed by a one-character unit (H, M, S, m, u, n).
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timeout")
	}
	unit := s[len(s)-1]
	val, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, err
	}
	var scale time.Duration
	switch unit {
	case 'H':
		scale = time.Hour
	case 'M':
		scale = time.Minute
	case 'S':
		scale = time.Second
	case 'm':
		scale = time.Millisecond
	case 'u':
		scale = time.Microsecond
	case 'n':
		scale = time.Nanosecond
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	return time.Duration(val) * scale, nil
}

// Context returns the call's context, carrying incoming metadata, peer
// info, and the deadline derived from grpc-timeout, if any.
func (c *ServerCall) Context() context.Context { return c.ctx }

// Method returns the full "/service/method" path for this call.
func (c *ServerCall) Method() string { return c.fullMethod }

// SetTrailer merges md into the trailer metadata sent when the call
// ends.
func (c *ServerCall) SetTrailer(md metadata.MD) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trailer.Merge(md)
}

// SendHeader flushes the response headers (content-type, grpc-encoding,
// and any caller-supplied metadata) exactly once; later calls are no-ops
// and the metadata passed to them is discarded.
func (c *ServerCall) SendHeader(md metadata.MD) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendHeaderLocked(md)
}

func (c *ServerCall) sendHeaderLocked(md metadata.MD) error {
	if c.headerSent {
		return nil
	}
	h := c.w.Header()
	h.Set("Content-Type", contentTypePrefix+"+"+c.codec.Name())
	if c.sendComp != "" && c.sendComp != compressor.Identity {
		h.Set("Grpc-Encoding", c.sendComp)
	}
	for _, k := range md.Keys() {
		for _, v := range md.Get(k) {
			h.Add(http.CanonicalHeaderKey(k), v)
		}
	}
	c.w.WriteHeader(http.StatusOK)
	c.headerSent = true

	if c.statsH != nil {
		c.statsH.HandleRPC(c.ctx, &stats.OutHeader{Header: map[string][]string(h), Compression: c.sendComp, FullMethod: c.fullMethod})
	}
	return nil
}

// RecvMsg reads and decodes one message from the request body into v. It
// returns io.EOF (via framer.Decoder) when the client half-closes the
// stream having sent no further messages.
func (c *ServerCall) RecvMsg(v any) error {
	if err := c.ctxError(); err != nil {
		return err
	}

	frame, err := c.dec.Read()
	if err != nil {
		var tooLarge *framer.FrameTooLargeError
		if errors.As(err, &tooLarge) {
			return status.Errorf(status.ResourceExhausted, "Received message larger than max (%d vs. %d)", tooLarge.Size, tooLarge.Max)
		}
		return err
	}
	defer frame.Free()

	raw := frame.Payload.Materialize()
	data, err := c.comp.ReadMessage(raw, frame.Compressed)
	if err != nil {
		return status.Errorf(status.Internal, "g2rpc: decompress: %v", err)
	}
	if err := c.codec.Unmarshal(data, v); err != nil {
		return status.Errorf(status.Internal, "g2rpc: unmarshal: %v", err)
	}
	if c.statsH != nil {
		c.statsH.HandleRPC(c.ctx, &stats.InPayload{Payload: v, Length: len(data), WireLength: len(raw), RecvTime: time.Now()})
	}
	return nil
}

// SendMsg serializes v, applies the negotiated send compressor, frames
// it, and writes+flushes it to the response. SendHeader is implicitly
// called first if it hasn't been already.
func (c *ServerCall) SendMsg(v any) error {
	if err := c.ctxError(); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.sendHeaderLocked(metadata.MD{}); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	data, err := c.codec.Marshal(v)
	if err != nil {
		return status.Errorf(status.Internal, "g2rpc: marshal: %v", err)
	}
	if c.sendLimit > 0 && len(data) > c.sendLimit {
		return status.Errorf(status.ResourceExhausted, "Sent message larger than max (%d vs. %d)", len(data), c.sendLimit)
	}
	out, compressed, err := c.comp.WriteMessage(data)
	if err != nil {
		return status.Errorf(status.Internal, "g2rpc: compress: %v", err)
	}
	if err := framer.Encode(c.w, compressed, out); err != nil {
		return err
	}
	if f, ok := c.w.(http.Flusher); ok {
		f.Flush()
	}
	if c.statsH != nil {
		c.statsH.HandleRPC(c.ctx, &stats.OutPayload{Payload: v, Length: len(data), WireLength: len(out), SentTime: time.Now()})
	}
	return nil
}

// End finalizes the call: it sends headers if none were sent yet (the
// no-message-sent case), writes grpc-status/grpc-message trailers plus
// any caller-set trailer metadata, and cancels the call's context.
func (c *ServerCall) End(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return nil
	}
	c.finished = true
	defer c.cancel()

	if err := c.sendHeaderLocked(metadata.MD{}); err != nil {
		return err
	}

	st := status.FromError(err)
	trailer := c.trailer.Clone()
	stMD := st.Metadata()
	for _, k := range stMD.Keys() {
		trailer.Set(k, stMD.Get(k)...)
	}

	h := c.w.Header()
	for _, k := range trailer.Keys() {
		for _, v := range trailer.Get(k) {
			h.Add(http.TrailerPrefix+http.CanonicalHeaderKey(k), v)
		}
	}
	h.Set(http.TrailerPrefix+"Grpc-Status", strconv.Itoa(int(st.Code())))
	if d := st.Details(); d != "" {
		h.Set(http.TrailerPrefix+"Grpc-Message", encodeGrpcMessage(d))
	}

	if c.statsH != nil {
		c.statsH.HandleRPC(c.ctx, &stats.End{BeginTime: c.begin, EndTime: time.Now(), Error: err})
	}
	return nil
}

// encodeGrpcMessage percent-encodes a status message per the grpc-message
// header grammar, since trailer values must stay within the HTTP header
// value charset.
func encodeGrpcMessage(msg string) string {
	var needsEscape bool
	for _, b := range []byte(msg) {
		if b < 0x20 || b > 0x7e || b == '%' {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return msg
	}
	var sb strings.Builder
	for _, b := range []byte(msg) {
		if b < 0x20 || b > 0x7e || b == '%' {
			fmt.Fprintf(&sb, "%%%02X", b)
		} else {
			sb.WriteByte(b)
		}
	}
	return sb.String()
}
