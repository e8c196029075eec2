// Package status implements the gRPC status codes and the error type used
// to carry them across the ServerCall boundary, generalizing a
// single-string service-error convention into the full gRPC code set.
package status

import (
	"errors"
	"fmt"

	"github.com/crazyfrankie/g2rpc/metadata"
)

// Code is a gRPC status code. The integer values are the stable wire
// values and must never be renumbered.
type Code uint32

const (
	OK                  Code = 0
	Canceled            Code = 1
	Unknown             Code = 2
	InvalidArgument     Code = 3
	DeadlineExceeded    Code = 4
	NotFound            Code = 5
	AlreadyExists       Code = 6
	PermissionDenied    Code = 7
	ResourceExhausted   Code = 8
	FailedPrecondition  Code = 9
	Aborted             Code = 10
	OutOfRange          Code = 11
	Unimplemented       Code = 12
	Internal            Code = 13
	Unavailable         Code = 14
	DataLoss            Code = 15
	Unauthenticated     Code = 16
)

var codeNames = map[Code]string{
	OK:                 "OK",
	Canceled:           "CANCELLED",
	Unknown:            "UNKNOWN",
	InvalidArgument:    "INVALID_ARGUMENT",
	DeadlineExceeded:   "DEADLINE_EXCEEDED",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	PermissionDenied:   "PERMISSION_DENIED",
	ResourceExhausted:  "RESOURCE_EXHAUSTED",
	FailedPrecondition: "FAILED_PRECONDITION",
	Aborted:            "ABORTED",
	OutOfRange:         "OUT_OF_RANGE",
	Unimplemented:      "UNIMPLEMENTED",
	Internal:           "INTERNAL",
	Unavailable:        "UNAVAILABLE",
	DataLoss:           "DATA_LOSS",
	Unauthenticated:    "UNAUTHENTICATED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", uint32(c))
}

// Status is a gRPC call outcome: a code, a human-readable details string,
// and optional trailing metadata the caller wants delivered alongside the
// status trailers.
type Status struct {
	code     Code
	details  string
	metadata metadata.MD
}

// New returns a Status with the given code and details.
func New(code Code, details string) *Status {
	return &Status{code: code, details: details}
}

// Newf is New with fmt.Sprintf-style formatting of details.
func Newf(code Code, format string, a ...any) *Status {
	return New(code, fmt.Sprintf(format, a...))
}

func (s *Status) Code() Code {
	if s == nil {
		return OK
	}
	return s.code
}

func (s *Status) Details() string {
	if s == nil {
		return ""
	}
	return s.details
}

func (s *Status) Metadata() metadata.MD {
	if s == nil {
		return metadata.MD{}
	}
	return s.metadata
}

// WithMetadata returns a copy of s carrying the given trailing metadata.
func (s *Status) WithMetadata(md metadata.MD) *Status {
	if s == nil {
		s = New(OK, "")
	}
	cp := *s
	cp.metadata = md
	return &cp
}

// Err returns an error representing s, or nil if s is OK.
func (s *Status) Err() error {
	if s == nil || s.code == OK {
		return nil
	}
	return &statusError{s}
}

type statusError struct {
	s *Status
}

func (e *statusError) Error() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", e.s.Code(), e.s.Details())
}

// GRPCStatus lets statusError satisfy the interface used by FromError.
func (e *statusError) GRPCStatus() *Status {
	return e.s
}

// Error constructs an error carrying the given code and details.
func Error(code Code, details string) error {
	return New(code, details).Err()
}

// Errorf is Error with fmt.Sprintf-style formatting.
func Errorf(code Code, format string, a ...any) error {
	return Newf(code, format, a...).Err()
}

// withMetadataCarrier is implemented by user-raised errors that want to
// attach trailing metadata without going through the status package.
type withMetadataCarrier interface {
	Metadata() metadata.MD
}

// withCodeCarrier is implemented by user-raised errors that carry an
// explicit integer status code.
type withCodeCarrier interface {
	Code() Code
}

// withDetailsCarrier is implemented by user-raised errors that carry an
// explicit details string distinct from Error() ("err.details").
type withDetailsCarrier interface {
	Details() string
}

// FromError derives a *Status from an arbitrary error. If err already
// carries a Status (via GRPCStatus), that Status is returned verbatim.
// Otherwise the err.code / err.details / err.metadata convention is
// applied; anything left unset falls back to Unknown and err.Error().
func FromError(err error) *Status {
	if err == nil {
		return New(OK, "")
	}

	var gs interface{ GRPCStatus() *Status }
	if errors.As(err, &gs) {
		return gs.GRPCStatus()
	}

	code := Unknown
	details := err.Error()

	var cc withCodeCarrier
	if errors.As(err, &cc) {
		code = cc.Code()
	}
	var dc withDetailsCarrier
	if errors.As(err, &dc) {
		details = dc.Details()
	}

	s := New(code, details)
	var mc withMetadataCarrier
	if errors.As(err, &mc) {
		s.metadata = mc.Metadata()
	}
	return s
}

// Convert is an alias for FromError kept for readability at call sites
// that are not specifically handling an error path.
func Convert(err error) *Status { return FromError(err) }

// FromCause is like FromError but takes an explicit default code to use
// when err carries none of its own — e.g. a deadline-expiry path passing
// DeadlineExceeded, or a framing failure passing Internal.
func FromCause(err error, defaultCode Code) *Status {
	s := FromError(err)
	if s.code == Unknown {
		s.code = defaultCode
	}
	return s
}

// FromCode extracts the status code from err, returning OK for a nil error
// and Unknown for an error that carries no status information.
func FromCode(err error) Code {
	if err == nil {
		return OK
	}
	return FromError(err).Code()
}
