package api

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
)

// Kind classifies a failure so that callers can react without parsing messages.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindNameConflict Kind = "name_conflict"
	KindTransport    Kind = "transport"
	KindPrecondition Kind = "precondition"
	KindInvalid      Kind = "invalid"
	KindInternal     Kind = "internal"
)

// Error is the error type reported by every controller operation and every
// backend method.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind, so errors.Is(err, ErrNotFound) holds for
// any not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrNameConflict = &Error{Kind: KindNameConflict}
	ErrTransport    = &Error{Kind: KindTransport}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrInvalid      = &Error{Kind: KindInvalid}
	ErrInternal     = &Error{Kind: KindInternal}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an operation name to err, keeping its kind when it already has one.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Op: op, Message: e.Message, Err: e.Err}
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf reports the kind of err. Errors that carry no kind are treated as
// transport failures, since that is the only place untyped errors come from.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransport
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return KindFromConnect(ce.Code())
	}
	return KindTransport
}

// JSON-RPC 2.0 error codes. The server-defined range is used for domain kinds.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32001
	CodeNameConflict   = -32002
	CodePrecondition   = -32003
	CodeTransport      = -32004
)

func CodeOf(kind Kind) int {
	switch kind {
	case KindNotFound:
		return CodeNotFound
	case KindNameConflict:
		return CodeNameConflict
	case KindPrecondition:
		return CodePrecondition
	case KindInvalid:
		return CodeInvalidParams
	case KindTransport:
		return CodeTransport
	default:
		return CodeInternalError
	}
}

func KindFromCode(code int) Kind {
	switch code {
	case CodeNotFound:
		return KindNotFound
	case CodeNameConflict:
		return KindNameConflict
	case CodePrecondition:
		return KindPrecondition
	case CodeInvalidParams, CodeInvalidRequest, CodeMethodNotFound:
		return KindInvalid
	case CodeTransport, CodeParseError:
		return KindTransport
	default:
		return KindInternal
	}
}

func ConnectCode(kind Kind) connect.Code {
	switch kind {
	case KindNotFound:
		return connect.CodeNotFound
	case KindNameConflict:
		return connect.CodeAlreadyExists
	case KindPrecondition:
		return connect.CodeFailedPrecondition
	case KindInvalid:
		return connect.CodeInvalidArgument
	case KindTransport:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

func KindFromConnect(code connect.Code) Kind {
	switch code {
	case connect.CodeNotFound:
		return KindNotFound
	case connect.CodeAlreadyExists:
		return KindNameConflict
	case connect.CodeFailedPrecondition:
		return KindPrecondition
	case connect.CodeInvalidArgument, connect.CodeUnimplemented:
		return KindInvalid
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss:
		return KindInternal
	default:
		return KindTransport
	}
}
